// Package chain drives the plan-sampling random walk: propose, check hard
// constraints, record on cadence. Generation is inherently sequential (each
// plan depends on the prior one), so the run loop is a single uninterrupted
// sequence; only the proposal engine may parallelize internally.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"go.uber.org/zap"

	"github.com/xkilldash9x/ensemble-cli/internal/config"
	"github.com/xkilldash9x/ensemble-cli/internal/graph"
	"github.com/xkilldash9x/ensemble-cli/internal/metrics"
	"github.com/xkilldash9x/ensemble-cli/internal/plan"
	"github.com/xkilldash9x/ensemble-cli/internal/store"
)

// ErrNoCandidate is returned by a ProposalEngine that could not find a
// successor plan within its own effort budget. The chain retains the
// current plan for that step.
var ErrNoCandidate = errors.New("proposal engine found no candidate")

// ProposalEngine produces a candidate successor for the current plan. It is
// a black box to the chain: any conforming implementation (the bundled
// boundary flipper, an external recombination engine) can be injected.
type ProposalEngine interface {
	Name() string
	Propose(rng *rand.Rand, current plan.Assignment, epsilon float64) (plan.Assignment, error)
}

// Constraint is a hard acceptance predicate. A candidate is accepted iff
// every constraint holds; there is no Metropolis-Hastings rejection beyond
// this, so the walk is a pure constrained random walk.
type Constraint func(a plan.Assignment) bool

// PopulationBalance builds the constraint that every district's population
// stays within epsilon of the ideal per-district population.
func PopulationBalance(g *graph.Graph, f graph.Fields, ideal, epsilon float64) Constraint {
	low := ideal * (1 - epsilon)
	high := ideal * (1 + epsilon)
	return func(a plan.Assignment) bool {
		for _, t := range plan.Aggregate(g, f, a) {
			if t.Pop < low || t.Pop > high {
				return false
			}
		}
		return true
	}
}

// ShortfallError reports a run that exhausted its step budget before
// producing the requested number of samples. This is a distinct, explicit
// condition, never a silently truncated result.
type ShortfallError struct {
	Produced  int
	Requested int
}

func (e *ShortfallError) Error() string {
	return fmt.Sprintf("step budget exhausted: produced %d of %d requested plans", e.Produced, e.Requested)
}

// Result summarizes one chain run.
type Result struct {
	RunID     string
	Kept      int
	Steps     int
	Districts int
	IdealPop  float64
}

// Controller owns the step/accept/record loop. It holds exactly one
// "current" plan and never mutates it; accepted candidates replace it
// wholesale.
type Controller struct {
	graph  *graph.Graph
	fields graph.Fields
	cfg    config.SamplerConfig
	engine ProposalEngine
	sink   store.PlanStore
	meta   store.Meta
	log    *zap.Logger
}

// New wires a controller. The meta block is embedded verbatim in every
// record the run produces.
func New(
	g *graph.Graph,
	f graph.Fields,
	cfg config.SamplerConfig,
	engine ProposalEngine,
	sink store.PlanStore,
	meta store.Meta,
	logger *zap.Logger,
) *Controller {
	return &Controller{
		graph:  g,
		fields: f,
		cfg:    cfg,
		engine: engine,
		sink:   sink,
		meta:   meta,
		log:    logger.Named("chain"),
	}
}

// Run executes the walk from the initial assignment until the requested
// sample count is reached or the step budget runs out. The returned Result
// is valid even when the error is a *ShortfallError.
//
// Recording cadence: of all accepted steps, every (stepsBetween+1)-th is
// candidate-kept; among candidate-kept steps the first burnIn are
// discarded, then every thin-th is recorded.
func (c *Controller) Run(ctx context.Context, initial plan.Assignment) (*Result, error) {
	// thin == 0 would make the keep rule unbounded; the config layer
	// rejects it, but the chain refuses to start on it regardless.
	if c.cfg.Thin <= 0 {
		return nil, fmt.Errorf("invalid thinning interval %d", c.cfg.Thin)
	}
	if len(initial) == 0 {
		return nil, fmt.Errorf("initial assignment is empty")
	}

	districts := initial.Districts()
	totalPop := 0.0
	for _, t := range plan.Aggregate(c.graph, c.fields, initial) {
		totalPop += t.Pop
	}
	ideal := totalPop / float64(len(districts))

	res := &Result{
		RunID:     c.meta.RunID,
		Districts: len(districts),
		IdealPop:  ideal,
	}

	c.log.Info("Starting chain run",
		zap.String("run_id", c.meta.RunID),
		zap.String("proposal_engine", c.engine.Name()),
		zap.Int("districts", len(districts)),
		zap.Float64("total_pop", totalPop),
		zap.Float64("ideal_pop", ideal),
		zap.Int("samples", c.cfg.Samples),
		zap.Int("steps_budget", c.cfg.StepsBudget()),
	)

	constraints := []Constraint{
		PopulationBalance(c.graph, c.fields, ideal, c.cfg.Epsilon),
	}

	rng := rand.New(rand.NewSource(c.cfg.Seed))
	current := initial
	budget := c.cfg.StepsBudget()
	keptSeen := 0

	for step := 0; step < budget; step++ {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("chain run cancelled after %d steps: %w", res.Steps, err)
		}

		// Step 0 is the initial state; every later step asks the engine
		// for a successor and accepts it iff all constraints hold.
		if step > 0 {
			candidate, err := c.engine.Propose(rng, current, c.cfg.Epsilon)
			switch {
			case errors.Is(err, ErrNoCandidate):
				c.log.Debug("No candidate found, retaining current plan", zap.Int("step", step))
			case err != nil:
				return res, fmt.Errorf("proposal engine failed at step %d: %w", step, err)
			default:
				if accepts(constraints, candidate) {
					current = candidate
				}
			}
		}
		res.Steps = step + 1

		// Cadence: keep every (stepsBetween+1)-th step.
		if step%(c.cfg.StepsBetween+1) != c.cfg.StepsBetween {
			continue
		}
		keptSeen++
		if keptSeen <= c.cfg.BurnIn {
			continue
		}
		if (keptSeen-c.cfg.BurnIn-1)%c.cfg.Thin != 0 {
			continue
		}

		if err := c.record(current, res.Kept+1); err != nil {
			return res, err
		}
		res.Kept++
		if res.Kept >= c.cfg.Samples {
			return res, nil
		}
	}

	return res, &ShortfallError{Produced: res.Kept, Requested: c.cfg.Samples}
}

// record runs the step-level observers (contiguity advisory, seat tally,
// efficiency gap) and appends a self-describing record to the sink.
func (c *Controller) record(a plan.Assignment, index int) error {
	tally := plan.Aggregate(c.graph, c.fields, a)
	seats := metrics.SeatTally(tally)
	eg := metrics.EfficiencyGap(tally)
	contiguous := plan.Contiguous(c.graph, a)

	rec := store.PlanRecord{
		Meta:          c.meta,
		Index:         index,
		Contiguous:    contiguous,
		RepSeats:      seats.Rep,
		EfficiencyGap: store.JSONFloat(eg),
		Assignment:    a.Clone(),
	}
	if err := c.sink.Append(rec); err != nil {
		return fmt.Errorf("failed to append plan record %d: %w", index, err)
	}

	c.log.Info("Saved plan",
		zap.Int("index", index),
		zap.Int("rep_seats", seats.Rep),
		zap.Float64("efficiency_gap", eg),
		zap.Bool("contiguous", contiguous),
	)
	return nil
}

func accepts(constraints []Constraint, a plan.Assignment) bool {
	for _, ok := range constraints {
		if !ok(a) {
			return false
		}
	}
	return true
}
