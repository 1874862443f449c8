package chain_test

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/ensemble-cli/internal/chain"
	"github.com/xkilldash9x/ensemble-cli/internal/config"
	"github.com/xkilldash9x/ensemble-cli/internal/graph"
	"github.com/xkilldash9x/ensemble-cli/internal/plan"
	"github.com/xkilldash9x/ensemble-cli/internal/store"
)

var testFields = graph.Fields{Pop: "TOT_POP", Dem: "PRES12D", Rep: "PRES12R"}

// pathGraph is the reference 4-node path 1-2-3-4 with votes
// (10,5),(5,10),(10,5),(5,10) and equal populations.
func pathGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New()
	votes := [][2]float64{{10, 5}, {5, 10}, {10, 5}, {5, 10}}
	for i, v := range votes {
		id := string(rune('1' + i))
		g.AddNode(id, map[string]any{"TOT_POP": 100.0, "PRES12D": v[0], "PRES12R": v[1]})
	}
	g.AddEdge("1", "2")
	g.AddEdge("2", "3")
	g.AddEdge("3", "4")
	return g
}

// memStore collects records in memory.
type memStore struct {
	recs []store.PlanRecord
}

func (m *memStore) Append(rec store.PlanRecord) error {
	m.recs = append(m.recs, rec)
	return nil
}

func (m *memStore) Close() error { return nil }

// stuckEngine never finds a candidate, so the chain retains its current
// plan at every step.
type stuckEngine struct{}

func (stuckEngine) Name() string { return "stuck" }

func (stuckEngine) Propose(*rand.Rand, plan.Assignment, float64) (plan.Assignment, error) {
	return nil, chain.ErrNoCandidate
}

// echoEngine re-proposes the current plan and counts how often it is asked.
type echoEngine struct {
	calls int
}

func (e *echoEngine) Name() string { return "echo" }

func (e *echoEngine) Propose(_ *rand.Rand, current plan.Assignment, _ float64) (plan.Assignment, error) {
	e.calls++
	return current.Clone(), nil
}

func samplerCfg(samples int) config.SamplerConfig {
	return config.SamplerConfig{
		Samples:      samples,
		Epsilon:      0.5,
		Seed:         24,
		Thin:         1,
		StepsBetween: 0,
	}
}

func TestRunRecordsReferencePlan(t *testing.T) {
	g := pathGraph(t)
	sink := &memStore{}
	cfg := samplerCfg(3)
	meta := store.Meta{RunID: "test-run", Epsilon: cfg.Epsilon, Seed: cfg.Seed}

	c := chain.New(g, testFields, cfg, stuckEngine{}, sink, meta, zap.NewNop())
	initial := plan.Assignment{"1": 1, "2": 1, "3": 2, "4": 2}

	res, err := c.Run(context.Background(), initial)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Kept)
	assert.Equal(t, 2, res.Districts)
	assert.Equal(t, 200.0, res.IdealPop)

	require.Len(t, sink.recs, 3)
	for i, rec := range sink.recs {
		assert.Equal(t, i+1, rec.Index)
		assert.Equal(t, "test-run", rec.Meta.RunID)
		// Both districts tally 15-15: two ties, zero Rep seats, and the
		// efficiency gap cancels to zero.
		assert.True(t, rec.Contiguous)
		assert.Equal(t, 0, rec.RepSeats)
		assert.InDelta(t, 0, float64(rec.EfficiencyGap), 1e-12)
		assert.Equal(t, initial, rec.Assignment)
	}
}

func TestRunCadence(t *testing.T) {
	// stepsBetween=2 keeps steps 2,5,8,11,...; burnIn=1 discards the
	// first kept step; thin=2 then records every other one. The second
	// sample lands on step 11, so 12 steps run in total.
	g := pathGraph(t)
	sink := &memStore{}
	engine := &echoEngine{}
	cfg := config.SamplerConfig{
		Samples:      2,
		Epsilon:      0.5,
		Seed:         1,
		BurnIn:       1,
		Thin:         2,
		StepsBetween: 2,
	}

	c := chain.New(g, testFields, cfg, engine, sink, store.Meta{RunID: "cadence"}, zap.NewNop())
	res, err := c.Run(context.Background(), plan.Assignment{"1": 1, "2": 1, "3": 2, "4": 2})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Kept)
	assert.Equal(t, 12, res.Steps)
	// Step 0 is the initial state; the engine is asked once per later step.
	assert.Equal(t, 11, engine.calls)
	require.Len(t, sink.recs, 2)
	assert.Equal(t, 1, sink.recs[0].Index)
	assert.Equal(t, 2, sink.recs[1].Index)
}

func TestRunShortfall(t *testing.T) {
	g := pathGraph(t)
	sink := &memStore{}
	cfg := samplerCfg(50)
	cfg.MaxStepsBudget = 5

	c := chain.New(g, testFields, cfg, stuckEngine{}, sink, store.Meta{RunID: "short"}, zap.NewNop())
	res, err := c.Run(context.Background(), plan.Assignment{"1": 1, "2": 1, "3": 2, "4": 2})

	// The shortfall is explicit: the caller learns produced vs requested,
	// never a silently short list.
	var shortfall *chain.ShortfallError
	require.ErrorAs(t, err, &shortfall)
	assert.Equal(t, 5, shortfall.Produced)
	assert.Equal(t, 50, shortfall.Requested)
	require.NotNil(t, res)
	assert.Equal(t, 5, res.Kept)
	assert.Len(t, sink.recs, 5)
}

func TestRunRejectsZeroThin(t *testing.T) {
	g := pathGraph(t)
	sink := &memStore{}
	cfg := samplerCfg(1)
	cfg.Thin = 0

	c := chain.New(g, testFields, cfg, stuckEngine{}, sink, store.Meta{}, zap.NewNop())
	_, err := c.Run(context.Background(), plan.Assignment{"1": 1, "2": 2, "3": 2, "4": 2})

	require.Error(t, err)
	assert.Empty(t, sink.recs, "no records may be written on a fail-fast")
}

func TestRunRejectsEmptyInitial(t *testing.T) {
	g := pathGraph(t)
	c := chain.New(g, testFields, samplerCfg(1), stuckEngine{}, &memStore{}, store.Meta{}, zap.NewNop())
	_, err := c.Run(context.Background(), plan.Assignment{})
	assert.Error(t, err)
}

func TestRunHonorsCancellation(t *testing.T) {
	g := pathGraph(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := chain.New(g, testFields, samplerCfg(5), stuckEngine{}, &memStore{}, store.Meta{}, zap.NewNop())
	_, err := c.Run(ctx, plan.Assignment{"1": 1, "2": 1, "3": 2, "4": 2})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPopulationBalance(t *testing.T) {
	g := pathGraph(t)

	balanced := chain.PopulationBalance(g, testFields, 200, 0.05)
	assert.True(t, balanced(plan.Assignment{"1": 1, "2": 1, "3": 2, "4": 2}))
	// A 300/100 split is far outside ±5% of the 200 ideal.
	assert.False(t, balanced(plan.Assignment{"1": 1, "2": 1, "3": 1, "4": 2}))
}

func TestBoundaryFlip(t *testing.T) {
	g := pathGraph(t)
	engine := chain.NewBoundaryFlip(g)
	rng := rand.New(rand.NewSource(7))
	current := plan.Assignment{"1": 1, "2": 1, "3": 2, "4": 2}

	for i := 0; i < 50; i++ {
		next, err := engine.Propose(rng, current, 0.02)
		require.NoError(t, err)

		// Exactly one node moved, into a district adjacent to it, and the
		// donor district still has members.
		moved := 0
		for node, dist := range next {
			if current[node] != dist {
				moved++
			}
		}
		assert.Equal(t, 1, moved)
		assert.NotEmpty(t, next.Districts())
		assert.Len(t, next, len(current))
		current = next
	}
}

func TestBoundaryFlipNoCandidate(t *testing.T) {
	// A single-node graph has no legal flip: the only district would empty.
	g := graph.New()
	g.AddNode("1", map[string]any{"TOT_POP": 1.0})
	engine := chain.NewBoundaryFlip(g)

	_, err := engine.Propose(rand.New(rand.NewSource(1)), plan.Assignment{"1": 1}, 0.02)
	assert.ErrorIs(t, err, chain.ErrNoCandidate)
}
