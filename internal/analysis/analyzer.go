// Package analysis recomputes ensemble metrics from raw graph attributes
// and recorded assignments, independently of any numbers produced at
// generation time. Generation-time fields are carried along for comparison
// only; they are never substituted for a fresh computation.
package analysis

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/ensemble-cli/internal/graph"
	"github.com/xkilldash9x/ensemble-cli/internal/metrics"
	"github.com/xkilldash9x/ensemble-cli/internal/plan"
	"github.com/xkilldash9x/ensemble-cli/internal/store"
)

// Row is one plan's full metric set: the record's generation-time numbers
// side by side with the independently recomputed ones. A divergence between
// the two seat counts (or efficiency gaps) is a correctness signal worth
// investigating, not an error by itself.
type Row struct {
	PlanIndex               int
	NumDistricts            int
	Contiguous              bool
	RepSeatsGenerated       int
	RepSeatsRecomputed      int
	DemSeatsRecomputed      int
	Ties                    int
	SeatShareDem            float64
	SeatShareRep            float64
	EfficiencyGapGenerated  float64
	EfficiencyGapRecomputed float64
	MeanMedian              float64
	PartisanBias            float64
	DeclinationDeg          float64
	Competitive4555         int
	Competitive4852         int
	StatewideDemShare       float64
}

// Analyzer reloads an ensemble against its graph and produces one Row per
// record. Per-plan work is embarrassingly parallel; only the output slice
// assembly is shared, and each worker writes its own index.
type Analyzer struct {
	graph   *graph.Graph
	fields  graph.Fields
	workers int
	log     *zap.Logger
}

// New builds an analyzer. workers <= 0 falls back to serial analysis.
func New(g *graph.Graph, f graph.Fields, workers int, logger *zap.Logger) *Analyzer {
	if workers <= 0 {
		workers = 1
	}
	return &Analyzer{
		graph:   g,
		fields:  f,
		workers: workers,
		log:     logger.Named("analysis"),
	}
}

// Analyze computes the full metric row for every record. Row order follows
// input record order for reproducibility; the order carries no semantic
// meaning.
func (a *Analyzer) Analyze(ctx context.Context, records []store.PlanRecord) ([]Row, error) {
	statewide := a.statewideDemShare()
	a.log.Info("Analyzing ensemble",
		zap.Int("plans", len(records)),
		zap.Int("workers", a.workers),
		zap.Float64("statewide_dem_share", statewide),
	)

	rows := make([]Row, len(records))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, rec := range records {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rows[i] = a.analyzeOne(rec, statewide)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("ensemble analysis aborted: %w", err)
	}
	return rows, nil
}

// analyzeOne rebuilds the tallies strictly from graph attributes plus the
// record's assignment, then evaluates every metric.
func (a *Analyzer) analyzeOne(rec store.PlanRecord, statewide float64) Row {
	tally := plan.Aggregate(a.graph, a.fields, rec.Assignment)
	seats := metrics.SeatTally(tally)

	return Row{
		PlanIndex:               rec.Index,
		NumDistricts:            len(tally),
		Contiguous:              rec.Contiguous,
		RepSeatsGenerated:       rec.RepSeats,
		RepSeatsRecomputed:      seats.Rep,
		DemSeatsRecomputed:      seats.Dem,
		Ties:                    seats.Ties,
		SeatShareDem:            seats.DemShare(),
		SeatShareRep:            seats.RepShare(),
		EfficiencyGapGenerated:  float64(rec.EfficiencyGap),
		EfficiencyGapRecomputed: metrics.EfficiencyGap(tally),
		MeanMedian:              metrics.MeanMedian(tally),
		PartisanBias:            metrics.PartisanBias(tally),
		DeclinationDeg:          metrics.Declination(tally),
		Competitive4555:         metrics.Competitiveness(tally, metrics.BandStandard),
		Competitive4852:         metrics.Competitiveness(tally, metrics.BandTight),
		StatewideDemShare:       statewide,
	}
}

// statewideDemShare sums the vote attributes over the whole graph,
// independent of any plan. NaN when both totals are zero.
func (a *Analyzer) statewideDemShare() float64 {
	var dem, rep float64
	for _, id := range a.graph.Nodes() {
		dem += a.graph.Number(id, a.fields.Dem)
		rep += a.graph.Number(id, a.fields.Rep)
	}
	if dem+rep == 0 {
		return math.NaN()
	}
	return dem / (dem + rep)
}

// metricAccessors maps a reducible metric name to its Row field.
var metricAccessors = map[string]func(Row) float64{
	"efficiency_gap_generated":  func(r Row) float64 { return r.EfficiencyGapGenerated },
	"efficiency_gap_recomputed": func(r Row) float64 { return r.EfficiencyGapRecomputed },
	"mean_median":               func(r Row) float64 { return r.MeanMedian },
	"partisan_bias":             func(r Row) float64 { return r.PartisanBias },
	"declination_deg":           func(r Row) float64 { return r.DeclinationDeg },
	"seat_share_dem":            func(r Row) float64 { return r.SeatShareDem },
	"seat_share_rep":            func(r Row) float64 { return r.SeatShareRep },
	"statewide_dem_share":       func(r Row) float64 { return r.StatewideDemShare },
}

// Reduce collects the finite values of one metric across all rows, plus the
// count of rows excluded as NaN. This is the basis for any downstream
// summary distribution: NaN is excluded, never defaulted to zero.
func Reduce(rows []Row, metric string) ([]float64, int, error) {
	get, ok := metricAccessors[metric]
	if !ok {
		return nil, 0, fmt.Errorf("unknown metric %q", metric)
	}
	values := make([]float64, 0, len(rows))
	excluded := 0
	for _, r := range rows {
		v := get(r)
		if math.IsNaN(v) {
			excluded++
			continue
		}
		values = append(values, v)
	}
	return values, excluded, nil
}
