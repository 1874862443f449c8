package metrics_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/ensemble-cli/internal/metrics"
	"github.com/xkilldash9x/ensemble-cli/internal/plan"
)

// tally builds a Tally from (dem, rep) pairs, one district per pair.
func tally(pairs ...[2]float64) plan.Tally {
	t := make(plan.Tally, len(pairs))
	for i, p := range pairs {
		t[i+1] = plan.DistrictTally{Dem: p[0], Rep: p[1]}
	}
	return t
}

func TestSeatTally(t *testing.T) {
	t.Run("strict majority wins, equal totals tie", func(t *testing.T) {
		s := metrics.SeatTally(tally(
			[2]float64{60, 40}, // Dem win
			[2]float64{30, 70}, // Rep win
			[2]float64{50, 50}, // tie
		))
		assert.Equal(t, 1, s.Dem)
		assert.Equal(t, 1, s.Rep)
		assert.Equal(t, 1, s.Ties)
		assert.InDelta(t, 1.0/3.0, s.DemShare(), 1e-12)
	})

	t.Run("zero two-party districts are excluded", func(t *testing.T) {
		s := metrics.SeatTally(tally(
			[2]float64{0, 0},
			[2]float64{10, 5},
		))
		assert.Equal(t, 1, s.Total())
		assert.Equal(t, 1, s.Dem)
	})

	t.Run("seat shares are NaN with no qualifying districts", func(t *testing.T) {
		s := metrics.SeatTally(tally([2]float64{0, 0}))
		assert.True(t, math.IsNaN(s.DemShare()))
		assert.True(t, math.IsNaN(s.RepShare()))
	})
}

func TestEfficiencyGap(t *testing.T) {
	t.Run("all exact ties give zero gap", func(t *testing.T) {
		eg := metrics.EfficiencyGap(tally(
			[2]float64{15, 15},
			[2]float64{15, 15},
		))
		assert.InDelta(t, 0, eg, 1e-12)
	})

	t.Run("winner wastes votes above threshold, loser wastes all", func(t *testing.T) {
		// One district, Dem 70 Rep 30: threshold = floor(100/2)+1 = 51.
		// Dem wastes 70-51 = 19, Rep wastes 30. EG = (19-30)/100.
		eg := metrics.EfficiencyGap(tally([2]float64{70, 30}))
		assert.InDelta(t, -0.11, eg, 1e-12)
	})

	t.Run("NaN when statewide two-party total is zero", func(t *testing.T) {
		assert.True(t, math.IsNaN(metrics.EfficiencyGap(tally([2]float64{0, 0}))))
		assert.True(t, math.IsNaN(metrics.EfficiencyGap(plan.Tally{})))
	})
}

func TestMeanMedian(t *testing.T) {
	t.Run("zero when all shares identical", func(t *testing.T) {
		mm := metrics.MeanMedian(tally(
			[2]float64{60, 40},
			[2]float64{30, 20},
			[2]float64{6, 4},
		))
		assert.InDelta(t, 0, mm, 1e-12)
	})

	t.Run("even count uses midpoint median", func(t *testing.T) {
		// Shares 0.2, 0.4, 0.6, 1.0: mean 0.55, median 0.5.
		mm := metrics.MeanMedian(tally(
			[2]float64{20, 80},
			[2]float64{40, 60},
			[2]float64{60, 40},
			[2]float64{100, 0},
		))
		assert.InDelta(t, 0.05, mm, 1e-12)
	})

	t.Run("NaN with no qualifying districts", func(t *testing.T) {
		assert.True(t, math.IsNaN(metrics.MeanMedian(tally([2]float64{0, 0}))))
	})
}

func TestPartisanBias(t *testing.T) {
	t.Run("balanced symmetric plan has zero bias", func(t *testing.T) {
		// Statewide share is exactly 0.5, shift is 0; one district above
		// parity, one below -> seat share 0.5.
		bias := metrics.PartisanBias(tally(
			[2]float64{60, 40},
			[2]float64{40, 60},
		))
		assert.InDelta(t, 0, bias, 1e-12)
	})

	t.Run("packed plan shows negative dem bias", func(t *testing.T) {
		// Dem votes packed into one district; after swinging statewide to
		// 50% Dem still holds only that one seat of three.
		bias := metrics.PartisanBias(tally(
			[2]float64{90, 10},
			[2]float64{30, 70},
			[2]float64{30, 70},
		))
		require.False(t, math.IsNaN(bias))
		assert.InDelta(t, 1.0/3.0-0.5, bias, 1e-12)
	})

	t.Run("NaN with no qualifying districts", func(t *testing.T) {
		assert.True(t, math.IsNaN(metrics.PartisanBias(plan.Tally{})))
	})
}

func TestDeclination(t *testing.T) {
	t.Run("NaN when every share is at parity", func(t *testing.T) {
		// All shares exactly 0.5 count toward k, so k == n.
		d := metrics.Declination(tally(
			[2]float64{50, 50},
			[2]float64{50, 50},
		))
		assert.True(t, math.IsNaN(d))
	})

	t.Run("NaN when one party wins everything", func(t *testing.T) {
		// k == n: all shares below parity.
		assert.True(t, math.IsNaN(metrics.Declination(tally(
			[2]float64{49, 51},
			[2]float64{49, 51},
		))))
		// k == 0: all shares above parity.
		assert.True(t, math.IsNaN(metrics.Declination(tally(
			[2]float64{51, 49},
			[2]float64{51, 49},
		))))
	})

	t.Run("symmetric split has zero declination", func(t *testing.T) {
		// Shares 0.4 and 0.6: thetaLow == thetaHigh.
		d := metrics.Declination(tally(
			[2]float64{40, 60},
			[2]float64{60, 40},
		))
		assert.InDelta(t, 0, d, 1e-12)
	})

	t.Run("matches the atan formula", func(t *testing.T) {
		// Shares 0.3, 0.45, 0.8: k=2, n=3.
		d := metrics.Declination(tally(
			[2]float64{30, 70},
			[2]float64{45, 55},
			[2]float64{80, 20},
		))
		meanLow := (0.3 + 0.45) / 2
		meanHigh := 0.8
		want := (math.Atan((meanHigh-0.5)*3.0/1.0) - math.Atan((0.5-meanLow)*3.0/2.0)) * 180 / math.Pi
		assert.InDelta(t, want, d, 1e-12)
	})
}

func TestCompetitiveness(t *testing.T) {
	plans := tally(
		[2]float64{50, 50},   // 0.50 -> both bands
		[2]float64{48, 52},   // 0.48 -> both bands (inclusive)
		[2]float64{454, 546}, // 0.454 -> standard only
		[2]float64{30, 70},   // 0.30 -> neither
		[2]float64{0, 0},     // excluded
	)

	standard := metrics.Competitiveness(plans, metrics.BandStandard)
	tight := metrics.Competitiveness(plans, metrics.BandTight)

	assert.Equal(t, 3, standard)
	assert.Equal(t, 2, tight)
	// The wider band can never count fewer districts than the tighter one.
	assert.GreaterOrEqual(t, standard, tight)
}
