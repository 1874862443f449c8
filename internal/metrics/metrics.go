// Package metrics computes partisan-fairness statistics from per-district
// vote tallies. Every function here is pure and side-effect free.
//
// Districts with a zero two-party total are excluded from every metric.
// Each formula returns NaN on its documented degenerate condition instead
// of panicking; NaN is a valid analytic outcome ("undefined for this plan")
// and callers must filter it before aggregate statistics.
//
// Sign conventions, kept identical at generation and analysis time:
// efficiency gap is (wasted Dem − wasted Rep) / statewide two-party total
// (Dem-disadvantage positive), and mean–median is mean(Dem shares) −
// median(Dem shares).
package metrics

import (
	"math"
	"sort"

	"github.com/xkilldash9x/ensemble-cli/internal/plan"
)

// Competitiveness band half-widths supported out of the box.
const (
	BandStandard = 0.05 // 45-55% Dem share
	BandTight    = 0.02 // 48-52% Dem share
)

// Seats is a seat tally under strict-majority rules: a district with equal
// two-party totals is a tie, won by neither side.
type Seats struct {
	Dem  int
	Rep  int
	Ties int
}

// Total returns the number of qualifying districts counted.
func (s Seats) Total() int { return s.Dem + s.Rep + s.Ties }

// DemShare returns Dem wins over all qualifying districts, NaN when there
// are none.
func (s Seats) DemShare() float64 {
	if s.Total() == 0 {
		return math.NaN()
	}
	return float64(s.Dem) / float64(s.Total())
}

// RepShare returns Rep wins over all qualifying districts, NaN when there
// are none.
func (s Seats) RepShare() float64 {
	if s.Total() == 0 {
		return math.NaN()
	}
	return float64(s.Rep) / float64(s.Total())
}

// SeatTally counts district winners by strict two-party majority.
func SeatTally(t plan.Tally) Seats {
	var s Seats
	for _, d := range t {
		if d.TwoParty() <= 0 {
			continue
		}
		switch {
		case d.Dem > d.Rep:
			s.Dem++
		case d.Rep > d.Dem:
			s.Rep++
		default:
			s.Ties++
		}
	}
	return s
}

// EfficiencyGap computes the wasted-vote gap. The winner wastes votes above
// the floor(total/2)+1 threshold, the loser wastes its entire total, and an
// exact tie wastes half of each side. Returns NaN when the statewide
// two-party total is zero.
func EfficiencyGap(t plan.Tally) float64 {
	var wastedDem, wastedRep, statewide float64
	for _, d := range t {
		total := d.TwoParty()
		if total <= 0 {
			continue
		}
		statewide += total
		threshold := math.Floor(total/2) + 1
		var dw, rw float64
		switch {
		case d.Dem > d.Rep:
			dw = d.Dem - threshold
			rw = d.Rep
		case d.Rep > d.Dem:
			rw = d.Rep - threshold
			dw = d.Dem
		default:
			dw = d.Dem / 2
			rw = d.Rep / 2
		}
		wastedDem += math.Max(dw, 0)
		wastedRep += math.Max(rw, 0)
	}
	if statewide == 0 {
		return math.NaN()
	}
	return (wastedDem - wastedRep) / statewide
}

// MeanMedian returns mean(Dem shares) − median(Dem shares), NaN when no
// district qualifies.
func MeanMedian(t plan.Tally) float64 {
	shares := demShares(t)
	if len(shares) == 0 {
		return math.NaN()
	}
	return mean(shares) - median(shares)
}

// PartisanBias applies a uniform swing that brings the statewide Dem share
// to exactly 50%, clamps each shifted district share into [0,1], and
// returns the Dem seat share at that counterfactual minus 0.5. Districts
// count as won only on a strictly greater than 0.5 shifted share. NaN when
// no district qualifies or both statewide totals are zero.
func PartisanBias(t plan.Tally) float64 {
	var shares []float64
	var totalDem, totalRep float64
	for _, d := range t {
		if d.TwoParty() <= 0 {
			continue
		}
		shares = append(shares, d.Dem/d.TwoParty())
		totalDem += d.Dem
		totalRep += d.Rep
	}
	if len(shares) == 0 || totalDem+totalRep == 0 {
		return math.NaN()
	}
	shift := 0.5 - totalDem/(totalDem+totalRep)
	wins := 0
	for _, s := range shares {
		swung := math.Min(math.Max(s+shift, 0), 1)
		if swung > 0.5 {
			wins++
		}
	}
	return float64(wins)/float64(len(shares)) - 0.5
}

// Declination measures the angle between the Rep-won and Dem-won halves of
// the sorted share curve, in degrees (positive favors Rep). With k the
// count of shares at or below 0.5 and n the qualifying district count, the
// metric is undefined (NaN) when k is 0 or n: one party won everything and
// there is no split to measure.
func Declination(t plan.Tally) float64 {
	shares := demShares(t)
	n := len(shares)
	if n == 0 {
		return math.NaN()
	}
	k := 0
	for _, s := range shares {
		if s <= 0.5 {
			k++
		}
	}
	if k == 0 || k == n {
		return math.NaN()
	}
	meanLow := mean(shares[:k])
	meanHigh := mean(shares[k:])
	thetaLow := math.Atan((0.5 - meanLow) * float64(n) / float64(k))
	thetaHigh := math.Atan((meanHigh - 0.5) * float64(n) / float64(n-k))
	return (thetaHigh - thetaLow) * 180 / math.Pi
}

// Competitiveness counts qualifying districts whose Dem share lies within
// the inclusive band [0.5-delta, 0.5+delta].
func Competitiveness(t plan.Tally, delta float64) int {
	count := 0
	for _, d := range t {
		if d.TwoParty() <= 0 {
			continue
		}
		share := d.Dem / d.TwoParty()
		if share >= 0.5-delta && share <= 0.5+delta {
			count++
		}
	}
	return count
}

// demShares returns the sorted Dem two-party shares of qualifying districts.
func demShares(t plan.Tally) []float64 {
	var shares []float64
	for _, d := range t {
		if d.TwoParty() > 0 {
			shares = append(shares, d.Dem/d.TwoParty())
		}
	}
	sort.Float64s(shares)
	return shares
}

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// median assumes xs is sorted and non-empty, averaging the middle pair for
// even lengths.
func median(xs []float64) float64 {
	n := len(xs)
	if n%2 == 1 {
		return xs[n/2]
	}
	return 0.5 * (xs[n/2-1] + xs[n/2])
}
