package analysis

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
)

// csvHeader is the fixed column order of the analysis output. It matches
// the Row field order so the file is directly summarizable by any stats
// tooling.
var csvHeader = []string{
	"plan_index",
	"num_districts",
	"contiguous",
	"rep_seats_generated",
	"rep_seats_recomputed",
	"dem_seats_recomputed",
	"ties",
	"seat_share_dem",
	"seat_share_rep",
	"efficiency_gap_generated",
	"efficiency_gap_recomputed",
	"mean_median",
	"partisan_bias",
	"declination_deg",
	"competitive_45_55",
	"competitive_48_52",
	"statewide_dem_share",
}

// WriteCSV writes one row per plan. NaN values are emitted literally as
// "NaN" so downstream readers can tell "undefined for this plan" apart
// from any real value.
func WriteCSV(path string, rows []Row) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create metrics file %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write metrics header: %w", err)
	}
	for _, r := range rows {
		record := []string{
			strconv.Itoa(r.PlanIndex),
			strconv.Itoa(r.NumDistricts),
			strconv.FormatBool(r.Contiguous),
			strconv.Itoa(r.RepSeatsGenerated),
			strconv.Itoa(r.RepSeatsRecomputed),
			strconv.Itoa(r.DemSeatsRecomputed),
			strconv.Itoa(r.Ties),
			formatFloat(r.SeatShareDem),
			formatFloat(r.SeatShareRep),
			formatFloat(r.EfficiencyGapGenerated),
			formatFloat(r.EfficiencyGapRecomputed),
			formatFloat(r.MeanMedian),
			formatFloat(r.PartisanBias),
			formatFloat(r.DeclinationDeg),
			strconv.Itoa(r.Competitive4555),
			strconv.Itoa(r.Competitive4852),
			formatFloat(r.StatewideDemShare),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write metrics row %d: %w", r.PlanIndex, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush metrics file: %w", err)
	}
	return nil
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
