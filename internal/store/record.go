// Package store persists ensemble plan records. The primary backend is an
// append-only NDJSON file flushed durably after every record; a Postgres
// backend with the same contract is available for shared result databases.
package store

import (
	"bytes"
	"math"
	"strconv"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/ensemble-cli/internal/plan"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Meta is the self-describing generation context embedded in every record,
// so a plan can be reanalyzed without access to the run's in-memory state.
type Meta struct {
	SourceGraph  string  `json:"source_graph"`
	RunID        string  `json:"run_id"`
	Epsilon      float64 `json:"epsilon"`
	Seed         int64   `json:"seed"`
	StepsBetween int     `json:"steps_between"`
	BurnIn       int     `json:"burn_in"`
	Thin         int     `json:"thin"`
	PopKey       string  `json:"pop_key"`
	DemKey       string  `json:"dem_key"`
	RepKey       string  `json:"rep_key"`
}

// JSONFloat is a float64 whose NaN value round-trips through JSON as null.
// Degenerate metric results are data, not errors, so they must survive
// serialization unambiguously.
type JSONFloat float64

// IsNaN reports whether the value is the NaN sentinel.
func (f JSONFloat) IsNaN() bool { return math.IsNaN(float64(f)) }

// MarshalJSON writes null for NaN and the plain number otherwise.
func (f JSONFloat) MarshalJSON() ([]byte, error) {
	if f.IsNaN() {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, float64(f), 'g', -1, 64), nil
}

// UnmarshalJSON reads null back as NaN.
func (f *JSONFloat) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*f = JSONFloat(math.NaN())
		return nil
	}
	v, err := strconv.ParseFloat(string(bytes.TrimSpace(data)), 64)
	if err != nil {
		return err
	}
	*f = JSONFloat(v)
	return nil
}

// PlanRecord is one kept plan: the persisted unit of an ensemble.
// Append-only; once written, immutable.
type PlanRecord struct {
	Meta          Meta            `json:"meta"`
	Index         int             `json:"index"`
	Contiguous    bool            `json:"contiguous"`
	RepSeats      int             `json:"rep_seats"`
	EfficiencyGap JSONFloat       `json:"efficiency_gap"`
	Assignment    plan.Assignment `json:"assignment"`
}
