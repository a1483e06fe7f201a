// Package types contains the read shapes returned by the service and the API.
package types

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/okian/concord/internal/domain/reliability"
)

// Report status values.
const (
	StatusOK               = "ok"
	StatusInsufficientData = "insufficient_data"
)

// Stat is a float that survives JSON when it is infinite. Finite values are
// plain numbers, infinities are the strings "Infinity" and "-Infinity".
type Stat float64

const (
	posInf = "Infinity"
	negInf = "-Infinity"
)

// MarshalJSON implements json.Marshaler.
func (s Stat) MarshalJSON() ([]byte, error) {
	v := float64(s)
	switch {
	case math.IsInf(v, 1):
		return json.Marshal(posInf)
	case math.IsInf(v, -1):
		return json.Marshal(negInf)
	case math.IsNaN(v):
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Stat) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		switch str {
		case posInf:
			*s = Stat(math.Inf(1))
		case negInf:
			*s = Stat(math.Inf(-1))
		default:
			return fmt.Errorf("invalid stat %q", str)
		}
		return nil
	}
	var v *float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	if v == nil {
		*s = Stat(math.NaN())
		return nil
	}
	*s = Stat(*v)
	return nil
}

// ICC is the serialisable form of a reliability.Result.
type ICC struct {
	ICC            float64 `json:"icc"`
	F              Stat    `json:"f"`
	DF1            int     `json:"df1"`
	DF2            int     `json:"df2"`
	CI95Lower      float64 `json:"ci95_lower"`
	CI95Upper      float64 `json:"ci95_upper"`
	N              int     `json:"n"`
	K              int     `json:"k"`
	Interpretation string  `json:"interpretation"`
}

// FromResult converts an engine result. A nil result yields nil.
func FromResult(r *reliability.Result) *ICC {
	if r == nil {
		return nil
	}
	return &ICC{
		ICC:            r.ICC,
		F:              Stat(r.F),
		DF1:            r.DF1,
		DF2:            r.DF2,
		CI95Lower:      r.CI95Lower,
		CI95Upper:      r.CI95Upper,
		N:              r.N,
		K:              r.K,
		Interpretation: string(r.Interpretation),
	}
}

// RaterReport describes one evaluator's agreement with the panel.
type RaterReport struct {
	RaterID          string  `json:"rater_id"`
	Ratings          int     `json:"ratings"`
	Compared         int     `json:"compared"`
	MeanDeviation    float64 `json:"mean_deviation"`
	MeanAbsDeviation float64 `json:"mean_abs_deviation"`
	ICCWithout       *ICC    `json:"icc_without,omitempty"`
	NeedsCalibration bool    `json:"needs_calibration"`
}

// Report is the reliability summary of one assessment scope.
type Report struct {
	OrganizationID   string        `json:"organization_id"`
	AssessmentID     string        `json:"assessment_id"`
	Status           string        `json:"status"`
	Records          int           `json:"records"`
	Reliability      *ICC          `json:"reliability,omitempty"`
	NeedsCalibration bool          `json:"needs_calibration"`
	Raters           []RaterReport `json:"raters"`
	ComputedAt       time.Time     `json:"computed_at"`
}

// ScopeSummary lists an assessment known to the store.
type ScopeSummary struct {
	OrganizationID string `json:"organization_id"`
	AssessmentID   string `json:"assessment_id"`
	Records        int    `json:"records"`
}
