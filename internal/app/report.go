package service

import (
	"time"

	"github.com/okian/concord/internal/domain/model"
	"github.com/okian/concord/internal/domain/reliability"
	"github.com/okian/concord/internal/domain/types"
)

// Thresholds turn reliability numbers into calibration flags.
type Thresholds struct {
	// Calibration is the ICC below which the panel needs calibration.
	Calibration float64
	// Divergence is the mean absolute deviation above which a rater is flagged.
	Divergence float64
}

// DefaultThresholds are used unless overridden by options.
var DefaultThresholds = Thresholds{Calibration: 0.5, Divergence: 1.0}

// BuildReport runs the reliability engine over records and applies t.
func BuildReport(scope model.Scope, records []reliability.EvaluationRecord, t Thresholds, now time.Time) *types.Report {
	m := reliability.BuildRatingMatrix(records)
	res := reliability.CalculateICC(m)

	report := &types.Report{
		OrganizationID: scope.OrganizationID,
		AssessmentID:   scope.AssessmentID,
		Status:         types.StatusOK,
		Records:        len(records),
		Reliability:    types.FromResult(res),
		ComputedAt:     now.UTC(),
	}
	if res == nil {
		report.Status = types.StatusInsufficientData
	} else {
		report.NeedsCalibration = res.ICC < t.Calibration
	}

	divs := reliability.RaterDivergence(m)
	report.Raters = make([]types.RaterReport, len(divs))
	for i, d := range divs {
		report.Raters[i] = types.RaterReport{
			RaterID:          d.RaterID,
			Ratings:          d.Ratings,
			Compared:         d.Compared,
			MeanDeviation:    d.MeanDeviation,
			MeanAbsDeviation: d.MeanAbsDeviation,
			ICCWithout:       types.FromResult(d.ICCWithout),
			NeedsCalibration: d.Compared > 0 && d.MeanAbsDeviation > t.Divergence,
		}
	}
	return report
}
