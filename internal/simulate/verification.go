package simulate

import (
	"fmt"

	"github.com/okian/concord/internal/domain/types"
)

// MostDivergent returns the rater with the largest mean absolute deviation,
// or "" when there are none.
func MostDivergent(raters []types.RaterReport) string {
	best, id := -1.0, ""
	for _, r := range raters {
		if r.Compared > 0 && r.MeanAbsDeviation > best {
			best, id = r.MeanAbsDeviation, r.RaterID
		}
	}
	return id
}

// Verify checks the report against the generated panel: ICC must be
// defined, and when a biased evaluator was planted it must be the most
// divergent one.
func Verify(report *types.Report, cfg Config) error {
	if report.Status != types.StatusOK || report.Reliability == nil {
		return fmt.Errorf("%w: status %s", ErrVerification, report.Status)
	}
	if report.Reliability.N != cfg.Subjects || report.Reliability.K != cfg.Raters {
		return fmt.Errorf("%w: expected %dx%d panel, got %dx%d", ErrVerification,
			cfg.Subjects, cfg.Raters, report.Reliability.N, report.Reliability.K)
	}
	if cfg.BiasedRater < 0 {
		return nil
	}
	want := RaterID(cfg.BiasedRater)
	if got := MostDivergent(report.Raters); got != want {
		return fmt.Errorf("%w: most divergent rater is %q, planted %q", ErrVerification, got, want)
	}
	return nil
}
