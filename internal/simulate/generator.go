package simulate

import (
	"math"
	"math/rand"
	"time"
)

// score scale of the generated panel.
const (
	minTrueScore = 1.0
	maxTrueScore = 5.0
)

// panelEpoch anchors generated timestamps so a rerun resubmits identical
// evaluations.
var panelEpoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// Evaluation is one generated submission, shaped like the API request.
type Evaluation struct {
	EventID        string  `json:"event_id,omitempty"`
	OrganizationID string  `json:"organization_id"`
	AssessmentID   string  `json:"assessment_id"`
	SubjectID      string  `json:"subject_id"`
	RaterID        string  `json:"rater_id"`
	Score          float64 `json:"score"`
	TS             string  `json:"ts,omitempty"`
}

// Generate builds a fully crossed panel: every evaluator scores every
// interview. Each interview has a true score drawn uniformly from [1, 5];
// each evaluation adds gaussian noise, and the biased evaluator adds Bias.
// The same seed always yields the same panel, timestamps included.
func Generate(cfg Config) []Evaluation {
	rng := rand.New(rand.NewSource(cfg.Seed))
	out := make([]Evaluation, 0, cfg.Subjects*cfg.Raters)
	for s := 0; s < cfg.Subjects; s++ {
		truth := minTrueScore + rng.Float64()*(maxTrueScore-minTrueScore)
		for r := 0; r < cfg.Raters; r++ {
			score := truth + rng.NormFloat64()*cfg.Noise
			if r == cfg.BiasedRater {
				score += cfg.Bias
			}
			out = append(out, Evaluation{
				OrganizationID: cfg.Organization,
				AssessmentID:   cfg.Assessment,
				SubjectID:      SubjectID(s),
				RaterID:        RaterID(r),
				Score:          math.Round(score*100) / 100,
				TS:             panelEpoch.Add(time.Duration(len(out)) * time.Second).Format(time.RFC3339),
			})
		}
	}
	return out
}
