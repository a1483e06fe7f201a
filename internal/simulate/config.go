// Package simulate drives a running concord service with a synthetic
// interview panel whose biased evaluator is known in advance.
package simulate

import (
	"errors"
	"fmt"
	"time"
)

// Errors returned by the simulation.
var (
	ErrInvalidConfig = errors.New("invalid simulation config")
	ErrUnhealthy     = errors.New("service unhealthy")
	ErrVerification  = errors.New("verification failed")
	ErrRejected      = errors.New("evaluation rejected")
)

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL      string        // Base URL of the service
	Organization string        // organization_id of the generated scope
	Assessment   string        // assessment_id of the generated scope
	Subjects     int           // interviews in the panel
	Raters       int           // evaluators; every evaluator scores every interview
	BiasedRater  int           // index of the lenient evaluator, -1 for none
	Bias         float64       // offset added to the biased evaluator's scores
	Noise        float64       // standard deviation of per-score noise
	Workers      int           // concurrent submitters
	Timeout      time.Duration // HTTP request timeout
	PollTimeout  time.Duration // how long to wait for the report to catch up
	Seed         int64         // generator seed
}

// DefaultConfig returns a panel of 20 interviews and 4 evaluators where the
// last evaluator scores 1.5 points high.
func DefaultConfig() Config {
	return Config{
		BaseURL:      "http://localhost:9080",
		Organization: "sim",
		Assessment:   "panel",
		Subjects:     20,
		Raters:       4,
		BiasedRater:  3,
		Bias:         1.5,
		Noise:        0.3,
		Workers:      8,
		Timeout:      10 * time.Second,
		PollTimeout:  30 * time.Second,
		Seed:         1,
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return fmt.Errorf("%w: base url must not be empty", ErrInvalidConfig)
	case c.Organization == "" || c.Assessment == "":
		return fmt.Errorf("%w: organization and assessment are required", ErrInvalidConfig)
	case c.Subjects < 2:
		return fmt.Errorf("%w: need at least 2 subjects", ErrInvalidConfig)
	case c.Raters < 3:
		return fmt.Errorf("%w: need at least 3 raters to single one out", ErrInvalidConfig)
	case c.BiasedRater >= c.Raters:
		return fmt.Errorf("%w: biased rater %d out of range", ErrInvalidConfig, c.BiasedRater)
	case c.Noise < 0:
		return fmt.Errorf("%w: noise must not be negative", ErrInvalidConfig)
	case c.Workers < 1:
		return fmt.Errorf("%w: need at least one worker", ErrInvalidConfig)
	}
	return nil
}

// RaterID names the evaluator at index i.
func RaterID(i int) string { return fmt.Sprintf("rater-%02d", i) }

// SubjectID names the interview at index i.
func SubjectID(i int) string { return fmt.Sprintf("interview-%03d", i) }

// Stats summarises a run.
type Stats struct {
	Generated     int
	Accepted      int
	Duplicate     int
	Retried       int
	StartTime     time.Time
	Duration      time.Duration
	ICC           float64
	Flagged       []string
	MostDivergent string
}
