package simulate

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/concord/internal/domain/types"
	"github.com/okian/concord/pkg/logger"
)

const (
	retryDelay   = 50 * time.Millisecond
	maxRetries   = 20
	pollInterval = 100 * time.Millisecond
)

// Run generates the panel, submits it concurrently, waits for the report to
// cover every evaluation and verifies that the biased evaluator stands out.
func Run(ctx context.Context, cfg Config) (*Stats, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logger.Get().Named("simulate")
	stats := &Stats{StartTime: time.Now()}
	client := NewClient(cfg.BaseURL, cfg.Timeout)

	if err := client.Health(ctx); err != nil {
		return nil, err
	}

	panel := Generate(cfg)
	stats.Generated = len(panel)
	log.Info(ctx, "submitting panel",
		logger.Int("subjects", cfg.Subjects),
		logger.Int("raters", cfg.Raters),
		logger.Int("evaluations", len(panel)),
		logger.Int("workers", cfg.Workers))

	if err := submitAll(ctx, client, panel, cfg.Workers, stats); err != nil {
		return stats, err
	}

	report, err := awaitReport(ctx, client, cfg, stats.Accepted+stats.Duplicate)
	if err != nil {
		return stats, err
	}
	stats.Duration = time.Since(stats.StartTime)
	if report.Reliability != nil {
		stats.ICC = report.Reliability.ICC
	}
	for _, r := range report.Raters {
		if r.NeedsCalibration {
			stats.Flagged = append(stats.Flagged, r.RaterID)
		}
	}
	stats.MostDivergent = MostDivergent(report.Raters)

	log.Info(ctx, "simulation finished",
		logger.Float64("icc", stats.ICC),
		logger.String("most_divergent", stats.MostDivergent),
		logger.Any("flagged", stats.Flagged),
		logger.Int("retried", stats.Retried),
		logger.Duration("duration", stats.Duration))

	return stats, Verify(report, cfg)
}

// submitAll posts every evaluation using at most workers goroutines,
// retrying on backpressure.
func submitAll(ctx context.Context, client *Client, panel []Evaluation, workers int, stats *Stats) error {
	var accepted, duplicate, retried atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, e := range panel {
		g.Go(func() error {
			for attempt := 0; ; attempt++ {
				outcome, err := client.Submit(gctx, e)
				if err != nil {
					return err
				}
				switch outcome {
				case outcomeAccepted:
					accepted.Add(1)
					return nil
				case outcomeDuplicate:
					duplicate.Add(1)
					return nil
				}
				if attempt >= maxRetries {
					return fmt.Errorf("%w: %s/%s still throttled", ErrRejected, e.SubjectID, e.RaterID)
				}
				retried.Add(1)
				select {
				case <-gctx.Done():
					return gctx.Err()
				case <-time.After(retryDelay):
				}
			}
		})
	}
	err := g.Wait()

	stats.Accepted = int(accepted.Load())
	stats.Duplicate = int(duplicate.Load())
	stats.Retried = int(retried.Load())
	return err
}

// awaitReport polls until the report covers at least want evaluations.
func awaitReport(ctx context.Context, client *Client, cfg Config, want int) (*types.Report, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.PollTimeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		report, err := client.Report(ctx, cfg.Organization, cfg.Assessment)
		if err != nil {
			return nil, err
		}
		if report != nil && report.Records >= want {
			return report, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: report did not reach %d evaluations: %w", ErrVerification, want, ctx.Err())
		case <-ticker.C:
		}
	}
}
