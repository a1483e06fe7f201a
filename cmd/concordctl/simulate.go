package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/concord/internal/simulate"
)

func newSimulateCmd() *cobra.Command {
	cfg := simulate.DefaultConfig()
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Submit a synthetic panel with a planted lenient rater and verify it is found",
		RunE: func(cmd *cobra.Command, _ []string) error {
			stats, err := simulate.Run(cmd.Context(), cfg)
			if stats != nil {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "submitted %d evaluations (%d accepted, %d duplicate, %d retries)\n",
					stats.Generated, stats.Accepted, stats.Duplicate, stats.Retried)
				fmt.Fprintf(out, "ICC %.3f, most divergent rater %s, flagged %v\n",
					stats.ICC, stats.MostDivergent, stats.Flagged)
			}
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", cfg.BaseURL, "base URL of the concord service")
	f.StringVar(&cfg.Organization, "org", cfg.Organization, "organization_id to submit under")
	f.StringVar(&cfg.Assessment, "assessment", cfg.Assessment, "assessment_id to submit under")
	f.IntVar(&cfg.Subjects, "subjects", cfg.Subjects, "number of interviews")
	f.IntVar(&cfg.Raters, "raters", cfg.Raters, "number of evaluators")
	f.IntVar(&cfg.BiasedRater, "biased-rater", cfg.BiasedRater, "index of the lenient evaluator, -1 for none")
	f.Float64Var(&cfg.Bias, "bias", cfg.Bias, "score offset of the lenient evaluator")
	f.Float64Var(&cfg.Noise, "noise", cfg.Noise, "standard deviation of score noise")
	f.IntVar(&cfg.Workers, "workers", cfg.Workers, "concurrent submitters")
	f.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "HTTP request timeout")
	f.DurationVar(&cfg.PollTimeout, "poll-timeout", cfg.PollTimeout, "how long to wait for the report")
	f.Int64Var(&cfg.Seed, "seed", cfg.Seed, "generator seed")
	return cmd
}
