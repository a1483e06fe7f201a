// concordctl is the operator CLI for concord.
//
// Usage:
//
//	concordctl compute --file records.yaml
//	concordctl simulate --url http://localhost:9080 --subjects 20 --raters 4
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/okian/concord/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var logFormat string
	root := &cobra.Command{
		Use:          "concordctl",
		Short:        "Inter-rater reliability tooling",
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return logger.InitWithFormat(logFormat)
		},
	}
	root.PersistentFlags().StringVar(&logFormat, "log-format", logger.FormatConsole, "log output format (json or console)")
	root.AddCommand(newComputeCmd(), newSimulateCmd())
	return root
}
