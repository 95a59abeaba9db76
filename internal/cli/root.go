// Package cli implements the drip command line.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

// errThresholdsFailed ends a run that completed but missed a threshold.
// The summary has already said so, so nothing more is printed.
var errThresholdsFailed = errors.New("thresholds failed")

// newRootCmd builds the command tree. A fresh tree per call keeps flag
// state from leaking between invocations.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "drip",
		Short:   "Exercise and measure rate limiters",
		Version: version,
		Long: `drip paces a pool of concurrent callers through a rate limiter and
reports how evenly the limiter spaced them out.

Run a profile:
  drip run --config pacing.yaml

Quick mode:
  drip run --rate 100 --callers 8 --takes 500`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			// If no subcommand is provided, print help
			cmd.Help()
		},
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// Execute runs the command line. Errors other than a failed threshold are
// printed to stderr.
func Execute() error {
	return execute(newRootCmd(), os.Args[1:])
}

func execute(root *cobra.Command, args []string) error {
	root.SetArgs(args)
	err := root.Execute()
	if err != nil && !errors.Is(err, errThresholdsFailed) {
		fmt.Fprintf(root.ErrOrStderr(), "%s %v\n", color.RedString("Error:"), err)
	}
	return err
}
