package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/drip/internal/config"
	"github.com/wesleyorama2/drip/internal/output"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <profile>",
		Short: "Check a run profile without running it",
		Long: `Load a YAML or JSON run profile, check it against the profile schema,
and validate its values and threshold expressions.`,
		Args: cobra.ExactArgs(1),
		RunE: runValidate,
	}
	cmd.Flags().Bool("no-color", false, "Disable colored output")
	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	noColor, _ := cmd.Flags().GetBool("no-color")
	path := args[0]

	profile, err := config.LoadProfile(path)
	if err != nil {
		return err
	}
	if err := profile.Validate(); err != nil {
		return err
	}
	config.ApplyDefaults(profile)

	icon := output.SuccessIcon(noColor)
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s is valid (%s, %d callers, %d thresholds)\n",
		icon, path, profile.Limiter.Strategy, profile.Load.Callers, len(profile.Thresholds))
	return nil
}
