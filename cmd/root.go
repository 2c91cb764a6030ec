package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gh-metrics-reporter",
	Short: "Collect and report GitHub pull request metrics for an organization",
	Long: `gh-metrics-reporter crawls the pull requests of an organization's
repositories over a date window and produces three consolidated reports:
PR activity, contributor metrics and commit details.`,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
