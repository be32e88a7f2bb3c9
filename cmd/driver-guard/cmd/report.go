package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/driver-guard/internal/service/monitor"
)

// reportPath overrides the report file of the configuration.
var reportPath string

// reportCmd prints the summary of the last saved session.
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the summary of the last monitoring session.",
	Long: `Reads the session report saved by the last run and prints the per-behavior
summary table. The report file is taken from --report or from the configuration file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return monitor.ShowReport(cmd.Context(), configPath, reportPath, cmd.OutOrStdout())
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	reportCmd.Flags().StringVar(&reportPath, "report", "", "path of the session report")
	rootCmd.AddCommand(reportCmd)
}
