package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/driver-guard/internal/config"
	"github.com/oshokin/driver-guard/internal/logger"
	"github.com/oshokin/driver-guard/internal/service/replay"
	"github.com/oshokin/driver-guard/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// scriptPath to the detection script.
	scriptPath string

	// rootCmd represents the base command for running the replay detection server.
	rootCmd = &cobra.Command{
		Use:   "detector-replay [listen-address]",
		Short: "Serve scripted detections over the detection gRPC contract.",
		Long: `Starts a gRPC detection server that answers every frame from a YAML script
instead of running a model. It speaks the same contract as the real model server,
so driver-guard can be demonstrated and tested offline.

Only the port from the detector address in the configuration file is used for
listening (e.g., :50051). Listen address can be provided as argument to override
it (e.g., :9090, 0.0.0.0:50051).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use listen address argument if provided, otherwise rely on config.
			var listenAddress string
			if len(args) > 0 {
				listenAddress = args[0]
			}

			options := &replay.Options{
				ConfigPath:    configPath,
				ScriptPath:    scriptPath,
				ListenAddress: listenAddress,
			}

			return replay.Run(ctx, options)
		},
	}
)

// Execute runs the detector-replay CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	err := rootCmd.Execute()

	// Flush buffered log entries before a possible os.Exit.
	logger.Sync()

	if err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().
		StringVarP(&scriptPath, "script", "s", replay.DefaultScriptFilename, "path to the detection script")
}
