package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/driver-guard/internal/config"
	"github.com/oshokin/driver-guard/internal/logger"
	"github.com/oshokin/driver-guard/internal/service/monitor"
	"github.com/oshokin/driver-guard/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// options collects command-line overrides of the configuration.
	options monitor.Options
	// threshold is copied into options only when the flag is set.
	threshold float64

	// rootCmd represents the base command for monitoring a video stream.
	rootCmd = &cobra.Command{
		Use:   "driver-guard",
		Short: "Detect dangerous driver behavior in video and raise alerts.",
		Long: `Reads frames from a video file, an image, a directory of images or a camera,
sends every frame to the detection model server and raises an alert when a
monitored behavior (phone use, drowsiness, texting, ...) persists for several
consecutive frames.

Settings are loaded from the configuration file; command-line flags override them.
The run stops when the stream ends or on Ctrl+C, then prints a per-behavior summary
and saves it to the report file.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options.ConfigPath = configPath
			options.Stdout = cmd.OutOrStdout()

			if cmd.Flags().Changed("threshold") {
				options.Threshold = &threshold
			}

			return monitor.Run(ctx, &options)
		},
	}
)

// Execute runs the driver-guard CLI and exits with non-zero status on error.
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
	flags := rootCmd.Flags()

	// Setup command flags with consistent naming and descriptions.
	rootCmd.PersistentFlags().
		StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	flags.StringVar(&options.Source, "source", "", "video file, image, image directory or camera id/device")
	flags.StringVar(&options.Weights, "weights", "", "path to the model weights file")
	flags.Float64Var(&threshold, "threshold", config.DefaultThreshold, "minimum detection confidence")
	flags.StringVar(&options.DetectorAddress, "detector", "", "detection server address (host:port)")
	flags.StringVar(&options.Dataset, "data", "", "path to data.yaml with class names")
	flags.IntVar(&options.MinFrames, "min-frames", 0, "consecutive frames required to raise an alert")
	flags.StringVar(&options.Output, "output", "", "path of the annotated output video")
	flags.StringVar(&options.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&options.ReportFile, "report", "", "path of the session report")
}
