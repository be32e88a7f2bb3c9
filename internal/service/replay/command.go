package replay

import (
	"context"
	"errors"
	"fmt"
	"net"

	"google.golang.org/grpc"

	api "github.com/oshokin/driver-guard/internal/api/grpc/detector"
	"github.com/oshokin/driver-guard/internal/config"
	"github.com/oshokin/driver-guard/internal/detector"
	"github.com/oshokin/driver-guard/internal/logger"
)

// DefaultScriptFilename is the default detection script.
const DefaultScriptFilename = "replay-script.yaml"

// Options controls the detector-replay process and configuration.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// ScriptPath specifies the detection script to replay.
	ScriptPath string
	// ListenAddress provides an optional listen address override for the gRPC server.
	ListenAddress string
}

// ErrNoServerAddress indicates missing server configuration.
var ErrNoServerAddress = errors.New("no detector address configured")

// Run starts the gRPC server and blocks until context is canceled or server stops.
// Loads configuration first, then determines listen address from config or override.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "detector-replay")

	// Load configuration first to get the detector address.
	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	logger.Setup(settings.Log.Level, settings.Log.File)

	scriptPath := opts.ScriptPath
	if scriptPath == "" {
		scriptPath = DefaultScriptFilename
	}

	ctx = logger.WithKV(ctx, "script", scriptPath)

	// Determine listen address: CLI argument overrides config port extraction.
	listenAddress, err := resolveListenAddress(settings.Detector.Address, opts.ListenAddress)
	if err != nil {
		return fmt.Errorf("resolve listen address: %w", err)
	}

	model, err := detector.LoadReplay(scriptPath)
	if err != nil {
		return fmt.Errorf("load script: %w", err)
	}

	// Setup TCP listener for gRPC server.
	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", listenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", listenAddress, err)
	}

	logger.InfoKV(ctx, "Detector replay listening",
		"listen_address", listenAddress,
		"classes", len(model.Names()))

	return Serve(ctx, lis, model)
}

// Serve answers detection requests from model on lis until ctx is canceled.
func Serve(ctx context.Context, lis net.Listener, model detector.Model) error {
	grpcServer := grpc.NewServer()
	api.Register(grpcServer, api.NewServer(model))

	// Done channel is closed after GracefulStop finishes to ensure we block
	// until the server fully stops before returning.
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		logger.Info(ctx, "Shutting down gRPC server")
		grpcServer.GracefulStop()
		close(done)
	}()

	if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve gRPC: %w", err)
	}

	<-done
	logger.Info(ctx, "GRPC server stopped")

	return nil
}

// resolveListenAddress determines the listen address for the gRPC server.
// If override is provided, uses it directly. Otherwise extracts port from configAddr.
func resolveListenAddress(configAddr, override string) (string, error) {
	if override != "" {
		return override, nil
	}

	if configAddr == "" {
		return "", ErrNoServerAddress
	}

	// Bind every interface on the configured port (e.g., "model.local:50051" -> ":50051").
	_, port, err := net.SplitHostPort(configAddr)
	if err != nil {
		return "", fmt.Errorf("invalid detector address format %q: %w", configAddr, err)
	}

	return ":" + port, nil
}
