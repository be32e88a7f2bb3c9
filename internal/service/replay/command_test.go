package replay

import (
	"context"
	"image"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/driver-guard/internal/config"
	"github.com/oshokin/driver-guard/internal/detector"
	"github.com/oshokin/driver-guard/internal/domain/detection"
)

// TestResolveListenAddress prefers the override and binds the configured port otherwise.
func TestResolveListenAddress(t *testing.T) {
	t.Parallel()

	addr, err := resolveListenAddress("model.local:50051", "")
	require.NoError(t, err)
	require.Equal(t, ":50051", addr)

	addr, err = resolveListenAddress("model.local:50051", "127.0.0.1:6000")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:6000", addr)

	_, err = resolveListenAddress("", "")
	require.ErrorIs(t, err, ErrNoServerAddress)

	_, err = resolveListenAddress("model.local", "")
	require.Error(t, err)
}

// TestRun_MissingScript fails before listening.
func TestRun_MissingScript(t *testing.T) {
	t.Parallel()

	cfgPath := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("detector:\n  address: 127.0.0.1:0\n"), config.DefaultFilePermissions))

	err := Run(context.Background(), &Options{
		ConfigPath: cfgPath,
		ScriptPath: filepath.Join(t.TempDir(), "missing.yaml"),
	})
	require.ErrorContains(t, err, "load script")
}

// TestServe answers detections over gRPC and stops on cancel.
func TestServe(t *testing.T) {
	t.Parallel()

	model, err := detector.NewReplay(detector.Script{
		Names: []string{"phone"},
		Default: []detector.ScriptDetection{{
			Label:      "phone",
			Confidence: 0.9,
			Box:        detection.Box{X: 1, Y: 1, Width: 8, Height: 8},
		}},
	})
	require.NoError(t, err)

	lc := net.ListenConfig{}
	lis, err := lc.Listen(context.Background(), "tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- Serve(ctx, lis, model)
	}()

	weights := filepath.Join(t.TempDir(), "best.pt")
	require.NoError(t, os.WriteFile(weights, []byte("weights"), 0o600))

	client, err := detector.Dial(context.Background(), lis.Addr().String(), weights)
	require.NoError(t, err)
	require.Equal(t, []string{"phone"}, client.Names())

	dets, err := client.Detect(context.Background(), &detection.Frame{
		Index: 7,
		Image: image.NewRGBA(image.Rect(0, 0, 32, 32)),
	})
	require.NoError(t, err)
	require.Len(t, dets, 1)
	require.Equal(t, "phone", dets[0].Label())
	require.NoError(t, client.Close())

	cancel()
	require.NoError(t, <-done)
}
