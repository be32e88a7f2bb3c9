package integration

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/driver-guard/internal/config"
	"github.com/oshokin/driver-guard/internal/service/replay"
)

// scenarioScript is the stream [none, phone:0.9, phone:0.92, phone:0.95, none].
const scenarioScript = `
names: [phone, drowsy, Texting]
frames:
  - index: 1
    detections:
      - label: phone
        confidence: 0.9
        box: {x: 8, y: 8, width: 24, height: 24}
  - index: 2
    detections:
      - label: phone
        confidence: 0.92
        box: {x: 8, y: 8, width: 24, height: 24}
  - index: 3
    detections:
      - class_id: 0
        confidence: 0.95
        box: {x: 8, y: 8, width: 24, height: 24}
      - label: c1 - Texting
        confidence: 0.3
        box: {x: 40, y: 8, width: 20, height: 20}
`

// reservePort returns a free local address.
func reservePort(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := l.Addr().String()
	_ = l.Close()

	return addr
}

// writeFrames writes count PNG frames into a new directory.
func writeFrames(t *testing.T, count int) string {
	t.Helper()

	dir := filepath.Join(t.TempDir(), "frames")
	require.NoError(t, os.MkdirAll(dir, 0o750))

	for i := range count {
		img := image.NewRGBA(image.Rect(0, 0, 64, 48))
		img.Set(i, i, color.White)

		f, err := os.Create(filepath.Join(dir, fmt.Sprintf("frame_%03d.png", i)))
		require.NoError(t, err)
		require.NoError(t, png.Encode(f, img))
		require.NoError(t, f.Close())
	}

	return dir
}

// writeFile writes contents into a temporary file named name.
func writeFile(t *testing.T, name, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	return path
}

// writeSettings saves a configuration monitoring source with the phone class only.
func writeSettings(t *testing.T, addr, weights, source string) (string, *config.Config) {
	t.Helper()

	dir := t.TempDir()
	cfg := &config.Config{
		Detector: config.DetectorConfig{
			Address: addr,
			Weights: weights,
			Timeout: 3 * time.Second,
		},
		Source: config.SourceConfig{
			Path: source,
			FPS:  1,
		},
		Policy: config.PolicyConfig{
			MinFrames: 3,
			Classes:   []config.ClassConfig{{Name: "phone"}, {Name: "Texting"}},
		},
		Sinks: config.SinksConfig{
			SnapshotDir: filepath.Join(dir, "snapshots"),
		},
		Log:        config.LogConfig{Level: "debug"},
		ReportFile: filepath.Join(dir, "report.yaml"),
	}

	path := filepath.Join(dir, "settings.yaml")
	require.NoError(t, config.Save(path, cfg))

	return path, cfg
}

// startReplay runs detector-replay with the given settings and script until the test ends.
func startReplay(t *testing.T, cfgPath, scriptPath string) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- replay.Run(ctx, &replay.Options{
			ConfigPath: cfgPath,
			ScriptPath: scriptPath,
		})
	}()

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)

	_, port, err := net.SplitHostPort(cfg.Detector.Address)
	require.NoError(t, err)

	// Wait for the server to accept connections.
	require.Eventually(t, func() bool {
		dialer := net.Dialer{Timeout: 50 * time.Millisecond}

		conn, dialErr := dialer.DialContext(ctx, "tcp", net.JoinHostPort("127.0.0.1", port))
		if dialErr != nil {
			return false
		}

		_ = conn.Close()

		return true
	}, 3*time.Second, 20*time.Millisecond)

	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
}
