package detector

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/driver-guard/internal/config"
	"github.com/oshokin/driver-guard/internal/domain/detection"
)

const testScriptYAML = `
names: [phone, drowsy]
default:
  - label: drowsy
    confidence: 0.6
    box: {x: 0, y: 0, width: 4, height: 4}
frames:
  - index: 1
    until: 2
    detections:
      - label: phone
        confidence: 0.95
        box: {x: 2, y: 2, width: 4, height: 4}
      - label: phone
        confidence: 1.7
        box: {x: 2, y: 2, width: 4, height: 4}
  - index: 3
    fail: timeout
  - index: 4
    detections:
      - class_id: 1
        confidence: 0.7
        box: {x: 0, y: 0, width: 2, height: 2}
`

func frameAt(index int) *detection.Frame {
	return &detection.Frame{
		Index: index,
		Image: image.NewRGBA(image.Rect(0, 0, 16, 16)),
	}
}

// TestReplay_Script answers frames from a YAML script.
func TestReplay_Script(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "script.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testScriptYAML), 0o600))

	replay, err := LoadReplay(path)
	require.NoError(t, err)

	names, err := replay.Load(context.Background(), LoadRequest{Weights: "best.pt"})
	require.NoError(t, err)
	require.Equal(t, []string{"phone", "drowsy"}, names)

	dets, err := replay.Detect(context.Background(), frameAt(0))
	require.NoError(t, err)
	require.Len(t, dets, 1)
	require.Equal(t, "drowsy", dets[0].Label())

	for _, index := range []int{1, 2} {
		dets, err = replay.Detect(context.Background(), frameAt(index))
		require.NoError(t, err)
		require.Len(t, dets, 1, "out of range confidence is dropped")
		require.Equal(t, "phone", dets[0].Label())
	}

	_, err = replay.Detect(context.Background(), frameAt(3))
	require.ErrorIs(t, err, detection.ErrInference)

	dets, err = replay.Detect(context.Background(), frameAt(4))
	require.NoError(t, err)
	require.Len(t, dets, 1)
	require.Equal(t, "drowsy", dets[0].Label())

	require.Equal(t, 5, replay.Calls())
	require.NoError(t, replay.Close())
}

// TestReplay_Load validates the load request.
func TestReplay_Load(t *testing.T) {
	t.Parallel()

	replay, err := NewReplay(Script{SHA256: "ABCD"})
	require.NoError(t, err)

	_, err = replay.Load(context.Background(), LoadRequest{})
	require.ErrorIs(t, err, detection.ErrModelLoad)

	_, err = replay.Load(context.Background(), LoadRequest{Weights: "w", SHA256: "beef"})
	require.ErrorIs(t, err, errChecksumMismatch)

	_, err = replay.Load(context.Background(), LoadRequest{Weights: "w", SHA256: "abcd"})
	require.NoError(t, err)
}

// TestNewReplay_BadRange rejects reversed ranges.
func TestNewReplay_BadRange(t *testing.T) {
	t.Parallel()

	_, err := NewReplay(Script{Frames: []ScriptFrame{{Index: 5, Until: 2}}})
	require.ErrorIs(t, err, errBadRange)
}

// TestReplay_CanceledContext fails as an inference error.
func TestReplay_CanceledContext(t *testing.T) {
	t.Parallel()

	replay, err := NewReplay(Script{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = replay.Detect(ctx, frameAt(0))
	require.ErrorIs(t, err, detection.ErrInference)
}

// TestWire_Detections keeps labels, class ids and boxes across the struct encoding.
func TestWire_Detections(t *testing.T) {
	t.Parallel()

	in := []RawDetection{
		{Label: "phone", ClassID: NoClassID, Confidence: 0.5, Box: detection.Box{X: 1, Y: 2, Width: 3, Height: 4}},
		{ClassID: 7, Confidence: 0.25, Box: detection.Box{Width: 10, Height: 10}},
	}

	msg, err := EncodeDetections(in)
	require.NoError(t, err)
	require.Equal(t, in, DecodeDetections(msg))

	names, err := EncodeNames([]string{"a", "b"})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, DecodeNames(names))
	require.Empty(t, DecodeDetections(names))

	req, err := EncodeLoadRequest(LoadRequest{Weights: "best.pt", SHA256: "ff", Confidence: 0.4})
	require.NoError(t, err)
	require.Equal(t, LoadRequest{Weights: "best.pt", SHA256: "ff", Confidence: 0.4}, DecodeLoadRequest(req))
}

// TestValidate_Labels resolves, cleans and filters raw detections.
func TestValidate_Labels(t *testing.T) {
	t.Parallel()

	client := &Client{
		names:    []string{"c1 - Texting"},
		fallback: &config.Dataset{Names: map[int]string{3: "Yawning"}},
	}

	raws := []RawDetection{
		{ClassID: 0, Confidence: 0.9, Box: detection.Box{Width: 2, Height: 2}},
		{ClassID: 3, Confidence: 0.9, Box: detection.Box{Width: 2, Height: 2}},
		{ClassID: 9, Confidence: 0.9, Box: detection.Box{Width: 2, Height: 2}},
		{Label: "phone", ClassID: NoClassID, Confidence: 0.9, Box: detection.Box{X: 100, Y: 100, Width: 2, Height: 2}},
	}

	dets := Validate(context.Background(), frameAt(0), raws, client.label)
	require.Len(t, dets, 2)
	require.Equal(t, "Texting", dets[0].Label())
	require.Equal(t, "Yawning", dets[1].Label())
}

// TestLoadReplay_ExampleScript keeps the shipped script loadable.
func TestLoadReplay_ExampleScript(t *testing.T) {
	t.Parallel()

	replay, err := LoadReplay(filepath.Join("..", "..", "configs", "replay-script.yaml"))
	require.NoError(t, err)
	require.Equal(t, "Safe Driving", replay.Names()[0])

	frame := &detection.Frame{
		Index: 400,
		Image: image.NewRGBA(image.Rect(0, 0, 640, 480)),
	}

	dets, err := replay.Detect(context.Background(), frame)
	require.NoError(t, err)
	require.Len(t, dets, 1)
	require.Equal(t, "Eyes Closed", dets[0].Label())

	frame.Index = 300
	_, err = replay.Detect(context.Background(), frame)
	require.ErrorIs(t, err, detection.ErrInference)
}
