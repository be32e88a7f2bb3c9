package source

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/oshokin/driver-guard/internal/domain/detection"
)

const (
	clipWidth  = 64
	clipHeight = 48
	clipFPS    = 5
	clipFrames = 5
)

// requireFFmpeg skips the test when ffmpeg tools are not installed.
func requireFFmpeg(t *testing.T) string {
	t.Helper()

	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("ffmpeg is not installed")
	}

	if _, err = exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe is not installed")
	}

	return path
}

// writeClip renders a one second test pattern video.
func writeClip(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "clip.mp4")

	err := ffmpeg.Input("testsrc=size=64x48:rate=5:duration=1", ffmpeg.KwArgs{"f": "lavfi"}).
		Output(path, ffmpeg.KwArgs{"c:v": "mpeg4", "pix_fmt": "yuv420p", "loglevel": "error"}).
		OverWriteOutput().
		Run()
	require.NoError(t, err)

	return path
}

// TestOpen_Video decodes every frame of a clip and stops with io.EOF.
func TestOpen_Video(t *testing.T) {
	t.Parallel()

	requireFFmpeg(t)

	ctx := context.Background()

	src, err := Open(ctx, Spec{Path: writeClip(t)})
	require.NoError(t, err)

	defer func() {
		require.NoError(t, src.Close())
	}()

	require.False(t, src.Live())
	require.InDelta(t, float64(clipFPS), src.FPS(), 0.01)

	for i := range clipFrames {
		frame, nextErr := src.Next(ctx)
		require.NoError(t, nextErr, "frame %d", i)
		require.Equal(t, i, frame.Index)
		require.InDelta(t, float64(i)/clipFPS, frame.Timestamp.Seconds(), 0.01)
		require.Equal(t, clipWidth, frame.Image.Bounds().Dx())
		require.Equal(t, clipHeight, frame.Image.Bounds().Dy())
	}

	_, err = src.Next(ctx)
	require.ErrorIs(t, err, io.EOF)

	_, err = src.Next(ctx)
	require.ErrorIs(t, err, io.EOF)
}

// TestOpen_VideoScaled honors a configured frame size.
func TestOpen_VideoScaled(t *testing.T) {
	t.Parallel()

	requireFFmpeg(t)

	ctx := context.Background()

	src, err := Open(ctx, Spec{Path: writeClip(t), Width: 32, Height: 24})
	require.NoError(t, err)

	defer func() {
		require.NoError(t, src.Close())
	}()

	frame, err := src.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, 32, frame.Image.Bounds().Dx())
	require.Equal(t, 24, frame.Image.Bounds().Dy())
}

// TestOpen_BrokenVideo fails before any frame is produced.
func TestOpen_BrokenVideo(t *testing.T) {
	t.Parallel()

	requireFFmpeg(t)

	path := filepath.Join(t.TempDir(), "broken.mp4")
	require.NoError(t, os.WriteFile(path, []byte("not a video"), 0o600))

	_, err := Open(context.Background(), Spec{Path: path})
	require.ErrorIs(t, err, detection.ErrSourceUnavailable)
}

// TestFFmpegSource_FailsBeforeFirstFrame reports a dead decoder as an unavailable source.
func TestFFmpegSource_FailsBeforeFirstFrame(t *testing.T) {
	t.Parallel()

	requireFFmpeg(t)

	ctx := context.Background()

	src, err := start(ctx, ffmpeg.Input(filepath.Join(t.TempDir(), "missing.mp4")), clipWidth, clipHeight, clipFPS, false)
	require.NoError(t, err)

	_, err = src.Next(ctx)
	require.ErrorIs(t, err, detection.ErrSourceUnavailable)
	require.Contains(t, err.Error(), "missing.mp4")

	require.NoError(t, src.Close())
}

// TestFFmpegSource_TruncatedFrame drops a partial trailing frame.
func TestFFmpegSource_TruncatedFrame(t *testing.T) {
	t.Parallel()

	ffmpegPath := requireFFmpeg(t)

	// A finished process that exits cleanly stands in for the decoder.
	cmd := exec.Command(ffmpegPath, "-version") //nolint:gosec // The path comes from LookPath.
	cmd.Stdout = io.Discard
	require.NoError(t, cmd.Start())

	frameSize := clipWidth * clipHeight * bytesPerPixel
	stream := bytes.NewReader(make([]byte, frameSize+frameSize/2))

	src := &ffmpegSource{
		cmd:    cmd,
		stdout: io.NopCloser(stream),
		stderr: &tailBuffer{limit: stderrLimit},
		cancel: func() {},
		width:  clipWidth,
		height: clipHeight,
		fps:    clipFPS,
	}

	ctx := context.Background()

	frame, err := src.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, frame.Index)

	_, err = src.Next(ctx)
	require.ErrorIs(t, err, io.EOF)
	require.True(t, src.done)

	require.NoError(t, src.Close())
}

// TestFFmpegSource_Close stops the decoder mid stream and releases its pipe.
func TestFFmpegSource_Close(t *testing.T) {
	t.Parallel()

	requireFFmpeg(t)

	ctx := context.Background()

	src, err := Open(ctx, Spec{Path: writeClip(t)})
	require.NoError(t, err)

	_, err = src.Next(ctx)
	require.NoError(t, err)

	video, ok := src.(*ffmpegSource)
	require.True(t, ok)

	require.NoError(t, src.Close())
	require.NotNil(t, video.cmd.ProcessState)

	_, err = video.stdout.Read(make([]byte, 1))
	require.Error(t, err)

	_, err = src.Next(ctx)
	require.ErrorIs(t, err, io.EOF)

	require.NoError(t, src.Close())
}
