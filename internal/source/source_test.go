package source

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/driver-guard/internal/domain/detection"
)

// writePNG stores a solid w x h PNG at path.
func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}

	f, err := os.Create(path)
	require.NoError(t, err)

	defer func() {
		require.NoError(t, f.Close())
	}()

	require.NoError(t, png.Encode(f, img))
}

// TestOpen_MissingPath returns ErrSourceUnavailable and produces no frame.
func TestOpen_MissingPath(t *testing.T) {
	t.Parallel()

	src, err := Open(context.Background(), Spec{Path: filepath.Join(t.TempDir(), "missing.mp4")})
	require.ErrorIs(t, err, detection.ErrSourceUnavailable)
	require.Nil(t, src)

	_, err = Open(context.Background(), Spec{Path: "  "})
	require.ErrorIs(t, err, detection.ErrSourceUnavailable)
}

// TestOpen_EmptyDirectory is unavailable.
func TestOpen_EmptyDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))

	_, err := Open(context.Background(), Spec{Path: dir})
	require.ErrorIs(t, err, detection.ErrSourceUnavailable)
}

// TestOpen_Directory yields images sorted by name with timestamps from FPS.
func TestOpen_Directory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "frame_002.png"), 8, 6)
	writePNG(t, filepath.Join(dir, "frame_000.png"), 8, 6)
	writePNG(t, filepath.Join(dir, "frame_001.png"), 8, 6)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.png"), 0o700))

	src, err := Open(context.Background(), Spec{Path: dir, FPS: 4})
	require.NoError(t, err)

	defer func() {
		require.NoError(t, src.Close())
	}()

	require.False(t, src.Live())
	require.InDelta(t, 4.0, src.FPS(), 1e-9)

	for i := range 3 {
		frame, err := src.Next(context.Background())
		require.NoError(t, err)
		require.Equal(t, i, frame.Index)
		require.Equal(t, time.Duration(i)*250*time.Millisecond, frame.Timestamp)
		require.Equal(t, image.Rect(0, 0, 8, 6), frame.Bounds())
	}

	_, err = src.Next(context.Background())
	require.ErrorIs(t, err, io.EOF)
}

// TestOpen_CorruptImage reports the bad frame as ErrInference and moves past it.
func TestOpen_CorruptImage(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "000.png"), 4, 4)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001.png"), []byte("not a png"), 0o600))
	writePNG(t, filepath.Join(dir, "002.png"), 4, 4)

	src, err := Open(context.Background(), Spec{Path: dir, FPS: 1})
	require.NoError(t, err)

	frame, err := src.Next(context.Background())
	require.NoError(t, err)
	require.Zero(t, frame.Index)

	_, err = src.Next(context.Background())
	require.ErrorIs(t, err, detection.ErrInference)

	frame, err = src.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, frame.Index)
	require.Equal(t, 2*time.Second, frame.Timestamp)

	_, err = src.Next(context.Background())
	require.ErrorIs(t, err, io.EOF)
	require.NoError(t, src.Close())
}

// TestOpen_SingleImage yields exactly one frame and honors Close.
func TestOpen_SingleImage(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "driver.png")
	writePNG(t, path, 4, 4)

	src, err := Open(context.Background(), Spec{Path: path})
	require.NoError(t, err)
	require.InDelta(t, defaultFPS, src.FPS(), 1e-9)

	frame, err := src.Next(context.Background())
	require.NoError(t, err)
	require.Zero(t, frame.Index)

	_, err = src.Next(context.Background())
	require.ErrorIs(t, err, io.EOF)

	require.NoError(t, src.Close())
}

// TestNext_CanceledContext stops before decoding.
func TestNext_CanceledContext(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "driver.png")
	writePNG(t, path, 4, 4)

	src, err := Open(context.Background(), Spec{Path: path})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = src.Next(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

// TestDetect classifies paths.
func TestDetect(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	video := filepath.Join(dir, "clip.mp4")
	require.NoError(t, os.WriteFile(video, []byte("not really a video"), 0o600))

	cases := map[string]Kind{
		"0":           KindCamera,
		"/dev/video2": KindCamera,
		"video=Cam":   KindCamera,
		dir:           KindDirectory,
		video:         KindVideo,
	}

	for path, want := range cases {
		got, err := Detect(path)
		require.NoError(t, err, path)
		require.Equal(t, want, got, path)
	}

	require.Equal(t, "camera", KindCamera.String())
	require.True(t, IsImage("a/B.JPG"))
	require.False(t, IsImage("a/b.mp4"))
}

// TestParseProbe reads the first video stream of ffprobe output.
func TestParseProbe(t *testing.T) {
	t.Parallel()

	raw := `{"streams":[
		{"codec_type":"audio"},
		{"codec_type":"video","width":1280,"height":720,"r_frame_rate":"30/1","avg_frame_rate":"30000/1001"}
	]}`

	info, err := parseProbe(raw)
	require.NoError(t, err)
	require.Equal(t, 1280, info.Width)
	require.Equal(t, 720, info.Height)
	require.InDelta(t, 29.97, info.FPS, 0.01)

	_, err = parseProbe(`{"streams":[{"codec_type":"audio"}]}`)
	require.ErrorIs(t, err, errNoVideoStream)

	_, err = parseProbe(`not json`)
	require.Error(t, err)
}

// TestParseRate handles fractions, plain numbers and garbage.
func TestParseRate(t *testing.T) {
	t.Parallel()

	require.InDelta(t, 25.0, parseRate("25/1"), 1e-9)
	require.InDelta(t, 15.0, parseRate("15"), 1e-9)
	require.Zero(t, parseRate("0/0"))
	require.Zero(t, parseRate("n/a"))
}

// TestCameraInput maps camera ids to platform capture devices.
func TestCameraInput(t *testing.T) {
	t.Parallel()

	device, kwargs, err := cameraInput("linux", Spec{Path: "1", FPS: 15}, 640, 480)
	require.NoError(t, err)
	require.Equal(t, "/dev/video1", device)
	require.Equal(t, "v4l2", kwargs["f"])
	require.Equal(t, "640x480", kwargs["video_size"])
	require.Equal(t, "15", kwargs["framerate"])

	device, kwargs, err = cameraInput("darwin", Spec{Path: "0"}, 1280, 720)
	require.NoError(t, err)
	require.Equal(t, "0", device)
	require.Equal(t, "avfoundation", kwargs["f"])

	device, _, err = cameraInput("windows", Spec{Path: "0"}, 640, 480)
	require.NoError(t, err)
	require.Equal(t, "video=0", device)

	_, _, err = cameraInput("plan9", Spec{Path: "0"}, 640, 480)
	require.ErrorIs(t, err, errUnsupportedOS)

	_, kwargs, err = cameraInput("plan9", Spec{Path: "0", CameraFormat: "custom"}, 640, 480)
	require.NoError(t, err)
	require.Equal(t, "custom", kwargs["f"])
}

// TestTailBuffer keeps only the tail of the output.
func TestTailBuffer(t *testing.T) {
	t.Parallel()

	b := &tailBuffer{limit: 5}
	_, err := b.Write([]byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, "world", b.String())
}
