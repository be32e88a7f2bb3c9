package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strings"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/oshokin/driver-guard/internal/domain/detection"
)

const (
	// defaultCameraWidth is used when a camera size is not configured.
	defaultCameraWidth = 640
	// defaultCameraHeight is used when a camera size is not configured.
	defaultCameraHeight = 480
	// stderrLimit caps the ffmpeg diagnostics kept for error messages.
	stderrLimit = 4096
	// bytesPerPixel is the size of one RGBA pixel.
	bytesPerPixel = 4
)

// errNoVideoStream is returned when ffprobe reports no video stream.
var errNoVideoStream = errors.New("no video stream")

// ffmpegSource reads raw RGBA frames from an ffmpeg child process.
type ffmpegSource struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *tailBuffer
	cancel context.CancelFunc

	width  int
	height int
	fps    float64
	live   bool

	index   int
	started time.Time
	done    bool
}

// openVideo probes a video file and starts decoding it.
func openVideo(ctx context.Context, spec Spec) (*ffmpegSource, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("%w: ffmpeg not found: %w", detection.ErrSourceUnavailable, err)
	}

	probe, err := ffmpeg.Probe(spec.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: probe %s: %w", detection.ErrSourceUnavailable, spec.Path, err)
	}

	info, err := parseProbe(probe)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", detection.ErrSourceUnavailable, spec.Path, err)
	}

	width, height := resolveSize(spec, info.Width, info.Height)

	fps := info.FPS
	if fps <= 0 {
		fps = spec.FPS
	}

	input := ffmpeg.Input(spec.Path, ffmpeg.KwArgs{"loglevel": "error", "nostdin": ""})

	return start(ctx, input, width, height, fps, false)
}

// openCamera starts capturing from a camera device.
func openCamera(ctx context.Context, spec Spec) (*ffmpegSource, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("%w: ffmpeg not found: %w", detection.ErrSourceUnavailable, err)
	}

	width, height := resolveSize(spec, defaultCameraWidth, defaultCameraHeight)

	device, kwargs, err := cameraInput(currentOS(), spec, width, height)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", detection.ErrSourceUnavailable, err)
	}

	return start(ctx, ffmpeg.Input(device, kwargs), width, height, spec.FPS, true)
}

// resolveSize prefers the configured size and falls back to the probed one.
func resolveSize(spec Spec, width, height int) (int, int) {
	if spec.Width > 0 {
		width = spec.Width
	}

	if spec.Height > 0 {
		height = spec.Height
	}

	return width, height
}

// start launches ffmpeg so that it writes width x height RGBA frames to stdout.
func start(ctx context.Context, input *ffmpeg.Stream, width, height int, fps float64, live bool) (*ffmpegSource, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: unknown frame size", detection.ErrSourceUnavailable)
	}

	runCtx, cancel := context.WithCancel(ctx)

	stream := input.Output("pipe:", ffmpeg.KwArgs{
		"f":       "rawvideo",
		"pix_fmt": "rgba",
		"s":       fmt.Sprintf("%dx%d", width, height),
	})
	stream.Context = runCtx

	cmd := stream.Compile()
	stderr := &tailBuffer{limit: stderrLimit}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: stdout pipe: %w", detection.ErrSourceUnavailable, err)
	}

	if err = cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: start ffmpeg: %w", detection.ErrSourceUnavailable, err)
	}

	return &ffmpegSource{
		cmd:     cmd,
		stdout:  stdout,
		stderr:  stderr,
		cancel:  cancel,
		width:   width,
		height:  height,
		fps:     fps,
		live:    live,
		started: time.Now(),
	}, nil
}

// Next reads exactly one frame from the pipe.
func (s *ffmpegSource) Next(ctx context.Context) (*detection.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if s.done {
		return nil, io.EOF
	}

	img := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	if len(img.Pix) != s.width*s.height*bytesPerPixel {
		return nil, fmt.Errorf("unexpected frame buffer size %d", len(img.Pix))
	}

	if _, err := io.ReadFull(s.stdout, img.Pix); err != nil {
		s.done = true

		return nil, s.finish(err)
	}

	frame := &detection.Frame{
		Index:     s.index,
		Timestamp: s.timestamp(),
		Image:     img,
	}

	s.index++

	return frame, nil
}

// timestamp returns the stream offset of the frame about to be emitted.
func (s *ffmpegSource) timestamp() time.Duration {
	if s.live {
		return time.Since(s.started)
	}

	return time.Duration(float64(s.index) / s.fps * float64(time.Second))
}

// finish converts the end of the pipe into io.EOF or a diagnostic error.
func (s *ffmpegSource) finish(readErr error) error {
	waitErr := s.cmd.Wait()

	switch {
	case waitErr != nil && s.index == 0:
		return fmt.Errorf("%w: ffmpeg: %w: %s", detection.ErrSourceUnavailable, waitErr, s.stderr.String())
	case waitErr != nil:
		return fmt.Errorf("ffmpeg stopped after %d frames: %w: %s", s.index, waitErr, s.stderr.String())
	case errors.Is(readErr, io.EOF):
		return io.EOF
	case errors.Is(readErr, io.ErrUnexpectedEOF):
		// A truncated trailing frame is dropped.
		return io.EOF
	default:
		return fmt.Errorf("read frame: %w", readErr)
	}
}

func (s *ffmpegSource) FPS() float64 {
	return s.fps
}

func (s *ffmpegSource) Live() bool {
	return s.live
}

// Close stops ffmpeg and releases the pipe.
func (s *ffmpegSource) Close() error {
	s.cancel()

	_ = s.stdout.Close()

	if !s.done {
		s.done = true
		// The process was killed by the cancel above, its exit status is expected.
		_ = s.cmd.Wait()
	}

	return nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	n, err := b.buf.Write(p)
	if over := b.buf.Len() - b.limit; over > 0 {
		b.buf.Next(over)
	}

	return n, err
}

func (b *tailBuffer) String() string {
	return strings.TrimSpace(b.buf.String())
}
