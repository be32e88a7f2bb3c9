package sink

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"

	"github.com/disintegration/imaging"
	ffmpeg "github.com/u2takey/ffmpeg-go"
	"go.uber.org/multierr"

	"github.com/oshokin/driver-guard/internal/logger"
)

// errWriterClosed is returned when a frame arrives after Close.
var errWriterClosed = errors.New("video writer is closed")

// Overlay writes annotated frames into an output video through ffmpeg.
// The encoder starts on the first frame; later frames are resized to its size.
type Overlay struct {
	path      string
	fps       float64
	annotator *Annotator

	// runCtx outlives single Present calls and is canceled by Close.
	runCtx context.Context //nolint:containedctx // Owns the ffmpeg process lifetime.
	cancel context.CancelFunc

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *limitedBuffer
	width  int
	height int
	frames int
	closed bool
}

// NewOverlay prepares an overlay sink writing to path at fps frames per second.
func NewOverlay(ctx context.Context, path string, fps float64, annotator *Annotator) (*Overlay, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}

	if annotator == nil {
		annotator = NewAnnotator(nil)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	return &Overlay{
		path:      path,
		fps:       fps,
		annotator: annotator,
		runCtx:    runCtx,
		cancel:    cancel,
	}, nil
}

// Present annotates the frame and appends it to the video.
func (o *Overlay) Present(ctx context.Context, r *Result) error {
	if o.closed {
		return writeError("overlay", errWriterClosed)
	}

	img := o.annotator.Annotate(r)
	if img == nil {
		return nil
	}

	if o.cmd == nil {
		if err := o.start(ctx, img.Bounds()); err != nil {
			return writeError("overlay", err)
		}
	}

	frame := toNRGBA(img, o.width, o.height)

	if _, err := o.stdin.Write(frame.Pix); err != nil {
		return writeError("overlay", fmt.Errorf("write frame %d: %w: %s", r.Frame.Index, err, o.stderr.String()))
	}

	o.frames++

	return nil
}

// start launches ffmpeg reading raw RGBA frames of the given size from stdin.
func (o *Overlay) start(ctx context.Context, bounds image.Rectangle) error {
	o.width, o.height = bounds.Dx(), bounds.Dy()

	// H.264 needs even dimensions.
	o.width -= o.width % 2
	o.height -= o.height % 2

	if o.width <= 0 || o.height <= 0 {
		return fmt.Errorf("frame too small: %v", bounds)
	}

	stream := ffmpeg.Input("pipe:", ffmpeg.KwArgs{
		"f":         "rawvideo",
		"pix_fmt":   "rgba",
		"s":         fmt.Sprintf("%dx%d", o.width, o.height),
		"framerate": strconv.FormatFloat(o.fps, 'f', -1, 64),
	}).Output(o.path, ffmpeg.KwArgs{
		"pix_fmt":  "yuv420p",
		"loglevel": "error",
	}).OverWriteOutput()
	stream.Context = o.runCtx

	cmd := stream.Compile()
	o.stderr = &limitedBuffer{limit: stderrLimit}
	cmd.Stderr = o.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}

	if err = cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	o.cmd, o.stdin = cmd, stdin

	logger.InfoKV(ctx, "Writing annotated video", "path", o.path, "width", o.width, "height", o.height, "fps", o.fps)

	return nil
}

// Close finishes the video and waits for ffmpeg to exit.
func (o *Overlay) Close() error {
	if o.closed {
		return nil
	}

	o.closed = true
	defer o.cancel()

	if o.cmd == nil {
		return nil
	}

	err := o.stdin.Close()
	if waitErr := o.cmd.Wait(); waitErr != nil {
		err = multierr.Append(err, fmt.Errorf("ffmpeg: %w: %s", waitErr, o.stderr.String()))
	}

	if err != nil {
		return writeError("overlay", err)
	}

	return nil
}

// toNRGBA returns img as a tightly packed w x h NRGBA image.
func toNRGBA(img image.Image, width, height int) *image.NRGBA {
	b := img.Bounds()
	if b.Dx() != width || b.Dy() != height {
		if b.Dx() >= width && b.Dy() >= height && b.Dx()-width <= 1 && b.Dy()-height <= 1 {
			return imaging.Crop(img, image.Rect(b.Min.X, b.Min.Y, b.Min.X+width, b.Min.Y+height))
		}

		return imaging.Resize(img, width, height, imaging.Linear)
	}

	return imaging.Clone(img)
}
