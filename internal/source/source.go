package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/oshokin/driver-guard/internal/domain/detection"
)

// Source produces frames in capture order.
type Source interface {
	// Next returns the next frame, or io.EOF once a finite stream is exhausted.
	Next(ctx context.Context) (*detection.Frame, error)
	// FPS returns the frame rate used to timestamp frames.
	FPS() float64
	// Live reports whether the source is an unbounded camera stream.
	Live() bool
	// Close releases the underlying media handle.
	Close() error
}

// Spec describes what to open.
type Spec struct {
	// Path is a video file, an image, a directory of images or a camera id/device.
	Path string
	// FPS is used when the frame rate cannot be probed and for still images.
	FPS float64
	// Width and Height force the decoded frame size for video and camera sources.
	Width  int
	Height int
	// CameraFormat overrides the ffmpeg capture format for cameras.
	CameraFormat string
}

// Kind is the detected type of a source.
type Kind int

// Supported source kinds.
const (
	KindVideo Kind = iota
	KindImage
	KindDirectory
	KindCamera
)

// String returns the kind name for logs.
func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindImage:
		return "image"
	case KindDirectory:
		return "directory"
	case KindCamera:
		return "camera"
	default:
		return "unknown"
	}
}

const defaultFPS = 30.0

// cameraPattern matches numeric camera ids and V4L2 device nodes.
var cameraPattern = regexp.MustCompile(`^(\d+|/dev/video\d+|video=.+)$`)

// imageExtensions lists still image formats decoded in-process.
//
//nolint:gochecknoglobals // Read-only lookup table.
var imageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".bmp":  {},
	".gif":  {},
	".tif":  {},
	".tiff": {},
}

// IsImage reports whether path has a still image extension.
func IsImage(path string) bool {
	_, ok := imageExtensions[strings.ToLower(filepath.Ext(path))]

	return ok
}

// IsCamera reports whether path names a camera rather than a file.
func IsCamera(path string) bool {
	return cameraPattern.MatchString(strings.TrimSpace(path))
}

// Detect classifies path without opening any media.
func Detect(path string) (Kind, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return KindVideo, fmt.Errorf("%w: empty path", detection.ErrSourceUnavailable)
	}

	if IsCamera(path) {
		return KindCamera, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return KindVideo, fmt.Errorf("%w: %s does not exist", detection.ErrSourceUnavailable, path)
		}

		return KindVideo, fmt.Errorf("%w: %w", detection.ErrSourceUnavailable, err)
	}

	switch {
	case info.IsDir():
		return KindDirectory, nil
	case IsImage(path):
		return KindImage, nil
	default:
		return KindVideo, nil
	}
}

// Open opens the source described by spec. It fails with
// detection.ErrSourceUnavailable when the path or device cannot be opened, in
// which case no frame is ever produced.
//
//nolint:ireturn // Callers only need the Source behavior.
func Open(ctx context.Context, spec Spec) (Source, error) {
	if spec.FPS <= 0 {
		spec.FPS = defaultFPS
	}

	kind, err := Detect(spec.Path)
	if err != nil {
		return nil, err
	}

	var src Source

	switch kind {
	case KindImage:
		return newImageSource([]string{spec.Path}, spec.FPS), nil
	case KindDirectory:
		src, err = openDirectory(spec.Path, spec.FPS)
	case KindCamera:
		src, err = openCamera(ctx, spec)
	default:
		src, err = openVideo(ctx, spec)
	}

	if err != nil {
		return nil, err
	}

	return src, nil
}
