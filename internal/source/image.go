package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/disintegration/imaging"

	"github.com/oshokin/driver-guard/internal/domain/detection"
)

// imageSource yields still images one frame each.
type imageSource struct {
	paths  []string
	fps    float64
	next   int
	closed bool
}

func newImageSource(paths []string, fps float64) *imageSource {
	return &imageSource{
		paths: paths,
		fps:   fps,
	}
}

// openDirectory lists the images of dir sorted by name.
func openDirectory(dir string, fps float64) (*imageSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", detection.ErrSourceUnavailable, err)
	}

	paths := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !IsImage(entry.Name()) {
			continue
		}

		paths = append(paths, filepath.Join(dir, entry.Name()))
	}

	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no images in %s", detection.ErrSourceUnavailable, dir)
	}

	sort.Strings(paths)

	return newImageSource(paths, fps), nil
}

// Next decodes the next image, applying its EXIF orientation.
// An undecodable image is reported as ErrInference and is not retried.
func (s *imageSource) Next(ctx context.Context) (*detection.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if s.closed || s.next >= len(s.paths) {
		return nil, io.EOF
	}

	index := s.next
	path := s.paths[index]
	s.next++

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: frame %d: decode %s: %w", detection.ErrInference, index, path, err)
	}

	return &detection.Frame{
		Index:     index,
		Timestamp: time.Duration(float64(index) / s.fps * float64(time.Second)),
		Image:     img,
	}, nil
}

func (s *imageSource) FPS() float64 {
	return s.fps
}

func (s *imageSource) Live() bool {
	return false
}

func (s *imageSource) Close() error {
	s.closed = true

	return nil
}
