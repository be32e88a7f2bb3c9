package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/oshokin/driver-guard/internal/logger"
)

const (
	// snapshotQuality is the JPEG quality of alert snapshots.
	snapshotQuality = 90
	// snapshotDirPermissions is the mode of the snapshot directory.
	snapshotDirPermissions = 0o750
)

// Snapshot stores the annotated frame of every alert as a JPEG file.
type Snapshot struct {
	dir       string
	annotator *Annotator
}

// NewSnapshot creates dir if needed and returns the snapshot sink.
func NewSnapshot(dir string, annotator *Annotator) (*Snapshot, error) {
	if err := os.MkdirAll(filepath.Clean(dir), snapshotDirPermissions); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}

	if annotator == nil {
		annotator = NewAnnotator(nil)
	}

	return &Snapshot{
		dir:       dir,
		annotator: annotator,
	}, nil
}

// Present writes one file per alert raised on the frame.
func (s *Snapshot) Present(ctx context.Context, r *Result) error {
	if r == nil || len(r.Alerts) == 0 {
		return nil
	}

	img := s.annotator.Annotate(r)
	if img == nil {
		return nil
	}

	for _, a := range r.Alerts {
		path := s.Path(a.SessionID, a.FrameIndex, a.Class)

		if err := imaging.Save(img, path, imaging.JPEGQuality(snapshotQuality)); err != nil {
			return writeError("snapshot", err)
		}

		logger.InfoKV(ctx, "Alert snapshot saved", "class", a.Class, "frame", a.FrameIndex, "path", path)
	}

	return nil
}

// Path returns the file name used for an alert.
func (s *Snapshot) Path(sessionID string, frameIndex int, class string) string {
	name := fmt.Sprintf("%s_%06d_%s.jpg", shortID(sessionID), frameIndex, fileSafe(class))

	return filepath.Join(s.dir, name)
}

// Close is a no-op.
func (*Snapshot) Close() error {
	return nil
}

// shortID keeps the first block of a UUID.
func shortID(id string) string {
	if head, _, found := strings.Cut(id, "-"); found && head != "" {
		return head
	}

	if id == "" {
		return "session"
	}

	return id
}

// fileSafe lower-cases s and replaces everything but letters and digits with underscores.
func fileSafe(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '_'
		}
	}, s)
}
