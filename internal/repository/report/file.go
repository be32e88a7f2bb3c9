package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/driver-guard/internal/config"
	"github.com/oshokin/driver-guard/internal/domain/session"
)

// FileRepository persists the latest session report to a YAML file on disk.
type FileRepository struct {
	// path is the filesystem location of the YAML report file.
	path string
	// mu protects concurrent access to the report file.
	mu sync.Mutex
}

var (
	// ErrNotFound is returned when the report file does not exist yet.
	ErrNotFound = errors.New("report not found")
	// errReportIsNotSet is returned when saving a nil report.
	errReportIsNotSet = errors.New("report is not set")
)

// NewFileRepository creates a repository that reads/writes YAML at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Path returns the report file location.
func (r *FileRepository) Path() string {
	return r.path
}

// Load reads the report from disk.
func (r *FileRepository) Load(_ context.Context) (*session.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read report file: %w", err)
	}

	report := new(session.Report)
	if err = yaml.Unmarshal(contents, report); err != nil {
		return nil, fmt.Errorf("decode report file: %w", err)
	}

	return report, nil
}

// Save writes the report to disk, creating the parent directory when needed.
func (r *FileRepository) Save(_ context.Context, report *session.Report) error {
	if report == nil {
		return errReportIsNotSet
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	if dir := filepath.Dir(r.path); dir != "." {
		if err = os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}

	if err = os.WriteFile(r.path, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write report file: %w", err)
	}

	return nil
}
