package report

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/driver-guard/internal/domain/alert"
	"github.com/oshokin/driver-guard/internal/domain/session"
)

// TestFileRepository_NotFound verifies Load returns ErrNotFound for missing file.
func TestFileRepository_NotFound(t *testing.T) {
	t.Parallel()
	repo := NewFileRepository(filepath.Join(t.TempDir(), "missing.yaml"))
	r, err := repo.Load(context.Background())
	require.ErrorIs(t, err, ErrNotFound)
	require.Nil(t, r)
}

// TestFileRepository_SaveNil rejects an empty report.
func TestFileRepository_SaveNil(t *testing.T) {
	t.Parallel()
	repo := NewFileRepository(filepath.Join(t.TempDir(), "report.yaml"))
	require.ErrorIs(t, repo.Save(context.Background(), nil), errReportIsNotSet)
}

// TestFileRepository_SaveLoad_Roundtrip ensures Save followed by Load returns equal report.
func TestFileRepository_SaveLoad_Roundtrip(t *testing.T) {
	t.Parallel()
	file := filepath.Join(t.TempDir(), "reports", "latest.yaml")
	repo := NewFileRepository(file)
	require.Equal(t, file, repo.Path())

	started := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	want := &session.Report{
		SessionID: "3f2c9a10-0000-4000-8000-000000000000",
		Source:    "cabin.mp4",
		Operator: &session.Operator{
			Hostname: "fleet-07",
			Username: "driver",
		},
		StartedAt:  started,
		FinishedAt: started.Add(2 * time.Minute),
		Frames:     120,
		Skipped:    2,
		Alerts: []alert.Alert{{
			SessionID:  "3f2c9a10-0000-4000-8000-000000000000",
			Class:      "phone",
			FrameIndex: 90,
			Timestamp:  3 * time.Second,
			Confidence: 0.875,
			Frames:     90,
			RaisedAt:   started.Add(3 * time.Second),
		}},
		Classes: []alert.ClassSummary{{
			Class:    "phone",
			Frames:   95,
			Duration: 3166 * time.Millisecond,
			Alerts:   1,
		}},
	}

	require.NoError(t, repo.Save(context.Background(), want))

	got, err := repo.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, want, got)

	_, err = os.Stat(file)
	require.NoError(t, err)
}
