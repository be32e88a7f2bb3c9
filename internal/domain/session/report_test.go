package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/driver-guard/internal/domain/alert"
)

// TestReportDuration measures wall-clock time and ignores unset bounds.
func TestReportDuration(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

	require.Zero(t, (&Report{}).Duration())
	require.Zero(t, (&Report{StartedAt: start, FinishedAt: start.Add(-time.Second)}).Duration())
	require.Equal(t, 90*time.Second, (&Report{StartedAt: start, FinishedAt: start.Add(90 * time.Second)}).Duration())
}

// TestReportTriggered lists only classes with alerts.
func TestReportTriggered(t *testing.T) {
	t.Parallel()

	r := &Report{Classes: []alert.ClassSummary{
		{Class: "phone", Frames: 5, Alerts: 1},
		{Class: "drowsy", Frames: 2},
		{Class: "Texting", Frames: 9, Alerts: 2},
	}}

	require.Equal(t, []string{"phone", "Texting"}, r.Triggered())
}
