package session

import (
	"time"

	"github.com/oshokin/driver-guard/internal/domain/alert"
)

// Operator identifies the machine and user that ran a session.
type Operator struct {
	// Hostname is the machine name where the pipeline ran.
	Hostname string `yaml:"hostname"`
	// Username is the system user who started the pipeline.
	Username string `yaml:"username"`
}

// Report summarizes one monitoring session.
type Report struct {
	// SessionID identifies the stream session.
	SessionID string `yaml:"session_id"`
	// Source is the monitored video, image, directory or camera.
	Source string `yaml:"source"`
	// Operator is who ran the session, when known.
	Operator *Operator `yaml:"operator,omitempty"`
	// StartedAt is when the first frame was requested.
	StartedAt time.Time `yaml:"started_at"`
	// FinishedAt is when the pipeline stopped.
	FinishedAt time.Time `yaml:"finished_at"`
	// Frames is the number of frames evaluated by the alert policy.
	Frames int `yaml:"frames"`
	// Skipped is the number of frames dropped after a failed inference.
	Skipped int `yaml:"skipped"`
	// Interrupted is true when the user stopped the run before the stream ended.
	Interrupted bool `yaml:"interrupted"`
	// Alerts lists every alert in the order it was raised.
	Alerts []alert.Alert `yaml:"alerts"`
	// Classes holds per-class totals.
	Classes []alert.ClassSummary `yaml:"classes"`
}

// Duration is the wall-clock length of the session.
func (r *Report) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.Before(r.StartedAt) {
		return 0
	}

	return r.FinishedAt.Sub(r.StartedAt)
}

// Triggered returns the classes that raised at least one alert.
func (r *Report) Triggered() []string {
	var triggered []string

	for _, class := range r.Classes {
		if class.Triggered() {
			triggered = append(triggered, class.Class)
		}
	}

	return triggered
}
