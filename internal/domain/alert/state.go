package alert

import (
	"maps"
	"slices"
	"time"
)

// ClassState is the accumulated evidence for one monitored class.
type ClassState struct {
	// Run is the number of consecutive frames in which the class was present.
	Run int
	// Clear is the number of consecutive absent frames since the class was latched.
	Clear int
	// Latched is true once an alert fired for the ongoing condition.
	Latched bool
	// Frames is the total number of frames in which the class was present this session.
	Frames int
	// Alerts is the number of alerts emitted for the class this session.
	Alerts int
}

// State is the alert evidence for one detection stream session.
// It is never mutated by Policy.Evaluate; every call returns a new value.
type State struct {
	// SessionID identifies the stream session that owns the state.
	SessionID string
	// Evaluated is the number of frames fed to the policy.
	Evaluated int
	// Classes holds per-class evidence keyed by the rule class name.
	Classes map[string]ClassState
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}

	return &State{
		SessionID: s.SessionID,
		Evaluated: s.Evaluated,
		Classes:   maps.Clone(s.Classes),
	}
}

// Class returns the evidence recorded for class.
func (s *State) Class(class string) ClassState {
	if s == nil {
		return ClassState{}
	}

	return s.Classes[class]
}

// Latched returns the sorted list of classes with an ongoing alert.
func (s *State) Latched() []string {
	if s == nil {
		return nil
	}

	var latched []string

	for class, cs := range s.Classes {
		if cs.Latched {
			latched = append(latched, class)
		}
	}

	slices.Sort(latched)

	return latched
}

// Alert is emitted once, on the frame where a monitored condition crosses its debounce window.
type Alert struct {
	// SessionID identifies the stream session.
	SessionID string `json:"session_id" yaml:"session_id"`
	// Class is the monitored class that triggered the alert.
	Class string `json:"class" yaml:"class"`
	// FrameIndex is the zero-based index of the triggering frame.
	FrameIndex int `json:"frame_index" yaml:"frame_index"`
	// Timestamp is the stream offset of the triggering frame.
	Timestamp time.Duration `json:"timestamp" yaml:"timestamp"`
	// Confidence is the best score for the class on the triggering frame.
	Confidence float64 `json:"confidence" yaml:"confidence"`
	// Frames is the number of consecutive frames the condition lasted when the alert fired.
	Frames int `json:"frames" yaml:"frames"`
	// RaisedAt is the wall-clock time the alert was raised.
	RaisedAt time.Time `json:"raised_at" yaml:"raised_at"`
}

// ClassSummary aggregates one class over a finished session.
type ClassSummary struct {
	// Class is the monitored class name.
	Class string `yaml:"class"`
	// Frames is the number of frames in which the class was present.
	Frames int `yaml:"frames"`
	// Duration is Frames converted to stream time.
	Duration time.Duration `yaml:"duration"`
	// Alerts is the number of alerts raised for the class.
	Alerts int `yaml:"alerts"`
}

// Triggered reports whether at least one alert was raised for the class.
func (c ClassSummary) Triggered() bool {
	return c.Alerts > 0
}
