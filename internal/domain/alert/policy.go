package alert

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/oshokin/driver-guard/internal/domain/detection"
)

const (
	// DefaultThreshold is the confidence a detection needs to count as evidence.
	DefaultThreshold = 0.5
	// DefaultMinFrames is the number of consecutive frames that raise an alert.
	DefaultMinFrames = 3
	// DefaultClearFrames is the number of absent frames that re-arm a latched class.
	DefaultClearFrames = 1
)

var (
	// errNoRules is returned when a policy is built without monitored classes.
	errNoRules = errors.New("at least one monitored class is required")
	// errDuplicateClass is returned when the same class is listed twice.
	errDuplicateClass = errors.New("class is listed more than once")
	// errBadThreshold is returned for thresholds outside [0,1].
	errBadThreshold = errors.New("threshold must lie in [0,1]")
	// errBadFrames is returned for negative frame counts or durations.
	errBadFrames = errors.New("frame counts and durations must not be negative")
)

// Rule configures alerting for one monitored class.
// Zero frame fields and a nil Threshold inherit the policy-wide Options.
type Rule struct {
	// Class is the detection label to monitor.
	Class string
	// Threshold overrides the minimum confidence for this class.
	Threshold *float64
	// MinFrames overrides the debounce window for this class.
	MinFrames int
	// MinDuration expresses the debounce window in stream time. It is converted
	// to frames with Options.FPS and wins over MinFrames when both are set.
	MinDuration time.Duration
}

// Options holds the policy-wide defaults.
type Options struct {
	// Threshold is the default minimum confidence; nil means DefaultThreshold.
	// Zero is a valid threshold that accepts every detection.
	Threshold *float64
	// MinFrames is the default debounce window in frames.
	MinFrames int
	// ClearFrames is the number of consecutive absent frames that re-arm a class.
	ClearFrames int
	// FPS is the stream frame rate, used for MinDuration and summaries.
	FPS float64
}

// FrameInfo locates a frame in the stream.
type FrameInfo struct {
	// Index is the zero-based frame index.
	Index int
	// Timestamp is the stream offset of the frame.
	Timestamp time.Duration
}

// resolvedRule is a Rule with every default applied.
type resolvedRule struct {
	class     string
	threshold float64
	minFrames int
}

// Policy decides when a dangerous behavior alert is raised.
// It is immutable after construction and safe to share.
type Policy struct {
	rules       []resolvedRule
	clearFrames int
	frameTime   time.Duration
}

// NewPolicy validates rules and resolves their defaults.
func NewPolicy(rules []Rule, opts Options) (*Policy, error) {
	if len(rules) == 0 {
		return nil, errNoRules
	}

	if opts.MinFrames == 0 {
		opts.MinFrames = DefaultMinFrames
	}

	if opts.ClearFrames == 0 {
		opts.ClearFrames = DefaultClearFrames
	}

	threshold := DefaultThreshold
	if opts.Threshold != nil {
		threshold = *opts.Threshold
	}

	if err := checkThreshold(threshold); err != nil {
		return nil, err
	}

	if opts.MinFrames < 0 || opts.ClearFrames < 0 || opts.FPS < 0 {
		return nil, errBadFrames
	}

	p := &Policy{
		rules:       make([]resolvedRule, 0, len(rules)),
		clearFrames: opts.ClearFrames,
	}

	if opts.FPS > 0 {
		p.frameTime = time.Duration(float64(time.Second) / opts.FPS)
	}

	seen := make(map[string]struct{}, len(rules))

	for _, rule := range rules {
		resolved, err := resolveRule(rule, opts, threshold)
		if err != nil {
			return nil, err
		}

		key := strings.ToLower(resolved.class)
		if _, ok := seen[key]; ok {
			return nil, fmt.Errorf("%q: %w", resolved.class, errDuplicateClass)
		}

		seen[key] = struct{}{}
		p.rules = append(p.rules, resolved)
	}

	return p, nil
}

// resolveRule applies defaults to a single rule.
func resolveRule(rule Rule, opts Options, threshold float64) (resolvedRule, error) {
	class := strings.TrimSpace(rule.Class)
	if class == "" {
		return resolvedRule{}, errors.New("class name must not be empty")
	}

	if rule.MinFrames < 0 || rule.MinDuration < 0 {
		return resolvedRule{}, fmt.Errorf("%q: %w", class, errBadFrames)
	}

	if rule.Threshold != nil {
		threshold = *rule.Threshold
	}

	if err := checkThreshold(threshold); err != nil {
		return resolvedRule{}, fmt.Errorf("%q: %w", class, err)
	}

	minFrames := opts.MinFrames
	if rule.MinFrames > 0 {
		minFrames = rule.MinFrames
	}

	if rule.MinDuration > 0 && opts.FPS > 0 {
		minFrames = max(1, int(math.Ceil(rule.MinDuration.Seconds()*opts.FPS)))
	}

	return resolvedRule{
		class:     class,
		threshold: threshold,
		minFrames: minFrames,
	}, nil
}

func checkThreshold(threshold float64) error {
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return errBadThreshold
	}

	return nil
}

// NewState returns a fresh state for a new stream session.
func (p *Policy) NewState(sessionID string) *State {
	classes := make(map[string]ClassState, len(p.rules))
	for _, rule := range p.rules {
		classes[rule.class] = ClassState{}
	}

	return &State{
		SessionID: sessionID,
		Classes:   classes,
	}
}

// Monitors returns the rule class matching label, if any.
func (p *Policy) Monitors(label string) (string, bool) {
	for _, rule := range p.rules {
		if strings.EqualFold(rule.class, label) {
			return rule.class, true
		}
	}

	return "", false
}

// MinFrames returns the debounce window resolved for class, or 0 if it is not monitored.
func (p *Policy) MinFrames(class string) int {
	for _, rule := range p.rules {
		if rule.class == class {
			return rule.minFrames
		}
	}

	return 0
}

// Evaluate folds one frame of detections into prev and returns the next state
// together with the alerts raised on this frame, in rule order.
//
// A class is present when any detection with its label reaches the class threshold.
// An alert fires when the present run reaches the debounce window and the class is
// not latched; the latch is released after ClearFrames consecutive absent frames.
func (p *Policy) Evaluate(prev *State, frame FrameInfo, detections []detection.Detection) (*State, []Alert) {
	next := prev.Clone()
	if next == nil {
		next = p.NewState("")
	}

	if next.Classes == nil {
		next.Classes = make(map[string]ClassState, len(p.rules))
	}

	next.Evaluated++

	var alerts []Alert

	for _, rule := range p.rules {
		cs := next.Classes[rule.class]

		confidence, present := p.bestScore(rule, detections)
		if present {
			cs.Run++
			cs.Clear = 0
			cs.Frames++

			if !cs.Latched && cs.Run >= rule.minFrames {
				cs.Latched = true
				cs.Alerts++

				alerts = append(alerts, Alert{
					SessionID:  next.SessionID,
					Class:      rule.class,
					FrameIndex: frame.Index,
					Timestamp:  frame.Timestamp,
					Confidence: confidence,
					Frames:     cs.Run,
				})
			}
		} else {
			cs.Run = 0

			if cs.Latched {
				cs.Clear++

				if cs.Clear >= p.clearFrames {
					cs.Latched = false
					cs.Clear = 0
				}
			}
		}

		next.Classes[rule.class] = cs
	}

	return next, alerts
}

// bestScore returns the highest confidence reaching the rule threshold.
func (p *Policy) bestScore(rule resolvedRule, detections []detection.Detection) (float64, bool) {
	var (
		best    float64
		present bool
	)

	for _, d := range detections {
		if !strings.EqualFold(d.Label(), rule.class) || d.Confidence() < rule.threshold {
			continue
		}

		if !present || d.Confidence() > best {
			best = d.Confidence()
		}

		present = true
	}

	return best, present
}

// Summarize reports per-class totals for the classes seen during the session.
func (p *Policy) Summarize(s *State) []ClassSummary {
	var summary []ClassSummary

	for _, rule := range p.rules {
		cs := s.Class(rule.class)
		if cs.Frames == 0 && cs.Alerts == 0 {
			continue
		}

		summary = append(summary, ClassSummary{
			Class:    rule.class,
			Frames:   cs.Frames,
			Duration: time.Duration(cs.Frames) * p.frameTime,
			Alerts:   cs.Alerts,
		})
	}

	return summary
}
