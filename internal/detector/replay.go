package detector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/driver-guard/internal/domain/detection"
)

// errBadRange is returned for script entries whose range ends before it starts.
var errBadRange = errors.New("frame range ends before it starts")

// Script is a scripted detection sequence, keyed by frame index.
type Script struct {
	// Names are the class names reported by Load.
	Names []string `yaml:"names"`
	// SHA256, when set, must match the checksum sent by Load.
	SHA256 string `yaml:"sha256,omitempty"`
	// Default is returned for frames no entry covers.
	Default []ScriptDetection `yaml:"default,omitempty"`
	// Frames lists the scripted frames; the first matching entry wins.
	Frames []ScriptFrame `yaml:"frames"`
}

// ScriptFrame covers the frames Index..Until inclusive.
type ScriptFrame struct {
	Index int `yaml:"index"`
	// Until is the last covered frame; zero covers Index only.
	Until int `yaml:"until,omitempty"`
	// Fail makes Detect fail for these frames with the given message.
	Fail       string            `yaml:"fail,omitempty"`
	Detections []ScriptDetection `yaml:"detections"`
}

// ScriptDetection is one scripted detection.
type ScriptDetection struct {
	Label      string        `yaml:"label,omitempty"`
	ClassID    *int          `yaml:"class_id,omitempty"`
	Confidence float64       `yaml:"confidence"`
	Box        detection.Box `yaml:"box"`
}

func (d ScriptDetection) raw() RawDetection {
	classID := NoClassID
	if d.ClassID != nil {
		classID = *d.ClassID
	}

	return RawDetection{
		Label:      d.Label,
		ClassID:    classID,
		Confidence: d.Confidence,
		Box:        d.Box,
	}
}

// Replay is a Model that answers from a Script. It is safe for concurrent use.
type Replay struct {
	mu     sync.Mutex
	script Script
	calls  int
}

// NewReplay validates the script and builds a replay model.
func NewReplay(script Script) (*Replay, error) {
	for i, frame := range script.Frames {
		if frame.Index < 0 || (frame.Until != 0 && frame.Until < frame.Index) {
			return nil, fmt.Errorf("script frame #%d (%d..%d): %w", i, frame.Index, frame.Until, errBadRange)
		}
	}

	return &Replay{script: script}, nil
}

// LoadReplay reads a YAML script from path.
func LoadReplay(path string) (*Replay, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}

	var script Script
	if err = yaml.Unmarshal(contents, &script); err != nil {
		return nil, fmt.Errorf("unmarshal script: %w", err)
	}

	return NewReplay(script)
}

// Load checks the request against the script and returns the scripted names.
func (r *Replay) Load(_ context.Context, req LoadRequest) ([]string, error) {
	if strings.TrimSpace(req.Weights) == "" {
		return nil, fmt.Errorf("%w: %w", detection.ErrModelLoad, errWeightsRequired)
	}

	if r.script.SHA256 != "" && !strings.EqualFold(r.script.SHA256, req.SHA256) {
		return nil, fmt.Errorf("%w: %w", detection.ErrModelLoad, errChecksumMismatch)
	}

	return r.script.Names, nil
}

// Names returns the scripted class names.
func (r *Replay) Names() []string {
	return r.script.Names
}

// Calls returns how many frames were answered.
func (r *Replay) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.calls
}

// Detect returns the scripted detections of frame.Index, validated against the frame.
func (r *Replay) Detect(ctx context.Context, frame *detection.Frame) ([]detection.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", detection.ErrInference, err)
	}

	if frame == nil {
		return nil, fmt.Errorf("%w: %w", detection.ErrInference, errEmptyFrame)
	}

	r.mu.Lock()
	r.calls++
	r.mu.Unlock()

	scripted, failure := r.lookup(frame.Index)
	if failure != "" {
		return nil, fmt.Errorf("%w: frame %d: %s", detection.ErrInference, frame.Index, failure)
	}

	raws := make([]RawDetection, 0, len(scripted))
	for _, d := range scripted {
		raws = append(raws, d.raw())
	}

	return Validate(ctx, frame, raws, r.label), nil
}

// lookup returns the detections scripted for index, or the failure message.
func (r *Replay) lookup(index int) ([]ScriptDetection, string) {
	for _, frame := range r.script.Frames {
		until := frame.Until
		if until == 0 {
			until = frame.Index
		}

		if index >= frame.Index && index <= until {
			return frame.Detections, frame.Fail
		}
	}

	return r.script.Default, ""
}

// label names class-id-only detections from the scripted names.
func (r *Replay) label(raw RawDetection) string {
	if raw.Label != "" {
		return raw.Label
	}

	if raw.ClassID >= 0 && raw.ClassID < len(r.script.Names) {
		return r.script.Names[raw.ClassID]
	}

	return ""
}

// Close is a no-op.
func (r *Replay) Close() error {
	return nil
}
