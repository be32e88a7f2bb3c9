package sink

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"github.com/oshokin/driver-guard/internal/domain/alert"
	"github.com/oshokin/driver-guard/internal/domain/detection"
)

// Result is what the pipeline hands to sinks for one frame.
type Result struct {
	// Frame is the processed frame.
	Frame *detection.Frame
	// Detections are the validated detections of the frame.
	Detections []detection.Detection
	// Alerts are the alerts raised on this frame, possibly none.
	Alerts []alert.Alert
	// State is the alert state after the frame. Sinks must not modify it.
	State *alert.State
}

// Sink receives pipeline results.
type Sink interface {
	// Present delivers one result. Failures wrap detection.ErrSinkWrite.
	Present(ctx context.Context, r *Result) error
	// Close flushes and releases the sink.
	Close() error
}

// writeError wraps err as a sink failure of the named sink.
func writeError(name string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, detection.ErrSinkWrite) {
		return err
	}

	return fmt.Errorf("%w: %s: %w", detection.ErrSinkWrite, name, err)
}

// Fanout delivers every result to all of its sinks in order.
type Fanout struct {
	sinks []Sink
}

// NewFanout builds a fanout; nil sinks are skipped.
func NewFanout(sinks ...Sink) *Fanout {
	f := &Fanout{
		sinks: make([]Sink, 0, len(sinks)),
	}

	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}

	return f
}

// Add appends a sink.
func (f *Fanout) Add(s Sink) {
	if s != nil {
		f.sinks = append(f.sinks, s)
	}
}

// Len returns the number of sinks.
func (f *Fanout) Len() int {
	return len(f.sinks)
}

// Present delivers r to every sink. A failing sink does not stop the others;
// all failures are joined.
func (f *Fanout) Present(ctx context.Context, r *Result) error {
	var err error

	for _, s := range f.sinks {
		if presentErr := s.Present(ctx, r); presentErr != nil {
			err = multierr.Append(err, writeError(fmt.Sprintf("%T", s), presentErr))
		}
	}

	return err
}

// Close closes every sink in reverse order and joins the failures.
func (f *Fanout) Close() error {
	var err error

	for i := len(f.sinks) - 1; i >= 0; i-- {
		err = multierr.Append(err, f.sinks[i].Close())
	}

	return err
}
