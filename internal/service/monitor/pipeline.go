package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/oshokin/driver-guard/internal/detector"
	"github.com/oshokin/driver-guard/internal/domain/alert"
	"github.com/oshokin/driver-guard/internal/domain/detection"
	"github.com/oshokin/driver-guard/internal/domain/session"
	"github.com/oshokin/driver-guard/internal/logger"
	"github.com/oshokin/driver-guard/internal/sink"
	"github.com/oshokin/driver-guard/internal/source"
)

// pipeline is one monitoring session: read, infer, decide, present.
// It runs sequentially and owns the alert state.
type pipeline struct {
	source   source.Source
	detector detector.Detector
	policy   *alert.Policy
	sink     sink.Sink
	// now stamps raised alerts.
	now func() time.Time
}

// run processes frames until the source ends or ctx is canceled and fills report.
// Only source failures after startup are returned. Malformed frames, inference
// and sink failures are logged and the session goes on.
func (p *pipeline) run(ctx context.Context, report *session.Report) error {
	state := p.policy.NewState(report.SessionID)

	defer func() {
		report.Classes = p.policy.Summarize(state)
	}()

	for {
		if ctx.Err() != nil {
			report.Interrupted = true

			return nil
		}

		frame, err := p.source.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				return nil
			case ctx.Err() != nil:
				report.Interrupted = true

				return nil
			case errors.Is(err, detection.ErrInference):
				report.Skipped++
				logger.WarnKV(ctx, "Malformed frame skipped", "error", err)

				continue
			default:
				return fmt.Errorf("read frame: %w", err)
			}
		}

		dets, err := p.detector.Detect(ctx, frame)
		if err != nil {
			if ctx.Err() != nil {
				report.Interrupted = true

				return nil
			}

			if !errors.Is(err, detection.ErrInference) {
				return fmt.Errorf("detect frame %d: %w", frame.Index, err)
			}

			report.Skipped++
			logger.WarnKV(ctx, "Frame skipped", "frame", frame.Index, "error", err)

			continue
		}

		var alerts []alert.Alert

		state, alerts = p.policy.Evaluate(state, alert.FrameInfo{
			Index:     frame.Index,
			Timestamp: frame.Timestamp,
		}, dets)

		for i := range alerts {
			alerts[i].RaisedAt = p.now()
		}

		report.Frames++
		report.Alerts = append(report.Alerts, alerts...)

		result := &sink.Result{
			Frame:      frame,
			Detections: dets,
			Alerts:     alerts,
			State:      state,
		}

		if err = p.sink.Present(ctx, result); err != nil {
			logger.WarnKV(ctx, "Sink write failed", "frame", frame.Index, "error", err)
		}
	}
}
