package sink

import (
	"context"

	"github.com/oshokin/driver-guard/internal/logger"
)

// Log writes alerts and, at debug level, every frame to the logger.
type Log struct{}

// NewLog returns the log sink.
func NewLog() *Log {
	return new(Log)
}

// Present logs the result.
func (*Log) Present(ctx context.Context, r *Result) error {
	if r == nil || r.Frame == nil {
		return nil
	}

	if len(r.Detections) > 0 {
		labels := make([]string, 0, len(r.Detections))
		for _, d := range r.Detections {
			labels = append(labels, d.String())
		}

		logger.DebugKV(ctx, "Frame processed",
			"frame", r.Frame.Index,
			"timestamp", r.Frame.Timestamp,
			"detections", labels)
	}

	for _, a := range r.Alerts {
		logger.WarnKV(ctx, "Driver alert",
			"session_id", a.SessionID,
			"class", a.Class,
			"frame", a.FrameIndex,
			"timestamp", a.Timestamp,
			"confidence", a.Confidence,
			"frames", a.Frames)
	}

	return nil
}

// Close is a no-op.
func (*Log) Close() error {
	return nil
}
