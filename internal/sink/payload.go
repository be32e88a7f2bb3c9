package sink

import (
	"encoding/json"
	"fmt"

	"github.com/oshokin/driver-guard/internal/domain/alert"
)

// alertMessage is the JSON document published for an alert.
type alertMessage struct {
	alert.Alert

	// TimestampSeconds is the stream offset in seconds, for consumers that do not speak nanoseconds.
	TimestampSeconds float64 `json:"timestamp_seconds"`
}

// marshalAlert encodes an alert for publishers.
func marshalAlert(a alert.Alert) ([]byte, error) {
	payload, err := json.Marshal(alertMessage{
		Alert:            a,
		TimestampSeconds: a.Timestamp.Seconds(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal alert: %w", err)
	}

	return payload, nil
}
