package detector

import (
	"context"
	"errors"

	"github.com/oshokin/driver-guard/internal/domain/detection"
)

// Detector returns the detections found in one frame.
type Detector interface {
	// Detect runs inference on frame. Failures wrap detection.ErrInference.
	Detect(ctx context.Context, frame *detection.Frame) ([]detection.Detection, error)
	// Close releases the model handle.
	Close() error
}

// Model is a Detector that can load weights, as served by the detection server.
type Model interface {
	Detector
	// Load prepares the model and returns its class names ordered by id.
	Load(ctx context.Context, req LoadRequest) ([]string, error)
}

var (
	// errAddressRequired is returned when the detector address is missing.
	errAddressRequired = errors.New("detector address must be provided")
	// errWeightsRequired is returned when the weights path is missing.
	errWeightsRequired = errors.New("weights path must be provided")
	// errEmptyFrame is returned when a frame carries no image.
	errEmptyFrame = errors.New("frame has no image")
	// errChecksumMismatch is returned when the weights differ from the expected checksum.
	errChecksumMismatch = errors.New("weights checksum mismatch")
)
