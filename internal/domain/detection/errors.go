package detection

import "errors"

var (
	// ErrSourceUnavailable is returned when a video file, image or camera cannot be opened.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrModelLoad is returned when model weights cannot be read or loaded by the detector.
	ErrModelLoad = errors.New("model load failed")
	// ErrInference is returned when the detector fails on a single frame.
	ErrInference = errors.New("inference failed")
	// ErrSinkWrite is returned when a presentation sink fails to deliver a frame or alert.
	ErrSinkWrite = errors.New("sink write failed")
	// ErrInvalidDetection is returned for detections with out-of-range scores or boxes.
	ErrInvalidDetection = errors.New("invalid detection")
)
