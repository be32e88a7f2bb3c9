// Package detection contains the core value types that flow through the
// pipeline: Frame (one decoded image with its position in the stream) and
// Detection (one labeled, scored, localized model output).
//
// Detections are immutable and only built through New, which enforces the
// confidence range and keeps boxes inside the frame. The package also holds
// the sentinel errors shared by every stage.
package detection
