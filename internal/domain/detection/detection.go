package detection

import (
	"fmt"
	"image"
	"math"
	"strings"
)

// Box is an axis-aligned bounding box in pixel coordinates.
type Box struct {
	X      int `json:"x"      yaml:"x"`
	Y      int `json:"y"      yaml:"y"`
	Width  int `json:"width"  yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Rect converts the box into an image.Rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height)
}

// BoxFromRect converts an image.Rectangle into a Box.
func BoxFromRect(r image.Rectangle) Box {
	return Box{
		X:      r.Min.X,
		Y:      r.Min.Y,
		Width:  r.Dx(),
		Height: r.Dy(),
	}
}

// Detection is one labeled, scored and localized model output for a single frame.
// The zero value is not valid; use New.
type Detection struct {
	label      string
	confidence float64
	box        Box
}

// New validates and builds a Detection.
// The confidence must lie in [0,1]. The box is clipped to bounds when bounds is
// not empty; a box that does not overlap the frame at all is rejected.
func New(label string, confidence float64, box Box, bounds image.Rectangle) (Detection, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return Detection{}, fmt.Errorf("%w: empty label", ErrInvalidDetection)
	}

	if math.IsNaN(confidence) || confidence < 0 || confidence > 1 {
		return Detection{}, fmt.Errorf("%w: confidence %v for %q is outside [0,1]", ErrInvalidDetection, confidence, label)
	}

	rect := box.Rect().Canon()
	if !bounds.Empty() {
		rect = rect.Intersect(bounds)
		if rect.Empty() {
			return Detection{}, fmt.Errorf("%w: box %+v for %q lies outside the frame", ErrInvalidDetection, box, label)
		}
	}

	return Detection{
		label:      label,
		confidence: confidence,
		box:        BoxFromRect(rect),
	}, nil
}

// Label returns the class label.
func (d Detection) Label() string {
	return d.label
}

// Confidence returns the score in [0,1].
func (d Detection) Confidence() float64 {
	return d.confidence
}

// Box returns the bounding box.
func (d Detection) Box() Box {
	return d.box
}

// String renders the detection for logs.
func (d Detection) String() string {
	return fmt.Sprintf("%s:%.2f@(%d,%d %dx%d)", d.label, d.confidence, d.box.X, d.box.Y, d.box.Width, d.box.Height)
}

// CleanLabel strips dataset prefixes of the form "c1 - Texting" and returns "Texting".
// Labels without the separator are returned trimmed.
func CleanLabel(label string) string {
	const separator = " - "

	if idx := strings.LastIndex(label, separator); idx >= 0 {
		return strings.TrimSpace(label[idx+len(separator):])
	}

	return strings.TrimSpace(label)
}
