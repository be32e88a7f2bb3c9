package detection

import (
	"image"
	"time"
)

// Frame is one decoded image taken from a source, in capture order.
type Frame struct {
	// Index is the zero-based position of the frame in the stream.
	Index int
	// Timestamp is the offset of the frame from the start of the stream.
	Timestamp time.Duration
	// Image holds the decoded pixels.
	Image image.Image
}

// Bounds returns the pixel rectangle of the frame, or an empty rectangle if no image is attached.
func (f *Frame) Bounds() image.Rectangle {
	if f == nil || f.Image == nil {
		return image.Rectangle{}
	}

	return f.Image.Bounds()
}
