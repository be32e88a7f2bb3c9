package sink

import (
	"fmt"
	"image"
	"image/color"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/oshokin/driver-guard/internal/domain/detection"
)

const (
	// blinkFrames is how many frames an alert box keeps one color.
	blinkFrames = 5
	// labelSize is the font size of box labels.
	labelSize = 14
	// bannerSize is the font size of the alert banner.
	bannerSize = 22
	// alertLineWidth is the stroke of latched boxes.
	alertLineWidth = 4
	// boxLineWidth is the stroke of every other box.
	boxLineWidth = 2
	// margin is the padding of overlay text from the frame edge.
	margin = 10
)

// Overlay colors.
//
//nolint:gochecknoglobals // Read-only palette.
var (
	colorAlertRed    = color.RGBA{R: 255, A: 255}
	colorAlertYellow = color.RGBA{R: 255, G: 255, A: 255}
	colorMonitored   = color.RGBA{G: 255, A: 255}
	colorOther       = color.RGBA{G: 255, B: 255, A: 255}
	colorText        = color.White
)

// overlayFont parses the embedded Go font once.
//
//nolint:gochecknoglobals // Parsed lazily and shared by every annotator.
var overlayFont = sync.OnceValues(func() (*truetype.Font, error) {
	return truetype.Parse(goregular.TTF)
})

// Classes tells the annotator which labels are monitored.
type Classes interface {
	// Monitors returns the monitored class matching label, if any.
	Monitors(label string) (string, bool)
	// MinFrames returns the debounce window of class.
	MinFrames(class string) int
}

// Annotator draws detections and alert status onto frames.
// The last annotated frame is cached, so sinks sharing an annotator draw each frame once.
type Annotator struct {
	classes Classes

	lastFrame *detection.Frame
	last      image.Image
}

// NewAnnotator builds an annotator; classes may be nil when nothing is monitored.
func NewAnnotator(classes Classes) *Annotator {
	return &Annotator{
		classes: classes,
	}
}

// Annotate returns a copy of the frame with boxes, labels and the alert banner drawn on it.
func (a *Annotator) Annotate(r *Result) image.Image {
	if r == nil || r.Frame == nil || r.Frame.Image == nil {
		return nil
	}

	if a.lastFrame == r.Frame && a.last != nil {
		return a.last
	}

	dc := gg.NewContextForImage(r.Frame.Image)

	for _, d := range r.Detections {
		a.drawDetection(dc, r, d)
	}

	a.drawStatus(dc, r)

	a.lastFrame, a.last = r.Frame, dc.Image()

	return a.last
}

// drawDetection draws one box and its label.
// Latched classes blink red and yellow, monitored classes are green, the rest cyan.
func (a *Annotator) drawDetection(dc *gg.Context, r *Result, d detection.Detection) {
	box := d.Box()

	stroke, width := color.Color(colorOther), float64(boxLineWidth)

	if class, ok := a.monitors(d.Label()); ok {
		stroke = colorMonitored

		if r.State.Class(class).Latched {
			width = alertLineWidth
			stroke = colorAlertRed

			if (r.Frame.Index/blinkFrames)%2 == 1 {
				stroke = colorAlertYellow
			}
		}
	}

	dc.SetColor(stroke)
	dc.SetLineWidth(width)
	dc.DrawRectangle(float64(box.X), float64(box.Y), float64(box.Width), float64(box.Height))
	dc.Stroke()

	y := box.Y - margin/2
	if y < labelSize {
		y = box.Y + labelSize
	}

	drawText(dc, fmt.Sprintf("%s %.2f", d.Label(), d.Confidence()), float64(box.X), float64(y), colorText, labelSize)
}

// drawStatus draws the alert banner and the debounce progress of present classes.
func (a *Annotator) drawStatus(dc *gg.Context, r *Result) {
	if latched := r.State.Latched(); len(latched) > 0 {
		drawText(dc, "ALERT: "+strings.Join(latched, ", "), margin, margin+bannerSize, colorAlertRed, bannerSize)
	}

	if a.classes == nil || r.State == nil {
		return
	}

	y := float64(dc.Height() - margin)

	for _, class := range slices.Sorted(maps.Keys(r.State.Classes)) {
		cs := r.State.Classes[class]
		if cs.Run == 0 || cs.Latched {
			continue
		}

		text := fmt.Sprintf("%s %d/%d", class, cs.Run, a.classes.MinFrames(class))
		drawText(dc, text, margin, y, colorMonitored, labelSize)

		y -= labelSize + 4
	}
}

func (a *Annotator) monitors(label string) (string, bool) {
	if a.classes == nil {
		return "", false
	}

	return a.classes.Monitors(label)
}

// drawText writes text with its baseline at (x, y). Text is skipped if the font is unavailable.
func drawText(dc *gg.Context, text string, x, y float64, c color.Color, size float64) {
	font, err := overlayFont()
	if err != nil {
		return
	}

	dc.SetFontFace(truetype.NewFace(font, &truetype.Options{Size: size}))
	dc.SetColor(c)
	dc.DrawString(text, x, y)
}
