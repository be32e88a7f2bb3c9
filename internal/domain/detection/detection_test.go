package detection

import (
	"image"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestNew_ConfidenceRange accepts scores in [0,1] and rejects everything else.
func TestNew_ConfidenceRange(t *testing.T) {
	t.Parallel()

	bounds := image.Rect(0, 0, 640, 480)
	box := Box{X: 10, Y: 10, Width: 50, Height: 50}

	for _, c := range []float64{0, 0.5, 1} {
		d, err := New("phone", c, box, bounds)
		require.NoError(t, err)
		require.InDelta(t, c, d.Confidence(), 1e-9)
	}

	for _, c := range []float64{-0.01, 1.01, math.NaN(), math.Inf(1)} {
		_, err := New("phone", c, box, bounds)
		require.ErrorIs(t, err, ErrInvalidDetection)
	}
}

// TestNew_ClipsBoxToFrame keeps boxes inside the frame bounds.
func TestNew_ClipsBoxToFrame(t *testing.T) {
	t.Parallel()

	bounds := image.Rect(0, 0, 100, 80)

	d, err := New("drowsy", 0.8, Box{X: -10, Y: 60, Width: 50, Height: 40}, bounds)
	require.NoError(t, err)
	require.Equal(t, Box{X: 0, Y: 60, Width: 40, Height: 20}, d.Box())
	require.True(t, d.Box().Rect().In(bounds))

	_, err = New("drowsy", 0.8, Box{X: 200, Y: 200, Width: 10, Height: 10}, bounds)
	require.ErrorIs(t, err, ErrInvalidDetection)
}

// TestNew_EmptyBoundsSkipsClipping leaves boxes untouched when the frame size is unknown.
func TestNew_EmptyBoundsSkipsClipping(t *testing.T) {
	t.Parallel()

	box := Box{X: 5, Y: 5, Width: 10, Height: 10}

	d, err := New(" phone ", 0.9, box, image.Rectangle{})
	require.NoError(t, err)
	require.Equal(t, box, d.Box())
	require.Equal(t, "phone", d.Label())
}

// TestNew_RejectsEmptyLabel guards against unnamed classes.
func TestNew_RejectsEmptyLabel(t *testing.T) {
	t.Parallel()

	_, err := New("  ", 0.5, Box{Width: 1, Height: 1}, image.Rectangle{})
	require.ErrorIs(t, err, ErrInvalidDetection)
}

// TestCleanLabel strips the dataset class prefix.
func TestCleanLabel(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"c1 - Texting":                "Texting",
		"c2 - Talking on the phone":   "Talking on the phone",
		"Eyes Closed":                 "Eyes Closed",
		"  phone ":                    "phone",
		"a - b - Operating the Radio": "Operating the Radio",
	}

	for in, want := range cases {
		require.Equal(t, want, CleanLabel(in), in)
	}
}

// TestFrameBounds handles frames without an image.
func TestFrameBounds(t *testing.T) {
	t.Parallel()

	var f *Frame
	require.True(t, f.Bounds().Empty())

	f = &Frame{Image: image.NewRGBA(image.Rect(0, 0, 4, 3))}
	require.Equal(t, image.Rect(0, 0, 4, 3), f.Bounds())
}
