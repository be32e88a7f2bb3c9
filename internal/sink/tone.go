package sink

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	// toneSampleRate is the sample rate of synthesized tones.
	toneSampleRate = 44100
	// toneBitDepth is the PCM sample size of synthesized tones.
	toneBitDepth = 16
	// wavFormatPCM is the WAVE format tag of uncompressed PCM.
	wavFormatPCM = 1
)

// Tone is a plain sine beep.
type Tone struct {
	// Frequency is the pitch in Hz.
	Frequency float64
	// Duration is the length of the beep.
	Duration time.Duration
	// Volume scales the amplitude, from 0 to 1.
	Volume float64
}

// DefaultTone is the 1 kHz half-second beep played when no siren file is configured.
//
//nolint:gochecknoglobals // Read-only default.
var DefaultTone = Tone{
	Frequency: 1000,
	Duration:  500 * time.Millisecond,
	Volume:    1,
}

// Samples returns the 16-bit mono PCM samples of the tone.
func (t Tone) Samples() []int {
	count := int(t.Duration.Seconds() * toneSampleRate)
	amplitude := math.Min(math.Max(t.Volume, 0), 1) * math.MaxInt16

	samples := make([]int, count)
	for i := range samples {
		phase := 2 * math.Pi * t.Frequency * float64(i) / toneSampleRate
		samples[i] = int(amplitude * math.Sin(phase))
	}

	return samples
}

// WriteWAV stores the tone as a mono 16-bit PCM WAV file.
func (t Tone) WriteWAV(path string) (err error) {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("create tone file: %w", err)
	}

	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close tone file: %w", closeErr)
		}
	}()

	encoder := wav.NewEncoder(f, toneSampleRate, toneBitDepth, 1, wavFormatPCM)

	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: 1,
			SampleRate:  toneSampleRate,
		},
		Data:           t.Samples(),
		SourceBitDepth: toneBitDepth,
	}

	if err = encoder.Write(buf); err != nil {
		return fmt.Errorf("encode tone: %w", err)
	}

	if err = encoder.Close(); err != nil {
		return fmt.Errorf("finish tone: %w", err)
	}

	return nil
}
