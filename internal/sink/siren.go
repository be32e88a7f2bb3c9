package sink

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oshokin/driver-guard/internal/logger"
)

const (
	// sirenPause separates two plays of the siren.
	sirenPause = 500 * time.Millisecond
	// sirenStartVolume is the volume of the first synthesized beep.
	sirenStartVolume = 0.2
	// sirenVolumeStep raises the synthesized beep volume after every play.
	sirenVolumeStep = 0.05
)

// Siren plays an audible alarm in a loop while any class is latched.
// Without a configured file it plays DefaultTone, getting louder on every repeat.
type Siren struct {
	file   string
	player string
	pause  time.Duration

	// play plays the WAV file at path once and blocks until it ends.
	play func(ctx context.Context, path string) error

	mu      sync.Mutex
	tempDir string
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSiren returns a siren playing file, or the default beep when file is empty.
// player overrides the platform audio player command.
func NewSiren(file, player string) (*Siren, error) {
	if file != "" {
		if _, err := os.Stat(filepath.Clean(file)); err != nil {
			return nil, fmt.Errorf("siren file: %w", err)
		}
	}

	s := &Siren{
		file:   file,
		player: player,
		pause:  sirenPause,
	}
	s.play = s.runPlayer

	return s, nil
}

// runPlayer plays path with the platform player.
func (s *Siren) runPlayer(ctx context.Context, path string) error {
	cmd, err := playerCommand(ctx, currentOS(), s.player, path)
	if err != nil {
		return err
	}

	stderr := &limitedBuffer{limit: stderrLimit}
	cmd.Stderr = stderr

	if err = cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s", err, stderr.String())
	}

	return nil
}

// Present starts the alarm when a class is latched and stops it when none is.
func (s *Siren) Present(ctx context.Context, r *Result) error {
	if r == nil {
		return nil
	}

	if len(r.State.Latched()) > 0 {
		s.start(ctx)
	} else {
		s.stop()
	}

	return nil
}

// Active reports whether the alarm loop is running.
func (s *Siren) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cancel != nil
}

func (s *Siren) start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.done = make(chan struct{})

	logger.Info(ctx, "Siren started")

	go s.loop(loopCtx, s.done)
}

func (s *Siren) stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-done
}

// loop plays the siren until ctx is canceled.
func (s *Siren) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	volume := sirenStartVolume

	for {
		path, err := s.sound(volume)
		if err == nil {
			err = s.play(ctx, path)
		}

		if ctx.Err() != nil {
			return
		}

		if err != nil {
			logger.WarnKV(ctx, "Siren playback failed", "error", err)
		}

		volume = min(1, volume+sirenVolumeStep)

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.pause):
		}
	}
}

// sound returns the file to play at the given volume.
func (s *Siren) sound(volume float64) (string, error) {
	if s.file != "" {
		return s.file, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tempDir == "" {
		dir, err := os.MkdirTemp("", "driver-guard-siren-")
		if err != nil {
			return "", fmt.Errorf("siren temp dir: %w", err)
		}

		s.tempDir = dir
	}

	tone := DefaultTone
	tone.Volume = volume

	path := filepath.Join(s.tempDir, fmt.Sprintf("beep-%03d.wav", int(math.Round(volume*100))))
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	if err := tone.WriteWAV(path); err != nil {
		return "", err
	}

	return path, nil
}

// Close stops the alarm and removes synthesized sounds.
func (s *Siren) Close() error {
	s.stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tempDir == "" {
		return nil
	}

	err := os.RemoveAll(s.tempDir)
	s.tempDir = ""

	if err != nil {
		return writeError("siren", err)
	}

	return nil
}
