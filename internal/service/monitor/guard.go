package monitor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"github.com/mitchellh/go-ps"
)

// errCameraBusy is returned when another live process holds the camera lock.
var errCameraBusy = errors.New("camera is used by another driver-guard process")

// cameraLock marks a camera device as captured by this process.
type cameraLock struct {
	path string
}

// lockPath returns the lock file of device inside dir.
func lockPath(dir, device string) string {
	name := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}

		return '_'
	}, strings.TrimSpace(device))

	return filepath.Join(dir, "driver-guard-camera-"+name+".lock")
}

// acquireCameraLock creates the lock file of device holding the current pid.
// A lock left behind by a process that no longer exists is taken over.
func acquireCameraLock(dir, device string) (*cameraLock, error) {
	path := lockPath(dir, device)

	for range 2 {
		//nolint:gosec // The path is built from a sanitized device name.
		file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			_, writeErr := file.WriteString(strconv.Itoa(os.Getpid()))
			closeErr := file.Close()

			if err = errors.Join(writeErr, closeErr); err != nil {
				_ = os.Remove(path)

				return nil, fmt.Errorf("write camera lock: %w", err)
			}

			return &cameraLock{path: path}, nil
		}

		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create camera lock: %w", err)
		}

		pid, alive, err := lockOwner(path)
		if err != nil {
			return nil, err
		}

		if alive {
			return nil, fmt.Errorf("%w: %s is held by pid %d", errCameraBusy, device, pid)
		}

		if err = os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale camera lock: %w", err)
		}
	}

	return nil, fmt.Errorf("%w: %s", errCameraBusy, device)
}

// lockOwner reads the pid stored in a lock file and reports whether that process exists.
// An unreadable pid counts as a dead owner.
func lockOwner(path string) (int, bool, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, false, nil
		}

		return 0, false, fmt.Errorf("read camera lock: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(contents)))
	if err != nil || pid <= 0 {
		return 0, false, nil //nolint:nilerr // A garbled lock has no owner to wait for.
	}

	process, err := ps.FindProcess(pid)
	if err != nil {
		return pid, false, fmt.Errorf("find lock owner: %w", err)
	}

	return pid, process != nil, nil
}

// Release removes the lock file.
func (l *cameraLock) Release() error {
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("release camera lock: %w", err)
	}

	return nil
}
