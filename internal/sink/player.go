package sink

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// errUnsupportedOS indicates no audio player is known for the current OS.
var errUnsupportedOS = errors.New("unsupported operating system")

// linuxPlayers are tried in order on Linux.
//
//nolint:gochecknoglobals // Read-only lookup table.
var linuxPlayers = []string{"paplay", "aplay"}

// currentOS returns the lower-cased GOOS.
func currentOS() string {
	return strings.ToLower(runtime.GOOS)
}

// playerCommand builds the command that plays the WAV file at path once, using
// a configured player or the built-in tool of the platform:
// - Linux:   paplay or aplay
// - macOS:   afplay
// - Windows: PowerShell Media.SoundPlayer
func playerCommand(ctx context.Context, osName, player, path string) (*exec.Cmd, error) {
	if fields := strings.Fields(player); len(fields) > 0 {
		args := append(fields[1:], path)

		return exec.CommandContext(ctx, fields[0], args...), nil //nolint:gosec // The player is operator configuration.
	}

	switch {
	case strings.Contains(osName, "linux"):
		for _, name := range linuxPlayers {
			if _, err := exec.LookPath(name); err == nil {
				return exec.CommandContext(ctx, name, path), nil
			}
		}

		return nil, fmt.Errorf("no audio player found, tried %s", strings.Join(linuxPlayers, ", "))
	case strings.Contains(osName, "darwin"):
		return exec.CommandContext(ctx, "afplay", path), nil
	case strings.Contains(osName, "windows"):
		script := fmt.Sprintf("(New-Object Media.SoundPlayer '%s').PlaySync()", strings.ReplaceAll(path, "'", "''"))

		return exec.CommandContext(ctx, "powershell.exe", "-NoProfile", "-NonInteractive", "-Command", script), nil
	default:
		return nil, fmt.Errorf("play sound on %s: %w", runtime.GOOS, errUnsupportedOS)
	}
}
