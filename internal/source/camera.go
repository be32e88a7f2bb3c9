package source

import (
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// errUnsupportedOS indicates camera capture is not wired for the current OS.
var errUnsupportedOS = errors.New("unsupported operating system")

// currentOS returns the lower-cased GOOS.
func currentOS() string {
	return strings.ToLower(runtime.GOOS)
}

// cameraInput builds the ffmpeg input for a camera using the platform capture API:
// - Linux:   v4l2, numeric ids map to /dev/videoN
// - macOS:   avfoundation, the id is the device index
// - Windows: dshow, numeric ids are passed as "video=<id>"
// A configured CameraFormat replaces the platform default.
func cameraInput(osName string, spec Spec, width, height int) (string, ffmpeg.KwArgs, error) {
	device := strings.TrimSpace(spec.Path)
	_, numericErr := strconv.Atoi(device)
	isNumeric := numericErr == nil

	var format string

	switch {
	case strings.Contains(osName, "linux"):
		format = "v4l2"

		if isNumeric {
			device = "/dev/video" + device
		}
	case strings.Contains(osName, "darwin"):
		format = "avfoundation"
	case strings.Contains(osName, "windows"):
		format = "dshow"

		if isNumeric || !strings.HasPrefix(device, "video=") {
			device = "video=" + device
		}
	default:
		if spec.CameraFormat == "" {
			return "", nil, fmt.Errorf("camera on %s: %w", osName, errUnsupportedOS)
		}
	}

	if spec.CameraFormat != "" {
		format = spec.CameraFormat
	}

	kwargs := ffmpeg.KwArgs{
		"loglevel":   "error",
		"nostdin":    "",
		"f":          format,
		"video_size": fmt.Sprintf("%dx%d", width, height),
	}

	if spec.FPS > 0 {
		kwargs["framerate"] = strconv.FormatFloat(spec.FPS, 'f', -1, 64)
	}

	return device, kwargs, nil
}
