package source

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// probeInfo is the part of ffprobe output the source needs.
type probeInfo struct {
	Width  int
	Height int
	FPS    float64
}

// probeOutput mirrors the JSON printed by ffprobe -show_streams.
type probeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
	} `json:"streams"`
}

// parseProbe extracts size and frame rate of the first video stream.
func parseProbe(raw string) (probeInfo, error) {
	var out probeOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return probeInfo{}, fmt.Errorf("decode probe: %w", err)
	}

	for _, stream := range out.Streams {
		if stream.CodecType != "video" {
			continue
		}

		fps := parseRate(stream.AvgFrameRate)
		if fps <= 0 {
			fps = parseRate(stream.RFrameRate)
		}

		return probeInfo{
			Width:  stream.Width,
			Height: stream.Height,
			FPS:    fps,
		}, nil
	}

	return probeInfo{}, errNoVideoStream
}

// parseRate converts "30000/1001" or "25" into frames per second. Unknown rates yield 0.
func parseRate(rate string) float64 {
	num, den, found := strings.Cut(strings.TrimSpace(rate), "/")

	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}

	if !found {
		return n
	}

	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}

	return n / d
}
