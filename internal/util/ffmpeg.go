package util

import (
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

type VideoInfo struct {
	Duration float64 `json:"duration"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
}

// FFprobeAvailable reports whether ffprobe is on PATH.
func FFprobeAvailable() bool {
	_, err := exec.LookPath("ffprobe")
	return err == nil
}

func GetVideoInfo(videoPath string) (*VideoInfo, error) {
	jsonOutput, err := ffmpeg.Probe(videoPath)
	if err != nil {
		return nil, fmt.Errorf("probe video: %w", err)
	}
	return parseProbeOutput(jsonOutput)
}

func parseProbeOutput(jsonOutput string) (*VideoInfo, error) {
	var result struct {
		Streams []struct {
			CodecType string `json:"codec_type"`
			Width     int    `json:"width"`
			Height    int    `json:"height"`
		} `json:"streams"`
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal([]byte(jsonOutput), &result); err != nil {
		return nil, fmt.Errorf("parse probe output: %w", err)
	}

	info := &VideoInfo{}
	for _, stream := range result.Streams {
		if stream.CodecType == "video" {
			info.Width = stream.Width
			info.Height = stream.Height
			break
		}
	}
	if d, err := strconv.ParseFloat(result.Format.Duration, 64); err == nil {
		info.Duration = d
	}
	return info, nil
}

// DurationSeconds rounds the probed duration to whole seconds.
func (v *VideoInfo) DurationSeconds() int {
	return int(math.Round(v.Duration))
}
