package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
)

// FFmpeg probes media metadata and extracts single frames. The real
// implementation shells out to ffprobe/ffmpeg; the stub keeps the agent
// usable on hosts without them.
type FFmpeg interface {
	Probe(ctx context.Context, path string) (*ProbeResult, error)
	ExtractFrame(ctx context.Context, path string, at float64) (image.Image, error)
}

type ProbeResult struct {
	Duration  float64
	Width     int
	Height    int
	FrameRate float64
	Codec     string
	HasAudio  bool
}

type RealFFmpeg struct {
	logger *slog.Logger
}

func NewRealFFmpeg(logger *slog.Logger) *RealFFmpeg {
	return &RealFFmpeg{logger: logger}
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func (f *RealFFmpeg) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	var probe ffprobeOutput
	if err := json.Unmarshal(out.Bytes(), &probe); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	result := &ProbeResult{}
	result.Duration, _ = strconv.ParseFloat(probe.Format.Duration, 64)

	for _, s := range probe.Streams {
		switch s.CodecType {
		case "video":
			if result.Width == 0 {
				result.Width = s.Width
				result.Height = s.Height
				result.FrameRate = parseFrameRate(s.RFrameRate)
				result.Codec = s.CodecName
			}
		case "audio":
			result.HasAudio = true
		}
	}

	if f.logger != nil {
		f.logger.Debug("probed media",
			"path", path,
			"duration", result.Duration,
			"dimensions", fmt.Sprintf("%dx%d", result.Width, result.Height),
		)
	}
	return result, nil
}

// ExtractFrame decodes the frame nearest to the given source time as a
// PNG piped straight from ffmpeg, no temp files.
func (f *RealFFmpeg) ExtractFrame(ctx context.Context, path string, at float64) (image.Image, error) {
	if at < 0 {
		at = 0
	}
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-ss", strconv.FormatFloat(at, 'f', 3, 64),
		"-i", path,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	)

	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg frame extract at %.3fs: %w: %s", at, err, tail(errOut.String(), 256))
	}

	img, err := png.Decode(&out)
	if err != nil {
		return nil, fmt.Errorf("decode extracted frame: %w", err)
	}
	return img, nil
}

// parseFrameRate turns ffprobe's "30000/1001" fractions into a float.
func parseFrameRate(s string) float64 {
	if s == "" || s == "0/0" {
		return 0
	}
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		v, _ := strconv.ParseFloat(s, 64)
		return v
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}

func tail(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}

// StubFFmpeg is used in tests and when ffmpeg is not installed; probes
// succeed with empty metadata and frame extraction reports failure so
// the compositor falls back to placeholders.
type StubFFmpeg struct {
	logger *slog.Logger
}

func NewStubFFmpeg(logger *slog.Logger) *StubFFmpeg {
	return &StubFFmpeg{logger: logger}
}

func (f *StubFFmpeg) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	if f.logger != nil {
		f.logger.Info("ffmpeg stub: probe requested", "path", path)
	}
	return &ProbeResult{}, nil
}

func (f *StubFFmpeg) ExtractFrame(ctx context.Context, path string, at float64) (image.Image, error) {
	return nil, fmt.Errorf("ffmpeg not available")
}
