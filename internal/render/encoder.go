package render

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
)

// Encoder turns a raw RGBA frame stream into a movie file. Start
// returns the sink frames are written to; Wait reports the encoder's
// exit status after the sink is closed.
type Encoder interface {
	Start(ctx context.Context, width, height, fps int, outputPath string) (io.WriteCloser, error)
	Wait() error
}

// FFmpegEncoder pipes raw frames into an ffmpeg process producing
// H.264 in an MP4 container.
type FFmpegEncoder struct {
	logger *slog.Logger
	cmd    *exec.Cmd
	stderr *strings.Builder
}

func NewFFmpegEncoder(logger *slog.Logger) *FFmpegEncoder {
	return &FFmpegEncoder{logger: logger}
}

func (e *FFmpegEncoder) Start(ctx context.Context, width, height, fps int, outputPath string) (io.WriteCloser, error) {
	size := fmt.Sprintf("%dx%d", width, height)
	e.cmd = exec.CommandContext(ctx, "ffmpeg",
		"-y",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", size,
		"-r", strconv.Itoa(fps),
		"-i", "-",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		outputPath,
	)

	e.stderr = &strings.Builder{}
	e.cmd.Stderr = e.stderr

	stdin, err := e.cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	if err := e.cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	if e.logger != nil {
		e.logger.Debug("ffmpeg encoder started", "size", size, "fps", fps, "output", outputPath)
	}
	return stdin, nil
}

func (e *FFmpegEncoder) Wait() error {
	if e.cmd == nil {
		return nil
	}
	if err := e.cmd.Wait(); err != nil {
		tail := e.stderr.String()
		if len(tail) > 512 {
			tail = tail[len(tail)-512:]
		}
		return fmt.Errorf("ffmpeg: %w: %s", err, tail)
	}
	return nil
}
