// Package timecode converts between seconds, frame counts, and
// zero-padded HH:MM:SS:FF display strings. The frame count is the
// reference unit: two times that floor to the same frame format
// identically.
package timecode

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidTimecode is returned when a timecode string does not match
// the HH:MM:SS:FF shape or a field is out of range.
var ErrInvalidTimecode = errors.New("invalid timecode")

// SecondsToFrames converts seconds to a whole frame count, flooring.
func SecondsToFrames(seconds float64, fps int) int {
	if fps <= 0 || seconds <= 0 {
		return 0
	}
	return int(seconds * float64(fps))
}

// FramesToSeconds converts a frame count back to seconds.
func FramesToSeconds(frames int, fps int) float64 {
	if fps <= 0 || frames <= 0 {
		return 0
	}
	return float64(frames) / float64(fps)
}

// Format renders seconds as HH:MM:SS:FF at the given frame rate.
// Negative input formats as frame zero.
func Format(seconds float64, fps int) string {
	if fps <= 0 {
		fps = 30
	}
	totalFrames := SecondsToFrames(seconds, fps)
	frames := totalFrames % fps
	totalSeconds := totalFrames / fps
	secs := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes := totalMinutes % 60
	hours := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d:%02d", hours, minutes, secs, frames)
}

// Parse is the inverse of Format. It returns ErrInvalidTimecode for
// malformed input rather than guessing.
func Parse(s string, fps int) (float64, error) {
	if fps <= 0 {
		return 0, ErrInvalidTimecode
	}
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 4 {
		return 0, ErrInvalidTimecode
	}

	fields := make([]int, 4)
	for i, p := range parts {
		if p == "" {
			return 0, ErrInvalidTimecode
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, ErrInvalidTimecode
		}
		fields[i] = n
	}

	hours, minutes, secs, frames := fields[0], fields[1], fields[2], fields[3]
	if minutes > 59 || secs > 59 || frames >= fps {
		return 0, ErrInvalidTimecode
	}

	totalFrames := ((hours*60+minutes)*60+secs)*fps + frames
	return FramesToSeconds(totalFrames, fps), nil
}

// ParseOrZero parses a timecode and falls back to zero on malformed
// input. This matches the display-path behavior where a bad string in a
// seek box simply rewinds to the start.
func ParseOrZero(s string, fps int) float64 {
	seconds, err := Parse(s, fps)
	if err != nil {
		return 0
	}
	return seconds
}
