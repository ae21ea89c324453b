package media

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"sync"
)

// Playable is a resolved, drawable media handle. FrameAt maps a
// media-local source time to pixels; implementations must be safe to
// call every rendered frame.
type Playable interface {
	FrameAt(ctx context.Context, sourceTime float64) (image.Image, error)
	Bounds() (width, height int)
	Close() error
}

// imagePlayable is a still image: one decode, every frame identical.
type imagePlayable struct {
	img image.Image
}

func newImagePlayable(path string) (*imagePlayable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return &imagePlayable{img: img}, nil
}

func (p *imagePlayable) FrameAt(context.Context, float64) (image.Image, error) {
	return p.img, nil
}

func (p *imagePlayable) Bounds() (int, int) {
	b := p.img.Bounds()
	return b.Dx(), b.Dy()
}

func (p *imagePlayable) Close() error { return nil }

// seekTolerance is how far the held frame may drift from the requested
// source time before the handle seeks again. Forcing an exact seek on
// every frame stutters badly.
const seekTolerance = 0.1

// videoPlayable extracts frames on demand and holds the last one,
// re-seeking only when the requested time drifts past the tolerance.
type videoPlayable struct {
	path   string
	ffmpeg FFmpeg
	width  int
	height int

	mu        sync.Mutex
	frame     image.Image
	frameTime float64
}

func newVideoPlayable(path string, ffmpeg FFmpeg, width, height int) *videoPlayable {
	return &videoPlayable{path: path, ffmpeg: ffmpeg, width: width, height: height, frameTime: -1}
}

func (p *videoPlayable) FrameAt(ctx context.Context, sourceTime float64) (image.Image, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.frame != nil && abs(sourceTime-p.frameTime) <= seekTolerance {
		return p.frame, nil
	}

	frame, err := p.ffmpeg.ExtractFrame(ctx, p.path, sourceTime)
	if err != nil {
		return nil, err
	}
	p.frame = frame
	p.frameTime = sourceTime
	return frame, nil
}

func (p *videoPlayable) Bounds() (int, int) {
	return p.width, p.height
}

func (p *videoPlayable) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frame = nil
	return nil
}

// AudioElement models a playable audio source position. The agent has
// no audio device of its own; the element tracks the position and
// play state that a front-end player mirrors.
type AudioElement struct {
	mu       sync.Mutex
	position float64
	playing  bool
	duration float64
}

func NewAudioElement(duration float64) *AudioElement {
	return &AudioElement{duration: duration}
}

func (a *AudioElement) Position() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.position
}

func (a *AudioElement) SetPosition(p float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if p < 0 {
		p = 0
	}
	if a.duration > 0 && p > a.duration {
		p = a.duration
	}
	a.position = p
}

func (a *AudioElement) Play() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.playing = true
}

func (a *AudioElement) Pause() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.playing = false
}

func (a *AudioElement) IsPlaying() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.playing
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
