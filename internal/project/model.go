package project

import (
	"crypto/rand"
	"fmt"
	"time"
)

const (
	MediaKindVideo = "video"
	MediaKindAudio = "audio"
	MediaKindImage = "image"

	TrackKindVideo = "video"
	TrackKindAudio = "audio"
)

// MediaDescriptor identifies an imported source file. Duration,
// dimensions and frame rate arrive asynchronously once the probe
// completes; Probed reports whether they are meaningful yet.
type MediaDescriptor struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	URI       string    `json:"uri"`
	Name      string    `json:"name"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`

	Probed    bool    `json:"probed"`
	Duration  float64 `json:"duration,omitempty"`
	Width     int     `json:"width,omitempty"`
	Height    int     `json:"height,omitempty"`
	FrameRate float64 `json:"frame_rate,omitempty"`
	Thumbnail string  `json:"thumbnail,omitempty"`
}

// Transform positions a clip on the canvas. Rotation is in degrees.
// Anchor coordinates are normalized to [0,1].
type Transform struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	ScaleX   float64 `json:"scale_x"`
	ScaleY   float64 `json:"scale_y"`
	Rotation float64 `json:"rotation"`
	AnchorX  float64 `json:"anchor_x"`
	AnchorY  float64 `json:"anchor_y"`
}

// DefaultTransform is the identity placement: centered, unscaled.
func DefaultTransform() Transform {
	return Transform{ScaleX: 1, ScaleY: 1, AnchorX: 0.5, AnchorY: 0.5}
}

// Keyframe records a property value at a clip-local time.
type Keyframe struct {
	ID       string  `json:"id"`
	Time     float64 `json:"time"`
	Property string  `json:"property"`
	Value    float64 `json:"value"`
	Easing   string  `json:"easing,omitempty"`
}

// Clip is a placed, time-bounded reference to a media source.
// StartTime/EndTime are global timeline seconds with the half-open
// interval [StartTime, EndTime). SourceStart/SourceEnd are media-local.
type Clip struct {
	ID      string `json:"id"`
	MediaID string `json:"media_id"`
	TrackID string `json:"track_id"`
	Name    string `json:"name,omitempty"`

	StartTime   float64 `json:"start_time"`
	EndTime     float64 `json:"end_time"`
	SourceStart float64 `json:"source_start"`
	SourceEnd   float64 `json:"source_end"`
	Speed       float64 `json:"speed"`

	Opacity   float64   `json:"opacity"`
	Transform Transform `json:"transform"`

	Volume float64 `json:"volume"`
	Muted  bool    `json:"muted"`
	Locked bool    `json:"locked"`

	Effects   []Effect   `json:"effects,omitempty"`
	Keyframes []Keyframe `json:"keyframes,omitempty"`
}

// Duration returns the clip's timeline duration in seconds.
func (c *Clip) Duration() float64 {
	return c.EndTime - c.StartTime
}

// Contains reports whether the global time falls inside the clip's
// half-open interval. A clip is inactive exactly at its end time.
func (c *Clip) Contains(t float64) bool {
	return t >= c.StartTime && t < c.EndTime
}

// SourceTimeAt maps a global timeline time to the clip's media-local
// time, honoring the trim offset and playback speed.
func (c *Clip) SourceTimeAt(t float64) float64 {
	return c.SourceStart + (t-c.StartTime)*c.Speed
}

// Track is an ordered lane of non-overlapping clips of one kind. Clip
// order defines z-index for video tracks and mix order for audio.
type Track struct {
	ID     string  `json:"id"`
	Kind   string  `json:"kind"`
	Name   string  `json:"name"`
	Clips  []*Clip `json:"clips"`
	Locked bool    `json:"locked"`
	Muted  bool    `json:"muted"`
	Solo   bool    `json:"solo"`
	Height int     `json:"height,omitempty"`
}

// ClipAt returns the clip active at the given time, or nil. Clips on a
// track are non-overlapping, so at most one can match.
func (t *Track) ClipAt(at float64) *Clip {
	for _, c := range t.Clips {
		if c.Contains(at) {
			return c
		}
	}
	return nil
}

// Marker is a named point on the global timeline.
type Marker struct {
	ID    string  `json:"id"`
	Time  float64 `json:"time"`
	Label string  `json:"label"`
	Color string  `json:"color,omitempty"`
}

// Transition joins two adjacent clips on a track.
type Transition struct {
	ID         string  `json:"id"`
	Kind       string  `json:"kind"`
	FromClipID string  `json:"from_clip_id"`
	ToClipID   string  `json:"to_clip_id"`
	Duration   float64 `json:"duration"`
}

// Settings holds per-project editor behavior flags.
type Settings struct {
	PreviewQuality   string `json:"preview_quality"`
	Snap             bool   `json:"snap"`
	RippleDelete     bool   `json:"ripple_delete"`
	MagneticTimeline bool   `json:"magnetic_timeline"`
}

// Project is the single authoritative owner of all tracks, clips and
// media descriptors. It is mutated only through Store operations.
type Project struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Version  int     `json:"version"`
	FPS      int     `json:"fps"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Duration float64 `json:"duration"`

	Tracks []*Track           `json:"tracks"`
	Media  []*MediaDescriptor `json:"media"`

	Effects     []Effect     `json:"effects,omitempty"`
	Transitions []Transition `json:"transitions,omitempty"`
	Markers     []Marker     `json:"markers,omitempty"`
	Settings    Settings     `json:"settings"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewProject creates an empty project with the given canvas geometry.
func NewProject(name string, fps, width, height int) *Project {
	now := time.Now()
	return &Project{
		ID:     NewID(),
		Name:   name,
		FPS:    fps,
		Width:  width,
		Height: height,
		Settings: Settings{
			PreviewQuality: "full",
			Snap:           true,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TrackByID returns the track with the given id, or nil.
func (p *Project) TrackByID(id string) *Track {
	for _, t := range p.Tracks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// ClipByID scans all tracks for the clip. Clip ids are globally unique.
func (p *Project) ClipByID(id string) (*Clip, *Track) {
	for _, t := range p.Tracks {
		for _, c := range t.Clips {
			if c.ID == id {
				return c, t
			}
		}
	}
	return nil, nil
}

// MediaByID returns the media descriptor with the given id, or nil.
func (p *Project) MediaByID(id string) *MediaDescriptor {
	for _, m := range p.Media {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// recalcDuration recomputes the project duration as the maximum clip
// end time across all tracks.
func (p *Project) recalcDuration() {
	max := 0.0
	for _, t := range p.Tracks {
		for _, c := range t.Clips {
			if c.EndTime > max {
				max = c.EndTime
			}
		}
	}
	p.Duration = max
}

// Clone returns a deep copy of the project. Consumers such as the
// compositor read clones so a mutation can never tear a frame.
func (p *Project) Clone() *Project {
	cp := *p
	cp.Tracks = make([]*Track, len(p.Tracks))
	for i, t := range p.Tracks {
		tc := *t
		tc.Clips = make([]*Clip, len(t.Clips))
		for j, c := range t.Clips {
			cc := *c
			cc.Effects = append([]Effect(nil), c.Effects...)
			cc.Keyframes = append([]Keyframe(nil), c.Keyframes...)
			tc.Clips[j] = &cc
		}
		cp.Tracks[i] = &tc
	}
	cp.Media = make([]*MediaDescriptor, len(p.Media))
	for i, m := range p.Media {
		mc := *m
		cp.Media[i] = &mc
	}
	cp.Effects = append([]Effect(nil), p.Effects...)
	cp.Transitions = append([]Transition(nil), p.Transitions...)
	cp.Markers = append([]Marker(nil), p.Markers...)
	return &cp
}

// Selection is ephemeral UI state: selected clip ids or track ids,
// never both at once.
type Selection struct {
	ClipIDs  []string `json:"clip_ids,omitempty"`
	TrackIDs []string `json:"track_ids,omitempty"`
}

// NewID returns a random identifier in the same shape for every entity.
func NewID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:])
}
