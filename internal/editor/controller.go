// Package editor translates timeline gestures into store mutations and
// clock seeks. It is a thin translation layer; the only state it keeps
// is the in-flight drag.
package editor

import (
	"errors"
	"log/slog"
	"math"

	"github.com/clipforge/clipforge-agent/internal/playback"
	"github.com/clipforge/clipforge-agent/internal/project"
)

// snapThreshold is the distance, in timeline seconds, within which a
// dragged edge locks onto a snap candidate.
const snapThreshold = 0.15

var (
	ErrClipLocked  = errors.New("clip is locked")
	ErrTrackLocked = errors.New("track is locked")
	ErrNoDrag      = errors.New("no drag in progress")
	ErrDragActive  = errors.New("drag already in progress")
)

// DragMode selects which part of the clip a drag moves.
type DragMode int

const (
	DragMove DragMode = iota
	DragTrimStart
	DragTrimEnd
)

type dragState struct {
	clipID  string
	mode    DragMode
	grabAt  float64
	origin  project.Clip
	applied bool
}

// Controller is the gesture-to-mutation glue between a timeline view,
// the project store and the playback clock.
type Controller struct {
	store  *project.Store
	clock  *playback.Clock
	logger *slog.Logger

	drag *dragState
}

func NewController(store *project.Store, clock *playback.Clock, logger *slog.Logger) *Controller {
	return &Controller{store: store, clock: clock, logger: logger}
}

// ClickClip selects the clip, clearing any track selection.
func (c *Controller) ClickClip(clipID string) error {
	clip, _ := c.store.Snapshot().ClipByID(clipID)
	if clip == nil {
		return project.ErrClipNotFound
	}
	c.store.SelectClips(clipID)
	return nil
}

// ClickTrack selects the track, clearing any clip selection.
func (c *Controller) ClickTrack(trackID string) error {
	if c.store.Snapshot().TrackByID(trackID) == nil {
		return project.ErrTrackNotFound
	}
	c.store.SelectTracks(trackID)
	return nil
}

// ClickBackground clears the selection.
func (c *Controller) ClickBackground() {
	c.store.ClearSelection()
}

// SeekTo moves the playhead. The clock clamps to its own bounds.
func (c *Controller) SeekTo(t float64) {
	c.clock.Seek(t)
}

// StepFrames seeks by a whole number of frames at the project rate.
func (c *Controller) StepFrames(n int) {
	fps := c.store.Snapshot().FPS
	if fps <= 0 {
		fps = 30
	}
	c.clock.Seek(c.clock.CurrentTime() + float64(n)/float64(fps))
}

// BeginDrag starts moving or trimming a clip. The grab time anchors
// subsequent Drag deltas. Locked clips and tracks reject the gesture.
func (c *Controller) BeginDrag(clipID string, mode DragMode, grabAt float64) error {
	if c.drag != nil {
		return ErrDragActive
	}
	clip, track := c.store.Snapshot().ClipByID(clipID)
	if clip == nil {
		return project.ErrClipNotFound
	}
	if clip.Locked {
		return ErrClipLocked
	}
	if track.Locked {
		return ErrTrackLocked
	}

	c.drag = &dragState{clipID: clipID, mode: mode, grabAt: grabAt, origin: *clip}
	c.store.SelectClips(clipID)
	return nil
}

// Drag applies the gesture at a new pointer time. Placement is
// validated by the store; a rejected position (overlap, inverted
// interval) leaves the previous placement standing and returns the
// store's error so the view can show resistance.
func (c *Controller) Drag(at float64) error {
	if c.drag == nil {
		return ErrNoDrag
	}
	d := c.drag
	delta := at - d.grabAt

	var upd project.ClipUpdate
	switch d.mode {
	case DragMove:
		start := c.snap(d.origin.StartTime+delta, d.clipID)
		if start < 0 {
			start = 0
		}
		end := start + d.origin.Duration()
		upd.StartTime = &start
		upd.EndTime = &end

	case DragTrimStart:
		start := c.snap(d.origin.StartTime+delta, d.clipID)
		if start < 0 {
			start = 0
		}
		max := d.origin.EndTime - c.minClipDuration()
		if start > max {
			start = max
		}
		// The source window follows the trimmed edge.
		sourceStart := d.origin.SourceStart + (start-d.origin.StartTime)*d.origin.Speed
		upd.StartTime = &start
		upd.SourceStart = &sourceStart

	case DragTrimEnd:
		end := c.snap(d.origin.EndTime+delta, d.clipID)
		min := d.origin.StartTime + c.minClipDuration()
		if end < min {
			end = min
		}
		sourceEnd := d.origin.SourceEnd + (end-d.origin.EndTime)*d.origin.Speed
		upd.EndTime = &end
		upd.SourceEnd = &sourceEnd
	}

	if err := c.store.UpdateClip(d.clipID, upd); err != nil {
		return err
	}
	d.applied = true
	return nil
}

// EndDrag commits the gesture.
func (c *Controller) EndDrag() error {
	if c.drag == nil {
		return ErrNoDrag
	}
	c.drag = nil
	return nil
}

// CancelDrag restores the clip to its pre-drag placement.
func (c *Controller) CancelDrag() error {
	if c.drag == nil {
		return ErrNoDrag
	}
	d := c.drag
	c.drag = nil
	if !d.applied {
		return nil
	}

	o := d.origin
	err := c.store.UpdateClip(d.clipID, project.ClipUpdate{
		StartTime:   &o.StartTime,
		EndTime:     &o.EndTime,
		SourceStart: &o.SourceStart,
		SourceEnd:   &o.SourceEnd,
	})
	if err != nil && c.logger != nil {
		c.logger.Warn("drag rollback failed", "clip_id", d.clipID, "error", err)
	}
	return err
}

// SplitAtPlayhead cuts every selected clip that straddles the playhead.
func (c *Controller) SplitAtPlayhead() error {
	at := c.clock.CurrentTime()
	sel := c.store.Selection()

	var firstErr error
	for _, id := range sel.ClipIDs {
		if _, _, err := c.store.SplitClip(id, at); err != nil {
			if errors.Is(err, project.ErrSplitOutOfRange) {
				continue
			}
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// DeleteSelected removes every selected clip. With ripple delete
// enabled, later clips on the same track shift left to close the gap.
func (c *Controller) DeleteSelected() error {
	sel := c.store.Selection()
	p := c.store.Snapshot()

	var firstErr error
	for _, id := range sel.ClipIDs {
		clip, track := p.ClipByID(id)
		if clip == nil {
			continue
		}
		if err := c.store.RemoveClip(id); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if p.Settings.RippleDelete {
			c.ripple(track.ID, clip.EndTime, clip.Duration())
		}
	}
	return firstErr
}

// ripple shifts every clip starting at or after the gap left by the
// given duration. Shifts run left to right so no intermediate overlap
// is created.
func (c *Controller) ripple(trackID string, from, gap float64) {
	track := c.store.Snapshot().TrackByID(trackID)
	if track == nil {
		return
	}
	for _, clip := range track.Clips {
		if clip.StartTime < from {
			continue
		}
		start := clip.StartTime - gap
		end := clip.EndTime - gap
		err := c.store.UpdateClip(clip.ID, project.ClipUpdate{StartTime: &start, EndTime: &end})
		if err != nil && c.logger != nil {
			c.logger.Warn("ripple shift failed", "clip_id", clip.ID, "error", err)
		}
	}
}

// DuplicateSelected copies each selected clip to just after itself and
// selects the copies.
func (c *Controller) DuplicateSelected() error {
	sel := c.store.Selection()

	var copies []string
	var firstErr error
	for _, id := range sel.ClipIDs {
		dup, err := c.store.DuplicateClip(id)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		copies = append(copies, dup.ID)
	}
	if len(copies) > 0 {
		c.store.SelectClips(copies...)
	}
	return firstErr
}

// NudgeSelected moves every selected clip by a whole number of frames.
func (c *Controller) NudgeSelected(frames int) error {
	p := c.store.Snapshot()
	fps := p.FPS
	if fps <= 0 {
		fps = 30
	}
	delta := float64(frames) / float64(fps)

	var firstErr error
	for _, id := range c.store.Selection().ClipIDs {
		clip, _ := p.ClipByID(id)
		if clip == nil || clip.Locked {
			continue
		}
		start := clip.StartTime + delta
		if start < 0 {
			start = 0
		}
		end := start + clip.Duration()
		if err := c.store.UpdateClip(id, project.ClipUpdate{StartTime: &start, EndTime: &end}); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// snap pulls a candidate time onto nearby clip edges, the playhead or
// the timeline origin, when snapping is enabled in project settings.
func (c *Controller) snap(t float64, excludeClipID string) float64 {
	p := c.store.Snapshot()
	if !p.Settings.Snap {
		return t
	}

	best := t
	bestDist := snapThreshold
	consider := func(candidate float64) {
		if d := math.Abs(t - candidate); d < bestDist {
			best = candidate
			bestDist = d
		}
	}

	consider(0)
	consider(c.clock.CurrentTime())
	for _, track := range p.Tracks {
		for _, clip := range track.Clips {
			if clip.ID == excludeClipID {
				continue
			}
			consider(clip.StartTime)
			consider(clip.EndTime)
		}
	}
	return best
}

func (c *Controller) minClipDuration() float64 {
	fps := c.store.Snapshot().FPS
	if fps <= 0 {
		fps = 30
	}
	return 1 / float64(fps)
}
