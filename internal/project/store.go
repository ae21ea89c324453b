package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	ErrTrackNotFound    = errors.New("track not found")
	ErrClipNotFound     = errors.New("clip not found")
	ErrMediaNotFound    = errors.New("media not found")
	ErrInvalidInterval  = errors.New("clip interval invalid")
	ErrInvalidSpeed     = errors.New("clip speed must be positive")
	ErrOverlappingClip  = errors.New("clip overlaps an existing clip on the track")
	ErrSplitOutOfRange  = errors.New("split time outside clip interval")
	ErrTrackKindUnknown = errors.New("unknown track kind")
)

// DefaultAutosaveDebounce is how long the store waits after the last
// mutation before persisting a snapshot.
const DefaultAutosaveDebounce = 3 * time.Second

// Persister writes project snapshots to durable storage. The sqlite
// repository implements it; tests use in-memory fakes.
type Persister interface {
	SaveSnapshot(ctx context.Context, p *Project) error
}

// Store is the sole mutator of the project graph. Every mutation is
// applied atomically under the lock, recomputes the derived duration,
// bumps the version, and notifies subscribers synchronously afterwards.
// Mutations also arm a debounced autosave.
type Store struct {
	mu        sync.Mutex
	project   *Project
	selection Selection

	listeners    map[int]func()
	nextListener int

	persister Persister
	debounce  time.Duration
	saveTimer *time.Timer
	dirty     bool

	logger *slog.Logger
}

// NewStore wraps an existing project. persister may be nil, in which
// case autosave is disabled.
func NewStore(p *Project, persister Persister, logger *slog.Logger) *Store {
	if p == nil {
		p = NewProject("Untitled", 30, 1280, 720)
	}
	return &Store{
		project:   p,
		listeners: make(map[int]func()),
		persister: persister,
		debounce:  DefaultAutosaveDebounce,
		logger:    logger,
	}
}

// SetAutosaveDebounce overrides the autosave quiet period.
func (s *Store) SetAutosaveDebounce(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.debounce = d
}

// Subscribe registers a listener invoked after every mutation. The
// returned function removes it.
func (s *Store) Subscribe(fn func()) func() {
	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Snapshot returns a deep copy of the project. Readers (compositor,
// API handlers) work from snapshots so a concurrent mutation can never
// tear a frame.
func (s *Store) Snapshot() *Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.project.Clone()
}

// Selection returns the current selection state.
func (s *Store) Selection() Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Selection{
		ClipIDs:  append([]string(nil), s.selection.ClipIDs...),
		TrackIDs: append([]string(nil), s.selection.TrackIDs...),
	}
}

// Load replaces the whole project, e.g. after hydrating from storage.
// The selection is reset; the loaded state is considered clean.
func (s *Store) Load(p *Project) {
	s.mu.Lock()
	s.project = p
	s.selection = Selection{}
	s.dirty = false
	if s.saveTimer != nil {
		s.saveTimer.Stop()
	}
	s.mu.Unlock()
	s.notify()
}

// ProjectUpdate is a partial project-level mutation; nil fields are
// left alone.
type ProjectUpdate struct {
	Name     *string
	FPS      *int
	Settings *Settings
}

// UpdateProject merges project-level fields: name, frame rate, editor
// settings. Geometry is fixed at creation.
func (s *Store) UpdateProject(upd ProjectUpdate) error {
	s.mu.Lock()
	if upd.FPS != nil && *upd.FPS <= 0 {
		s.mu.Unlock()
		return fmt.Errorf("fps must be positive")
	}
	if upd.Name != nil {
		s.project.Name = *upd.Name
	}
	if upd.FPS != nil {
		s.project.FPS = *upd.FPS
	}
	if upd.Settings != nil {
		s.project.Settings = *upd.Settings
	}
	s.commitLocked()
	s.mu.Unlock()
	s.notify()
	return nil
}

// NewClip builds a clip with playable defaults for the given placement.
func NewClip(mediaID, trackID string, start, end float64) *Clip {
	return &Clip{
		ID:          NewID(),
		MediaID:     mediaID,
		TrackID:     trackID,
		StartTime:   start,
		EndTime:     end,
		SourceStart: 0,
		SourceEnd:   end - start,
		Speed:       1,
		Opacity:     1,
		Volume:      1,
		Transform:   DefaultTransform(),
	}
}

// AddTrack appends a track of the given kind and returns it.
func (s *Store) AddTrack(kind, name string) (*Track, error) {
	if kind != TrackKindVideo && kind != TrackKindAudio {
		return nil, fmt.Errorf("%w: %q", ErrTrackKindUnknown, kind)
	}

	track := &Track{ID: NewID(), Kind: kind, Name: name}

	s.mu.Lock()
	s.project.Tracks = append(s.project.Tracks, track)
	s.commitLocked()
	s.mu.Unlock()
	s.notify()
	return track, nil
}

// RemoveTrack removes the track and all of its clips. Selected clips on
// the track fall out of the selection.
func (s *Store) RemoveTrack(id string) error {
	s.mu.Lock()
	idx := -1
	for i, t := range s.project.Tracks {
		if t.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return ErrTrackNotFound
	}

	removed := s.project.Tracks[idx]
	s.project.Tracks = append(s.project.Tracks[:idx], s.project.Tracks[idx+1:]...)
	for _, c := range removed.Clips {
		s.dropClipSelectionLocked(c.ID)
	}
	s.dropTrackSelectionLocked(id)
	s.commitLocked()
	s.mu.Unlock()
	s.notify()
	return nil
}

// TrackUpdate is a partial track mutation; nil fields are left alone.
type TrackUpdate struct {
	Name   *string
	Locked *bool
	Muted  *bool
	Solo   *bool
	Height *int
}

// UpdateTrack merges the partial update into the matching track.
func (s *Store) UpdateTrack(id string, upd TrackUpdate) error {
	s.mu.Lock()
	track := s.project.TrackByID(id)
	if track == nil {
		s.mu.Unlock()
		return ErrTrackNotFound
	}

	if upd.Name != nil {
		track.Name = *upd.Name
	}
	if upd.Locked != nil {
		track.Locked = *upd.Locked
	}
	if upd.Muted != nil {
		track.Muted = *upd.Muted
	}
	if upd.Solo != nil {
		track.Solo = *upd.Solo
	}
	if upd.Height != nil {
		track.Height = *upd.Height
	}
	s.commitLocked()
	s.mu.Unlock()
	s.notify()
	return nil
}

// AddClip validates and inserts the clip into its target track, keeping
// the track's clips ordered by start time. Overlap on the target track
// is rejected rather than silently accepted.
func (s *Store) AddClip(c *Clip) error {
	if c.StartTime >= c.EndTime {
		return ErrInvalidInterval
	}
	if c.Speed <= 0 {
		return ErrInvalidSpeed
	}
	if c.ID == "" {
		c.ID = NewID()
	}

	s.mu.Lock()
	track := s.project.TrackByID(c.TrackID)
	if track == nil {
		s.mu.Unlock()
		return ErrTrackNotFound
	}
	if overlapsAny(track, c.StartTime, c.EndTime, c.ID) {
		s.mu.Unlock()
		return ErrOverlappingClip
	}

	track.Clips = append(track.Clips, c)
	sortClipsLocked(track)
	s.commitLocked()
	s.mu.Unlock()
	s.notify()
	return nil
}

// RemoveClip removes the clip from whichever track holds it and drops
// it from the selection if present.
func (s *Store) RemoveClip(id string) error {
	s.mu.Lock()
	_, track := s.project.ClipByID(id)
	if track == nil {
		s.mu.Unlock()
		return ErrClipNotFound
	}

	for i, c := range track.Clips {
		if c.ID == id {
			track.Clips = append(track.Clips[:i], track.Clips[i+1:]...)
			break
		}
	}
	s.dropClipSelectionLocked(id)
	s.commitLocked()
	s.mu.Unlock()
	s.notify()
	return nil
}

// ClipUpdate is a partial clip mutation; nil fields are left alone.
type ClipUpdate struct {
	StartTime   *float64
	EndTime     *float64
	SourceStart *float64
	SourceEnd   *float64
	Speed       *float64
	Opacity     *float64
	Transform   *Transform
	Volume      *float64
	Muted       *bool
	Locked      *bool
	Name        *string
	Effects     *[]Effect
	Keyframes   *[]Keyframe
}

// UpdateClip shallow-merges the partial update into the matching clip.
// Placement changes are validated against the owning track.
func (s *Store) UpdateClip(id string, upd ClipUpdate) error {
	s.mu.Lock()
	clip, track := s.project.ClipByID(id)
	if clip == nil {
		s.mu.Unlock()
		return ErrClipNotFound
	}

	start, end := clip.StartTime, clip.EndTime
	if upd.StartTime != nil {
		start = *upd.StartTime
	}
	if upd.EndTime != nil {
		end = *upd.EndTime
	}
	if start >= end {
		s.mu.Unlock()
		return ErrInvalidInterval
	}
	if upd.Speed != nil && *upd.Speed <= 0 {
		s.mu.Unlock()
		return ErrInvalidSpeed
	}
	if overlapsAny(track, start, end, clip.ID) {
		s.mu.Unlock()
		return ErrOverlappingClip
	}

	clip.StartTime = start
	clip.EndTime = end
	if upd.SourceStart != nil {
		clip.SourceStart = *upd.SourceStart
	}
	if upd.SourceEnd != nil {
		clip.SourceEnd = *upd.SourceEnd
	}
	if upd.Speed != nil {
		clip.Speed = *upd.Speed
	}
	if upd.Opacity != nil {
		clip.Opacity = clamp01(*upd.Opacity)
	}
	if upd.Transform != nil {
		clip.Transform = *upd.Transform
	}
	if upd.Volume != nil {
		clip.Volume = *upd.Volume
	}
	if upd.Muted != nil {
		clip.Muted = *upd.Muted
	}
	if upd.Locked != nil {
		clip.Locked = *upd.Locked
	}
	if upd.Name != nil {
		clip.Name = *upd.Name
	}
	if upd.Effects != nil {
		clip.Effects = append([]Effect(nil), (*upd.Effects)...)
	}
	if upd.Keyframes != nil {
		clip.Keyframes = append([]Keyframe(nil), (*upd.Keyframes)...)
	}
	sortClipsLocked(track)
	s.commitLocked()
	s.mu.Unlock()
	s.notify()
	return nil
}

// SplitClip cuts the clip at a global time strictly inside its
// interval. The original is replaced in place by two clips whose
// combined coverage equals the original and whose source windows are
// contiguous at the cut.
func (s *Store) SplitClip(id string, at float64) (*Clip, *Clip, error) {
	s.mu.Lock()
	clip, track := s.project.ClipByID(id)
	if clip == nil {
		s.mu.Unlock()
		return nil, nil, ErrClipNotFound
	}
	if at <= clip.StartTime || at >= clip.EndTime {
		s.mu.Unlock()
		return nil, nil, ErrSplitOutOfRange
	}

	sourceCut := clip.SourceStart + (at - clip.StartTime)

	first := *clip
	first.ID = NewID()
	first.EndTime = at
	first.SourceEnd = sourceCut
	first.Effects = append([]Effect(nil), clip.Effects...)
	first.Keyframes = append([]Keyframe(nil), clip.Keyframes...)

	second := *clip
	second.ID = NewID()
	second.StartTime = at
	second.SourceStart = sourceCut
	second.Effects = append([]Effect(nil), clip.Effects...)
	second.Keyframes = append([]Keyframe(nil), clip.Keyframes...)

	for i, c := range track.Clips {
		if c.ID == id {
			replaced := append([]*Clip{}, track.Clips[:i]...)
			replaced = append(replaced, &first, &second)
			replaced = append(replaced, track.Clips[i+1:]...)
			track.Clips = replaced
			break
		}
	}
	s.dropClipSelectionLocked(id)
	s.commitLocked()
	s.mu.Unlock()
	s.notify()
	return &first, &second, nil
}

// DuplicateClip copies the clip immediately after the original with the
// same duration and source window.
func (s *Store) DuplicateClip(id string) (*Clip, error) {
	s.mu.Lock()
	clip, _ := s.project.ClipByID(id)
	if clip == nil {
		s.mu.Unlock()
		return nil, ErrClipNotFound
	}

	dup := *clip
	dup.ID = NewID()
	dup.StartTime = clip.EndTime
	dup.EndTime = clip.EndTime + clip.Duration()
	dup.Effects = append([]Effect(nil), clip.Effects...)
	dup.Keyframes = append([]Keyframe(nil), clip.Keyframes...)
	s.mu.Unlock()

	if err := s.AddClip(&dup); err != nil {
		return nil, err
	}
	return &dup, nil
}

// AddMedia registers a media descriptor with the project. Loading of
// pixel or audio data is the media catalog's concern, not the store's.
func (s *Store) AddMedia(m *MediaDescriptor) error {
	if m.ID == "" {
		m.ID = NewID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}

	s.mu.Lock()
	s.project.Media = append(s.project.Media, m)
	s.commitLocked()
	s.mu.Unlock()
	s.notify()
	return nil
}

// UpdateMedia merges probe results into a registered descriptor.
func (s *Store) UpdateMedia(id string, probe func(*MediaDescriptor)) error {
	s.mu.Lock()
	m := s.project.MediaByID(id)
	if m == nil {
		s.mu.Unlock()
		return ErrMediaNotFound
	}
	probe(m)
	s.commitLocked()
	s.mu.Unlock()
	s.notify()
	return nil
}

// RemoveMedia drops the descriptor from the project. Clips referencing
// it become dangling and render as placeholders.
func (s *Store) RemoveMedia(id string) error {
	s.mu.Lock()
	idx := -1
	for i, m := range s.project.Media {
		if m.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return ErrMediaNotFound
	}
	s.project.Media = append(s.project.Media[:idx], s.project.Media[idx+1:]...)
	s.commitLocked()
	s.mu.Unlock()
	s.notify()
	return nil
}

// SelectClips replaces the selection with the given clip ids. Track
// selection is cleared; clip and track selection are mutually
// exclusive.
func (s *Store) SelectClips(ids ...string) {
	s.mu.Lock()
	s.selection = Selection{ClipIDs: append([]string(nil), ids...)}
	s.mu.Unlock()
	s.notify()
}

// SelectTracks replaces the selection with the given track ids,
// clearing any clip selection.
func (s *Store) SelectTracks(ids ...string) {
	s.mu.Lock()
	s.selection = Selection{TrackIDs: append([]string(nil), ids...)}
	s.mu.Unlock()
	s.notify()
}

// ClearSelection empties both selection sets.
func (s *Store) ClearSelection() {
	s.mu.Lock()
	s.selection = Selection{}
	s.mu.Unlock()
	s.notify()
}

// FlushSave persists immediately if there are unsaved changes,
// cancelling any pending debounce. Used on shutdown and in tests.
func (s *Store) FlushSave(ctx context.Context) error {
	s.mu.Lock()
	if s.saveTimer != nil {
		s.saveTimer.Stop()
	}
	if !s.dirty || s.persister == nil {
		s.mu.Unlock()
		return nil
	}
	snapshot := s.project.Clone()
	s.dirty = false
	s.mu.Unlock()

	return s.persister.SaveSnapshot(ctx, snapshot)
}

// Dirty reports whether there are mutations not yet persisted.
func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// commitLocked finalizes a mutation: derived duration, version bump,
// dirty mark, autosave debounce reset.
func (s *Store) commitLocked() {
	s.project.recalcDuration()
	s.project.Version++
	s.project.UpdatedAt = time.Now()
	s.dirty = true

	if s.persister == nil {
		return
	}
	if s.saveTimer == nil {
		s.saveTimer = time.AfterFunc(s.debounce, s.autosave)
	} else {
		s.saveTimer.Reset(s.debounce)
	}
}

func (s *Store) autosave() {
	s.mu.Lock()
	if !s.dirty || s.persister == nil {
		s.mu.Unlock()
		return
	}
	snapshot := s.project.Clone()
	s.dirty = false
	s.mu.Unlock()

	if err := s.persister.SaveSnapshot(context.Background(), snapshot); err != nil {
		if s.logger != nil {
			s.logger.Error("autosave failed", "project_id", snapshot.ID, "error", err)
		}
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
		return
	}
	if s.logger != nil {
		s.logger.Debug("project autosaved", "project_id", snapshot.ID, "version", snapshot.Version)
	}
}

// notify calls subscribers outside the lock so they can read snapshots.
func (s *Store) notify() {
	s.mu.Lock()
	fns := make([]func(), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func (s *Store) dropClipSelectionLocked(id string) {
	out := s.selection.ClipIDs[:0]
	for _, cid := range s.selection.ClipIDs {
		if cid != id {
			out = append(out, cid)
		}
	}
	s.selection.ClipIDs = out
}

func (s *Store) dropTrackSelectionLocked(id string) {
	out := s.selection.TrackIDs[:0]
	for _, tid := range s.selection.TrackIDs {
		if tid != id {
			out = append(out, tid)
		}
	}
	s.selection.TrackIDs = out
}

// overlapsAny reports whether [start, end) intersects any clip on the
// track other than the one being placed.
func overlapsAny(track *Track, start, end float64, excludeID string) bool {
	for _, c := range track.Clips {
		if c.ID == excludeID {
			continue
		}
		if start < c.EndTime && c.StartTime < end {
			return true
		}
	}
	return false
}

func sortClipsLocked(track *Track) {
	clips := track.Clips
	for i := 1; i < len(clips); i++ {
		for j := i; j > 0 && clips[j].StartTime < clips[j-1].StartTime; j-- {
			clips[j], clips[j-1] = clips[j-1], clips[j]
		}
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
