// Package media is the registry of imported source media and the cache
// of playable handles the compositor draws from. Handle resolution is
// asynchronous and idempotent; the render path never blocks on it.
package media

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/clipforge/clipforge-agent/internal/project"
)

// ResolveState describes a media id's position in the handle cache.
// Callers must treat Pending and Failed the same way on the render
// path: no handle, draw the placeholder.
type ResolveState int

const (
	StatePending ResolveState = iota
	StateReady
	StateFailed
)

func (s ResolveState) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "pending"
	}
}

// Catalog owns the playable-handle cache. Only the catalog inserts or
// evicts handles; consumers (compositor, preview handlers) only read.
type Catalog struct {
	store  *project.Store
	ffmpeg FFmpeg
	logger *slog.Logger

	mu       sync.Mutex
	handles  map[string]Playable
	failures map[string]error
	inflight map[string]bool
	audio    map[string]*AudioElement

	group singleflight.Group
}

func NewCatalog(store *project.Store, ffmpeg FFmpeg, logger *slog.Logger) *Catalog {
	return &Catalog{
		store:    store,
		ffmpeg:   ffmpeg,
		logger:   logger,
		handles:  make(map[string]Playable),
		failures: make(map[string]error),
		inflight: make(map[string]bool),
		audio:    make(map[string]*AudioElement),
	}
}

// Register adds the descriptor to the project and kicks off the
// asynchronous metadata probe. Duration and dimensions are absent until
// the probe lands.
func (c *Catalog) Register(ctx context.Context, desc *project.MediaDescriptor) error {
	if desc.Kind != project.MediaKindVideo && desc.Kind != project.MediaKindAudio && desc.Kind != project.MediaKindImage {
		return fmt.Errorf("unknown media kind %q", desc.Kind)
	}
	if err := c.store.AddMedia(desc); err != nil {
		return err
	}

	go c.probe(context.WithoutCancel(ctx), desc.ID, desc.Kind, desc.URI)
	return nil
}

func (c *Catalog) probe(ctx context.Context, id, kind, uri string) {
	var (
		duration      float64
		width, height int
		frameRate     float64
	)

	switch kind {
	case project.MediaKindImage:
		f, err := os.Open(uri)
		if err == nil {
			cfg, _, decodeErr := image.DecodeConfig(f)
			f.Close()
			if decodeErr == nil {
				width, height = cfg.Width, cfg.Height
			}
		}
	default:
		result, err := c.ffmpeg.Probe(ctx, uri)
		if err != nil {
			if c.logger != nil {
				c.logger.Warn("media probe failed", "media_id", id, "error", err)
			}
			return
		}
		duration = result.Duration
		width, height = result.Width, result.Height
		frameRate = result.FrameRate
	}

	err := c.store.UpdateMedia(id, func(m *project.MediaDescriptor) {
		m.Probed = true
		m.Duration = duration
		m.Width = width
		m.Height = height
		m.FrameRate = frameRate
	})
	if err != nil && c.logger != nil {
		// Media removed before the probe finished; nothing to record.
		c.logger.Debug("probe result dropped", "media_id", id, "error", err)
	}
}

// Resolve returns the playable handle for a visual media id if it is
// ready, and otherwise starts (or continues) background resolution and
// reports the current state. It never blocks on I/O.
func (c *Catalog) Resolve(mediaID string) (Playable, ResolveState) {
	c.mu.Lock()
	if h, ok := c.handles[mediaID]; ok {
		c.mu.Unlock()
		return h, StateReady
	}
	if _, ok := c.failures[mediaID]; ok {
		c.mu.Unlock()
		return nil, StateFailed
	}
	if c.inflight[mediaID] {
		c.mu.Unlock()
		return nil, StatePending
	}
	c.inflight[mediaID] = true
	c.mu.Unlock()

	go c.resolve(mediaID)
	return nil, StatePending
}

func (c *Catalog) resolve(mediaID string) {
	result, err, _ := c.group.Do(mediaID, func() (interface{}, error) {
		desc := c.store.Snapshot().MediaByID(mediaID)
		if desc == nil {
			return nil, fmt.Errorf("media %s not registered", mediaID)
		}
		return c.load(desc)
	})

	c.mu.Lock()
	delete(c.inflight, mediaID)
	if err != nil {
		// Failures are recorded, not retried; re-registering the media
		// clears the mark.
		c.failures[mediaID] = err
		c.mu.Unlock()
		if c.logger != nil {
			c.logger.Warn("media resolution failed", "media_id", mediaID, "error", err)
		}
		return
	}
	c.handles[mediaID] = result.(Playable)
	c.mu.Unlock()

	if c.logger != nil {
		c.logger.Debug("media resolved", "media_id", mediaID)
	}
}

func (c *Catalog) load(desc *project.MediaDescriptor) (Playable, error) {
	switch desc.Kind {
	case project.MediaKindImage:
		return newImagePlayable(desc.URI)
	case project.MediaKindVideo:
		return newVideoPlayable(desc.URI, c.ffmpeg, desc.Width, desc.Height), nil
	default:
		return nil, fmt.Errorf("media kind %q has no visual handle", desc.Kind)
	}
}

// ResolveAudio returns (creating if needed) the audio element for an
// audio-bearing media id.
func (c *Catalog) ResolveAudio(mediaID string) *AudioElement {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.audio[mediaID]; ok {
		return el
	}

	desc := c.store.Snapshot().MediaByID(mediaID)
	if desc == nil {
		return nil
	}
	el := NewAudioElement(desc.Duration)
	c.audio[mediaID] = el
	return el
}

// Remove drops the descriptor from the project and releases any cached
// handle. Clips still referencing the id become dangling and render as
// placeholders.
func (c *Catalog) Remove(mediaID string) error {
	if err := c.store.RemoveMedia(mediaID); err != nil {
		return err
	}

	c.mu.Lock()
	if h, ok := c.handles[mediaID]; ok {
		h.Close()
		delete(c.handles, mediaID)
	}
	delete(c.failures, mediaID)
	delete(c.audio, mediaID)
	c.mu.Unlock()
	return nil
}

// InsertHandle places a pre-built handle in the cache. Tests use it to
// avoid filesystem fixtures.
func (c *Catalog) InsertHandle(mediaID string, h Playable) {
	c.mu.Lock()
	c.handles[mediaID] = h
	delete(c.failures, mediaID)
	c.mu.Unlock()
}

// MarkFailed records a resolution failure. Tests use it to exercise
// the placeholder path.
func (c *Catalog) MarkFailed(mediaID string, err error) {
	c.mu.Lock()
	c.failures[mediaID] = err
	c.mu.Unlock()
}
