// Package playback owns the transport clock: current time, play/pause/
// loop state, and the per-frame tick that advances time by wall-clock
// delta while playing.
package playback

import (
	"log/slog"
	"math"
	"sync"
	"time"
)

// State is the transport state machine.
type State int

const (
	Stopped State = iota
	Paused
	Playing
)

func (s State) String() string {
	switch s {
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "stopped"
	}
}

// Clock is a self-contained transport clock. It owns its scheduling
// handle, so multiple independent clocks can coexist and be tested
// without global state. All methods are safe for concurrent use.
type Clock struct {
	mu          sync.Mutex
	state       State
	currentTime float64
	duration    float64
	looping     bool
	lastTick    time.Time

	scheduler Scheduler
	now       func() time.Time

	listeners    map[int]func()
	nextListener int

	logger *slog.Logger
}

// NewClock creates a stopped clock driven by the given scheduler.
func NewClock(scheduler Scheduler, logger *slog.Logger) *Clock {
	return &Clock{
		scheduler: scheduler,
		now:       time.Now,
		listeners: make(map[int]func()),
		logger:    logger,
	}
}

// SetNowFunc overrides the wall-clock source. Tests use it together
// with a ManualScheduler for deterministic ticking.
func (c *Clock) SetNowFunc(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Subscribe registers a listener invoked after every time or state
// change. The returned function removes it.
func (c *Clock) Subscribe(fn func()) func() {
	c.mu.Lock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Play transitions to Playing and anchors the tick to the current
// wall-clock time. No-op if already playing.
func (c *Clock) Play() {
	c.mu.Lock()
	if c.state == Playing {
		c.mu.Unlock()
		return
	}
	c.state = Playing
	c.lastTick = c.now()
	c.mu.Unlock()

	c.scheduler.Start(c.tick)
	if c.logger != nil {
		c.logger.Debug("playback started")
	}
	c.notify()
}

// Pause transitions Playing -> Paused and cancels the scheduled tick.
// No-op in any other state.
func (c *Clock) Pause() {
	c.mu.Lock()
	if c.state != Playing {
		c.mu.Unlock()
		return
	}
	c.state = Paused
	c.mu.Unlock()

	c.scheduler.Stop()
	if c.logger != nil {
		c.logger.Debug("playback paused")
	}
	c.notify()
}

// Stop cancels ticking and rewinds to zero from any state.
func (c *Clock) Stop() {
	c.mu.Lock()
	c.state = Stopped
	c.currentTime = 0
	c.mu.Unlock()

	c.scheduler.Stop()
	if c.logger != nil {
		c.logger.Debug("playback stopped")
	}
	c.notify()
}

// Seek clamps the target to [0, duration] and moves the playhead. The
// play/pause state is unchanged; while playing, only the time base for
// the next tick moves.
func (c *Clock) Seek(t float64) {
	c.mu.Lock()
	c.currentTime = clamp(t, 0, c.duration)
	c.lastTick = c.now()
	c.mu.Unlock()
	c.notify()
}

// SetLooping toggles wrap-at-end behavior.
func (c *Clock) SetLooping(looping bool) {
	c.mu.Lock()
	c.looping = looping
	c.mu.Unlock()
	c.notify()
}

// SetDuration updates the timeline length (clamped to >= 0) and keeps
// the playhead inside the new bounds.
func (c *Clock) SetDuration(d float64) {
	c.mu.Lock()
	if d < 0 {
		d = 0
	}
	c.duration = d
	if c.currentTime > d {
		c.currentTime = d
	}
	c.mu.Unlock()
	c.notify()
}

// CurrentTime returns the playhead position in seconds.
func (c *Clock) CurrentTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentTime
}

// Duration returns the timeline length in seconds.
func (c *Clock) Duration() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.duration
}

// State returns the transport state.
func (c *Clock) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsPlaying reports whether the clock is advancing.
func (c *Clock) IsPlaying() bool {
	return c.State() == Playing
}

// IsLooping reports whether the clock wraps at the end.
func (c *Clock) IsLooping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.looping
}

// tick advances the playhead by the wall-clock delta since the last
// tick. The playing flag is re-checked under the lock so a tick already
// in flight when Pause or Stop lands cannot revive playback.
func (c *Clock) tick(now time.Time) {
	c.mu.Lock()
	if c.state != Playing {
		c.mu.Unlock()
		return
	}

	delta := now.Sub(c.lastTick).Seconds()
	c.lastTick = now
	if delta < 0 {
		delta = 0
	}
	newTime := c.currentTime + delta

	stopScheduler := false
	if newTime >= c.duration {
		if c.looping && c.duration > 0 {
			c.currentTime = math.Mod(newTime, c.duration)
		} else {
			// Terminal: land exactly on the end, never past it.
			c.currentTime = c.duration
			c.state = Paused
			stopScheduler = true
		}
	} else {
		c.currentTime = newTime
	}
	c.mu.Unlock()

	if stopScheduler {
		c.scheduler.Stop()
	}
	c.notify()
}

func (c *Clock) notify() {
	c.mu.Lock()
	fns := make([]func(), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
