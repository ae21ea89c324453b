package playback

import (
	"sync"
	"time"
)

// Scheduler fires a per-frame callback while started. Implementations
// must be cancellable: after Stop returns, no further tick is
// delivered from a new Start/Stop cycle, and the clock's own state
// check handles a tick already in flight.
type Scheduler interface {
	Start(tick func(now time.Time))
	Stop()
}

// TickerScheduler drives ticks at a fixed display rate off a
// time.Ticker running in its own goroutine.
type TickerScheduler struct {
	interval time.Duration

	mu     sync.Mutex
	cancel chan struct{}
}

// NewTickerScheduler fires at the given rate, 60 Hz if out of range.
func NewTickerScheduler(hz int) *TickerScheduler {
	if hz <= 0 || hz > 240 {
		hz = 60
	}
	return &TickerScheduler{interval: time.Second / time.Duration(hz)}
}

func (s *TickerScheduler) Start(tick func(now time.Time)) {
	s.mu.Lock()
	if s.cancel != nil {
		close(s.cancel)
	}
	cancel := make(chan struct{})
	s.cancel = cancel
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-cancel:
				return
			case now := <-ticker.C:
				tick(now)
			}
		}
	}()
}

func (s *TickerScheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		close(s.cancel)
		s.cancel = nil
	}
	s.mu.Unlock()
}

// ManualScheduler delivers ticks only when Fire is called, giving tests
// full control over time.
type ManualScheduler struct {
	mu      sync.Mutex
	tick    func(now time.Time)
	running bool
}

func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

func (s *ManualScheduler) Start(tick func(now time.Time)) {
	s.mu.Lock()
	s.tick = tick
	s.running = true
	s.mu.Unlock()
}

func (s *ManualScheduler) Stop() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// Fire delivers one tick at the given instant if started.
func (s *ManualScheduler) Fire(now time.Time) {
	s.mu.Lock()
	tick := s.tick
	running := s.running
	s.mu.Unlock()

	if running && tick != nil {
		tick(now)
	}
}

// Running reports whether a tick is currently scheduled.
func (s *ManualScheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
