package playback

import (
	"sync"
	"testing"
	"time"
)

func newTestClock(duration float64) (*Clock, *ManualScheduler, time.Time) {
	scheduler := NewManualScheduler()
	clock := NewClock(scheduler, nil)
	clock.SetDuration(duration)

	start := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	clock.SetNowFunc(func() time.Time { return start })
	return clock, scheduler, start
}

func TestClock_SeekClamps(t *testing.T) {
	clock, _, _ := newTestClock(10)

	tests := []struct {
		name string
		seek float64
		want float64
	}{
		{"inside", 4.5, 4.5},
		{"negative", -3, 0},
		{"past end", 99, 10},
		{"exact end", 10, 10},
		{"zero", 0, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clock.Seek(tc.seek)
			if got := clock.CurrentTime(); got != tc.want {
				t.Fatalf("Seek(%v): CurrentTime() = %v, want %v", tc.seek, got, tc.want)
			}
		})
	}
}

func TestClock_SeekKeepsTransportState(t *testing.T) {
	clock, _, _ := newTestClock(10)

	clock.Play()
	clock.Seek(5)
	if !clock.IsPlaying() {
		t.Errorf("seek while playing changed state to %v", clock.State())
	}

	clock.Pause()
	clock.Seek(2)
	if clock.State() != Paused {
		t.Errorf("seek while paused changed state to %v", clock.State())
	}
}

func TestClock_TickMonotonic(t *testing.T) {
	clock, scheduler, start := newTestClock(100)
	clock.Play()

	prev := clock.CurrentTime()
	for i := 1; i <= 50; i++ {
		scheduler.Fire(start.Add(time.Duration(i) * 16 * time.Millisecond))
		got := clock.CurrentTime()
		if got < prev {
			t.Fatalf("tick %d went backwards: %v -> %v", i, prev, got)
		}
		prev = got
	}
}

func TestClock_BasicPlayback_TerminatesAtEnd(t *testing.T) {
	clock, scheduler, start := newTestClock(10)

	clock.Play()
	scheduler.Fire(start.Add(10500 * time.Millisecond))

	if clock.IsPlaying() {
		t.Errorf("clock still playing past the end")
	}
	if got := clock.CurrentTime(); got != 10 {
		t.Errorf("CurrentTime() = %v, want exactly 10", got)
	}
	if scheduler.Running() {
		t.Errorf("scheduler still running after terminal tick")
	}
}

func TestClock_LoopedPlayback_Wraps(t *testing.T) {
	clock, scheduler, start := newTestClock(10)
	clock.SetLooping(true)

	clock.Play()
	scheduler.Fire(start.Add(10500 * time.Millisecond))

	if !clock.IsPlaying() {
		t.Errorf("looping clock stopped at the end")
	}
	got := clock.CurrentTime()
	if got < 0.499 || got > 0.501 {
		t.Errorf("CurrentTime() = %v, want ~0.5 after wrap", got)
	}
	if got >= 10 {
		t.Errorf("wrapped time %v not in [0, duration)", got)
	}
}

func TestClock_PlayIsIdempotent(t *testing.T) {
	clock, scheduler, start := newTestClock(10)

	clock.Play()
	scheduler.Fire(start.Add(time.Second))
	clock.Play() // no-op: must not re-anchor or reset

	if got := clock.CurrentTime(); got != 1 {
		t.Errorf("CurrentTime() = %v, want 1", got)
	}
}

func TestClock_LateTickAfterPauseIsDiscarded(t *testing.T) {
	clock, scheduler, start := newTestClock(10)

	clock.Play()
	scheduler.Fire(start.Add(time.Second))
	clock.Pause()

	// A tick that was already in flight when Pause landed.
	tick := clockTickFunc(clock)
	tick(start.Add(5 * time.Second))

	if got := clock.CurrentTime(); got != 1 {
		t.Errorf("late tick advanced a paused clock: CurrentTime() = %v, want 1", got)
	}
	if clock.State() != Paused {
		t.Errorf("late tick revived playback: state = %v", clock.State())
	}
}

// clockTickFunc exposes the tick callback the scheduler would hold.
func clockTickFunc(c *Clock) func(time.Time) {
	return c.tick
}

func TestClock_StopRewinds(t *testing.T) {
	clock, scheduler, start := newTestClock(10)

	clock.Play()
	scheduler.Fire(start.Add(3 * time.Second))
	clock.Stop()

	if clock.CurrentTime() != 0 {
		t.Errorf("CurrentTime() = %v after Stop, want 0", clock.CurrentTime())
	}
	if clock.State() != Stopped {
		t.Errorf("State() = %v, want Stopped", clock.State())
	}
	if scheduler.Running() {
		t.Errorf("scheduler still running after Stop")
	}
}

func TestClock_SetDurationClampsPlayhead(t *testing.T) {
	clock, _, _ := newTestClock(10)
	clock.Seek(8)

	clock.SetDuration(5)
	if got := clock.CurrentTime(); got != 5 {
		t.Errorf("CurrentTime() = %v after shrink, want 5", got)
	}

	clock.SetDuration(-1)
	if got := clock.Duration(); got != 0 {
		t.Errorf("Duration() = %v, want 0 (clamped)", got)
	}
}

func TestClock_Notify(t *testing.T) {
	clock, scheduler, start := newTestClock(10)

	var mu sync.Mutex
	calls := 0
	unsubscribe := clock.Subscribe(func() {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	clock.Play()
	scheduler.Fire(start.Add(time.Second))
	clock.Pause()

	mu.Lock()
	got := calls
	mu.Unlock()
	if got != 3 {
		t.Errorf("listener called %d times, want 3 (play, tick, pause)", got)
	}

	unsubscribe()
	clock.Seek(2)
	mu.Lock()
	got = calls
	mu.Unlock()
	if got != 3 {
		t.Errorf("listener called after unsubscribe")
	}
}

func TestClock_SeekResetsTickBase(t *testing.T) {
	clock, scheduler, _ := newTestClock(10)

	base := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	now := base
	clock.SetNowFunc(func() time.Time { return now })

	clock.Play()
	now = base.Add(4 * time.Second)
	clock.Seek(1)

	// Delta counts from the seek, not from Play.
	scheduler.Fire(base.Add(5 * time.Second))
	got := clock.CurrentTime()
	if got < 1.999 || got > 2.001 {
		t.Errorf("CurrentTime() = %v, want 2 (1s after seek to 1)", got)
	}
}
