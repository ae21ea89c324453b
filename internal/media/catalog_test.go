package media

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/clipforge/clipforge-agent/internal/project"
)

type fakeFFmpeg struct {
	probeResult *ProbeResult
	probeErr    error
	frame       image.Image
	frameErr    error
}

func (f *fakeFFmpeg) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	if f.probeErr != nil {
		return nil, f.probeErr
	}
	if f.probeResult != nil {
		return f.probeResult, nil
	}
	return &ProbeResult{}, nil
}

func (f *fakeFFmpeg) ExtractFrame(ctx context.Context, path string, at float64) (image.Image, error) {
	if f.frameErr != nil {
		return nil, f.frameErr
	}
	return f.frame, nil
}

type fakePlayable struct {
	width, height int
	closed        bool
}

func (p *fakePlayable) FrameAt(context.Context, float64) (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, p.width, p.height)), nil
}

func (p *fakePlayable) Bounds() (int, int) { return p.width, p.height }

func (p *fakePlayable) Close() error {
	p.closed = true
	return nil
}

func newTestCatalog(t *testing.T, ffmpeg FFmpeg) (*Catalog, *project.Store) {
	t.Helper()
	store := project.NewStore(project.NewProject("test", 30, 1280, 720), nil, nil)
	return NewCatalog(store, ffmpeg, nil), store
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestCatalog_RegisterRejectsUnknownKind(t *testing.T) {
	catalog, _ := newTestCatalog(t, NewStubFFmpeg(nil))

	err := catalog.Register(context.Background(), &project.MediaDescriptor{
		ID:   project.NewID(),
		Kind: "subtitle",
		URI:  "/tmp/whatever.srt",
	})
	if err == nil {
		t.Fatal("expected error for unknown media kind")
	}
}

func TestCatalog_RegisterProbesVideoMetadata(t *testing.T) {
	ffmpeg := &fakeFFmpeg{probeResult: &ProbeResult{
		Duration:  12.5,
		Width:     1920,
		Height:    1080,
		FrameRate: 30,
	}}
	catalog, store := newTestCatalog(t, ffmpeg)

	id := project.NewID()
	err := catalog.Register(context.Background(), &project.MediaDescriptor{
		ID: id, Kind: project.MediaKindVideo, URI: "/media/clip.mp4", Name: "clip.mp4",
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	waitFor(t, "probe to land", func() bool {
		m := store.Snapshot().MediaByID(id)
		return m != nil && m.Probed
	})

	m := store.Snapshot().MediaByID(id)
	if m.Duration != 12.5 || m.Width != 1920 || m.Height != 1080 || m.FrameRate != 30 {
		t.Errorf("descriptor after probe = %+v, want 12.5s 1920x1080 @30", m)
	}
}

func TestCatalog_RegisterProbesImageDimensions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "still.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, image.NewRGBA(image.Rect(0, 0, 64, 48))); err != nil {
		t.Fatal(err)
	}
	f.Close()

	catalog, store := newTestCatalog(t, NewStubFFmpeg(nil))
	id := project.NewID()
	err = catalog.Register(context.Background(), &project.MediaDescriptor{
		ID: id, Kind: project.MediaKindImage, URI: path, Name: "still.png",
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	waitFor(t, "image probe", func() bool {
		m := store.Snapshot().MediaByID(id)
		return m != nil && m.Probed
	})

	m := store.Snapshot().MediaByID(id)
	if m.Width != 64 || m.Height != 48 {
		t.Errorf("image dimensions = %dx%d, want 64x48", m.Width, m.Height)
	}
	if m.Duration != 0 {
		t.Errorf("image duration = %v, want 0", m.Duration)
	}
}

func TestCatalog_ResolveUnregisteredFails(t *testing.T) {
	catalog, _ := newTestCatalog(t, NewStubFFmpeg(nil))

	h, state := catalog.Resolve("missing")
	if h != nil || state != StatePending {
		t.Fatalf("first Resolve = (%v, %v), want (nil, pending)", h, state)
	}

	waitFor(t, "resolution failure", func() bool {
		_, s := catalog.Resolve("missing")
		return s == StateFailed
	})
}

func TestCatalog_ResolveVideoBecomesReady(t *testing.T) {
	catalog, store := newTestCatalog(t, &fakeFFmpeg{})

	id := project.NewID()
	if err := store.AddMedia(&project.MediaDescriptor{
		ID: id, Kind: project.MediaKindVideo, URI: "/media/clip.mp4", Width: 1280, Height: 720,
	}); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "handle ready", func() bool {
		_, s := catalog.Resolve(id)
		return s == StateReady
	})

	h, _ := catalog.Resolve(id)
	w, hgt := h.Bounds()
	if w != 1280 || hgt != 720 {
		t.Errorf("Bounds() = %dx%d, want 1280x720", w, hgt)
	}
}

func TestCatalog_InsertHandleClearsFailure(t *testing.T) {
	catalog, _ := newTestCatalog(t, NewStubFFmpeg(nil))

	catalog.MarkFailed("m1", fmt.Errorf("decode failed"))
	if _, state := catalog.Resolve("m1"); state != StateFailed {
		t.Fatalf("state = %v, want failed", state)
	}

	catalog.InsertHandle("m1", &fakePlayable{width: 10, height: 10})
	h, state := catalog.Resolve("m1")
	if state != StateReady || h == nil {
		t.Fatalf("after InsertHandle: state = %v, handle = %v", state, h)
	}
}

func TestCatalog_RemoveEvictsHandle(t *testing.T) {
	catalog, store := newTestCatalog(t, NewStubFFmpeg(nil))

	id := project.NewID()
	if err := store.AddMedia(&project.MediaDescriptor{
		ID: id, Kind: project.MediaKindVideo, URI: "/media/clip.mp4",
	}); err != nil {
		t.Fatal(err)
	}
	handle := &fakePlayable{width: 10, height: 10}
	catalog.InsertHandle(id, handle)

	if err := catalog.Remove(id); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if !handle.closed {
		t.Error("evicted handle was not closed")
	}
	if m := store.Snapshot().MediaByID(id); m != nil {
		t.Error("descriptor still in project after Remove")
	}
	if _, state := catalog.Resolve(id); state != StatePending {
		t.Errorf("state after Remove = %v, want pending (fresh resolution)", state)
	}
}

func TestCatalog_ResolveAudioReturnsSameElement(t *testing.T) {
	catalog, store := newTestCatalog(t, NewStubFFmpeg(nil))

	id := project.NewID()
	if err := store.AddMedia(&project.MediaDescriptor{
		ID: id, Kind: project.MediaKindAudio, URI: "/media/voice.mp3", Duration: 30,
	}); err != nil {
		t.Fatal(err)
	}

	a := catalog.ResolveAudio(id)
	if a == nil {
		t.Fatal("ResolveAudio() returned nil for registered audio")
	}
	if b := catalog.ResolveAudio(id); b != a {
		t.Error("second ResolveAudio() returned a different element")
	}

	if catalog.ResolveAudio("missing") != nil {
		t.Error("ResolveAudio() for unknown id should be nil")
	}
}

func TestAudioElement_PositionClamps(t *testing.T) {
	a := NewAudioElement(10)

	tests := []struct {
		set  float64
		want float64
	}{
		{5, 5},
		{-1, 0},
		{15, 10},
	}
	for _, tc := range tests {
		a.SetPosition(tc.set)
		if got := a.Position(); got != tc.want {
			t.Errorf("SetPosition(%v): Position() = %v, want %v", tc.set, got, tc.want)
		}
	}

	a.Play()
	if !a.IsPlaying() {
		t.Error("IsPlaying() = false after Play")
	}
	a.Pause()
	if a.IsPlaying() {
		t.Error("IsPlaying() = true after Pause")
	}
}

func TestVideoPlayable_FrameCacheTolerance(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 4, 4))
	calls := 0
	ffmpeg := &countingFFmpeg{frame: frame, calls: &calls}

	p := newVideoPlayable("/media/clip.mp4", ffmpeg, 4, 4)
	ctx := context.Background()

	if _, err := p.FrameAt(ctx, 1.0); err != nil {
		t.Fatal(err)
	}
	if _, err := p.FrameAt(ctx, 1.05); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("extract calls = %d after drift within tolerance, want 1", calls)
	}

	if _, err := p.FrameAt(ctx, 1.5); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("extract calls = %d after drift past tolerance, want 2", calls)
	}
}

type countingFFmpeg struct {
	frame image.Image
	calls *int
}

func (f *countingFFmpeg) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	return &ProbeResult{}, nil
}

func (f *countingFFmpeg) ExtractFrame(ctx context.Context, path string, at float64) (image.Image, error) {
	*f.calls++
	return f.frame, nil
}
