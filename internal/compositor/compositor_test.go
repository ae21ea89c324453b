package compositor

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/clipforge/clipforge-agent/internal/media"
	"github.com/clipforge/clipforge-agent/internal/project"
)

// recordCanvas captures draw calls without rasterizing anything.
type recordCanvas struct {
	width, height int
	depth         int
	maxDepth      int
	images        int
	rects         []color.Color
	labels        []string
	alpha         float64
}

func newRecordCanvas(w, h int) *recordCanvas {
	return &recordCanvas{width: w, height: h, alpha: 1}
}

func (r *recordCanvas) Size() (int, int)    { return r.width, r.height }
func (r *recordCanvas) Clear(color.Color)   {}
func (r *recordCanvas) Translate(_, _ float64) {}
func (r *recordCanvas) Scale(_, _ float64)     {}
func (r *recordCanvas) Rotate(float64)         {}
func (r *recordCanvas) SetAlpha(a float64)     { r.alpha = a }

func (r *recordCanvas) Save() {
	r.depth++
	if r.depth > r.maxDepth {
		r.maxDepth = r.depth
	}
}

func (r *recordCanvas) Restore() { r.depth-- }

func (r *recordCanvas) FillRect(_, _, _, _ float64, c color.Color) {
	r.rects = append(r.rects, c)
}

func (r *recordCanvas) DrawImage(image.Image, float64, float64, float64, float64) {
	r.images++
}

func (r *recordCanvas) DrawText(s string, _, _ float64, _ color.Color) {
	r.labels = append(r.labels, s)
}

// tracePlayable records every requested source time.
type tracePlayable struct {
	width, height int
	requests      []float64
	err           error
}

func (p *tracePlayable) FrameAt(_ context.Context, sourceTime float64) (image.Image, error) {
	p.requests = append(p.requests, sourceTime)
	if p.err != nil {
		return nil, p.err
	}
	return image.NewRGBA(image.Rect(0, 0, p.width, p.height)), nil
}

func (p *tracePlayable) Bounds() (int, int) { return p.width, p.height }
func (p *tracePlayable) Close() error       { return nil }

type scene struct {
	store      *project.Store
	catalog    *media.Catalog
	compositor *Compositor
	track      *project.Track
}

func newScene(t *testing.T) *scene {
	t.Helper()
	store := project.NewStore(project.NewProject("test", 30, 640, 360), nil, nil)
	catalog := media.NewCatalog(store, media.NewStubFFmpeg(nil), nil)

	track, err := store.AddTrack(project.TrackKindVideo, "V1")
	if err != nil {
		t.Fatal(err)
	}
	return &scene{
		store:      store,
		catalog:    catalog,
		compositor: NewCompositor(store, catalog, nil),
		track:      track,
	}
}

func (s *scene) addImageClip(t *testing.T, start, end float64) (*project.Clip, *tracePlayable) {
	t.Helper()
	mediaID := project.NewID()
	if err := s.store.AddMedia(&project.MediaDescriptor{
		ID: mediaID, Kind: project.MediaKindImage, URI: "/media/still.png",
	}); err != nil {
		t.Fatal(err)
	}
	playable := &tracePlayable{width: 320, height: 180}
	s.catalog.InsertHandle(mediaID, playable)

	clip := project.NewClip(mediaID, s.track.ID, start, end)
	clip.SourceStart = 0
	clip.SourceEnd = end - start
	if err := s.store.AddClip(clip); err != nil {
		t.Fatal(err)
	}
	return clip, playable
}

func TestCompositor_ImageClipSourceTime(t *testing.T) {
	s := newScene(t)
	_, playable := s.addImageClip(t, 0, 5)

	canvas := newRecordCanvas(640, 360)
	s.compositor.RenderFrame(context.Background(), canvas, 2)

	if canvas.images != 1 {
		t.Fatalf("drew %d images, want 1", canvas.images)
	}
	if len(playable.requests) != 1 || playable.requests[0] != 2 {
		t.Errorf("source time requests = %v, want [2]", playable.requests)
	}
}

func TestCompositor_SplitThenRender(t *testing.T) {
	s := newScene(t)
	clip, playable := s.addImageClip(t, 0, 5)

	if _, _, err := s.store.SplitClip(clip.ID, 2); err != nil {
		t.Fatalf("SplitClip() error = %v", err)
	}

	canvas := newRecordCanvas(640, 360)
	s.compositor.RenderFrame(context.Background(), canvas, 1)
	s.compositor.RenderFrame(context.Background(), canvas, 3)

	want := []float64{1, 3}
	if len(playable.requests) != 2 || playable.requests[0] != want[0] || playable.requests[1] != want[1] {
		t.Errorf("source time requests = %v, want %v", playable.requests, want)
	}
}

func TestCompositor_ActiveClipExclusivity(t *testing.T) {
	s := newScene(t)
	s.addImageClip(t, 0, 2)
	_, second := s.addImageClip(t, 2, 4)

	canvas := newRecordCanvas(640, 360)
	// Exactly at the boundary: the first clip's interval is half-open,
	// only the second may draw.
	s.compositor.RenderFrame(context.Background(), canvas, 2)

	if canvas.images != 1 {
		t.Fatalf("drew %d images at boundary, want 1", canvas.images)
	}
	if len(second.requests) != 1 || second.requests[0] != 0 {
		t.Errorf("second clip requests = %v, want [0]", second.requests)
	}
}

func TestCompositor_SpeedScalesSourceTime(t *testing.T) {
	s := newScene(t)
	clip, playable := s.addImageClip(t, 0, 5)

	speed := 2.0
	sourceEnd := 10.0
	if err := s.store.UpdateClip(clip.ID, project.ClipUpdate{Speed: &speed, SourceEnd: &sourceEnd}); err != nil {
		t.Fatalf("UpdateClip() error = %v", err)
	}

	canvas := newRecordCanvas(640, 360)
	s.compositor.RenderFrame(context.Background(), canvas, 3)

	if len(playable.requests) != 1 || playable.requests[0] != 6 {
		t.Errorf("source time requests = %v, want [6] at speed 2", playable.requests)
	}
}

func TestCompositor_UnresolvedMediaRendersPlaceholder(t *testing.T) {
	s := newScene(t)

	mediaID := project.NewID()
	if err := s.store.AddMedia(&project.MediaDescriptor{
		ID: mediaID, Kind: project.MediaKindVideo, URI: "/media/clip.mp4",
	}); err != nil {
		t.Fatal(err)
	}
	clip := project.NewClip(mediaID, s.track.ID, 0, 5)
	if err := s.store.AddClip(clip); err != nil {
		t.Fatal(err)
	}
	s.catalog.MarkFailed(mediaID, context.DeadlineExceeded)

	canvas := newRecordCanvas(640, 360)
	s.compositor.RenderFrame(context.Background(), canvas, 1)

	if canvas.images != 0 {
		t.Errorf("drew %d images for failed media, want 0", canvas.images)
	}
	if len(canvas.rects) != 1 || canvas.rects[0] != errorColor {
		t.Errorf("rects = %v, want one error placeholder", canvas.rects)
	}
	if len(canvas.labels) != 1 || canvas.labels[0] != "Media unavailable" {
		t.Errorf("labels = %v", canvas.labels)
	}
}

func TestCompositor_FrameErrorRendersPlaceholder(t *testing.T) {
	s := newScene(t)
	_, playable := s.addImageClip(t, 0, 5)
	playable.err = context.DeadlineExceeded

	canvas := newRecordCanvas(640, 360)
	s.compositor.RenderFrame(context.Background(), canvas, 1)

	if canvas.images != 0 {
		t.Errorf("drew %d images for broken frame, want 0", canvas.images)
	}
	if len(canvas.rects) != 1 || canvas.rects[0] != errorColor {
		t.Errorf("rects = %v, want one error placeholder", canvas.rects)
	}
}

func TestCompositor_BrokenClipDoesNotAbortFrame(t *testing.T) {
	s := newScene(t)
	_, broken := s.addImageClip(t, 0, 5)
	broken.err = context.DeadlineExceeded

	upper, err := s.store.AddTrack(project.TrackKindVideo, "V2")
	if err != nil {
		t.Fatal(err)
	}
	mediaID := project.NewID()
	if err := s.store.AddMedia(&project.MediaDescriptor{
		ID: mediaID, Kind: project.MediaKindImage, URI: "/media/overlay.png",
	}); err != nil {
		t.Fatal(err)
	}
	good := &tracePlayable{width: 100, height: 100}
	s.catalog.InsertHandle(mediaID, good)
	if err := s.store.AddClip(project.NewClip(mediaID, upper.ID, 0, 5)); err != nil {
		t.Fatal(err)
	}

	canvas := newRecordCanvas(640, 360)
	s.compositor.RenderFrame(context.Background(), canvas, 1)

	if canvas.images != 1 {
		t.Errorf("healthy clip not drawn next to broken one: images = %d", canvas.images)
	}
	if len(canvas.rects) != 1 {
		t.Errorf("broken clip placeholders = %d, want 1", len(canvas.rects))
	}
}

func TestCompositor_SaveRestoreBalanced(t *testing.T) {
	s := newScene(t)
	s.addImageClip(t, 0, 2)
	s.addImageClip(t, 2, 4)

	canvas := newRecordCanvas(640, 360)
	for _, at := range []float64{0, 1, 2, 3, 5} {
		s.compositor.RenderFrame(context.Background(), canvas, at)
	}

	if canvas.depth != 0 {
		t.Errorf("transform stack depth = %d after rendering, want 0", canvas.depth)
	}
	if canvas.maxDepth != 1 {
		t.Errorf("max stack depth = %d, want 1 (one save per clip)", canvas.maxDepth)
	}
}

func TestCompositor_OpacityKeyframes(t *testing.T) {
	s := newScene(t)
	clip, _ := s.addImageClip(t, 0, 4)

	kfs := []project.Keyframe{
		{ID: project.NewID(), Time: 0, Property: "opacity", Value: 0},
		{ID: project.NewID(), Time: 2, Property: "opacity", Value: 1},
	}
	if err := s.store.UpdateClip(clip.ID, project.ClipUpdate{Keyframes: &kfs}); err != nil {
		t.Fatalf("UpdateClip() error = %v", err)
	}

	canvas := newRecordCanvas(640, 360)
	s.compositor.RenderFrame(context.Background(), canvas, 1)

	if canvas.alpha != 0.5 {
		t.Errorf("alpha at keyframe midpoint = %v, want 0.5", canvas.alpha)
	}
}

func TestSample(t *testing.T) {
	clip := &project.Clip{Keyframes: []project.Keyframe{
		{Time: 1, Property: "x", Value: 10},
		{Time: 3, Property: "x", Value: 30},
	}}

	tests := []struct {
		name  string
		local float64
		want  float64
	}{
		{"before first", 0, 10},
		{"at first", 1, 10},
		{"midpoint", 2, 20},
		{"at last", 3, 30},
		{"after last", 5, 30},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := sample(clip, "x", tc.local, -1); got != tc.want {
				t.Errorf("sample(%v) = %v, want %v", tc.local, got, tc.want)
			}
		})
	}

	if got := sample(clip, "y", 2, 7); got != 7 {
		t.Errorf("sample for unkeyed property = %v, want static 7", got)
	}
}

func TestFitWithin(t *testing.T) {
	tests := []struct {
		name         string
		srcW, srcH   int
		maxW, maxH   float64
		wantW, wantH float64
	}{
		{"wide source", 200, 100, 100, 100, 100, 50},
		{"tall source", 100, 200, 100, 100, 50, 100},
		{"exact", 100, 100, 100, 100, 100, 100},
		{"upscale", 10, 10, 50, 40, 40, 40},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w, h := fitWithin(tc.srcW, tc.srcH, tc.maxW, tc.maxH)
			if w != tc.wantW || h != tc.wantH {
				t.Errorf("fitWithin = %vx%v, want %vx%v", w, h, tc.wantW, tc.wantH)
			}
		})
	}
}
