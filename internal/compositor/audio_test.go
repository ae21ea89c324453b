package compositor

import (
	"testing"

	"github.com/clipforge/clipforge-agent/internal/media"
	"github.com/clipforge/clipforge-agent/internal/project"
)

type audioScene struct {
	store   *project.Store
	catalog *media.Catalog
	sync    *AudioSync
	track   *project.Track
}

func newAudioScene(t *testing.T) *audioScene {
	t.Helper()
	store := project.NewStore(project.NewProject("test", 30, 640, 360), nil, nil)
	catalog := media.NewCatalog(store, media.NewStubFFmpeg(nil), nil)

	track, err := store.AddTrack(project.TrackKindAudio, "A1")
	if err != nil {
		t.Fatal(err)
	}
	return &audioScene{store: store, catalog: catalog, sync: NewAudioSync(store, catalog), track: track}
}

func (s *audioScene) addAudioClip(t *testing.T, start, end float64) *project.Clip {
	t.Helper()
	mediaID := project.NewID()
	if err := s.store.AddMedia(&project.MediaDescriptor{
		ID: mediaID, Kind: project.MediaKindAudio, URI: "/media/voice.mp3", Duration: 60,
	}); err != nil {
		t.Fatal(err)
	}
	clip := project.NewClip(mediaID, s.track.ID, start, end)
	clip.SourceEnd = end - start
	if err := s.store.AddClip(clip); err != nil {
		t.Fatal(err)
	}
	return clip
}

func TestAudioSync_ActiveClipPlaysAtMappedTime(t *testing.T) {
	s := newAudioScene(t)
	clip := s.addAudioClip(t, 2, 10)

	s.sync.Sync(5, true)

	el := s.catalog.ResolveAudio(clip.MediaID)
	if !el.IsPlaying() {
		t.Error("active clip's element not playing while transport plays")
	}
	if got := el.Position(); got != 3 {
		t.Errorf("element position = %v, want 3 (source time at t=5)", got)
	}
}

func TestAudioSync_PausedTransportPausesElements(t *testing.T) {
	s := newAudioScene(t)
	clip := s.addAudioClip(t, 0, 10)

	s.sync.Sync(5, true)
	s.sync.Sync(5, false)

	if s.catalog.ResolveAudio(clip.MediaID).IsPlaying() {
		t.Error("element still playing after transport pause")
	}
}

func TestAudioSync_InactiveClipIsPaused(t *testing.T) {
	s := newAudioScene(t)
	clip := s.addAudioClip(t, 0, 4)

	s.sync.Sync(2, true)
	s.sync.Sync(6, true)

	if s.catalog.ResolveAudio(clip.MediaID).IsPlaying() {
		t.Error("element still playing after playhead left the clip")
	}
}

func TestAudioSync_DriftWithinToleranceNotNudged(t *testing.T) {
	s := newAudioScene(t)
	clip := s.addAudioClip(t, 0, 10)

	el := s.catalog.ResolveAudio(clip.MediaID)
	el.SetPosition(5.05)

	s.sync.Sync(5, true)
	if got := el.Position(); got != 5.05 {
		t.Errorf("position nudged within tolerance: %v", got)
	}

	el.SetPosition(7)
	s.sync.Sync(5, true)
	if got := el.Position(); got != 5 {
		t.Errorf("position not corrected past tolerance: %v", got)
	}
}

func TestAudioSync_MutedClipStaysSilent(t *testing.T) {
	s := newAudioScene(t)
	clip := s.addAudioClip(t, 0, 10)

	muted := true
	if err := s.store.UpdateClip(clip.ID, project.ClipUpdate{Muted: &muted}); err != nil {
		t.Fatal(err)
	}

	s.sync.Sync(5, true)
	if s.catalog.ResolveAudio(clip.MediaID).IsPlaying() {
		t.Error("muted clip's element is playing")
	}
}
