package compositor

import (
	"github.com/clipforge/clipforge-agent/internal/media"
	"github.com/clipforge/clipforge-agent/internal/project"
)

// syncTolerance is how far an audio element may drift from its mapped
// source time before it is repositioned. Matches the video seek
// tolerance so picture and sound snap together.
const syncTolerance = 0.1

// AudioSync keeps audio element positions and play state aligned with
// the playhead. It runs beside the raster path, once per tick.
type AudioSync struct {
	store   *project.Store
	catalog *media.Catalog
}

func NewAudioSync(store *project.Store, catalog *media.Catalog) *AudioSync {
	return &AudioSync{store: store, catalog: catalog}
}

// Sync nudges every active audio clip's element toward its mapped
// source time and starts or stops it to match the transport. Elements
// of inactive clips are paused.
func (a *AudioSync) Sync(t float64, playing bool) {
	p := a.store.Snapshot()

	for _, track := range p.Tracks {
		if track.Kind != project.TrackKindAudio {
			continue
		}
		for _, clip := range track.Clips {
			el := a.catalog.ResolveAudio(clip.MediaID)
			if el == nil {
				continue
			}

			if !clip.Contains(t) {
				el.Pause()
				continue
			}

			target := clip.SourceTimeAt(t)
			if diff := el.Position() - target; diff > syncTolerance || diff < -syncTolerance {
				el.SetPosition(target)
			}

			if playing && !clip.Muted && !track.Muted {
				el.Play()
			} else {
				el.Pause()
			}
		}
	}
}
