package compositor

import (
	"context"
	"image/color"
	"log/slog"
	"math"
	"sort"

	"github.com/clipforge/clipforge-agent/internal/media"
	"github.com/clipforge/clipforge-agent/internal/project"
)

// fitMargin leaves breathing room around a clip scaled to fit the
// canvas.
const fitMargin = 0.9

var (
	backgroundColor = color.RGBA{0, 0, 0, 255}
	loadingColor    = color.RGBA{40, 40, 40, 255}
	errorColor      = color.RGBA{96, 16, 16, 255}
	labelColor      = color.RGBA{200, 200, 200, 255}
)

// Compositor draws the frame for a playhead time from a project
// snapshot and the media handle cache. It never mutates either.
type Compositor struct {
	store   *project.Store
	catalog *media.Catalog
	logger  *slog.Logger
}

func NewCompositor(store *project.Store, catalog *media.Catalog, logger *slog.Logger) *Compositor {
	return &Compositor{store: store, catalog: catalog, logger: logger}
}

// RenderFrame composites every video track at the given timeline time.
// Tracks draw in project list order, later tracks on top. A clip that
// cannot be drawn becomes a placeholder; it never aborts the frame.
func (c *Compositor) RenderFrame(ctx context.Context, canvas Canvas, t float64) {
	p := c.store.Snapshot()
	canvas.Clear(backgroundColor)

	for _, track := range p.Tracks {
		if track.Kind != project.TrackKindVideo {
			continue
		}
		clip := track.ClipAt(t)
		if clip == nil {
			continue
		}
		c.renderClip(ctx, canvas, clip, t)
	}
}

func (c *Compositor) renderClip(ctx context.Context, canvas Canvas, clip *project.Clip, t float64) {
	canvas.Save()
	defer canvas.Restore()

	cw, ch := canvas.Size()
	local := t - clip.StartTime
	tr := clip.Transform

	canvas.Translate(float64(cw)/2+sample(clip, "x", local, tr.X), float64(ch)/2+sample(clip, "y", local, tr.Y))
	canvas.Rotate(sample(clip, "rotation", local, tr.Rotation) * math.Pi / 180)
	canvas.Scale(sample(clip, "scale_x", local, tr.ScaleX), sample(clip, "scale_y", local, tr.ScaleY))
	canvas.SetAlpha(clamp01(sample(clip, "opacity", local, clip.Opacity)))

	handle, state := c.catalog.Resolve(clip.MediaID)
	if state != media.StateReady {
		label := "Loading"
		fill := loadingColor
		if state == media.StateFailed {
			label = "Media unavailable"
			fill = errorColor
		}
		c.placeholder(canvas, fill, label)
		return
	}

	sourceTime := clip.SourceTimeAt(t)
	if sourceTime < clip.SourceStart {
		sourceTime = clip.SourceStart
	}
	if clip.SourceEnd > clip.SourceStart && sourceTime > clip.SourceEnd {
		sourceTime = clip.SourceEnd
	}

	frame, err := handle.FrameAt(ctx, sourceTime)
	if err != nil || frame == nil {
		if err != nil && c.logger != nil {
			c.logger.Debug("clip frame failed", "clip_id", clip.ID, "source_time", sourceTime, "error", err)
		}
		c.placeholder(canvas, errorColor, "Media unavailable")
		return
	}

	fb := frame.Bounds()
	w, h := fitWithin(fb.Dx(), fb.Dy(), float64(cw)*fitMargin, float64(ch)*fitMargin)
	canvas.DrawImage(frame, -w/2, -h/2, w, h)
}

// placeholder draws a labeled block centered at the local origin,
// sized relative to the canvas.
func (c *Compositor) placeholder(canvas Canvas, fill color.Color, label string) {
	cw, ch := canvas.Size()
	w := float64(cw) * 0.4
	h := float64(ch) * 0.3
	canvas.FillRect(-w/2, -h/2, w, h, fill)
	canvas.DrawText(label, -w/2+12, 0, labelColor)
}

// fitWithin scales source dimensions to fit a bounding box while
// preserving aspect ratio.
func fitWithin(srcW, srcH int, maxW, maxH float64) (float64, float64) {
	if srcW <= 0 || srcH <= 0 {
		return maxW, maxH
	}
	scale := math.Min(maxW/float64(srcW), maxH/float64(srcH))
	return float64(srcW) * scale, float64(srcH) * scale
}

// sample evaluates a clip property at a clip-local time, linearly
// interpolating between keyframes. With no keyframes for the property
// the static value wins.
func sample(clip *project.Clip, property string, local, static float64) float64 {
	var kfs []project.Keyframe
	for _, k := range clip.Keyframes {
		if k.Property == property {
			kfs = append(kfs, k)
		}
	}
	if len(kfs) == 0 {
		return static
	}
	sort.Slice(kfs, func(i, j int) bool { return kfs[i].Time < kfs[j].Time })

	if local <= kfs[0].Time {
		return kfs[0].Value
	}
	last := kfs[len(kfs)-1]
	if local >= last.Time {
		return last.Value
	}
	for i := 1; i < len(kfs); i++ {
		if local < kfs[i].Time {
			a, b := kfs[i-1], kfs[i]
			span := b.Time - a.Time
			if span <= 0 {
				return b.Value
			}
			frac := (local - a.Time) / span
			return a.Value + (b.Value-a.Value)*frac
		}
	}
	return last.Value
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
