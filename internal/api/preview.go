package api

import (
	"image/png"
	"net/http"

	"github.com/clipforge/clipforge-agent/internal/compositor"
)

// servePreviewFrame composites the timeline at t and writes it as PNG.
func servePreviewFrame(w http.ResponseWriter, r *http.Request, cfg ServerConfig, t float64) {
	p := cfg.Store.Snapshot()
	width, height := p.Width, p.Height
	if width <= 0 || height <= 0 {
		WriteError(w, http.StatusUnprocessableEntity, "project has no canvas dimensions", "INVALID_INPUT")
		return
	}

	canvas := compositor.NewImageCanvas(width, height)
	cfg.Compositor.RenderFrame(r.Context(), canvas, t)

	w.Header().Set("Content-Type", "image/png")
	if err := png.Encode(w, canvas.Image()); err != nil {
		cfg.Logger.Error("preview frame encode failed", "error", err, "t", t)
	}
}
