package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/clipforge/clipforge-agent/internal/config"
	"github.com/clipforge/clipforge-agent/internal/export"
	"github.com/clipforge/clipforge-agent/internal/jobs"
	"github.com/clipforge/clipforge-agent/internal/project"
	"github.com/clipforge/clipforge-agent/internal/render"
	"github.com/clipforge/clipforge-agent/internal/timecode"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/status", statusHandler(cfg))

		r.Get("/project", getProjectHandler(cfg))
		r.Patch("/project", updateProjectHandler(cfg))
		r.Post("/project/save", saveProjectHandler(cfg))
		r.Post("/project/tracks", addTrackHandler(cfg))
		r.Patch("/project/tracks/{id}", updateTrackHandler(cfg))
		r.Delete("/project/tracks/{id}", removeTrackHandler(cfg))
		r.Post("/project/clips", addClipHandler(cfg))
		r.Patch("/project/clips/{id}", updateClipHandler(cfg))
		r.Delete("/project/clips/{id}", removeClipHandler(cfg))
		r.Post("/project/clips/{id}/split", splitClipHandler(cfg))
		r.Post("/project/clips/{id}/duplicate", duplicateClipHandler(cfg))

		r.Get("/transport", transportHandler(cfg))
		r.Post("/transport/play", transportActionHandler(cfg, "play"))
		r.Post("/transport/pause", transportActionHandler(cfg, "pause"))
		r.Post("/transport/stop", transportActionHandler(cfg, "stop"))
		r.Post("/transport/seek", seekHandler(cfg))
		r.Post("/transport/loop", loopHandler(cfg))

		r.Get("/preview/frame", previewFrameHandler(cfg))

		r.Get("/media", listMediaHandler(cfg))
		r.Post("/media", importMediaHandler(cfg))
		r.Delete("/media/{id}", removeMediaHandler(cfg))
		r.Get("/media/{id}/stream", streamMediaHandler(cfg))

		r.Post("/export", exportHandler(cfg))
		r.Post("/render", renderHandler(cfg))

		r.Post("/generate", generateHandler(cfg))
		r.Get("/generate", listJobsHandler(cfg))
		r.Get("/generate/{id}", getJobHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: config.Version,
			UptimeS: uptime,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := cfg.Store.Snapshot()

		clipCount := 0
		for _, t := range p.Tracks {
			clipCount += len(t.Clips)
		}

		resp := StatusResponse{
			State:       cfg.Clock.State().String(),
			ProjectID:   p.ID,
			ProjectName: p.Name,
			Version:     p.Version,
			Duration:    p.Duration,
			TrackCount:  len(p.Tracks),
			ClipCount:   clipCount,
			MediaCount:  len(p.Media),
			Dirty:       cfg.Store.Dirty(),
		}

		if cfg.Runner != nil {
			resp.RunnerPaused = cfg.Runner.IsPaused()
		}
		if cfg.JobsRepo != nil {
			list, err := cfg.JobsRepo.ListJobs(r.Context(), 10)
			if err == nil {
				for _, j := range list {
					if j.Status == jobs.JobStatusRunning || j.Status == jobs.JobStatusPolling {
						resp.JobsRunning++
					}
					if j.Status == jobs.JobStatusFailed && resp.LastError == "" {
						resp.LastError = j.Error
					}
				}
			}
		}

		if n, err := cpu.Counts(true); err == nil {
			resp.CPUCores = n
		}
		if vm, err := mem.VirtualMemory(); err == nil {
			resp.MemTotalMB = vm.Total / (1 << 20)
			resp.MemAvailMB = vm.Available / (1 << 20)
			resp.MemUsedPct = vm.UsedPercent
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func getProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, cfg.Store.Snapshot())
	}
}

func updateProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UpdateProjectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		err := cfg.Store.UpdateProject(project.ProjectUpdate{
			Name:     req.Name,
			FPS:      req.FPS,
			Settings: req.Settings,
		})
		if err != nil {
			WriteError(w, http.StatusUnprocessableEntity, err.Error(), "INVALID_INPUT")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func saveProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Store.FlushSave(r.Context()); err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func addTrackHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AddTrackRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		track, err := cfg.Store.AddTrack(req.Kind, req.Name)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, track)
	}
}

func updateTrackHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UpdateTrackRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		if err := cfg.Store.UpdateTrack(chi.URLParam(r, "id"), req.toUpdate()); err != nil {
			writeStoreError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func removeTrackHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Store.RemoveTrack(chi.URLParam(r, "id")); err != nil {
			writeStoreError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func addClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AddClipRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		clip := project.NewClip(req.MediaID, req.TrackID, req.StartTime, req.EndTime)
		clip.Name = req.Name
		if req.SourceStart != nil {
			clip.SourceStart = *req.SourceStart
		}
		if req.SourceEnd != nil {
			clip.SourceEnd = *req.SourceEnd
		} else {
			clip.SourceEnd = clip.SourceStart + (req.EndTime - req.StartTime)
		}

		if err := cfg.Store.AddClip(clip); err != nil {
			writeStoreError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, AddClipResponse{ClipID: clip.ID})
	}
}

func updateClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UpdateClipRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		if err := cfg.Store.UpdateClip(chi.URLParam(r, "id"), req.toUpdate()); err != nil {
			writeStoreError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func removeClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Store.RemoveClip(chi.URLParam(r, "id")); err != nil {
			writeStoreError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func splitClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SplitClipRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		left, right, err := cfg.Store.SplitClip(chi.URLParam(r, "id"), req.At)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, SplitClipResponse{LeftID: left.ID, RightID: right.ID})
	}
}

func duplicateClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dup, err := cfg.Store.DuplicateClip(chi.URLParam(r, "id"))
		if err != nil {
			writeStoreError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, AddClipResponse{ClipID: dup.ID})
	}
}

func transportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, transportState(cfg))
	}
}

func transportState(cfg ServerConfig) TransportResponse {
	fps := cfg.Store.Snapshot().FPS
	if fps <= 0 {
		fps = 30
	}
	t := cfg.Clock.CurrentTime()
	return TransportResponse{
		State:       cfg.Clock.State().String(),
		CurrentTime: t,
		Duration:    cfg.Clock.Duration(),
		Looping:     cfg.Clock.IsLooping(),
		Timecode:    timecode.Format(t, fps),
	}
}

func transportActionHandler(cfg ServerConfig, action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch action {
		case "play":
			cfg.Clock.SetDuration(cfg.Store.Snapshot().Duration)
			cfg.Clock.Play()
		case "pause":
			cfg.Clock.Pause()
		case "stop":
			cfg.Clock.Stop()
		}
		WriteJSON(w, http.StatusOK, transportState(cfg))
	}
}

func seekHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SeekRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		cfg.Clock.Seek(req.Time)
		WriteJSON(w, http.StatusOK, transportState(cfg))
	}
}

func loopHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoopRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		cfg.Clock.SetLooping(req.Looping)
		WriteJSON(w, http.StatusOK, transportState(cfg))
	}
}

func listMediaHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, MediaListResponse{Media: cfg.Store.Snapshot().Media})
	}
}

func importMediaHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ImportMediaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.Path == "" {
			WriteError(w, http.StatusBadRequest, "path is required", "BAD_REQUEST")
			return
		}

		info, err := os.Stat(req.Path)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "file not accessible", "BAD_REQUEST")
			return
		}

		kind := req.Kind
		if kind == "" {
			kind = kindFromExtension(req.Path)
		}
		name := req.Name
		if name == "" {
			name = filepath.Base(req.Path)
		}

		desc := &project.MediaDescriptor{
			ID:        project.NewID(),
			Kind:      kind,
			URI:       req.Path,
			Name:      name,
			SizeBytes: info.Size(),
			CreatedAt: time.Now().UTC(),
		}
		if err := cfg.Catalog.Register(r.Context(), desc); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		WriteJSON(w, http.StatusCreated, ImportMediaResponse{MediaID: desc.ID})
	}
}

func removeMediaHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Catalog.Remove(chi.URLParam(r, "id")); err != nil {
			writeStoreError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func streamMediaHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		m := cfg.Store.Snapshot().MediaByID(id)
		if m == nil {
			WriteError(w, http.StatusNotFound, "media not found", "NOT_FOUND")
			return
		}

		if err := cfg.MediaServer.ServeFile(w, r, m.URI); err != nil {
			cfg.Logger.Error("media stream error", "error", err, "media_id", id)
		}
	}
}

func previewFrameHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t := cfg.Clock.CurrentTime()
		if raw := r.URL.Query().Get("t"); raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				WriteError(w, http.StatusBadRequest, "invalid t parameter", "BAD_REQUEST")
				return
			}
			t = v
		}

		servePreviewFrame(w, r, cfg, t)
	}
}

func exportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req export.ExportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		if req.Format != "" && !strings.EqualFold(req.Format, "edl") {
			WriteError(w, http.StatusBadRequest, "unsupported format", "BAD_REQUEST")
			return
		}
		outDir := req.OutputDir
		if outDir == "" {
			outDir = cfg.ExportDir
		}

		path, count, unresolved, err := export.WriteEDL(cfg.Store.Snapshot(), outDir)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		WriteJSON(w, http.StatusOK, export.ExportResponse{
			Status:          "ok",
			Format:          "edl",
			OutputPath:      path,
			ClipCount:       count,
			UnresolvedClips: unresolved,
		})
	}
}

func renderHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RenderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		outputPath := req.OutputPath
		if outputPath == "" {
			name := export.SanitizeName(cfg.Store.Snapshot().Name, 64)
			outputPath = filepath.Join(cfg.ExportDir, name+".mp4")
		}

		renderer := render.NewRenderer(cfg.Store, cfg.Catalog, cfg.Logger)
		frames, err := renderer.Render(r.Context(), render.NewFFmpegEncoder(cfg.Logger), render.Options{
			OutputPath: outputPath,
			FPS:        req.FPS,
			Width:      req.Width,
			Height:     req.Height,
		})
		if err != nil {
			WriteError(w, http.StatusUnprocessableEntity, err.Error(), "RENDER_FAILED")
			return
		}

		WriteJSON(w, http.StatusOK, RenderResponse{
			Status:     "ok",
			OutputPath: outputPath,
			FrameCount: frames,
		})
	}
}

func generateHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if strings.TrimSpace(req.Prompt) == "" {
			WriteError(w, http.StatusBadRequest, "prompt is required", "BAD_REQUEST")
			return
		}

		job, err := cfg.Runner.Submit(r.Context(), req.Prompt)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusAccepted, JobToResponse(job))
	}
}

func listJobsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := cfg.JobsRepo.ListJobs(r.Context(), 50)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list jobs", "INTERNAL_ERROR")
			return
		}

		resp := JobsResponse{Jobs: make([]JobResponse, len(list))}
		for i, j := range list {
			resp.Jobs[i] = JobToResponse(j)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := cfg.JobsRepo.GetJob(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if job == nil {
			WriteError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
			return
		}
		WriteJSON(w, http.StatusOK, JobToResponse(job))
	}
}

// writeStoreError maps store sentinel errors onto HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, project.ErrTrackNotFound),
		errors.Is(err, project.ErrClipNotFound),
		errors.Is(err, project.ErrMediaNotFound):
		WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
	case errors.Is(err, project.ErrOverlappingClip):
		WriteError(w, http.StatusConflict, err.Error(), "CONFLICT")
	case errors.Is(err, project.ErrInvalidInterval),
		errors.Is(err, project.ErrInvalidSpeed),
		errors.Is(err, project.ErrSplitOutOfRange),
		errors.Is(err, project.ErrTrackKindUnknown):
		WriteError(w, http.StatusUnprocessableEntity, err.Error(), "INVALID_INPUT")
	default:
		WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
	}
}

func kindFromExtension(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4", ".mov", ".mkv", ".webm", ".avi":
		return project.MediaKindVideo
	case ".mp3", ".wav", ".aac", ".flac", ".ogg", ".m4a":
		return project.MediaKindAudio
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp":
		return project.MediaKindImage
	default:
		return project.MediaKindVideo
	}
}
