package api

import (
	"time"

	"github.com/clipforge/clipforge-agent/internal/jobs"
	"github.com/clipforge/clipforge-agent/internal/project"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type StatusResponse struct {
	State        string  `json:"state"`
	ProjectID    string  `json:"project_id"`
	ProjectName  string  `json:"project_name"`
	Version      int     `json:"version"`
	Duration     float64 `json:"duration"`
	TrackCount   int     `json:"track_count"`
	ClipCount    int     `json:"clip_count"`
	MediaCount   int     `json:"media_count"`
	Dirty        bool    `json:"dirty"`
	JobsRunning  int     `json:"jobs_running"`
	RunnerPaused bool    `json:"runner_paused"`
	LastError    string  `json:"last_error,omitempty"`
	CPUCores     int     `json:"cpu_cores"`
	MemTotalMB   uint64  `json:"mem_total_mb"`
	MemAvailMB   uint64  `json:"mem_avail_mb"`
	MemUsedPct   float64 `json:"mem_used_pct"`
}

type TransportResponse struct {
	State       string  `json:"state"`
	CurrentTime float64 `json:"current_time"`
	Duration    float64 `json:"duration"`
	Looping     bool    `json:"looping"`
	Timecode    string  `json:"timecode"`
}

type SeekRequest struct {
	Time float64 `json:"time"`
}

type LoopRequest struct {
	Looping bool `json:"looping"`
}

type UpdateProjectRequest struct {
	Name     *string           `json:"name,omitempty"`
	FPS      *int              `json:"fps,omitempty"`
	Settings *project.Settings `json:"settings,omitempty"`
}

type AddTrackRequest struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
}

type UpdateTrackRequest struct {
	Name   *string `json:"name,omitempty"`
	Locked *bool   `json:"locked,omitempty"`
	Muted  *bool   `json:"muted,omitempty"`
	Solo   *bool   `json:"solo,omitempty"`
	Height *int    `json:"height,omitempty"`
}

type AddClipRequest struct {
	MediaID     string   `json:"media_id"`
	TrackID     string   `json:"track_id"`
	StartTime   float64  `json:"start_time"`
	EndTime     float64  `json:"end_time"`
	SourceStart *float64 `json:"source_start,omitempty"`
	SourceEnd   *float64 `json:"source_end,omitempty"`
	Name        string   `json:"name,omitempty"`
}

type AddClipResponse struct {
	ClipID string `json:"clip_id"`
}

type UpdateClipRequest struct {
	StartTime   *float64           `json:"start_time,omitempty"`
	EndTime     *float64           `json:"end_time,omitempty"`
	SourceStart *float64           `json:"source_start,omitempty"`
	SourceEnd   *float64           `json:"source_end,omitempty"`
	Speed       *float64           `json:"speed,omitempty"`
	Opacity     *float64           `json:"opacity,omitempty"`
	Transform   *project.Transform `json:"transform,omitempty"`
	Volume      *float64           `json:"volume,omitempty"`
	Muted       *bool              `json:"muted,omitempty"`
	Locked      *bool              `json:"locked,omitempty"`
	Name        *string            `json:"name,omitempty"`
	Effects     *[]project.Effect  `json:"effects,omitempty"`
	Keyframes   *[]project.Keyframe `json:"keyframes,omitempty"`
}

type SplitClipRequest struct {
	At float64 `json:"at"`
}

type SplitClipResponse struct {
	LeftID  string `json:"left_id"`
	RightID string `json:"right_id"`
}

type ImportMediaRequest struct {
	Path string `json:"path"`
	Kind string `json:"kind,omitempty"`
	Name string `json:"name,omitempty"`
}

type ImportMediaResponse struct {
	MediaID string `json:"media_id"`
}

type MediaListResponse struct {
	Media []*project.MediaDescriptor `json:"media"`
}

type RenderRequest struct {
	OutputPath string `json:"output_path,omitempty"`
	FPS        int    `json:"fps,omitempty"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
}

type RenderResponse struct {
	Status     string `json:"status"`
	OutputPath string `json:"output_path"`
	FrameCount int    `json:"frame_count"`
}

type GenerateRequest struct {
	Prompt string `json:"prompt"`
}

type JobResponse struct {
	ID        string `json:"id"`
	Prompt    string `json:"prompt"`
	Status    string `json:"status"`
	Progress  int    `json:"progress"`
	VideoURL  string `json:"video_url,omitempty"`
	MediaID   string `json:"media_id,omitempty"`
	Error     string `json:"error,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type JobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

func JobToResponse(j *jobs.Job) JobResponse {
	return JobResponse{
		ID:        j.ID,
		Prompt:    j.Prompt,
		Status:    j.Status,
		Progress:  j.Progress,
		VideoURL:  j.VideoURL,
		MediaID:   j.MediaID,
		Error:     j.Error,
		CreatedAt: j.CreatedAt.Format(time.RFC3339),
		UpdatedAt: j.UpdatedAt.Format(time.RFC3339),
	}
}

func (r UpdateClipRequest) toUpdate() project.ClipUpdate {
	return project.ClipUpdate{
		StartTime:   r.StartTime,
		EndTime:     r.EndTime,
		SourceStart: r.SourceStart,
		SourceEnd:   r.SourceEnd,
		Speed:       r.Speed,
		Opacity:     r.Opacity,
		Transform:   r.Transform,
		Volume:      r.Volume,
		Muted:       r.Muted,
		Locked:      r.Locked,
		Name:        r.Name,
		Effects:     r.Effects,
		Keyframes:   r.Keyframes,
	}
}

func (r UpdateTrackRequest) toUpdate() project.TrackUpdate {
	return project.TrackUpdate{
		Name:   r.Name,
		Locked: r.Locked,
		Muted:  r.Muted,
		Solo:   r.Solo,
		Height: r.Height,
	}
}
