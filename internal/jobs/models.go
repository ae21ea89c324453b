// Package jobs runs text-to-video generation requests in the
// background: submit the prompt, poll the remote service, register the
// finished video as project media.
package jobs

import "time"

const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusPolling   = "polling"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// Job is one generation request, persisted so restarts cannot lose it.
type Job struct {
	ID       string `json:"id"`
	Prompt   string `json:"prompt"`
	Status   string `json:"status"`
	RemoteID string `json:"remote_id,omitempty"`
	VideoURL string `json:"video_url,omitempty"`
	MediaID  string `json:"media_id,omitempty"`
	Progress int    `json:"progress"`
	Error    string `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsTerminal reports whether the job will never change again.
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
