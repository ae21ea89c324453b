package jobs

import (
	"context"
	"errors"
	"log/slog"
	"path"
	"sync/atomic"
	"time"

	"github.com/clipforge/clipforge-agent/internal/generate"
	"github.com/clipforge/clipforge-agent/internal/media"
	"github.com/clipforge/clipforge-agent/internal/project"
)

// Runner drives generation jobs: pending jobs get submitted to the
// remote service, polling jobs get their status checked, and finished
// videos are registered as project media.
type Runner struct {
	repo         Repository
	client       generate.Client
	catalog      *media.Catalog
	logger       *slog.Logger
	pollInterval time.Duration
	running      atomic.Bool
	paused       atomic.Bool
}

func NewRunner(repo Repository, client generate.Client, catalog *media.Catalog, logger *slog.Logger) *Runner {
	return &Runner{
		repo:         repo,
		client:       client,
		catalog:      catalog,
		logger:       logger,
		pollInterval: 5 * time.Second,
	}
}

// SetPollInterval adjusts the tick rate. Tests shorten it.
func (r *Runner) SetPollInterval(d time.Duration) {
	if d > 0 {
		r.pollInterval = d
	}
}

// Submit persists a new pending job. The runner picks it up on its
// next tick.
func (r *Runner) Submit(ctx context.Context, prompt string) (*Job, error) {
	now := time.Now().UTC()
	job := &Job{
		ID:        project.NewID(),
		Prompt:    prompt,
		Status:    JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.repo.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	r.logger.Info("generation job queued", "job_id", job.ID, "prompt_len", len(prompt))
	return job, nil
}

func (r *Runner) Start(ctx context.Context) {
	if r.running.Swap(true) {
		return
	}

	r.logger.Info("generation runner started")

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("generation runner stopping")
			r.running.Store(false)
			return
		case <-ticker.C:
			if !r.paused.Load() {
				r.submitNextJob(ctx)
				r.pollJobs(ctx)
			}
		}
	}
}

func (r *Runner) Pause() {
	r.paused.Store(true)
	r.logger.Info("generation runner paused")
}

func (r *Runner) Resume() {
	r.paused.Store(false)
	r.logger.Info("generation runner resumed")
}

func (r *Runner) IsPaused() bool {
	return r.paused.Load()
}

func (r *Runner) IsRunning() bool {
	return r.running.Load()
}

func (r *Runner) submitNextJob(ctx context.Context) {
	pending, err := r.repo.ListPendingJobs(ctx)
	if err != nil {
		r.logger.Error("failed to list pending jobs", "error", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	job := pending[0]
	r.repo.UpdateJobStatus(ctx, job.ID, JobStatusRunning, "")

	sub, err := r.client.Submit(ctx, job.Prompt, true)
	if err != nil {
		if retryable(err) {
			// Back to pending so the next tick retries.
			r.repo.UpdateJobStatus(ctx, job.ID, JobStatusPending, "")
			r.logger.Warn("submission failed, will retry", "job_id", job.ID, "error", err)
			return
		}
		r.repo.UpdateJobStatus(ctx, job.ID, JobStatusFailed, err.Error())
		r.logger.Error("submission rejected", "job_id", job.ID, "error", err)
		return
	}

	r.repo.SetJobRemoteID(ctx, job.ID, sub.ID)
	r.repo.UpdateJobStatus(ctx, job.ID, JobStatusPolling, "")
	r.logger.Info("generation submitted", "job_id", job.ID, "remote_id", sub.ID)
}

func (r *Runner) pollJobs(ctx context.Context) {
	polling, err := r.repo.ListPollingJobs(ctx)
	if err != nil {
		r.logger.Error("failed to list polling jobs", "error", err)
		return
	}

	for _, job := range polling {
		st, err := r.client.Status(ctx, job.RemoteID)
		if err != nil {
			if retryable(err) {
				continue
			}
			r.repo.UpdateJobStatus(ctx, job.ID, JobStatusFailed, err.Error())
			r.logger.Error("status poll rejected", "job_id", job.ID, "error", err)
			continue
		}

		switch st.Status {
		case generate.StatusCompleted:
			r.completeJob(ctx, job, st.VideoURL)
		case generate.StatusFailed:
			msg := st.ErrorMessage
			if msg == "" {
				msg = "generation failed"
			}
			r.repo.UpdateJobStatus(ctx, job.ID, JobStatusFailed, msg)
			r.logger.Warn("generation failed remotely", "job_id", job.ID, "error", msg)
		default:
			// Still cooking. Nudge progress so the UI shows life.
			if job.Progress < 90 {
				r.repo.UpdateJobProgress(ctx, job.ID, job.Progress+10)
			}
		}
	}
}

func (r *Runner) completeJob(ctx context.Context, job *Job, videoURL string) {
	mediaID := ""
	if r.catalog != nil && videoURL != "" {
		desc := &project.MediaDescriptor{
			ID:        project.NewID(),
			Kind:      project.MediaKindVideo,
			URI:       videoURL,
			Name:      generatedName(job.Prompt, videoURL),
			CreatedAt: time.Now().UTC(),
		}
		if err := r.catalog.Register(ctx, desc); err != nil {
			r.logger.Warn("failed to register generated media", "job_id", job.ID, "error", err)
		} else {
			mediaID = desc.ID
		}
	}

	r.repo.SetJobResult(ctx, job.ID, videoURL, mediaID)
	r.repo.UpdateJobProgress(ctx, job.ID, 100)
	r.repo.UpdateJobStatus(ctx, job.ID, JobStatusCompleted, "")
	r.logger.Info("generation completed", "job_id", job.ID, "media_id", mediaID)
}

// generatedName derives a media bin label from the prompt, falling
// back to the URL's basename.
func generatedName(prompt, videoURL string) string {
	const maxLen = 48
	if prompt == "" {
		return path.Base(videoURL)
	}
	runes := []rune(prompt)
	if len(runes) > maxLen {
		return string(runes[:maxLen]) + "…"
	}
	return prompt
}

func retryable(err error) bool {
	var apiErr *generate.APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsRetryable()
	}
	// Network-level errors are worth retrying.
	return true
}
