package jobs

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/clipforge/clipforge-agent/internal/db"
	"github.com/clipforge/clipforge-agent/internal/generate"
	"github.com/clipforge/clipforge-agent/internal/media"
	"github.com/clipforge/clipforge-agent/internal/project"
)

func setupRunnerTest(t *testing.T, client generate.Client) (*Runner, Repository, *project.Store) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := db.New(dbPath, nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	repo := NewRepository(database.Conn())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	store := project.NewStore(project.NewProject("test", 30, 1280, 720), nil, nil)
	catalog := media.NewCatalog(store, media.NewStubFFmpeg(nil), nil)

	return NewRunner(repo, client, catalog, logger), repo, store
}

func TestRunner_SubmitPersistsPendingJob(t *testing.T) {
	runner, repo, _ := setupRunnerTest(t, generate.NewStubClient(nil))
	ctx := context.Background()

	job, err := runner.Submit(ctx, "a dog in space")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if job.Status != JobStatusPending {
		t.Errorf("status = %q, want pending", job.Status)
	}

	pending, err := repo.ListPendingJobs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ID != job.ID {
		t.Errorf("pending jobs = %+v, want the submitted job", pending)
	}
}

func TestRunner_SubmitNextJobMovesToPolling(t *testing.T) {
	runner, repo, _ := setupRunnerTest(t, generate.NewStubClient(nil))
	ctx := context.Background()

	job, err := runner.Submit(ctx, "prompt")
	if err != nil {
		t.Fatal(err)
	}

	runner.submitNextJob(ctx)

	got, err := repo.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != JobStatusPolling {
		t.Errorf("status = %q, want polling", got.Status)
	}
	if got.RemoteID == "" {
		t.Error("remote id not recorded")
	}
}

func TestRunner_PollToCompletionRegistersMedia(t *testing.T) {
	client := generate.NewStubClient(nil)
	client.PollsUntilDone = 1
	runner, repo, store := setupRunnerTest(t, client)
	ctx := context.Background()

	job, err := runner.Submit(ctx, "sunset over mountains")
	if err != nil {
		t.Fatal(err)
	}
	runner.submitNextJob(ctx)

	runner.pollJobs(ctx) // still processing
	got, _ := repo.GetJob(ctx, job.ID)
	if got.Status != JobStatusPolling {
		t.Fatalf("status after first poll = %q, want polling", got.Status)
	}

	runner.pollJobs(ctx) // completes
	got, _ = repo.GetJob(ctx, job.ID)
	if got.Status != JobStatusCompleted {
		t.Fatalf("status = %q, want completed (error: %s)", got.Status, got.Error)
	}
	if got.VideoURL == "" || got.MediaID == "" {
		t.Errorf("result not recorded: %+v", got)
	}
	if got.Progress != 100 {
		t.Errorf("progress = %d, want 100", got.Progress)
	}

	m := store.Snapshot().MediaByID(got.MediaID)
	if m == nil {
		t.Fatal("generated media not registered in project")
	}
	if m.Kind != project.MediaKindVideo || m.URI != got.VideoURL {
		t.Errorf("registered media = %+v", m)
	}
	if m.Name != "sunset over mountains" {
		t.Errorf("media name = %q, want the prompt", m.Name)
	}
}

type failingClient struct {
	submitErr error
	statusErr error
	status    *generate.Status
}

func (c *failingClient) Submit(ctx context.Context, prompt string, autoTranslate bool) (*generate.Submission, error) {
	if c.submitErr != nil {
		return nil, c.submitErr
	}
	return &generate.Submission{ID: "remote-1", Status: generate.StatusQueued}, nil
}

func (c *failingClient) Status(ctx context.Context, id string) (*generate.Status, error) {
	if c.statusErr != nil {
		return nil, c.statusErr
	}
	return c.status, nil
}

func TestRunner_RetryableSubmitFailureStaysPending(t *testing.T) {
	client := &failingClient{submitErr: &generate.APIError{StatusCode: http.StatusBadGateway, Body: "bad gateway"}}
	runner, repo, _ := setupRunnerTest(t, client)
	ctx := context.Background()

	job, err := runner.Submit(ctx, "prompt")
	if err != nil {
		t.Fatal(err)
	}
	runner.submitNextJob(ctx)

	got, _ := repo.GetJob(ctx, job.ID)
	if got.Status != JobStatusPending {
		t.Errorf("status = %q, want pending for retry", got.Status)
	}
}

func TestRunner_PermanentSubmitFailureFailsJob(t *testing.T) {
	client := &failingClient{submitErr: &generate.APIError{StatusCode: http.StatusBadRequest, Body: "prompt rejected"}}
	runner, repo, _ := setupRunnerTest(t, client)
	ctx := context.Background()

	job, err := runner.Submit(ctx, "prompt")
	if err != nil {
		t.Fatal(err)
	}
	runner.submitNextJob(ctx)

	got, _ := repo.GetJob(ctx, job.ID)
	if got.Status != JobStatusFailed {
		t.Errorf("status = %q, want failed", got.Status)
	}
	if got.Error == "" {
		t.Error("failure reason not recorded")
	}
}

func TestRunner_RemoteFailureRecorded(t *testing.T) {
	client := &failingClient{status: &generate.Status{Status: generate.StatusFailed, ErrorMessage: "content policy"}}
	runner, repo, _ := setupRunnerTest(t, client)
	ctx := context.Background()

	job, err := runner.Submit(ctx, "prompt")
	if err != nil {
		t.Fatal(err)
	}
	runner.submitNextJob(ctx)
	runner.pollJobs(ctx)

	got, _ := repo.GetJob(ctx, job.ID)
	if got.Status != JobStatusFailed || got.Error != "content policy" {
		t.Errorf("job = %+v, want failed with remote message", got)
	}
}

func TestRunner_PauseSkipsWork(t *testing.T) {
	client := generate.NewStubClient(nil)
	runner, repo, _ := setupRunnerTest(t, client)
	runner.SetPollInterval(10 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner.Pause()
	go runner.Start(ctx)
	t.Cleanup(func() { cancel() })

	job, err := runner.Submit(ctx, "prompt")
	if err != nil {
		t.Fatal(err)
	}

	time.Sleep(50 * time.Millisecond)
	got, _ := repo.GetJob(ctx, job.ID)
	if got.Status != JobStatusPending {
		t.Fatalf("paused runner processed job: status = %q", got.Status)
	}

	runner.Resume()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, _ = repo.GetJob(ctx, job.ID)
		if got.Status == JobStatusPolling || got.Status == JobStatusCompleted {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("resumed runner never processed job: status = %q", got.Status)
}
