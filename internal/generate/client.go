// Package generate talks to the remote text-to-video service: submit a
// prompt, poll until a video URL comes back. The agent treats the
// service as a black box.
package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Generation status values as reported by the remote service.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

type Submission struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type Status struct {
	Status       string `json:"status"`
	VideoURL     string `json:"videoUrl,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// Client is the remote generation service surface the agent depends on.
type Client interface {
	Submit(ctx context.Context, prompt string, autoTranslate bool) (*Submission, error)
	Status(ctx context.Context, id string) (*Status, error)
}

// APIError is a non-2xx response from the generation service.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("generation service: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable reports whether the request can be retried. Server errors
// are transient; client errors are permanent.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500
}

type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPClient(baseURL, token string, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}
}

func (c *HTTPClient) Submit(ctx context.Context, prompt string, autoTranslate bool) (*Submission, error) {
	payload := map[string]any{
		"prompt":        prompt,
		"autoTranslate": autoTranslate,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal submission: %w", err)
	}

	var result Submission
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/videos", bytes.NewReader(body), &result); err != nil {
		return nil, err
	}

	if c.logger != nil {
		c.logger.Info("generation submitted", "remote_id", result.ID, "status", result.Status)
	}
	return &result, nil
}

func (c *HTTPClient) Status(ctx context.Context, id string) (*Status, error) {
	var result Status
	url := fmt.Sprintf("%s/videos/%s/status", c.baseURL, id)
	if err := c.do(ctx, http.MethodGet, url, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *HTTPClient) do(ctx context.Context, method, url string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// StubClient fakes the remote service for tests and offline use: every
// submission completes after a fixed number of status polls.
type StubClient struct {
	logger *slog.Logger

	// PollsUntilDone is how many Status calls a submission needs before
	// it reports completed. Zero means immediately complete.
	PollsUntilDone int

	mu    sync.Mutex
	polls map[string]int
}

func NewStubClient(logger *slog.Logger) *StubClient {
	return &StubClient{logger: logger, PollsUntilDone: 2, polls: make(map[string]int)}
}

func (c *StubClient) Submit(ctx context.Context, prompt string, autoTranslate bool) (*Submission, error) {
	id := uuid.NewString()
	if c.logger != nil {
		c.logger.Info("generation stub: prompt submitted", "remote_id", id, "prompt_len", len(prompt))
	}
	c.mu.Lock()
	c.polls[id] = 0
	c.mu.Unlock()
	return &Submission{ID: id, Status: StatusQueued}, nil
}

func (c *StubClient) Status(ctx context.Context, id string) (*Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.polls[id]
	if !ok {
		return nil, &APIError{StatusCode: http.StatusNotFound, Body: "unknown generation id"}
	}
	c.polls[id] = n + 1

	if n < c.PollsUntilDone {
		return &Status{Status: StatusProcessing}, nil
	}
	return &Status{
		Status:   StatusCompleted,
		VideoURL: fmt.Sprintf("https://videos.invalid/%s.mp4", id),
	}, nil
}
