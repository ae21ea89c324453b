package jobs

import (
	"context"
	"database/sql"
	"time"
)

type Repository interface {
	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	ListJobs(ctx context.Context, limit int) ([]*Job, error)
	ListPendingJobs(ctx context.Context) ([]*Job, error)
	ListPollingJobs(ctx context.Context) ([]*Job, error)
	UpdateJobStatus(ctx context.Context, id, status, errorMsg string) error
	UpdateJobProgress(ctx context.Context, id string, progress int) error
	SetJobRemoteID(ctx context.Context, id, remoteID string) error
	SetJobResult(ctx context.Context, id, videoURL, mediaID string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const jobColumns = `id, prompt, status, remote_id, video_url, media_id, progress, error, created_at, updated_at`

func (r *SQLiteRepository) CreateJob(ctx context.Context, j *Job) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO generation_jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, j.ID, j.Prompt, j.Status, nullString(j.RemoteID), nullString(j.VideoURL), nullString(j.MediaID),
		j.Progress, nullString(j.Error), j.CreatedAt.Format(time.RFC3339), j.UpdatedAt.Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) GetJob(ctx context.Context, id string) (*Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM generation_jobs WHERE id = ?`, id)
	return scanJob(row)
}

func (r *SQLiteRepository) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.queryJobs(ctx, `SELECT `+jobColumns+` FROM generation_jobs ORDER BY created_at DESC LIMIT ?`, limit)
}

func (r *SQLiteRepository) ListPendingJobs(ctx context.Context) ([]*Job, error) {
	return r.queryJobs(ctx, `SELECT `+jobColumns+` FROM generation_jobs WHERE status = ? ORDER BY created_at ASC`, JobStatusPending)
}

func (r *SQLiteRepository) ListPollingJobs(ctx context.Context) ([]*Job, error) {
	return r.queryJobs(ctx, `SELECT `+jobColumns+` FROM generation_jobs WHERE status = ? ORDER BY created_at ASC`, JobStatusPolling)
}

func (r *SQLiteRepository) UpdateJobStatus(ctx context.Context, id, status, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE generation_jobs SET status = ?, error = ?, updated_at = ? WHERE id = ?
	`, status, nullString(errorMsg), time.Now().UTC().Format(time.RFC3339), id)
	return err
}

func (r *SQLiteRepository) UpdateJobProgress(ctx context.Context, id string, progress int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE generation_jobs SET progress = ?, updated_at = ? WHERE id = ?
	`, progress, time.Now().UTC().Format(time.RFC3339), id)
	return err
}

func (r *SQLiteRepository) SetJobRemoteID(ctx context.Context, id, remoteID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE generation_jobs SET remote_id = ?, updated_at = ? WHERE id = ?
	`, remoteID, time.Now().UTC().Format(time.RFC3339), id)
	return err
}

func (r *SQLiteRepository) SetJobResult(ctx context.Context, id, videoURL, mediaID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE generation_jobs SET video_url = ?, media_id = ?, updated_at = ? WHERE id = ?
	`, nullString(videoURL), nullString(mediaID), time.Now().UTC().Format(time.RFC3339), id)
	return err
}

func (r *SQLiteRepository) queryJobs(ctx context.Context, query string, args ...any) ([]*Job, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		j, err := scanJobRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func scanJob(row *sql.Row) (*Job, error) {
	var j Job
	var remoteID, videoURL, mediaID, errMsg sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&j.ID, &j.Prompt, &j.Status, &remoteID, &videoURL, &mediaID, &j.Progress, &errMsg, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	fillJob(&j, remoteID, videoURL, mediaID, errMsg, createdAt, updatedAt)
	return &j, nil
}

func scanJobRows(rows *sql.Rows) (*Job, error) {
	var j Job
	var remoteID, videoURL, mediaID, errMsg sql.NullString
	var createdAt, updatedAt string

	if err := rows.Scan(&j.ID, &j.Prompt, &j.Status, &remoteID, &videoURL, &mediaID, &j.Progress, &errMsg, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	fillJob(&j, remoteID, videoURL, mediaID, errMsg, createdAt, updatedAt)
	return &j, nil
}

func fillJob(j *Job, remoteID, videoURL, mediaID, errMsg sql.NullString, createdAt, updatedAt string) {
	j.RemoteID = remoteID.String
	j.VideoURL = videoURL.String
	j.MediaID = mediaID.String
	j.Error = errMsg.String
	j.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	j.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
