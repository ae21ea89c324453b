package project

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Repository persists full project snapshots as JSON rows. The snapshot
// is the only structure the editor core round-trips to durable storage.
type Repository interface {
	SaveSnapshot(ctx context.Context, p *Project) error
	LoadSnapshot(ctx context.Context, id string) (*Project, error)
	LoadLatest(ctx context.Context) (*Project, error)
	ListProjects(ctx context.Context) ([]*ProjectInfo, error)
	DeleteProject(ctx context.Context, id string) error

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

// ProjectInfo is the listing row: metadata without the snapshot body.
type ProjectInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) SaveSnapshot(ctx context.Context, p *Project) error {
	snapshot, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal project snapshot: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, version, snapshot, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			version = excluded.version,
			snapshot = excluded.snapshot,
			updated_at = excluded.updated_at
	`, p.ID, p.Name, p.Version, string(snapshot), p.UpdatedAt.Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) LoadSnapshot(ctx context.Context, id string) (*Project, error) {
	row := r.db.QueryRowContext(ctx, "SELECT snapshot FROM projects WHERE id = ?", id)
	return scanSnapshot(row)
}

// LoadLatest returns the most recently saved project, or nil if the
// store is empty.
func (r *SQLiteRepository) LoadLatest(ctx context.Context) (*Project, error) {
	row := r.db.QueryRowContext(ctx, "SELECT snapshot FROM projects ORDER BY updated_at DESC LIMIT 1")
	return scanSnapshot(row)
}

func scanSnapshot(row *sql.Row) (*Project, error) {
	var snapshot string
	err := row.Scan(&snapshot)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var p Project
	if err := json.Unmarshal([]byte(snapshot), &p); err != nil {
		return nil, fmt.Errorf("unmarshal project snapshot: %w", err)
	}
	return &p, nil
}

func (r *SQLiteRepository) ListProjects(ctx context.Context) ([]*ProjectInfo, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, version, updated_at FROM projects ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var infos []*ProjectInfo
	for rows.Next() {
		var info ProjectInfo
		var updatedAt string
		if err := rows.Scan(&info.ID, &info.Name, &info.Version, &updatedAt); err != nil {
			return nil, err
		}
		info.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		infos = append(infos, &info)
	}
	return infos, rows.Err()
}

func (r *SQLiteRepository) DeleteProject(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
	return err
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}
