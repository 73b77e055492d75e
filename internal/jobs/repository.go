package jobs

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/heimdex/heimdex-notes/internal/db"
)

type Repository interface {
	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	ListJobs(ctx context.Context, limit int) ([]*Job, error)
	ListPendingJobs(ctx context.Context) ([]*Job, error)
	UpdateJobStatus(ctx context.Context, id, status, errorMsg string) error
	UpdateJobStage(ctx context.Context, id, stage string, progress int) error
	UpdateJobIndexer(ctx context.Context, id, videoID, state string) error

	RecordArtifact(ctx context.Context, a *Artifact) error
	GetArtifact(ctx context.Context, jobID, kind string) (*Artifact, error)
	ListArtifacts(ctx context.Context, jobID string) ([]*Artifact, error)

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// exec runs a write, retrying while another process holds the ledger lock.
func (r *SQLiteRepository) exec(ctx context.Context, query string, args ...any) error {
	return db.RetryOnBusy(ctx, func() error {
		_, err := r.db.ExecContext(ctx, query, args...)
		return err
	})
}

const jobColumns = `id, video_url, status, stage, indexer_video_id, indexer_state, progress, error, created_at, updated_at`

func (r *SQLiteRepository) CreateJob(ctx context.Context, j *Job) error {
	err := r.exec(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, j.ID, j.VideoURL, j.Status, nullString(j.Stage), nullString(j.IndexerVideoID), nullString(j.IndexerState),
		j.Progress, nullString(j.Error),
		j.CreatedAt.UTC().Format(time.RFC3339), j.UpdatedAt.UTC().Format(time.RFC3339))
	return err
}

// GetJob returns nil, nil when no job has the id.
func (r *SQLiteRepository) GetJob(ctx context.Context, id string) (*Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return j, err
}

func (r *SQLiteRepository) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJobs(rows)
}

func (r *SQLiteRepository) ListPendingJobs(ctx context.Context) ([]*Job, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs WHERE status = 'pending' ORDER BY created_at ASC, rowid ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJobs(rows)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*Job, error) {
	var j Job
	var stage, videoID, state, errMsg sql.NullString
	var createdAt, updatedAt string

	if err := row.Scan(&j.ID, &j.VideoURL, &j.Status, &stage, &videoID, &state, &j.Progress, &errMsg, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	j.Stage = stage.String
	j.IndexerVideoID = videoID.String
	j.IndexerState = state.String
	j.Error = errMsg.String
	j.CreatedAt = parseTime(createdAt)
	j.UpdatedAt = parseTime(updatedAt)
	return &j, nil
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (r *SQLiteRepository) UpdateJobStatus(ctx context.Context, id, status, errorMsg string) error {
	err := r.exec(ctx, `
		UPDATE jobs SET status = ?, error = ?, updated_at = datetime('now') WHERE id = ?
	`, status, nullString(errorMsg), id)
	return err
}

func (r *SQLiteRepository) UpdateJobStage(ctx context.Context, id, stage string, progress int) error {
	err := r.exec(ctx, `
		UPDATE jobs SET stage = ?, progress = ?, updated_at = datetime('now') WHERE id = ?
	`, stage, progress, id)
	return err
}

func (r *SQLiteRepository) UpdateJobIndexer(ctx context.Context, id, videoID, state string) error {
	err := r.exec(ctx, `
		UPDATE jobs SET
			indexer_video_id = COALESCE(?, indexer_video_id),
			indexer_state = ?,
			updated_at = datetime('now')
		WHERE id = ?
	`, nullString(videoID), nullString(state), id)
	return err
}

func (r *SQLiteRepository) RecordArtifact(ctx context.Context, a *Artifact) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	err := r.exec(ctx, `
		INSERT INTO artifacts (job_id, kind, container, name, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(job_id, kind) DO UPDATE SET
			container = excluded.container,
			name = excluded.name,
			created_at = excluded.created_at
	`, a.JobID, a.Kind, a.Container, a.Name, a.CreatedAt.UTC().Format(time.RFC3339))
	return err
}

// GetArtifact returns nil, nil when the stage has not stored the kind yet.
func (r *SQLiteRepository) GetArtifact(ctx context.Context, jobID, kind string) (*Artifact, error) {
	var a Artifact
	var createdAt string
	err := r.db.QueryRowContext(ctx, `
		SELECT job_id, kind, container, name, created_at FROM artifacts WHERE job_id = ? AND kind = ?
	`, jobID, kind).Scan(&a.JobID, &a.Kind, &a.Container, &a.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.CreatedAt = parseTime(createdAt)
	return &a, nil
}

func (r *SQLiteRepository) ListArtifacts(ctx context.Context, jobID string) ([]*Artifact, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT job_id, kind, container, name, created_at FROM artifacts WHERE job_id = ? ORDER BY kind
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var artifacts []*Artifact
	for rows.Next() {
		var a Artifact
		var createdAt string
		if err := rows.Scan(&a.JobID, &a.Kind, &a.Container, &a.Name, &createdAt); err != nil {
			return nil, err
		}
		a.CreatedAt = parseTime(createdAt)
		artifacts = append(artifacts, &a)
	}
	return artifacts, rows.Err()
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	err := r.exec(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// parseTime accepts both RFC3339 and SQLite's datetime('now') layout.
func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	t, _ := time.Parse(time.DateTime, s)
	return t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
