package jobs

import (
	"context"
	"database/sql"
	"time"
)

type Repository interface {
	Create(ctx context.Context, r *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	List(ctx context.Context, limit int) ([]*Record, error)
	SetStage(ctx context.Context, id, stage string) error
	MarkCompleted(ctx context.Context, id, artifactID string) error
	MarkFailed(ctx context.Context, id, stage, errorMsg string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const jobColumns = `id, title, output, status, stage, scene_count, error, artifact_id, created_at, updated_at`

func (r *SQLiteRepository) Create(ctx context.Context, j *Record) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, j.ID, j.Title, j.Output, j.Status, nullString(j.Stage), j.SceneCount,
		nullString(j.Error), nullString(j.ArtifactID),
		formatTime(j.CreatedAt), formatTime(j.UpdatedAt))
	return err
}

// Get returns the job with id, or nil if there is none.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	j, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return j, err
}

func (r *SQLiteRepository) List(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		j, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, j)
	}
	return records, rows.Err()
}

func (r *SQLiteRepository) SetStage(ctx context.Context, id, stage string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET stage = ?, updated_at = ? WHERE id = ?
	`, stage, formatTime(time.Now()), id)
	return err
}

func (r *SQLiteRepository) MarkCompleted(ctx context.Context, id, artifactID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, artifact_id = ?, error = NULL, updated_at = ? WHERE id = ?
	`, StatusCompleted, artifactID, formatTime(time.Now()), id)
	return err
}

func (r *SQLiteRepository) MarkFailed(ctx context.Context, id, stage, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, stage = ?, error = ?, updated_at = ? WHERE id = ?
	`, StatusFailed, nullString(stage), nullString(errorMsg), formatTime(time.Now()), id)
	return err
}

// InterruptedMessage is recorded on jobs a previous process left unfinished.
const InterruptedMessage = "interrupted by restart"

// RecoverInterrupted fails every job still pending or running. It is meant
// to run once at startup, before any new job is accepted.
func (r *SQLiteRepository) RecoverInterrupted(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, error = ?, updated_at = ?
		WHERE status IN (?, ?)
	`, StatusFailed, InterruptedMessage, formatTime(time.Now()), StatusPending, StatusRunning)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*Record, error) {
	var j Record
	var stage, errMsg, artifactID sql.NullString
	var createdAt, updatedAt string

	err := s.Scan(&j.ID, &j.Title, &j.Output, &j.Status, &stage, &j.SceneCount,
		&errMsg, &artifactID, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	j.Stage = stage.String
	j.Error = errMsg.String
	j.ArtifactID = artifactID.String
	j.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	j.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &j, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
