package artifact

import (
	"context"
	"database/sql"
	"time"
)

type Repository interface {
	Create(ctx context.Context, a *Artifact) error
	Get(ctx context.Context, id string) (*Artifact, error)
	List(ctx context.Context, limit int) ([]*Artifact, error)
	Promote(ctx context.Context, id, storagePath string) error
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const artifactColumns = `id, title, format, storage_path, preview_path, timeline_path, size_bytes,
	scene_count, duration_seconds, resolution, temporary, created_at, expires_at`

func (r *SQLiteRepository) Create(ctx context.Context, a *Artifact) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO artifacts (`+artifactColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.Title, string(a.Format), a.StoragePath, nullString(a.PreviewPath), nullString(a.TimelinePath),
		a.SizeBytes, a.SceneCount, a.DurationSeconds, nullString(a.Resolution), boolToInt(a.Temporary),
		a.CreatedAt.UTC().Format(time.RFC3339), nullTime(a.ExpiresAt))
	return err
}

// Get returns the artifact with id, or nil if there is none.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Artifact, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+artifactColumns+` FROM artifacts WHERE id = ?`, id)
	a, err := scanArtifact(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

func (r *SQLiteRepository) List(ctx context.Context, limit int) ([]*Artifact, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+artifactColumns+`
		FROM artifacts ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var artifacts []*Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}

// Promote makes an artifact permanent at storagePath.
func (r *SQLiteRepository) Promote(ctx context.Context, id, storagePath string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE artifacts SET temporary = 0, expires_at = NULL, storage_path = ? WHERE id = ?
	`, storagePath, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM artifacts WHERE id = ?", id)
	return err
}

// DeleteExpired drops temporary rows whose retention has passed, returning
// how many were removed.
func (r *SQLiteRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM artifacts
		WHERE temporary = 1 AND expires_at IS NOT NULL AND expires_at < ?
	`, now.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanArtifact(s scanner) (*Artifact, error) {
	var a Artifact
	var format, createdAt string
	var preview, timeline, resolution, expiresAt sql.NullString
	var temporary int

	err := s.Scan(&a.ID, &a.Title, &format, &a.StoragePath, &preview, &timeline, &a.SizeBytes,
		&a.SceneCount, &a.DurationSeconds, &resolution, &temporary, &createdAt, &expiresAt)
	if err != nil {
		return nil, err
	}

	a.Format = Format(format)
	a.PreviewPath = preview.String
	a.TimelinePath = timeline.String
	a.Resolution = resolution.String
	a.Temporary = temporary == 1
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if expiresAt.Valid {
		if t, err := time.Parse(time.RFC3339, expiresAt.String); err == nil {
			a.ExpiresAt = &t
		}
	}
	return &a, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}
