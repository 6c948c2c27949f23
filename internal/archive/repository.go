// Package archive persists recorded broadcasts uploaded to object storage
// after a stream session ends.
package archive

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/andyyong11/streamdj/internal/models"
)

const archiveColumns = `id, session_id, owner_id, status, s3_key, size_bytes, created_at, updated_at`

// Repository handles broadcast_archives persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an archive repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a pending archive row for an ended session.
func (r *Repository) Create(ctx context.Context, sessionID, ownerID uuid.UUID) (*models.Archive, error) {
	const q = `INSERT INTO broadcast_archives (id, session_id, owner_id, status, s3_key, size_bytes)
		VALUES (gen_random_uuid(), $1, $2, $3, '', 0)
		RETURNING ` + archiveColumns
	var a models.Archive
	err := r.pool.QueryRow(ctx, q, sessionID, ownerID, models.ArchivePending).
		Scan(&a.ID, &a.SessionID, &a.OwnerID, &a.Status, &a.S3Key, &a.SizeBytes, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetByID returns an archive by id, or (nil, nil) if absent.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Archive, error) {
	const q = `SELECT ` + archiveColumns + ` FROM broadcast_archives WHERE id = $1`
	var a models.Archive
	err := r.pool.QueryRow(ctx, q, id).
		Scan(&a.ID, &a.SessionID, &a.OwnerID, &a.Status, &a.S3Key, &a.SizeBytes, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// ListByOwner returns an owner's archives, newest first.
func (r *Repository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Archive, error) {
	const q = `SELECT ` + archiveColumns + ` FROM broadcast_archives WHERE owner_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Archive
	for rows.Next() {
		var a models.Archive
		if err := rows.Scan(&a.ID, &a.SessionID, &a.OwnerID, &a.Status, &a.S3Key, &a.SizeBytes, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

// MarkUploading flips a pending archive to uploading.
func (r *Repository) MarkUploading(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE broadcast_archives SET status = $2, updated_at = NOW() WHERE id = $1 AND status = $3`
	_, err := r.pool.Exec(ctx, q, id, models.ArchiveUploading, models.ArchivePending)
	return err
}

// MarkCompleted records the uploaded object key and size.
func (r *Repository) MarkCompleted(ctx context.Context, id uuid.UUID, s3Key string, sizeBytes int64) error {
	const q = `UPDATE broadcast_archives SET status = $2, s3_key = $3, size_bytes = $4, updated_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id, models.ArchiveCompleted, s3Key, sizeBytes)
	return err
}

// MarkFailed records a terminal upload failure.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE broadcast_archives SET status = $2, updated_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id, models.ArchiveFailed)
	return err
}
