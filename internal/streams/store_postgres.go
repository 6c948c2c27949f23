package streams

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/andyyong11/streamdj/internal/models"
)

const sessionColumns = `id, owner_id, stream_key, title, status, start_time, end_time, listener_count, created_at, updated_at`

// PostgresStore implements Store on stream_sessions. The single-flight
// invariant is enforced by a partial unique index on (owner_id) WHERE
// status IN ('scheduled','active'); see migrations/001_schema.sql.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a stream session store backed by pgx.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func scanSession(row pgx.Row) (*models.StreamSession, error) {
	var s models.StreamSession
	err := row.Scan(&s.ID, &s.OwnerID, &s.StreamKey, &s.Title, &s.Status, &s.StartTime, &s.EndTime, &s.ListenerCount, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// GetByID returns a session by id, or (nil, nil) if absent.
func (r *PostgresStore) GetByID(ctx context.Context, id uuid.UUID) (*models.StreamSession, error) {
	const q = `SELECT ` + sessionColumns + ` FROM stream_sessions WHERE id = $1`
	return scanSession(r.pool.QueryRow(ctx, q, id))
}

// GetByKey returns a session by stream key, or (nil, nil) if absent.
func (r *PostgresStore) GetByKey(ctx context.Context, key string) (*models.StreamSession, error) {
	const q = `SELECT ` + sessionColumns + ` FROM stream_sessions WHERE stream_key = $1`
	return scanSession(r.pool.QueryRow(ctx, q, key))
}

// GetLiveByOwner returns the owner's scheduled or active session, if any.
func (r *PostgresStore) GetLiveByOwner(ctx context.Context, ownerID uuid.UUID) (*models.StreamSession, error) {
	const q = `SELECT ` + sessionColumns + ` FROM stream_sessions
		WHERE owner_id = $1 AND status IN ('scheduled', 'active')
		ORDER BY updated_at DESC LIMIT 1`
	return scanSession(r.pool.QueryRow(ctx, q, ownerID))
}

// ListActive returns all currently active sessions.
func (r *PostgresStore) ListActive(ctx context.Context) ([]models.StreamSession, error) {
	const q = `SELECT ` + sessionColumns + ` FROM stream_sessions WHERE status = 'active' ORDER BY start_time DESC`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.StreamSession
	for rows.Next() {
		var s models.StreamSession
		if err := rows.Scan(&s.ID, &s.OwnerID, &s.StreamKey, &s.Title, &s.Status, &s.StartTime, &s.EndTime, &s.ListenerCount, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// Insert creates a new scheduled session row.
func (r *PostgresStore) Insert(ctx context.Context, s *models.StreamSession) error {
	const q = `INSERT INTO stream_sessions (id, owner_id, stream_key, title, status, start_time, end_time, listener_count)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, 0)
		RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, q, s.OwnerID, s.StreamKey, s.Title, s.Status, s.StartTime, s.EndTime).
		Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		// 23505 unique_violation on the partial owner index: a live row already exists.
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrOwnerHasLiveSession
		}
		return err
	}
	return nil
}

// Recycle freshens one of the owner's ended/inactive rows into a new scheduled session.
func (r *PostgresStore) Recycle(ctx context.Context, ownerID uuid.UUID, key string, start, end time.Time) (*models.StreamSession, error) {
	const q = `UPDATE stream_sessions SET stream_key = $2, status = 'scheduled', start_time = $3, end_time = $4, listener_count = 0, updated_at = NOW()
		WHERE id = (SELECT id FROM stream_sessions WHERE owner_id = $1 AND status IN ('ended', 'inactive') ORDER BY updated_at DESC LIMIT 1)
		RETURNING ` + sessionColumns
	return scanSession(r.pool.QueryRow(ctx, q, ownerID, key, start, end))
}

// Activate transitions scheduled|inactive -> active. Returns (nil, nil) when
// the key exists but the status guard did not match.
func (r *PostgresStore) Activate(ctx context.Context, key string, now time.Time) (*models.StreamSession, error) {
	const q = `UPDATE stream_sessions SET status = 'active', start_time = $2, listener_count = 0, updated_at = NOW()
		WHERE stream_key = $1 AND status IN ('scheduled', 'inactive')
		RETURNING ` + sessionColumns
	return scanSession(r.pool.QueryRow(ctx, q, key, now))
}

// Deactivate transitions active -> ended.
func (r *PostgresStore) Deactivate(ctx context.Context, key string, now time.Time) (*models.StreamSession, error) {
	const q = `UPDATE stream_sessions SET status = 'ended', end_time = $2, updated_at = NOW()
		WHERE stream_key = $1 AND status = 'active'
		RETURNING ` + sessionColumns
	return scanSession(r.pool.QueryRow(ctx, q, key, now))
}

// ExpireStale force-ends every live row whose end_time has passed.
func (r *PostgresStore) ExpireStale(ctx context.Context, now time.Time) ([]models.StreamSession, error) {
	const q = `UPDATE stream_sessions SET status = 'ended', updated_at = NOW()
		WHERE status IN ('scheduled', 'active') AND end_time < $1
		RETURNING ` + sessionColumns
	rows, err := r.pool.Query(ctx, q, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ended []models.StreamSession
	for rows.Next() {
		var s models.StreamSession
		if err := rows.Scan(&s.ID, &s.OwnerID, &s.StreamKey, &s.Title, &s.Status, &s.StartTime, &s.EndTime, &s.ListenerCount, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		ended = append(ended, s)
	}
	return ended, rows.Err()
}

// UpdateTitle mutates the title of a non-ended session.
func (r *PostgresStore) UpdateTitle(ctx context.Context, id uuid.UUID, title string) (*models.StreamSession, error) {
	const q = `UPDATE stream_sessions SET title = $2, updated_at = NOW()
		WHERE id = $1 AND status <> 'ended'
		RETURNING ` + sessionColumns
	return scanSession(r.pool.QueryRow(ctx, q, id, title))
}

// SetListenerCount persists the advisory listener count cache.
func (r *PostgresStore) SetListenerCount(ctx context.Context, id uuid.UUID, count int) error {
	const q = `UPDATE stream_sessions SET listener_count = $2, updated_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id, count)
	return err
}
