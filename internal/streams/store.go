package streams

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/andyyong11/streamdj/internal/models"
)

// Store is the persistence abstraction for stream sessions. Implementations
// must make every status transition a conditional write ("transition only if
// current status is in the allowed set") so a concurrent expiry sweep and an
// activation cannot both win. Lookup methods return (nil, nil) when no row
// matches; transition methods return (nil, nil) when the guard did not match
// any row (no transition performed).
type Store interface {
	// GetByID returns a session by id.
	GetByID(ctx context.Context, id uuid.UUID) (*models.StreamSession, error)
	// GetByKey returns a session by stream key.
	GetByKey(ctx context.Context, key string) (*models.StreamSession, error)
	// GetLiveByOwner returns the owner's scheduled or active session, if any.
	GetLiveByOwner(ctx context.Context, ownerID uuid.UUID) (*models.StreamSession, error)
	// ListActive returns all sessions with status active.
	ListActive(ctx context.Context) ([]models.StreamSession, error)

	// Insert creates a new scheduled session. Returns ErrOwnerHasLiveSession
	// if the owner already holds a scheduled/active row.
	Insert(ctx context.Context, s *models.StreamSession) error
	// Recycle overwrites one of the owner's ended/inactive rows with a fresh
	// key, fresh start/end times and status scheduled.
	Recycle(ctx context.Context, ownerID uuid.UUID, key string, start, end time.Time) (*models.StreamSession, error)

	// Activate transitions scheduled|inactive -> active, setting start time
	// and resetting the listener count.
	Activate(ctx context.Context, key string, now time.Time) (*models.StreamSession, error)
	// Deactivate transitions active -> ended, setting the end time.
	Deactivate(ctx context.Context, key string, now time.Time) (*models.StreamSession, error)
	// ExpireStale force-ends every scheduled/active row whose end time has
	// passed and returns the ended sessions.
	ExpireStale(ctx context.Context, now time.Time) ([]models.StreamSession, error)

	// UpdateTitle mutates the title of a non-ended session.
	UpdateTitle(ctx context.Context, id uuid.UUID, title string) (*models.StreamSession, error)
	// SetListenerCount persists the advisory listener count cache.
	SetListenerCount(ctx context.Context, id uuid.UUID, count int) error
}
