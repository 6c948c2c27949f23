package streams

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/andyyong11/streamdj/internal/models"
	"github.com/andyyong11/streamdj/pkg/retry"
)

// DefaultKeyTTL is how long an issued key stays valid before the expiry sweep ends the session.
const DefaultKeyTTL = 24 * time.Hour

// Realtime channel events emitted on session transitions.
const (
	EventStreamStarted = "stream_started"
	EventStreamEnded   = "stream_ended"
	EventStreamUpdated = "stream_updated"
)

// Broadcaster delivers a session lifecycle event to everyone in the session's room.
type Broadcaster interface {
	BroadcastToStream(sessionID uuid.UUID, event string, payload interface{})
}

// Stats receives state-machine transition counts (optional instrumentation).
type Stats interface {
	KeyIssued()
	StreamStarted()
	StreamEnded()
	StreamExpired()
}

// Service enforces the stream session state machine on top of a Store:
// key issuance, validation, activation, deactivation and the expiry sweep.
// State-machine violations degrade to no-ops (nil session, nil error) so a
// flaky ingest process can never crash session tracking.
type Service struct {
	store       Store
	broadcaster Broadcaster
	keyTTL      time.Duration
	logger      *zap.Logger
	stats       Stats
	now         func() time.Time
}

// NewService creates a stream key service. broadcaster may be nil (no events).
func NewService(store Store, broadcaster Broadcaster, keyTTL time.Duration, logger *zap.Logger) *Service {
	if keyTTL <= 0 {
		keyTTL = DefaultKeyTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:       store,
		broadcaster: broadcaster,
		keyTTL:      keyTTL,
		logger:      logger,
		now:         time.Now,
	}
}

// SetStats injects transition instrumentation. May stay unset.
func (s *Service) SetStats(stats Stats) { s.stats = stats }

// newStreamKey returns a 64-hex-char high-entropy secret token.
func newStreamKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate stream key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// IssueKey returns the owner's stream key, issuing a fresh one if no
// scheduled/active session exists. Issuance is idempotent: while the owner
// holds a live session its current key is returned unchanged. Stale sessions
// are swept first so they can never be resurrected.
func (s *Service) IssueKey(ctx context.Context, ownerID uuid.UUID) (*models.StreamSession, error) {
	if err := s.Sweep(ctx); err != nil {
		return nil, err
	}

	existing, err := s.store.GetLiveByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	key, err := newStreamKey()
	if err != nil {
		return nil, err
	}
	now := s.now()
	end := now.Add(s.keyTTL)

	// Prefer recycling one of the owner's ended/inactive rows.
	recycled, err := s.store.Recycle(ctx, ownerID, key, now, end)
	if err != nil {
		return nil, err
	}
	if recycled != nil {
		s.logger.Info("stream key issued", zap.String("owner_id", ownerID.String()), zap.String("session_id", recycled.ID.String()), zap.Bool("recycled", true))
		if s.stats != nil {
			s.stats.KeyIssued()
		}
		return recycled, nil
	}

	created := &models.StreamSession{
		OwnerID:   ownerID,
		StreamKey: key,
		Status:    models.StatusScheduled,
		StartTime: now,
		EndTime:   end,
	}
	if err := s.store.Insert(ctx, created); err != nil {
		// Lost a race with a concurrent issuance: the other caller's row wins.
		if errors.Is(err, ErrOwnerHasLiveSession) {
			return s.store.GetLiveByOwner(ctx, ownerID)
		}
		return nil, err
	}
	s.logger.Info("stream key issued", zap.String("owner_id", ownerID.String()), zap.String("session_id", created.ID.String()))
	if s.stats != nil {
		s.stats.KeyIssued()
	}
	return created, nil
}

// ValidateKey reports whether key belongs to a scheduled/active session that
// has not passed its hard expiry. A false result must make the ingest
// gateway reject the publish attempt.
func (s *Service) ValidateKey(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	session, err := s.store.GetByKey(ctx, key)
	if err != nil {
		return false, err
	}
	if session == nil || !session.Status.Live() {
		return false, nil
	}
	return s.now().Before(session.EndTime), nil
}

// Activate transitions the keyed session to active. Returns the session row,
// or (nil, nil) when the key is unknown or no transition was performed.
// Already-active sessions are returned unchanged (idempotent).
func (s *Service) Activate(ctx context.Context, key string) (*models.StreamSession, error) {
	session, err := s.store.Activate(ctx, key, s.now())
	if err != nil {
		return nil, err
	}
	if session == nil {
		// Guard did not match: distinguish already-active (no-op returning the
		// row) from unknown key or an ended session (nil).
		current, err := s.store.GetByKey(ctx, key)
		if err != nil {
			return nil, err
		}
		if current != nil && current.Status == models.StatusActive {
			return current, nil
		}
		return nil, nil
	}
	s.logger.Info("stream activated", zap.String("session_id", session.ID.String()), zap.String("owner_id", session.OwnerID.String()))
	if s.stats != nil {
		s.stats.StreamStarted()
	}
	s.broadcast(session.ID, EventStreamStarted, session.Public())
	return session, nil
}

// Deactivate transitions the keyed session from active to ended. No-op when
// the session is not active.
func (s *Service) Deactivate(ctx context.Context, key string) (*models.StreamSession, error) {
	session, err := s.store.Deactivate(ctx, key, s.now())
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, nil
	}
	s.logger.Info("stream ended", zap.String("session_id", session.ID.String()))
	if s.stats != nil {
		s.stats.StreamEnded()
	}
	s.broadcast(session.ID, EventStreamEnded, map[string]string{"session_id": session.ID.String()})
	return session, nil
}

// Sweep force-ends every scheduled/active session past its hard expiry,
// broadcasting stream_ended for each. It runs before every issuance decision
// and periodically from RunSweeper.
func (s *Service) Sweep(ctx context.Context) error {
	ended, err := s.store.ExpireStale(ctx, s.now())
	if err != nil {
		return err
	}
	for _, session := range ended {
		s.logger.Info("stream expired", zap.String("session_id", session.ID.String()))
		if s.stats != nil {
			s.stats.StreamExpired()
		}
		s.broadcast(session.ID, EventStreamEnded, map[string]string{"session_id": session.ID.String()})
	}
	return nil
}

// RunSweeper runs the expiry sweep on the policy's interval until ctx is done.
// Sweep failures are retried within one tick bounded by the policy.
func (s *Service) RunSweeper(ctx context.Context, policy retry.Policy) {
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = time.Minute
	}
	for {
		timer := time.NewTimer(policy.Delay())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if err := policy.Run(ctx, s.Sweep); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("expiry sweep failed", zap.Error(err))
		}
	}
}

// UpdateTitle changes the session title without touching status or key. Only
// the owner may update; ended sessions are left untouched.
func (s *Service) UpdateTitle(ctx context.Context, sessionID, callerID uuid.UUID, title string) (*models.StreamSession, error) {
	session, err := s.store.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if session.OwnerID != callerID {
		return nil, ErrNotOwner
	}
	updated, err := s.store.UpdateTitle(ctx, sessionID, title)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		// Ended in between: no transition performed.
		return nil, nil
	}
	s.broadcast(updated.ID, EventStreamUpdated, updated.Public())
	return updated, nil
}

// End deactivates the caller's session by id. Only the owner may end it.
func (s *Service) End(ctx context.Context, sessionID, callerID uuid.UUID) (*models.StreamSession, error) {
	session, err := s.store.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if session.OwnerID != callerID {
		return nil, ErrNotOwner
	}
	return s.Deactivate(ctx, session.StreamKey)
}

// GetSession returns a session by id or ErrSessionNotFound.
func (s *Service) GetSession(ctx context.Context, id uuid.UUID) (*models.StreamSession, error) {
	session, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// ListActive returns all active sessions with keys redacted.
func (s *Service) ListActive(ctx context.Context) ([]models.StreamSession, error) {
	list, err := s.store.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i] = list[i].Public()
	}
	return list, nil
}

// RecordListenerCount persists the advisory listener count for a session.
func (s *Service) RecordListenerCount(ctx context.Context, sessionID uuid.UUID, count int) {
	if err := s.store.SetListenerCount(ctx, sessionID, count); err != nil {
		s.logger.Debug("listener count write failed", zap.String("session_id", sessionID.String()), zap.Error(err))
	}
}

func (s *Service) broadcast(sessionID uuid.UUID, event string, payload interface{}) {
	if s.broadcaster != nil {
		s.broadcaster.BroadcastToStream(sessionID, event, payload)
	}
}
