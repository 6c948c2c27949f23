package streams

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/andyyong11/streamdj/internal/models"
)

// MemoryStore is an in-memory Store. It mirrors the Postgres store's
// conditional-write semantics under a single mutex, so the state machine
// behaves identically in tests and in single-process deployments without
// a database.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*models.StreamSession
}

// NewMemoryStore returns an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[uuid.UUID]*models.StreamSession)}
}

func (m *MemoryStore) copyOf(s *models.StreamSession) *models.StreamSession {
	cp := *s
	return &cp
}

// GetByID returns a session by id.
func (m *MemoryStore) GetByID(_ context.Context, id uuid.UUID) (*models.StreamSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return m.copyOf(s), nil
	}
	return nil, nil
}

// GetByKey returns a session by stream key.
func (m *MemoryStore) GetByKey(_ context.Context, key string) (*models.StreamSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.StreamKey == key {
			return m.copyOf(s), nil
		}
	}
	return nil, nil
}

// GetLiveByOwner returns the owner's scheduled or active session, if any.
func (m *MemoryStore) GetLiveByOwner(_ context.Context, ownerID uuid.UUID) (*models.StreamSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.liveByOwnerLocked(ownerID), nil
}

func (m *MemoryStore) liveByOwnerLocked(ownerID uuid.UUID) *models.StreamSession {
	for _, s := range m.sessions {
		if s.OwnerID == ownerID && s.Status.Live() {
			return m.copyOf(s)
		}
	}
	return nil
}

// ListActive returns all currently active sessions, newest first.
func (m *MemoryStore) ListActive(_ context.Context) ([]models.StreamSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []models.StreamSession
	for _, s := range m.sessions {
		if s.Status == models.StatusActive {
			list = append(list, *s)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].StartTime.After(list[j].StartTime) })
	return list, nil
}

// Insert creates a new scheduled session, enforcing one live row per owner.
func (m *MemoryStore) Insert(_ context.Context, s *models.StreamSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.liveByOwnerLocked(s.OwnerID) != nil {
		return ErrOwnerHasLiveSession
	}
	now := time.Now()
	s.ID = uuid.New()
	s.CreatedAt = now
	s.UpdatedAt = now
	m.sessions[s.ID] = m.copyOf(s)
	return nil
}

// Recycle freshens one of the owner's ended/inactive rows into a new scheduled session.
func (m *MemoryStore) Recycle(_ context.Context, ownerID uuid.UUID, key string, start, end time.Time) (*models.StreamSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var target *models.StreamSession
	for _, s := range m.sessions {
		if s.OwnerID != ownerID || (s.Status != models.StatusEnded && s.Status != models.StatusInactive) {
			continue
		}
		if target == nil || s.UpdatedAt.After(target.UpdatedAt) {
			target = s
		}
	}
	if target == nil {
		return nil, nil
	}
	target.StreamKey = key
	target.Status = models.StatusScheduled
	target.StartTime = start
	target.EndTime = end
	target.ListenerCount = 0
	target.UpdatedAt = time.Now()
	return m.copyOf(target), nil
}

// Activate transitions scheduled|inactive -> active.
func (m *MemoryStore) Activate(_ context.Context, key string, now time.Time) (*models.StreamSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.StreamKey != key {
			continue
		}
		if s.Status != models.StatusScheduled && s.Status != models.StatusInactive {
			return nil, nil
		}
		s.Status = models.StatusActive
		s.StartTime = now
		s.ListenerCount = 0
		s.UpdatedAt = time.Now()
		return m.copyOf(s), nil
	}
	return nil, nil
}

// Deactivate transitions active -> ended.
func (m *MemoryStore) Deactivate(_ context.Context, key string, now time.Time) (*models.StreamSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.StreamKey != key {
			continue
		}
		if s.Status != models.StatusActive {
			return nil, nil
		}
		s.Status = models.StatusEnded
		s.EndTime = now
		s.UpdatedAt = time.Now()
		return m.copyOf(s), nil
	}
	return nil, nil
}

// ExpireStale force-ends every live row whose end time has passed.
func (m *MemoryStore) ExpireStale(_ context.Context, now time.Time) ([]models.StreamSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ended []models.StreamSession
	for _, s := range m.sessions {
		if s.Status.Live() && s.EndTime.Before(now) {
			s.Status = models.StatusEnded
			s.UpdatedAt = time.Now()
			ended = append(ended, *s)
		}
	}
	return ended, nil
}

// UpdateTitle mutates the title of a non-ended session.
func (m *MemoryStore) UpdateTitle(_ context.Context, id uuid.UUID, title string) (*models.StreamSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.Status == models.StatusEnded {
		return nil, nil
	}
	s.Title = title
	s.UpdatedAt = time.Now()
	return m.copyOf(s), nil
}

// SetListenerCount persists the advisory listener count cache.
func (m *MemoryStore) SetListenerCount(_ context.Context, id uuid.UUID, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.ListenerCount = count
		s.UpdatedAt = time.Now()
	}
	return nil
}
