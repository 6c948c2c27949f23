// Package presence tracks the distinct viewer identities watching each
// stream session. The registry is a single-process, mutex-guarded map;
// multi-instance deployments would need to move it behind a shared store.
package presence

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultGraceWindow is how long an entry may go without a heartbeat before
// the reaper removes it (covers browser crashes that never send leave).
const DefaultGraceWindow = 90 * time.Second

// CountBroadcast is invoked whenever a session's distinct-identity count
// changes, never for joins/leaves that leave the count unchanged.
type CountBroadcast func(sessionID uuid.UUID, count int)

// entry is one identity's presence in a session: a reference count of open
// connections (multiple tabs don't inflate the visible count) and the last
// heartbeat time.
type entry struct {
	refs     int
	lastSeen time.Time
}

// Registry is the in-memory per-session set of distinct viewer identities.
type Registry struct {
	mu          sync.Mutex
	sessions    map[uuid.UUID]map[string]*entry
	graceWindow time.Duration
	onChange    CountBroadcast
	logger      *zap.Logger
	now         func() time.Time
}

// NewRegistry creates a presence registry. onChange may be nil.
func NewRegistry(graceWindow time.Duration, onChange CountBroadcast, logger *zap.Logger) *Registry {
	if graceWindow <= 0 {
		graceWindow = DefaultGraceWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		sessions:    make(map[uuid.UUID]map[string]*entry),
		graceWindow: graceWindow,
		onChange:    onChange,
		logger:      logger,
		now:         time.Now,
	}
}

// SetCountBroadcast replaces the count-change callback.
func (r *Registry) SetCountBroadcast(fn CountBroadcast) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

// Join records one more connection for identity in the session. The count
// broadcast fires only when this is the identity's first connection.
func (r *Registry) Join(sessionID uuid.UUID, identity string) {
	if identity == "" {
		return
	}
	r.mu.Lock()
	viewers := r.sessions[sessionID]
	if viewers == nil {
		viewers = make(map[string]*entry)
		r.sessions[sessionID] = viewers
	}
	e := viewers[identity]
	first := e == nil
	if first {
		e = &entry{}
		viewers[identity] = e
	}
	e.refs++
	e.lastSeen = r.now()
	count := len(viewers)
	fn := r.onChange
	r.mu.Unlock()

	if first && fn != nil {
		fn(sessionID, count)
	}
}

// Leave drops one connection for identity. When the last connection goes,
// the identity is removed and the new distinct count is broadcast. A leave
// for an unknown identity is a no-op.
func (r *Registry) Leave(sessionID uuid.UUID, identity string) {
	r.mu.Lock()
	viewers := r.sessions[sessionID]
	e := viewers[identity]
	if e == nil {
		r.mu.Unlock()
		return
	}
	e.refs--
	if e.refs > 0 {
		r.mu.Unlock()
		return
	}
	delete(viewers, identity)
	count := len(viewers)
	if count == 0 {
		delete(r.sessions, sessionID)
	}
	fn := r.onChange
	r.mu.Unlock()

	if fn != nil {
		fn(sessionID, count)
	}
}

// Heartbeat refreshes the identity's last-activity time.
func (r *Registry) Heartbeat(sessionID uuid.UUID, identity string) {
	r.mu.Lock()
	if e := r.sessions[sessionID][identity]; e != nil {
		e.lastSeen = r.now()
	}
	r.mu.Unlock()
}

// Count returns the number of distinct identities present in the session.
func (r *Registry) Count(sessionID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions[sessionID])
}

// Total returns the number of distinct identities present across all sessions.
func (r *Registry) Total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, viewers := range r.sessions {
		total += len(viewers)
	}
	return total
}

// Reap removes every entry whose last heartbeat is older than the grace
// window, regardless of its connection refcount (the connections are gone;
// they just never said leave). Sessions whose count changed are broadcast.
func (r *Registry) Reap() {
	cutoff := r.now().Add(-r.graceWindow)

	type change struct {
		sessionID uuid.UUID
		count     int
	}
	var changed []change

	r.mu.Lock()
	for sessionID, viewers := range r.sessions {
		removed := 0
		for identity, e := range viewers {
			if e.lastSeen.Before(cutoff) {
				delete(viewers, identity)
				removed++
			}
		}
		if removed > 0 {
			changed = append(changed, change{sessionID, len(viewers)})
			if len(viewers) == 0 {
				delete(r.sessions, sessionID)
			}
		}
	}
	fn := r.onChange
	r.mu.Unlock()

	for _, ch := range changed {
		r.logger.Debug("reaped stale viewers", zap.String("session_id", ch.sessionID.String()), zap.Int("count", ch.count))
		if fn != nil {
			fn(ch.sessionID, ch.count)
		}
	}
}

// RunReaper reaps on the given interval until ctx is done.
func (r *Registry) RunReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = r.graceWindow / 3
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Reap()
		}
	}
}
