package streams

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/andyyong11/streamdj/internal/models"
)

type recordedEvent struct {
	sessionID uuid.UUID
	event     string
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fakeBroadcaster) BroadcastToStream(sessionID uuid.UUID, event string, _ interface{}) {
	f.mu.Lock()
	f.events = append(f.events, recordedEvent{sessionID, event})
	f.mu.Unlock()
}

func (f *fakeBroadcaster) count(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.event == event {
			n++
		}
	}
	return n
}

func newTestService(t *testing.T) (*Service, *fakeBroadcaster) {
	t.Helper()
	b := &fakeBroadcaster{}
	return NewService(NewMemoryStore(), b, time.Hour, nil), b
}

func TestIssueKey_idempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	owner := uuid.New()

	first, err := svc.IssueKey(ctx, owner)
	if err != nil {
		t.Fatalf("IssueKey: %v", err)
	}
	if first.StreamKey == "" || first.Status != models.StatusScheduled {
		t.Fatalf("expected scheduled session with key, got %+v", first)
	}
	if len(first.StreamKey) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(first.StreamKey))
	}

	second, err := svc.IssueKey(ctx, owner)
	if err != nil {
		t.Fatalf("IssueKey again: %v", err)
	}
	if second.ID != first.ID || second.StreamKey != first.StreamKey {
		t.Errorf("repeat issuance should return the same session: %v vs %v", first.ID, second.ID)
	}
}

func TestIssueKey_idempotentWhileActive(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	owner := uuid.New()

	first, _ := svc.IssueKey(ctx, owner)
	if _, err := svc.Activate(ctx, first.StreamKey); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	again, err := svc.IssueKey(ctx, owner)
	if err != nil {
		t.Fatalf("IssueKey: %v", err)
	}
	if again.StreamKey != first.StreamKey {
		t.Error("issuance during an active broadcast must not rotate the key")
	}
}

func TestIssueKey_recyclesEndedRow(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	owner := uuid.New()

	first, _ := svc.IssueKey(ctx, owner)
	if _, err := svc.Activate(ctx, first.StreamKey); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if _, err := svc.Deactivate(ctx, first.StreamKey); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}

	second, err := svc.IssueKey(ctx, owner)
	if err != nil {
		t.Fatalf("IssueKey: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("expected the ended row to be recycled, got new row %v", second.ID)
	}
	if second.StreamKey == first.StreamKey {
		t.Error("recycled session must carry a fresh key")
	}
	if second.Status != models.StatusScheduled {
		t.Errorf("recycled session status = %v, want scheduled", second.Status)
	}
}

func TestIssueKey_sweepsExpiredFirst(t *testing.T) {
	svc, b := newTestService(t)
	ctx := context.Background()
	owner := uuid.New()

	first, _ := svc.IssueKey(ctx, owner)

	// Jump past the hard expiry: the stale row must be swept, not returned.
	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	second, err := svc.IssueKey(ctx, owner)
	if err != nil {
		t.Fatalf("IssueKey: %v", err)
	}
	if second.StreamKey == first.StreamKey {
		t.Error("expired key must never be resurrected")
	}
	if b.count(EventStreamEnded) != 1 {
		t.Errorf("expected one stream_ended broadcast from the sweep, got %d", b.count(EventStreamEnded))
	}
}

func TestIssueKey_concurrentSingleFlight(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	owner := uuid.New()

	const n = 16
	keys := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := svc.IssueKey(ctx, owner)
			if err != nil || s == nil {
				t.Errorf("IssueKey: %v", err)
				return
			}
			keys[i] = s.StreamKey
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if keys[i] != keys[0] {
			t.Fatalf("concurrent issuance produced distinct keys: %q vs %q", keys[0], keys[i])
		}
	}
}

func TestValidateKey(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	owner := uuid.New()

	if ok, _ := svc.ValidateKey(ctx, ""); ok {
		t.Error("empty key must be invalid")
	}
	if ok, _ := svc.ValidateKey(ctx, "nope"); ok {
		t.Error("unknown key must be invalid")
	}

	s, _ := svc.IssueKey(ctx, owner)
	if ok, _ := svc.ValidateKey(ctx, s.StreamKey); !ok {
		t.Error("scheduled key must validate")
	}

	svc.Activate(ctx, s.StreamKey)
	if ok, _ := svc.ValidateKey(ctx, s.StreamKey); !ok {
		t.Error("active key must validate")
	}

	svc.Deactivate(ctx, s.StreamKey)
	if ok, _ := svc.ValidateKey(ctx, s.StreamKey); ok {
		t.Error("ended key must be invalid")
	}
}

func TestValidateKey_pastHardExpiry(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	s, _ := svc.IssueKey(ctx, uuid.New())
	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	if ok, _ := svc.ValidateKey(ctx, s.StreamKey); ok {
		t.Error("key past its end time must be invalid even while still scheduled")
	}
}

func TestActivate_transitions(t *testing.T) {
	svc, b := newTestService(t)
	ctx := context.Background()

	s, _ := svc.IssueKey(ctx, uuid.New())

	active, err := svc.Activate(ctx, s.StreamKey)
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if active == nil || active.Status != models.StatusActive {
		t.Fatalf("expected active session, got %+v", active)
	}
	if b.count(EventStreamStarted) != 1 {
		t.Errorf("expected one stream_started broadcast, got %d", b.count(EventStreamStarted))
	}

	// Second activation is an idempotent no-op returning the row unchanged.
	again, err := svc.Activate(ctx, s.StreamKey)
	if err != nil {
		t.Fatalf("Activate again: %v", err)
	}
	if again == nil || again.ID != active.ID {
		t.Error("re-activation should return the already-active session")
	}
	if b.count(EventStreamStarted) != 1 {
		t.Error("re-activation must not rebroadcast stream_started")
	}
}

func TestActivate_unknownKeyIsNoop(t *testing.T) {
	svc, _ := newTestService(t)

	s, err := svc.Activate(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Activate must not error on unknown key: %v", err)
	}
	if s != nil {
		t.Errorf("expected nil session, got %+v", s)
	}
}

func TestActivate_endedSessionIsNoop(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	s, _ := svc.IssueKey(ctx, uuid.New())
	svc.Activate(ctx, s.StreamKey)
	svc.Deactivate(ctx, s.StreamKey)

	got, err := svc.Activate(ctx, s.StreamKey)
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if got != nil {
		t.Error("an ended session must not reactivate")
	}
}

func TestDeactivate_transitions(t *testing.T) {
	svc, b := newTestService(t)
	ctx := context.Background()

	s, _ := svc.IssueKey(ctx, uuid.New())

	// Deactivating a scheduled session is a no-op.
	got, err := svc.Deactivate(ctx, s.StreamKey)
	if err != nil || got != nil {
		t.Fatalf("deactivate scheduled: got %+v, %v", got, err)
	}

	svc.Activate(ctx, s.StreamKey)
	ended, err := svc.Deactivate(ctx, s.StreamKey)
	if err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if ended == nil || ended.Status != models.StatusEnded {
		t.Fatalf("expected ended session, got %+v", ended)
	}
	if b.count(EventStreamEnded) != 1 {
		t.Errorf("expected one stream_ended broadcast, got %d", b.count(EventStreamEnded))
	}

	// Double done-publish: second deactivation is silent.
	again, err := svc.Deactivate(ctx, s.StreamKey)
	if err != nil || again != nil {
		t.Errorf("repeat deactivate: got %+v, %v", again, err)
	}
	if b.count(EventStreamEnded) != 1 {
		t.Error("repeat deactivate must not rebroadcast stream_ended")
	}
}

func TestUpdateTitle_ownerGate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	owner := uuid.New()

	s, _ := svc.IssueKey(ctx, owner)

	if _, err := svc.UpdateTitle(ctx, s.ID, uuid.New(), "hijack"); !errors.Is(err, ErrNotOwner) {
		t.Errorf("expected ErrNotOwner, got %v", err)
	}
	if _, err := svc.UpdateTitle(ctx, uuid.New(), owner, "x"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}

	updated, err := svc.UpdateTitle(ctx, s.ID, owner, "friday night set")
	if err != nil {
		t.Fatalf("UpdateTitle: %v", err)
	}
	if updated.Title != "friday night set" {
		t.Errorf("title = %q", updated.Title)
	}
	if updated.StreamKey != "" {
		t.Error("broadcast payload must carry a redacted key")
	}
}

func TestEnd_ownerGate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	owner := uuid.New()

	s, _ := svc.IssueKey(ctx, owner)
	svc.Activate(ctx, s.StreamKey)

	if _, err := svc.End(ctx, s.ID, uuid.New()); !errors.Is(err, ErrNotOwner) {
		t.Errorf("expected ErrNotOwner, got %v", err)
	}

	ended, err := svc.End(ctx, s.ID, owner)
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if ended == nil || ended.Status != models.StatusEnded {
		t.Fatalf("expected ended session, got %+v", ended)
	}
}

func TestListActive_redactsKeys(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	a, _ := svc.IssueKey(ctx, uuid.New())
	svc.Activate(ctx, a.StreamKey)
	b, _ := svc.IssueKey(ctx, uuid.New())
	svc.Activate(ctx, b.StreamKey)

	list, err := svc.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 active sessions, got %d", len(list))
	}
	for _, s := range list {
		if s.StreamKey != "" {
			t.Error("active listing must never leak stream keys")
		}
	}
}
