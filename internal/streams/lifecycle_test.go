package streams

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/andyyong11/streamdj/internal/models"
	"github.com/andyyong11/streamdj/internal/presence"
)

// Full broadcast lifecycle: key issuance, ingest activation, three distinct
// viewers, a silent tab reload reaped after the grace window, owner ending
// the stream, and key invalidation.
func TestBroadcastLifecycle(t *testing.T) {
	ctx := context.Background()
	owner := uuid.New()

	b := &fakeBroadcaster{}
	svc := NewService(NewMemoryStore(), b, time.Hour, nil)

	var lastCount int
	reg := presence.NewRegistry(30*time.Millisecond, func(_ uuid.UUID, count int) {
		lastCount = count
	}, nil)

	session, err := svc.IssueKey(ctx, owner)
	if err != nil {
		t.Fatalf("IssueKey: %v", err)
	}
	if session.Status != models.StatusScheduled {
		t.Fatalf("status = %v, want scheduled", session.Status)
	}

	active, err := svc.Activate(ctx, session.StreamKey)
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if active.Status != models.StatusActive || active.StartTime.IsZero() {
		t.Fatalf("activation must set active status and start time: %+v", active)
	}
	if b.count(EventStreamStarted) != 1 {
		t.Errorf("stream_started broadcasts = %d, want 1", b.count(EventStreamStarted))
	}

	reg.Join(active.ID, "viewer-1")
	reg.Join(active.ID, "viewer-2")
	reg.Join(active.ID, "viewer-3")
	if lastCount != 3 {
		t.Fatalf("count after three viewers = %d, want 3", lastCount)
	}

	// viewer-3's tab reloads without a leave; the others keep heartbeating.
	time.Sleep(50 * time.Millisecond)
	reg.Heartbeat(active.ID, "viewer-1")
	reg.Heartbeat(active.ID, "viewer-2")
	reg.Reap()
	if lastCount != 2 {
		t.Fatalf("count after grace-window reap = %d, want 2", lastCount)
	}

	ended, err := svc.End(ctx, active.ID, owner)
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if ended.Status != models.StatusEnded {
		t.Fatalf("status = %v, want ended", ended.Status)
	}
	if b.count(EventStreamEnded) != 1 {
		t.Errorf("stream_ended broadcasts = %d, want 1", b.count(EventStreamEnded))
	}

	reg.Leave(ended.ID, "viewer-1")
	reg.Leave(ended.ID, "viewer-2")
	if lastCount != 0 {
		t.Fatalf("count after everyone leaves = %d, want 0", lastCount)
	}

	if ok, _ := svc.ValidateKey(ctx, session.StreamKey); ok {
		t.Error("the key of an ended session must not validate")
	}
}
