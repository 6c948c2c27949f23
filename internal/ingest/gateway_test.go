package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/andyyong11/streamdj/internal/models"
	"github.com/andyyong11/streamdj/internal/streams"
)

type fakeArchiver struct {
	mu       sync.Mutex
	sessions []models.StreamSession
}

func (f *fakeArchiver) EnqueueArchive(_ context.Context, s models.StreamSession) error {
	f.mu.Lock()
	f.sessions = append(f.sessions, s)
	f.mu.Unlock()
	return nil
}

func newTestGateway(t *testing.T) (*Gateway, *streams.Service, *fakeArchiver) {
	t.Helper()
	svc := streams.NewService(streams.NewMemoryStore(), nil, time.Hour, nil)
	arch := &fakeArchiver{}
	return NewGateway(svc, arch, nil), svc, arch
}

func TestGateway_publishLifecycle(t *testing.T) {
	gw, svc, arch := newTestGateway(t)
	ctx := context.Background()

	session, err := svc.IssueKey(ctx, uuid.New())
	if err != nil {
		t.Fatalf("IssueKey: %v", err)
	}

	if err := gw.OnPrePublish(ctx, session.StreamKey); err != nil {
		t.Fatalf("OnPrePublish: %v", err)
	}
	gw.OnPostPublish(ctx, session.StreamKey)

	got, _ := svc.GetSession(ctx, session.ID)
	if got.Status != models.StatusActive {
		t.Fatalf("status after post-publish = %v, want active", got.Status)
	}

	gw.OnDonePublish(ctx, session.StreamKey)
	got, _ = svc.GetSession(ctx, session.ID)
	if got.Status != models.StatusEnded {
		t.Fatalf("status after done-publish = %v, want ended", got.Status)
	}

	arch.mu.Lock()
	defer arch.mu.Unlock()
	if len(arch.sessions) != 1 || arch.sessions[0].ID != session.ID {
		t.Errorf("expected one archive job for %v, got %v", session.ID, arch.sessions)
	}
}

func TestGateway_prePublishRefusesBadKey(t *testing.T) {
	gw, _, _ := newTestGateway(t)

	err := gw.OnPrePublish(context.Background(), "not-a-key")
	if !errors.Is(err, streams.ErrKeyInvalidOrExpired) {
		t.Errorf("expected ErrKeyInvalidOrExpired, got %v", err)
	}
}

func TestGateway_hooksNeverPanicOnViolations(t *testing.T) {
	gw, svc, arch := newTestGateway(t)
	ctx := context.Background()

	// Out-of-order and unknown-key callbacks must all be silent no-ops.
	gw.OnPostPublish(ctx, "unknown")
	gw.OnDonePublish(ctx, "unknown")

	session, _ := svc.IssueKey(ctx, uuid.New())
	gw.OnDonePublish(ctx, session.StreamKey) // done before post

	got, _ := svc.GetSession(ctx, session.ID)
	if got.Status != models.StatusScheduled {
		t.Errorf("status = %v, want scheduled untouched", got.Status)
	}
	arch.mu.Lock()
	defer arch.mu.Unlock()
	if len(arch.sessions) != 0 {
		t.Errorf("no-op callbacks must not enqueue archives, got %d", len(arch.sessions))
	}
}

func TestGateway_doubleDonePublishArchivesOnce(t *testing.T) {
	gw, svc, arch := newTestGateway(t)
	ctx := context.Background()

	session, _ := svc.IssueKey(ctx, uuid.New())
	gw.OnPostPublish(ctx, session.StreamKey)
	gw.OnDonePublish(ctx, session.StreamKey)
	gw.OnDonePublish(ctx, session.StreamKey)

	arch.mu.Lock()
	defer arch.mu.Unlock()
	if len(arch.sessions) != 1 {
		t.Errorf("archive jobs = %d, want exactly 1", len(arch.sessions))
	}
}

func postForm(t *testing.T, router *gin.Engine, path, key string) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{}
	if key != "" {
		form.Set("name", key)
	}
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func newWebhookRouter(t *testing.T) (*gin.Engine, *streams.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	gw, svc, _ := newTestGateway(t)
	h := NewWebhookHandler(gw, nil)
	router := gin.New()
	router.POST("/hooks/publish", h.Publish)
	router.POST("/hooks/publish_done", h.PublishDone)
	return router, svc
}

func TestWebhook_publishAcceptsValidKey(t *testing.T) {
	router, svc := newWebhookRouter(t)

	session, _ := svc.IssueKey(context.Background(), uuid.New())
	w := postForm(t, router, "/hooks/publish", session.StreamKey)
	if w.Code != http.StatusOK {
		t.Fatalf("publish status = %d, want 200", w.Code)
	}

	got, _ := svc.GetSession(context.Background(), session.ID)
	if got.Status != models.StatusActive {
		t.Errorf("status = %v, want active", got.Status)
	}
}

func TestWebhook_publishRefusesBadKey(t *testing.T) {
	router, _ := newWebhookRouter(t)

	if w := postForm(t, router, "/hooks/publish", "bogus"); w.Code != http.StatusForbidden {
		t.Errorf("bad key publish status = %d, want 403", w.Code)
	}
	if w := postForm(t, router, "/hooks/publish", ""); w.Code != http.StatusBadRequest {
		t.Errorf("missing key publish status = %d, want 400", w.Code)
	}
}

func TestWebhook_publishDoneAlways200(t *testing.T) {
	router, _ := newWebhookRouter(t)

	if w := postForm(t, router, "/hooks/publish_done", "whatever"); w.Code != http.StatusOK {
		t.Errorf("publish_done status = %d, want 200", w.Code)
	}
	if w := postForm(t, router, "/hooks/publish_done", ""); w.Code != http.StatusOK {
		t.Errorf("publish_done without key status = %d, want 200", w.Code)
	}
}
