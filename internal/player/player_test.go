package player

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/andyyong11/streamdj/pkg/retry"
)

// fakeEngine scripts runtime error delivery per attach: scripts[i] runs for
// the i-th attach; with no script the errs channel closes at once (clean end).
type fakeEngine struct {
	mu            sync.Mutex
	attaches      int
	detaches      int
	plays         int
	netRecovers   int
	mediaRecovers int
	playErr       error
	scripts       []func(errs chan<- *PlaybackError)
}

func (e *fakeEngine) Attach(_ context.Context, _ string, errs chan<- *PlaybackError) error {
	e.mu.Lock()
	i := e.attaches
	e.attaches++
	var script func(chan<- *PlaybackError)
	if i < len(e.scripts) {
		script = e.scripts[i]
	}
	e.mu.Unlock()
	if script == nil {
		close(errs)
		return nil
	}
	go script(errs)
	return nil
}

func (e *fakeEngine) Play(bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.plays++
	return e.playErr
}

func (e *fakeEngine) Pause() {}

func (e *fakeEngine) RecoverNetwork() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.netRecovers++
	return nil
}

func (e *fakeEngine) RecoverMedia() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mediaRecovers++
	return nil
}

func (e *fakeEngine) Detach() {
	e.mu.Lock()
	e.detaches++
	e.mu.Unlock()
}

func (e *fakeEngine) counts() (attaches, detaches, net, media int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attaches, e.detaches, e.netRecovers, e.mediaRecovers
}

type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) record(s State) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *stateRecorder) saw(want State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.states {
		if s == want {
			return true
		}
	}
	return false
}

func newTestPlayer(t *testing.T, engine *fakeEngine, rec *stateRecorder, gesture func()) *Player {
	t.Helper()
	srv := manifestTestServer(t)
	cfg := Config{
		Candidates:    []string{srv.URL + "/good/index.m3u8"},
		Probe:         retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond},
		Engine:        engine,
		OnUserGesture: gesture,
	}
	if rec != nil {
		cfg.OnState = rec.record
	}
	return New(cfg, NewProber(srv.Client(), nil))
}

func TestPlayer_cleanEnd(t *testing.T) {
	engine := &fakeEngine{}
	rec := &stateRecorder{}
	p := newTestPlayer(t, engine, rec, nil)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	attaches, detaches, _, _ := engine.counts()
	if attaches != 1 || detaches != 1 {
		t.Errorf("attaches=%d detaches=%d, want 1/1", attaches, detaches)
	}
	for _, want := range []State{StateProbing, StateAttached, StatePlaying} {
		if !rec.saw(want) {
			t.Errorf("never entered state %v", want)
		}
	}
}

func TestPlayer_probeBudgetExhaustedIsTerminal(t *testing.T) {
	engine := &fakeEngine{}
	rec := &stateRecorder{}
	srv := manifestTestServer(t)
	p := New(Config{
		Candidates: []string{srv.URL + "/missing/index.m3u8"},
		Probe:      retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond},
		Engine:     engine,
		OnState:    rec.record,
	}, NewProber(srv.Client(), nil))

	err := p.Run(context.Background())
	if !errors.Is(err, ErrStreamUnavailable) {
		t.Fatalf("expected ErrStreamUnavailable, got %v", err)
	}
	if !rec.saw(StateError) {
		t.Error("exhausted probe must land in the error state")
	}
	if attaches, _, _, _ := engine.counts(); attaches != 0 {
		t.Errorf("engine attached %d times without a manifest", attaches)
	}
}

func TestPlayer_networkErrorRecoversInPlace(t *testing.T) {
	engine := &fakeEngine{
		scripts: []func(chan<- *PlaybackError){
			func(errs chan<- *PlaybackError) {
				errs <- &PlaybackError{Kind: ErrorNetwork, Err: errors.New("segment timeout")}
				close(errs)
			},
		},
	}
	p := newTestPlayer(t, engine, nil, nil)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	attaches, _, net, _ := engine.counts()
	if net != 1 {
		t.Errorf("RecoverNetwork calls = %d, want 1", net)
	}
	if attaches != 1 {
		t.Errorf("network errors must not tear down: attaches = %d", attaches)
	}
}

func TestPlayer_mediaErrorRecoversDecoder(t *testing.T) {
	engine := &fakeEngine{
		scripts: []func(chan<- *PlaybackError){
			func(errs chan<- *PlaybackError) {
				errs <- &PlaybackError{Kind: ErrorMedia, Err: errors.New("decode stall")}
				close(errs)
			},
		},
	}
	p := newTestPlayer(t, engine, nil, nil)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, _, _, media := engine.counts(); media != 1 {
		t.Errorf("RecoverMedia calls = %d, want 1", media)
	}
}

func TestPlayer_fatalErrorReprobesWithFreshBudget(t *testing.T) {
	engine := &fakeEngine{
		scripts: []func(chan<- *PlaybackError){
			func(errs chan<- *PlaybackError) {
				errs <- &PlaybackError{Kind: ErrorFatal, Err: errors.New("container parse")}
			},
			// Second attach: clean end.
			func(errs chan<- *PlaybackError) { close(errs) },
		},
	}
	p := newTestPlayer(t, engine, nil, nil)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	attaches, detaches, _, _ := engine.counts()
	if attaches != 2 {
		t.Errorf("fatal error must tear down and reprobe: attaches = %d, want 2", attaches)
	}
	if detaches != 2 {
		t.Errorf("detaches = %d, want 2", detaches)
	}
}

func TestPlayer_autoplayBlockedStaysAttached(t *testing.T) {
	gestured := make(chan struct{}, 1)
	engine := &fakeEngine{playErr: ErrAutoplayBlocked}
	rec := &stateRecorder{}
	p := newTestPlayer(t, engine, rec, func() {
		select {
		case gestured <- struct{}{}:
		default:
		}
	})

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	select {
	case <-gestured:
	default:
		t.Fatal("OnUserGesture was never invoked")
	}
	if rec.saw(StatePlaying) {
		t.Error("blocked autoplay must not report playing")
	}
	if !rec.saw(StateAttached) {
		t.Error("blocked autoplay must stay attached awaiting the gesture")
	}
}

func TestPlayer_resumeAfterGesture(t *testing.T) {
	engine := &fakeEngine{playErr: ErrAutoplayBlocked}
	rec := &stateRecorder{}
	p := newTestPlayer(t, engine, rec, nil)

	// Hold the run loop open so Resume happens while attached.
	block := make(chan struct{})
	engine.scripts = []func(chan<- *PlaybackError){
		func(errs chan<- *PlaybackError) {
			<-block
			close(errs)
		},
	}

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	waitForState(t, rec, StateAttached)
	engine.mu.Lock()
	engine.playErr = nil
	engine.mu.Unlock()

	if err := p.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if p.State() != StatePlaying {
		t.Errorf("state after Resume = %v, want playing", p.State())
	}

	close(block)
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestPlayer_pauseResume(t *testing.T) {
	engine := &fakeEngine{}
	rec := &stateRecorder{}
	p := newTestPlayer(t, engine, rec, nil)

	block := make(chan struct{})
	engine.scripts = []func(chan<- *PlaybackError){
		func(errs chan<- *PlaybackError) {
			<-block
			close(errs)
		},
	}

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()
	waitForState(t, rec, StatePlaying)

	p.Pause()
	if p.State() != StatePaused {
		t.Errorf("state = %v, want paused", p.State())
	}
	if err := p.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if p.State() != StatePlaying {
		t.Errorf("state = %v, want playing", p.State())
	}

	close(block)
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestPlayer_closeIdempotent(t *testing.T) {
	engine := &fakeEngine{}
	p := newTestPlayer(t, engine, nil, nil)

	p.Close()
	p.Close()

	if err := p.Run(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Run after Close = %v, want ErrClosed", err)
	}
	if _, detaches, _, _ := engine.counts(); detaches != 1 {
		t.Errorf("detaches = %d, want exactly 1", detaches)
	}
}

func TestPlayer_closeStopsRun(t *testing.T) {
	engine := &fakeEngine{}
	rec := &stateRecorder{}
	p := newTestPlayer(t, engine, rec, nil)

	block := make(chan struct{})
	defer close(block)
	engine.scripts = []func(chan<- *PlaybackError){
		func(errs chan<- *PlaybackError) { <-block },
	}

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()
	waitForState(t, rec, StatePlaying)

	p.Close()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run after Close = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not stop the run loop")
	}
	if p.State() != StateIdle {
		t.Errorf("state after Close = %v, want idle", p.State())
	}
}

func waitForState(t *testing.T, rec *stateRecorder, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if rec.saw(want) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %v", want)
}
