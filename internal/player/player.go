package player

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/andyyong11/streamdj/pkg/retry"
)

// State is the playback attempt state: probing -> attached -> playing <->
// paused, with error reachable from any state.
type State int

const (
	StateIdle State = iota
	StateProbing
	StateAttached
	StatePlaying
	StatePaused
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProbing:
		return "probing"
	case StateAttached:
		return "attached"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Config configures a playback attempt.
type Config struct {
	// Candidates is the ordered manifest URL probe list.
	Candidates []string
	// Probe bounds the probe retry loop. Playback probing uses a fixed
	// interval, so the zero JitterFactor is the norm here.
	Probe retry.Policy
	// Engine is the playback engine to attach. Required.
	Engine Engine
	// OnState, OnUserGesture are optional UI callbacks. OnUserGesture fires
	// when the engine rejects programmatic playback and an explicit
	// click-to-play control must be shown.
	OnState       func(State)
	OnUserGesture func()
	Logger        *zap.Logger
}

// Player drives manifest discovery, the bounded probe retry loop and runtime
// error recovery for one playback view. Close is idempotent and synchronously
// stops retries, detaches the engine and releases the media resource.
type Player struct {
	cfg    Config
	prober *Prober
	logger *zap.Logger

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc

	closeOnce sync.Once
	closed    chan struct{}
}

// New creates a Player. prober may be nil for a default.
func New(cfg Config, prober *Prober) *Player {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Probe.MaxAttempts <= 0 {
		cfg.Probe.MaxAttempts = 5
	}
	if prober == nil {
		prober = NewProber(nil, cfg.Logger)
	}
	return &Player{
		cfg:    cfg,
		prober: prober,
		logger: cfg.Logger,
		state:  StateIdle,
		closed: make(chan struct{}),
	}
}

// State returns the current playback state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Player) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
	if p.cfg.OnState != nil {
		p.cfg.OnState(s)
	}
}

// Run drives the playback attempt until ctx is done, Close is called, or the
// probe budget is exhausted (ErrStreamUnavailable — terminal, caller offers a
// manual retry by calling Run again). A successful probe resets the attempt
// counter: each re-entry into probing gets the full budget.
func (p *Player) Run(ctx context.Context) error {
	select {
	case <-p.closed:
		return ErrClosed
	default:
	}

	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()
	defer cancel()

	for {
		p.setState(StateProbing)
		manifestURL, err := p.probe(ctx)
		if err != nil {
			p.setState(StateError)
			return err
		}

		fatal, err := p.playOnce(ctx, manifestURL)
		if err != nil {
			return err
		}
		if !fatal {
			return nil
		}
		// Fatal runtime error: full teardown already done, back to probing.
	}
}

// probe runs the bounded candidate probe loop.
func (p *Player) probe(ctx context.Context) (string, error) {
	var manifestURL string
	err := p.cfg.Probe.Run(ctx, func(ctx context.Context) error {
		url, err := p.prober.Probe(ctx, p.cfg.Candidates)
		if err != nil {
			return err
		}
		manifestURL = url
		return nil
	})
	if err != nil {
		if errors.Is(err, retry.ErrAttemptsExhausted) {
			p.logger.Warn("probe budget exhausted", zap.Int("attempts", p.cfg.Probe.MaxAttempts))
			return "", ErrStreamUnavailable
		}
		return "", err
	}
	return manifestURL, nil
}

// playOnce attaches the engine and services runtime errors until the stream
// finishes, ctx is cancelled, or a fatal error forces a reprobe (fatal=true).
func (p *Player) playOnce(ctx context.Context, manifestURL string) (fatal bool, err error) {
	errs := make(chan *PlaybackError, 8)
	if err := p.cfg.Engine.Attach(ctx, manifestURL, errs); err != nil {
		// Could not even attach: treat as fatal and reprobe.
		p.logger.Warn("engine attach failed", zap.Error(err))
		return true, nil
	}
	defer p.cfg.Engine.Detach()
	p.setState(StateAttached)

	// Request muted playback first to satisfy autoplay policies.
	if err := p.cfg.Engine.Play(true); err != nil {
		if errors.Is(err, ErrAutoplayBlocked) {
			if p.cfg.OnUserGesture != nil {
				p.cfg.OnUserGesture()
			}
			// Stay attached; Resume supplies the user gesture.
		} else {
			p.logger.Warn("initial play failed", zap.Error(err))
			return true, nil
		}
	} else {
		p.setState(StatePlaying)
	}

	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case pe, ok := <-errs:
			if !ok {
				// Engine finished cleanly (stream ended).
				return false, nil
			}
			switch pe.Kind {
			case ErrorNetwork:
				p.logger.Info("network playback error, reloading in place", zap.Error(pe.Err))
				if err := p.cfg.Engine.RecoverNetwork(); err != nil {
					return true, nil
				}
			case ErrorMedia:
				p.logger.Info("media playback error, recovering decoder", zap.Error(pe.Err))
				if err := p.cfg.Engine.RecoverMedia(); err != nil {
					return true, nil
				}
			default:
				p.logger.Warn("fatal playback error, tearing down", zap.Error(pe.Err))
				return true, nil
			}
		}
	}
}

// Resume starts or resumes playback with a user gesture (unmuted).
func (p *Player) Resume() error {
	p.mu.Lock()
	s := p.state
	p.mu.Unlock()
	if s != StateAttached && s != StatePaused {
		return nil
	}
	if err := p.cfg.Engine.Play(false); err != nil {
		return err
	}
	p.setState(StatePlaying)
	return nil
}

// Pause suspends playback without detaching.
func (p *Player) Pause() {
	p.mu.Lock()
	s := p.state
	p.mu.Unlock()
	if s != StatePlaying {
		return
	}
	p.cfg.Engine.Pause()
	p.setState(StatePaused)
}

// Close synchronously stops retries, detaches the engine and releases the
// media resource. Safe to call repeatedly; no timers outlive the view.
func (p *Player) Close() {
	p.closeOnce.Do(func() {
		close(p.closed)
		p.mu.Lock()
		cancel := p.cancel
		p.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		p.cfg.Engine.Detach()
		p.setState(StateIdle)
	})
}
