package player

import (
	"errors"
	"fmt"
)

var (
	// ErrStreamUnavailable is the terminal probe failure: every candidate
	// manifest URL failed for the whole retry budget. The caller should
	// surface it with a manual retry affordance.
	ErrStreamUnavailable = errors.New("stream unavailable")
	// ErrManifestUnavailable is one failed probe attempt (transient, retried).
	ErrManifestUnavailable = errors.New("manifest unavailable")
	// ErrAutoplayBlocked is returned by an engine when programmatic playback
	// was rejected and an explicit user gesture is required.
	ErrAutoplayBlocked = errors.New("autoplay blocked")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("player closed")
)

// ErrorKind classifies a runtime playback error, which determines whether
// the engine self-heals in place or the player tears down and reprobes.
type ErrorKind int

const (
	// ErrorNetwork: reload the current segment-loading session, no teardown.
	ErrorNetwork ErrorKind = iota + 1
	// ErrorMedia: attempt in-place decoder recovery.
	ErrorMedia
	// ErrorFatal: full teardown, return to probing.
	ErrorFatal
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorNetwork:
		return "network"
	case ErrorMedia:
		return "media"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// PlaybackError is a runtime error reported by an attached engine.
type PlaybackError struct {
	Kind ErrorKind
	Err  error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("playback %s error: %v", e.Kind, e.Err)
}

func (e *PlaybackError) Unwrap() error { return e.Err }
