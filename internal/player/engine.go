package player

import "context"

// Engine is the adaptive playback engine behind the player state machine.
// Implementations report runtime errors on the channel passed to Attach; the
// player classifies them and either asks the engine to self-heal or tears it
// down and reprobes.
type Engine interface {
	// Attach binds the engine to an accepted manifest URL. Errors occurring
	// after a successful Attach are sent on errs.
	Attach(ctx context.Context, manifestURL string, errs chan<- *PlaybackError) error
	// Play starts playback. muted requests muted playback to satisfy
	// autoplay policies; ErrAutoplayBlocked means an explicit user gesture
	// is required.
	Play(muted bool) error
	// Pause suspends playback without detaching.
	Pause()
	// RecoverNetwork reloads the current segment-loading session in place.
	RecoverNetwork() error
	// RecoverMedia attempts in-place decoder recovery.
	RecoverMedia() error
	// Detach stops the engine and releases the media resource. Must be safe
	// to call repeatedly.
	Detach()
}
