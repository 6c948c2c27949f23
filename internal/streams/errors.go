package streams

import "errors"

var (
	// ErrSessionNotFound means no session matches the given id or key.
	ErrSessionNotFound = errors.New("stream session not found")
	// ErrKeyInvalidOrExpired means the key does not belong to a live, unexpired session.
	ErrKeyInvalidOrExpired = errors.New("stream key invalid or expired")
	// ErrNotOwner means the caller tried a control action on someone else's session.
	ErrNotOwner = errors.New("not the session owner")
	// ErrOwnerHasLiveSession is returned by Store.Insert when the single-flight
	// invariant would be violated (one scheduled/active session per owner).
	ErrOwnerHasLiveSession = errors.New("owner already has a live session")
)
