package chat

import "sync"

// EchoSet remembers the fingerprints of messages this client just sent, so
// the server's broadcast copy of each one can be dropped exactly once.
// System messages bypass the set entirely.
type EchoSet struct {
	mu   sync.Mutex
	sent map[string]struct{}
}

// NewEchoSet returns an empty echo set.
func NewEchoSet() *EchoSet {
	return &EchoSet{sent: make(map[string]struct{})}
}

// Record registers an outgoing message's fingerprint. Call before transmit.
func (e *EchoSet) Record(m Message) {
	if m.System {
		return
	}
	e.mu.Lock()
	e.sent[m.Fingerprint()] = struct{}{}
	e.mu.Unlock()
}

// Suppress reports whether an incoming broadcast is this client's own echo.
// A matching fingerprint is evicted on first hit, so a duplicate of the same
// message is rendered rather than silently eaten.
func (e *EchoSet) Suppress(m Message) bool {
	if m.System {
		return false
	}
	fp := m.Fingerprint()
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.sent[fp]; !ok {
		return false
	}
	delete(e.sent, fp)
	return true
}

// Len returns the number of pending fingerprints (outgoing messages whose
// echo has not come back yet).
func (e *EchoSet) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sent)
}
