// Package retry provides a small reusable retry policy shared by the
// session expiry sweep, the job queue and the playback probe loop.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// ErrAttemptsExhausted is returned by Run when every attempt failed.
var ErrAttemptsExhausted = errors.New("retry: attempts exhausted")

// Policy describes a bounded retry loop. BaseDelay is the wait between
// attempts; JitterFactor (0..1) randomizes each wait by +/- that fraction
// to avoid thundering herds. MaxAttempts <= 0 means a single attempt.
type Policy struct {
	MaxAttempts  int
	BaseDelay    time.Duration
	JitterFactor float64
}

// Delay returns the wait before the next attempt, with jitter applied.
func (p Policy) Delay() time.Duration {
	d := p.BaseDelay
	if d <= 0 {
		return 0
	}
	if p.JitterFactor > 0 {
		f := 1 + p.JitterFactor*(2*rand.Float64()-1)
		d = time.Duration(float64(d) * f)
	}
	return d
}

// Run calls fn up to MaxAttempts times, sleeping Delay() between failures.
// It stops early when fn succeeds or ctx is done. The last error from fn
// is wrapped together with ErrAttemptsExhausted when the bound is hit.
func (p Policy) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		timer := time.NewTimer(p.Delay())
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return errors.Join(ErrAttemptsExhausted, lastErr)
}
