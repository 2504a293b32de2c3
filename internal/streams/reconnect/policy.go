// Package reconnect implements the exponential-backoff policy used by every
// ReconnectingStream (spec §5). It is deliberately tiny and dependency-free:
// the policy itself is pure math, while the stream loop that consumes it
// lives in the parent streams package.
package reconnect

import "time"

// Policy is an exponential backoff schedule capped at Max, matching the
// reconnection policy the original engine hard-codes at startup (base 1s,
// factor 2.0, max 64s, unbounded attempts).
type Policy struct {
	Base        time.Duration
	Factor      float64
	Max         time.Duration
	MaxAttempts int // 0 means unbounded
}

// DefaultPolicy is the engine-wide default reconnection schedule.
func DefaultPolicy() Policy {
	return Policy{
		Base:        time.Second,
		Factor:      2.0,
		Max:         64 * time.Second,
		MaxAttempts: 0,
	}
}

// Delay returns the backoff duration before the given attempt (0-indexed:
// attempt 0 is the first reconnect try). The result never exceeds Max.
func (p Policy) Delay(attempt int) time.Duration {
	d := float64(p.Base)
	for i := 0; i < attempt; i++ {
		d *= p.Factor
		if d >= float64(p.Max) {
			return p.Max
		}
	}
	if d > float64(p.Max) {
		return p.Max
	}
	return time.Duration(d)
}

// Exhausted reports whether attempt has used up the policy's retry budget.
// A zero MaxAttempts means retries are unbounded.
func (p Policy) Exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt >= p.MaxAttempts
}
