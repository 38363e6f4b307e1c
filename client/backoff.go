package client

import (
	"math/rand"
	"time"
)

// Backoff computes reconnection delays: exponential doubling from Base,
// capped at Max, with ±25% jitter so a fleet of clients does not retry in
// lockstep. It is pure — the caller sleeps.
type Backoff struct {
	Base        time.Duration
	Max         time.Duration
	MaxAttempts int

	// ServerClose is the fixed short delay used when the server closed the
	// connection cleanly: the server is healthy, so waiting out a backoff
	// window would only add latency.
	ServerClose time.Duration

	// rnd returns a value in [0,1); injectable for tests.
	rnd func() float64
}

// DefaultBackoff matches the documented reconnection policy.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:        time.Second,
		Max:         30 * time.Second,
		MaxAttempts: 10,
		ServerClose: 500 * time.Millisecond,
	}
}

// Delay returns the wait before retry attempt n (zero-based). The result
// is in [d*0.75, d*1.25] for d = min(Base<<n, Max).
func (b Backoff) Delay(attempt int) time.Duration {
	d := b.Base
	for i := 0; i < attempt && d < b.Max; i++ {
		d *= 2
	}
	if d > b.Max {
		d = b.Max
	}
	rnd := b.rnd
	if rnd == nil {
		rnd = rand.Float64
	}
	jitter := 0.75 + rnd()*0.5
	return time.Duration(float64(d) * jitter)
}

// Exhausted reports whether attempt n (zero-based) is past the attempt
// budget.
func (b Backoff) Exhausted(attempt int) bool {
	return b.MaxAttempts > 0 && attempt >= b.MaxAttempts
}
