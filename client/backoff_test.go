package client

import (
	"testing"
	"time"
)

// fixedRand pins the jitter factor for deterministic delay checks.
func fixedRand(v float64) func() float64 {
	return func() float64 { return v }
}

func TestDelayDoublesPerAttempt(t *testing.T) {
	b := DefaultBackoff()
	b.rnd = fixedRand(0.5) // jitter factor exactly 1.0

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second}, // capped
		{10, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := b.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestDelayJitterBounds(t *testing.T) {
	b := DefaultBackoff()

	low := b
	low.rnd = fixedRand(0)
	high := b
	high.rnd = fixedRand(0.999999)

	for attempt := 0; attempt < 8; attempt++ {
		base := 1 * time.Second << uint(attempt)
		if base > 30*time.Second {
			base = 30 * time.Second
		}
		min := time.Duration(float64(base) * 0.75)
		max := time.Duration(float64(base) * 1.25)

		if got := low.Delay(attempt); got < min || got > max {
			t.Errorf("low Delay(%d) = %v, outside [%v, %v]", attempt, got, min, max)
		}
		if got := high.Delay(attempt); got < min || got > max {
			t.Errorf("high Delay(%d) = %v, outside [%v, %v]", attempt, got, min, max)
		}
	}
}

func TestExhausted(t *testing.T) {
	b := DefaultBackoff()

	if b.Exhausted(0) {
		t.Error("attempt 0 should not be exhausted")
	}
	if b.Exhausted(b.MaxAttempts - 1) {
		t.Error("last allowed attempt should not be exhausted")
	}
	if !b.Exhausted(b.MaxAttempts) {
		t.Error("attempt at the limit should be exhausted")
	}

	unlimited := b
	unlimited.MaxAttempts = 0
	if unlimited.Exhausted(1_000_000) {
		t.Error("zero MaxAttempts means retry forever")
	}
}

func TestServerCloseDelayIsShort(t *testing.T) {
	b := DefaultBackoff()
	if b.ServerClose >= b.Base {
		t.Errorf("ServerClose = %v, want shorter than the first backoff %v", b.ServerClose, b.Base)
	}
}
