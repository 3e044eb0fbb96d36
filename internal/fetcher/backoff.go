package fetcher

import (
	"math"
	"math/rand"
	"time"
)

// Backoff computes exponential retry delays with jitter, capped at
// MaxInterval. The exponent grows unboundedly in the caller's attempt
// counter but the returned duration never exceeds MaxInterval, matching
// the half-hour ceiling the reference SDK uses for its own retry loop.
type Backoff struct {
	Base        time.Duration
	MaxInterval time.Duration
	Jitter      float64
}

// DefaultBackoff mirrors the reference SDK's Backoff(base=1) with its
//30-minute ceiling, plus a small jitter factor this Go rewrite adds to
// avoid synchronized retries across many SDK instances.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:        time.Second,
		MaxInterval: 30 * time.Minute,
		Jitter:      0.1,
	}
}

// Next returns the delay for the given 0-based attempt number.
func (b Backoff) Next(attempt int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = time.Second
	}
	max := b.MaxInterval
	if max <= 0 {
		max = 30 * time.Minute
	}

	interval := float64(base) * math.Pow(2, float64(attempt))
	if interval > float64(max) {
		interval = float64(max)
	}

	if b.Jitter > 0 {
		delta := (rand.Float64()*2 - 1) * b.Jitter
		interval *= 1 + delta
	}
	if interval > float64(max) {
		interval = float64(max)
	}
	if interval < 0 {
		interval = 0
	}
	return time.Duration(interval)
}
