package batch

import (
	"math"
	"time"
)

// BackoffConfig shapes the retry delay curve for retryable item failures.
// Pattern with the defaults: 2s, 4s, 8s, 16s, capped at 30s, each spread by
// ±25% jitter so concurrent jobs do not resynchronize against the upstream.
type BackoffConfig struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Jitter    float64
}

// DefaultBackoff returns the retry curve used in production.
func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		BaseDelay: 2 * time.Second,
		MaxDelay:  30 * time.Second,
		Jitter:    0.25,
	}
}

// Delay computes the wait before retry number attempt (0-based: attempt 0 is
// the delay after the first failure). random must return a value in [0, 1);
// it is a parameter so the arithmetic stays deterministic under test.
func (c BackoffConfig) Delay(attempt int, random func() float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := c.BaseDelay
	if base <= 0 {
		base = 2 * time.Second
	}
	cap := c.MaxDelay
	if cap <= 0 {
		cap = 30 * time.Second
	}

	delay := float64(base) * math.Pow(2, float64(attempt))
	if delay > float64(cap) {
		delay = float64(cap)
	}

	jitter := c.Jitter
	if jitter < 0 {
		jitter = 0
	}
	if jitter > 1 {
		jitter = 1
	}
	// Spread uniformly across [1-jitter, 1+jitter).
	factor := 1 - jitter + 2*jitter*random()
	return time.Duration(delay * factor)
}
