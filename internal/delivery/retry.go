package delivery

import (
	"math"
	"math/rand"
	"time"
)

// Policy computes backoff delays for redelivery attempts. It is pure: with
// jitter disabled, identical inputs always produce identical output.
//
// The schedule follows delay = min(BaseDelay × BackoffMultiplier^attempt,
// MaxDelay), with an optional uniform ±25% jitter to spread retry storms
// across simultaneously failing connections.
type Policy struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	Jitter            bool
}

// DefaultPolicy returns the gateway's default retry behavior.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:       5,
		BaseDelay:         500 * time.Millisecond,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// Delay returns the wait before the retry following the given attempt count.
func (p Policy) Delay(attempt int) time.Duration {
	delay := p.base(attempt)
	if !p.Jitter {
		return delay
	}

	// Uniform offset in [-25%, +25%], clamped to non-negative.
	offset := (rand.Float64() - 0.5) * 0.5 * float64(delay)
	jittered := time.Duration(float64(delay) + offset)
	if jittered < 0 {
		return 0
	}
	return jittered
}

func (p Policy) base(attempt int) time.Duration {
	if attempt <= 0 {
		return p.BaseDelay
	}
	delay := float64(p.BaseDelay) * math.Pow(p.BackoffMultiplier, float64(attempt))
	if delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// Exhausted reports whether no further attempts are allowed.
func (p Policy) Exhausted(attempts int) bool {
	return attempts >= p.MaxAttempts
}
