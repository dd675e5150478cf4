package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dinehub/realtime-gateway/internal/config"
)

func TestRateLimiter_AllowWithinBudget(t *testing.T) {
	limiter := newRateLimiter(config.RateLimitConfig{Window: time.Minute, MaxRequests: 3})

	assert.True(t, limiter.allow("10.0.0.1"))
	assert.True(t, limiter.allow("10.0.0.1"))
	assert.True(t, limiter.allow("10.0.0.1"))
	assert.False(t, limiter.allow("10.0.0.1"))

	// Keys are independent.
	assert.True(t, limiter.allow("10.0.0.2"))
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	limiter := newRateLimiter(config.RateLimitConfig{Window: 20 * time.Millisecond, MaxRequests: 1})

	assert.True(t, limiter.allow("k"))
	assert.False(t, limiter.allow("k"))

	time.Sleep(30 * time.Millisecond)
	assert.True(t, limiter.allow("k"), "hits outside the window are pruned")
}

func TestRateLimiter_ZeroMaxDisables(t *testing.T) {
	limiter := newRateLimiter(config.RateLimitConfig{Window: time.Minute, MaxRequests: 0})

	for i := 0; i < 1000; i++ {
		assert.True(t, limiter.allow("k"))
	}
}
