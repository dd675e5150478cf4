package server

import (
	"sync"
	"time"

	"github.com/dinehub/realtime-gateway/internal/config"
)

// rateLimiter is a per-key sliding window counter used to throttle
// handshakes and publish calls. State is per instance; a shared backend is
// not needed for abuse protection at the transport edge.
type rateLimiter struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	hits   map[string][]time.Time
}

func newRateLimiter(cfg config.RateLimitConfig) *rateLimiter {
	return &rateLimiter{
		window: cfg.Window,
		max:    cfg.MaxRequests,
		hits:   make(map[string][]time.Time),
	}
}

// allow records a hit for key and reports whether it is within the window
// budget. Expired hits are pruned in place.
func (r *rateLimiter) allow(key string) bool {
	if r.max <= 0 {
		return true
	}

	now := time.Now()
	cutoff := now.Add(-r.window)

	r.mu.Lock()
	defer r.mu.Unlock()

	hits := r.hits[key]
	kept := hits[:0]
	for _, t := range hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= r.max {
		r.hits[key] = kept
		return false
	}

	r.hits[key] = append(kept, now)
	return true
}
