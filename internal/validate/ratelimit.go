package validate

import (
	"sync"
	"time"
)

const (
	// DefaultRateLimit is the maximum number of messages per window.
	DefaultRateLimit = 60
	// DefaultRateWindow is the length of the counting window.
	DefaultRateWindow = time.Minute
)

type rateCounter struct {
	windowStart time.Time
	count       int
}

// RateLimiter is a fixed-window message counter keyed by identity. The
// window resets abruptly, so bursts across a window boundary can briefly
// exceed the steady-state rate.
type RateLimiter struct {
	mu       sync.Mutex
	counters map[string]*rateCounter
	limit    int
	window   time.Duration
	now      func() time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	if window <= 0 {
		window = DefaultRateWindow
	}

	return &RateLimiter{
		counters: make(map[string]*rateCounter),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

// Allow records one message for identity and reports whether it is within
// the limit. Exactly limit messages per window are allowed; the next is
// rejected until the window resets.
func (rl *RateLimiter) Allow(identity string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	c, ok := rl.counters[identity]
	if !ok {
		c = &rateCounter{windowStart: now}
		rl.counters[identity] = c
	}

	if now.Sub(c.windowStart) > rl.window {
		c.windowStart = now
		c.count = 0
	}

	c.count++
	return c.count <= rl.limit
}

// Forget drops the counter for identity. Called at connection teardown so
// the map does not accumulate entries for dead connections.
func (rl *RateLimiter) Forget(identity string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	delete(rl.counters, identity)
}
