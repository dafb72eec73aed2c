package validate

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterBoundary(t *testing.T) {
	rl := NewRateLimiter(60, time.Minute)

	// Exactly the limit is allowed within one window.
	for i := 0; i < 60; i++ {
		assert.True(t, rl.Allow("alice"), "expected message %d to be allowed", i+1)
	}

	assert.False(t, rl.Allow("alice"), "expected the 61st message to be rejected")
	assert.False(t, rl.Allow("alice"), "expected subsequent messages to stay rejected")
}

func TestRateLimiterPerIdentity(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)

	assert.True(t, rl.Allow("alice"))
	assert.True(t, rl.Allow("alice"))
	assert.False(t, rl.Allow("alice"))

	// A different identity has its own counter.
	assert.True(t, rl.Allow("bob"))
}

func TestRateLimiterWindowReset(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)

	current := time.Now()
	rl.now = func() time.Time { return current }

	assert.True(t, rl.Allow("alice"))
	assert.True(t, rl.Allow("alice"))
	assert.False(t, rl.Allow("alice"))

	// Advance past the window; the counter resets and messages flow again.
	current = current.Add(time.Minute + time.Second)
	assert.True(t, rl.Allow("alice"), "expected messages to be allowed after window reset")
}

func TestRateLimiterForget(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)

	assert.True(t, rl.Allow("alice"))
	assert.False(t, rl.Allow("alice"))

	rl.Forget("alice")
	assert.True(t, rl.Allow("alice"), "expected a fresh counter after Forget")

	// Forgetting a missing identity is a no-op.
	rl.Forget("nobody")
}

func TestRateLimiterDefaults(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	assert.Equal(t, DefaultRateLimit, rl.limit)
	assert.Equal(t, DefaultRateWindow, rl.window)
}

func TestRateLimiterConcurrent(t *testing.T) {
	rl := NewRateLimiter(1000, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				rl.Allow("shared")
			}
		}()
	}
	wg.Wait()

	// All 1000 calls consumed the budget; the next is rejected.
	assert.False(t, rl.Allow("shared"))
}
