package hub

import (
	"sync"
	"time"
)

// rateLimiter is a token bucket used to throttle inbound frames per
// connection. Frames over the limit are dropped, never queued.
type rateLimiter struct {
	mu        sync.Mutex
	tokens    float64
	capacity  float64
	rate      float64
	lastCheck time.Time
}

func newRateLimiter(burst int, refillInterval time.Duration) *rateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if refillInterval <= 0 {
		refillInterval = time.Second
	}
	return &rateLimiter{
		tokens:    float64(burst),
		capacity:  float64(burst),
		rate:      float64(burst) / refillInterval.Seconds(),
		lastCheck: time.Now(),
	}
}

func (rl *rateLimiter) allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(rl.lastCheck).Seconds()
	rl.lastCheck = now

	if elapsed > 0 {
		rl.tokens += elapsed * rl.rate
		if rl.tokens > rl.capacity {
			rl.tokens = rl.capacity
		}
	}
	if rl.tokens < 1 {
		return false
	}
	rl.tokens--
	return true
}
