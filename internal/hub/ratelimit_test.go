package hub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_BurstThenDeny(t *testing.T) {
	rl := newRateLimiter(3, time.Hour)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.allow(), "call %d within burst", i)
	}
	assert.False(t, rl.allow(), "bucket exhausted")
}

func TestRateLimiter_Refills(t *testing.T) {
	rl := newRateLimiter(2, 100*time.Millisecond)

	assert.True(t, rl.allow())
	assert.True(t, rl.allow())
	assert.False(t, rl.allow())

	time.Sleep(120 * time.Millisecond)
	assert.True(t, rl.allow(), "tokens restored after the refill interval")
}

func TestRateLimiter_DefaultsForBadArguments(t *testing.T) {
	rl := newRateLimiter(0, 0)
	assert.True(t, rl.allow(), "degenerate config still admits traffic")
}
