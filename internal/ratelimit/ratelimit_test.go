package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestLimiter(rate, burst int) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	l := New(rate, burst)
	l.now = clock.now
	return l, clock
}

func TestBurstThenReject(t *testing.T) {
	l, _ := newTestLimiter(1, 3)
	for i := range 3 {
		assert.True(t, l.Allow("client"), "request %d", i)
	}
	assert.False(t, l.Allow("client"))
	assert.True(t, l.Allow("other"), "keys are independent")
}

func TestRefill(t *testing.T) {
	l, clock := newTestLimiter(2, 1)
	assert.True(t, l.Allow("c"))
	assert.False(t, l.Allow("c"))

	clock.t = clock.t.Add(500 * time.Millisecond)
	assert.True(t, l.Allow("c"))
	assert.False(t, l.Allow("c"))
}

func TestRefillCapsAtBurst(t *testing.T) {
	l, clock := newTestLimiter(10, 2)
	assert.True(t, l.Allow("c"))
	clock.t = clock.t.Add(time.Hour)
	assert.True(t, l.Allow("c"))
	assert.True(t, l.Allow("c"))
	assert.False(t, l.Allow("c"))
}

func TestEvictIdle(t *testing.T) {
	l, clock := newTestLimiter(1, 5)
	l.Allow("a")
	clock.t = clock.t.Add(10 * time.Second)
	l.Allow("b")
	l.evictIdle()
	assert.Equal(t, 1, l.Len())
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, 250*time.Millisecond, New(4, 1).RetryAfter())
}
