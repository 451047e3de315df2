// Package ratelimit implements a per-client token bucket used to shed load
// on the HTTP front before queries reach the search service.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// bucket tracks the token state for a single client key.
type bucket struct {
	tokens    float64
	lastCheck time.Time
}

// Limiter refills each key at rate tokens per second up to burst.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64
	burst   float64
	now     func() time.Time
}

// New creates a limiter. A burst below one is raised to one.
func New(ratePerSecond, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    float64(ratePerSecond),
		burst:   float64(burst),
		now:     time.Now,
	}
}

// Allow consumes one token for key and reports whether one was available.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		l.buckets[key] = &bucket{tokens: l.burst - 1, lastCheck: now}
		return true
	}

	elapsed := now.Sub(b.lastCheck).Seconds()
	b.lastCheck = now
	b.tokens = min(l.burst, b.tokens+elapsed*l.rate)
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// RetryAfter is how long a rejected client should wait for one token.
func (l *Limiter) RetryAfter() time.Duration {
	if l.rate <= 0 {
		return time.Minute
	}
	return time.Duration(float64(time.Second) / l.rate)
}

// Reset clears the state for a specific key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Run evicts idle keys every interval until ctx is cancelled. A key is idle
// once its bucket would have refilled completely.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.evictIdle()
		}
	}
}

func (l *Limiter) evictIdle() {
	l.mu.Lock()
	defer l.mu.Unlock()
	idle := time.Minute
	if l.rate > 0 {
		idle = time.Duration(l.burst / l.rate * float64(time.Second))
	}
	cutoff := l.now().Add(-idle)
	for key, b := range l.buckets {
		if b.lastCheck.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}
