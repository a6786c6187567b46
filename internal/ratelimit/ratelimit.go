// Package ratelimit provides a deterministic token bucket used to cap the
// rate of inbound signaling messages per connection.
package ratelimit

import (
	"sync"
	"time"
)

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// RealClock is the production Clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// TokenBucket refills at an integer rate (tokens/sec) up to a fixed
// capacity. It is safe for concurrent use, although the signaling read loop
// only consults it from a single goroutine.
type TokenBucket struct {
	mu sync.Mutex

	clock    Clock
	capacity float64
	rate     float64 // tokens/sec

	tokens float64
	last   time.Time
}

func NewTokenBucket(clock Clock, capacity, rate int) *TokenBucket {
	if clock == nil {
		clock = RealClock{}
	}
	if capacity < 0 {
		capacity = 0
	}
	if rate < 0 {
		rate = 0
	}
	return &TokenBucket{
		clock:    clock,
		capacity: float64(capacity),
		rate:     float64(rate),
		tokens:   float64(capacity),
		last:     clock.Now(),
	}
}

// Allow consumes one token if available.
func (b *TokenBucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	if now.After(b.last) {
		b.tokens += now.Sub(b.last).Seconds() * b.rate
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
	}
	// A clock that moved backwards only shifts the reference point.
	b.last = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
