package ratelimit

import (
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func TestTokenBucket_Burst(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	b := NewTokenBucket(clock, 3, 1)

	for i := 0; i < 3; i++ {
		if !b.Allow() {
			t.Fatalf("request %d within capacity was denied", i)
		}
	}
	if b.Allow() {
		t.Fatalf("request beyond capacity was allowed")
	}
}

func TestTokenBucket_Refill(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	b := NewTokenBucket(clock, 2, 2)

	b.Allow()
	b.Allow()
	if b.Allow() {
		t.Fatalf("bucket should be empty")
	}

	clock.advance(500 * time.Millisecond) // refills one token at 2/s
	if !b.Allow() {
		t.Fatalf("expected one refilled token")
	}
	if b.Allow() {
		t.Fatalf("only one token should have refilled")
	}
}

func TestTokenBucket_RefillClampedToCapacity(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	b := NewTokenBucket(clock, 2, 100)

	clock.advance(time.Hour)
	for i := 0; i < 2; i++ {
		if !b.Allow() {
			t.Fatalf("request %d within capacity was denied", i)
		}
	}
	if b.Allow() {
		t.Fatalf("refill must not exceed capacity")
	}
}

func TestTokenBucket_BackwardsClock(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	b := NewTokenBucket(clock, 1, 1)

	b.Allow()
	clock.advance(-time.Hour)
	if b.Allow() {
		t.Fatalf("a clock moving backwards must not mint tokens")
	}

	clock.advance(time.Hour + time.Second)
	if !b.Allow() {
		t.Fatalf("expected refill once the clock recovers")
	}
}

func TestTokenBucket_ZeroCapacityDeniesAll(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	b := NewTokenBucket(clock, 0, 10)

	if b.Allow() {
		t.Fatalf("zero-capacity bucket must deny")
	}
}
