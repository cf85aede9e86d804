package helpers

import (
	"context"
	"sync/atomic"
	"time"
)

// CoarseClock is a single atomic seconds counter advanced by a background
// goroutine, read by hot paths in place of time.Now(). Every component that
// needs "now" at second resolution (decision caches, answer cache TTLs)
// shares this instead of hitting the OS clock per lookup.
type CoarseClock struct {
	seconds atomic.Int64
}

// NewCoarseClock creates a clock already seeded with the current wall time.
func NewCoarseClock() *CoarseClock {
	c := &CoarseClock{}
	c.seconds.Store(time.Now().Unix())
	return c
}

// Seconds returns the clock's current value (Unix seconds).
func (c *CoarseClock) Seconds() int64 {
	return c.seconds.Load()
}

// Advance adds d to the clock's value directly, bypassing the wall clock.
// Used by tests that need deterministic TTL expiry without real sleeps.
func (c *CoarseClock) Advance(d time.Duration) {
	c.seconds.Add(int64(d.Seconds()))
}

// Run advances the clock once per tick until ctx is cancelled. Intended to
// be started once, in a single background goroutine, by the process that
// owns this clock.
func (c *CoarseClock) Run(ctx context.Context, tick time.Duration) {
	if tick <= 0 {
		tick = time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.seconds.Store(time.Now().Unix())
		}
	}
}
