package testutil

import (
	"sync"
	"time"
)

// WallClock is a deterministic wall clock for tests.
//
// Each call to Now returns start plus n steps, where n is the number of
// previous calls. Completion timestamps in golden traces stay stable
// across runs.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type WallClock struct {
	mu    sync.Mutex
	start time.Time
	step  time.Duration
	calls int64
}

// NewWallClock creates a clock starting at start. A zero step freezes it.
func NewWallClock(start time.Time, step time.Duration) *WallClock {
	return &WallClock{start: start.UTC(), step: step}
}

// Now returns the next timestamp.
func (c *WallClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.start.Add(time.Duration(c.calls) * c.step)
	c.calls++
	return t
}

// Calls returns how many times Now has been called.
func (c *WallClock) Calls() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Reset rewinds the clock to its start.
func (c *WallClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = 0
}
