// Package clock provides an injectable time source for the routing engine's
// grace-period and flood-interval logic, so tests can advance time without
// sleeping.
package clock

import (
	"sync"
	"time"
)

// Clock provides both wall-clock timestamps and a monotonically increasing
// session counter seed.
type Clock struct {
	mu         sync.Mutex
	lastUnique uint32
	nowFn      func() time.Time // overridable for testing
}

// New creates a Clock backed by the system clock.
func New() *Clock {
	return &Clock{nowFn: time.Now}
}

// Now returns the current time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nowFn()
}

// Since returns the elapsed duration since t, measured against this clock's
// time source (not necessarily wall-clock time, under test).
func (c *Clock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// GetCurrentTime returns the current UNIX epoch time as uint32.
func (c *Clock) GetCurrentTime() uint32 {
	return uint32(c.Now().Unix())
}

// SetCurrentTime overrides the clock source with a fixed base value that
// advances with real elapsed time from the moment it is called. Useful for
// bootstrapping from an externally supplied timestamp.
func (c *Clock) SetCurrentTime(t uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	base := time.Now()
	offset := t
	c.nowFn = func() time.Time {
		return time.Unix(int64(offset), 0).Add(time.Since(base))
	}
}

// GetCurrentTimeUnique returns a strictly increasing timestamp. If the real
// clock hasn't advanced past the last returned value, the internal counter
// is bumped by 1.
func (c *Clock) GetCurrentTimeUnique() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := uint32(c.nowFn().Unix())
	if t <= c.lastUnique {
		c.lastUnique++
		return c.lastUnique
	}
	c.lastUnique = t
	return t
}
