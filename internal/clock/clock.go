package clock

import (
	"sync"
	"time"
)

// Clock is a time source abstraction
// Components take a Clock instead of calling time.Now directly so that
// time-dependent behavior can be tested deterministically
type Clock interface {
	// Now returns the current time
	Now() time.Time

	// Sleep blocks for the given duration
	Sleep(d time.Duration)
}

// SystemClock is a Clock backed by the real system time
type SystemClock struct{}

// NewSystemClock creates a system clock
func NewSystemClock() *SystemClock {
	return &SystemClock{}
}

// Now returns the current system time
func (c *SystemClock) Now() time.Time {
	return time.Now()
}

// Sleep blocks for the given duration
func (c *SystemClock) Sleep(d time.Duration) {
	time.Sleep(d)
}

// FixtureClock is a Clock with a manually controlled current time
// Sleep advances the clock instead of blocking
type FixtureClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixtureClock creates a fixture clock starting at the given time
func NewFixtureClock(start time.Time) *FixtureClock {
	return &FixtureClock{now: start}
}

// Now returns the fixture's current time
func (c *FixtureClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep advances the fixture clock by d without blocking
func (c *FixtureClock) Sleep(d time.Duration) {
	c.Advance(d)
}

// Advance moves the fixture clock forward by d
func (c *FixtureClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
