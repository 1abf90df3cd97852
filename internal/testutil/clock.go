package testutil

import (
	"sync"
	"time"
)

// Clock provides deterministic, monotonically increasing timestamps.
// Every call to Now advances the clock by one step. Safe for concurrent use.
type Clock struct {
	mu      sync.Mutex
	current time.Time
	step    time.Duration
}

// NewClock returns a clock initialized to a fixed UTC start time that
// advances one second per reading.
func NewClock() *Clock {
	return &Clock{
		current: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		step:    time.Second,
	}
}

// Now advances the clock by one step and returns the new time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = c.current.Add(c.step)

	return c.current
}

// Set moves the clock to t. The next Now returns t plus one step.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = t
}

// Frozen returns a clock function that always reports t.
func Frozen(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
