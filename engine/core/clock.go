package core

import "time"

// Clock measures elapsed wall time for the frame loop. The zero value
// is stopped.
type Clock struct {
	start   time.Time
	elapsed time.Duration
}

func NewClock() *Clock {
	return &Clock{}
}

// Start resets the elapsed time and begins counting.
func (c *Clock) Start() {
	c.start = time.Now()
	c.elapsed = 0
}

// Update samples the running clock. Call just before reading Elapsed.
// No effect on a stopped clock.
func (c *Clock) Update() {
	if !c.start.IsZero() {
		c.elapsed = time.Since(c.start)
	}
}

// Stop freezes the clock at its current elapsed time.
func (c *Clock) Stop() {
	c.start = time.Time{}
}

func (c *Clock) Elapsed() time.Duration {
	return c.elapsed
}
