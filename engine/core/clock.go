package core

import "time"

// Clock is the game timer. Elapsed time excludes the periods the clock was stopped,
// so a paused application does not see a huge delta when it resumes.
type Clock struct {
	now func() time.Time

	baseTime   time.Time
	prevTime   time.Time
	stopTime   time.Time
	pausedTime time.Duration
	delta      float64
	stopped    bool
}

func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// Start resets the clock and begins measuring.
func (c *Clock) Start() {
	t := c.now()
	c.baseTime = t
	c.prevTime = t
	c.pausedTime = 0
	c.delta = 0
	c.stopped = false
}

// Stop pauses the clock. Does not reset elapsed time.
func (c *Clock) Stop() {
	if c.stopped {
		return
	}
	c.stopTime = c.now()
	c.stopped = true
}

// Resume continues a stopped clock; the stopped interval is not counted.
func (c *Clock) Resume() {
	if !c.stopped {
		return
	}
	t := c.now()
	c.pausedTime += t.Sub(c.stopTime)
	c.prevTime = t
	c.stopped = false
}

// Update advances the clock. Should be called once per frame before reading Delta.
// Has no effect on stopped clocks.
func (c *Clock) Update() {
	if c.stopped {
		c.delta = 0
		return
	}
	t := c.now()
	c.delta = t.Sub(c.prevTime).Seconds()
	c.prevTime = t
	// the clock may go backwards on some platforms when the process moves between cores
	if c.delta < 0 {
		c.delta = 0
	}
}

// Delta is the time in seconds between the last two updates.
func (c *Clock) Delta() float64 {
	return c.delta
}

// Elapsed is the total running time in seconds, minus the time spent stopped.
func (c *Clock) Elapsed() float64 {
	end := c.prevTime
	if c.stopped {
		end = c.stopTime
	}
	return (end.Sub(c.baseTime) - c.pausedTime).Seconds()
}

func (c *Clock) Stopped() bool {
	return c.stopped
}
