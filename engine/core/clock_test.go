package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeTime struct {
	t time.Time
}

func (f *fakeTime) now() time.Time { return f.t }

func (f *fakeTime) advance(d time.Duration) { f.t = f.t.Add(d) }

func TestClockDeltaAndElapsed(t *testing.T) {
	ft := &fakeTime{t: time.Unix(1000, 0)}
	c := NewClock()
	c.now = ft.now

	c.Start()
	ft.advance(250 * time.Millisecond)
	c.Update()
	assert.InDelta(t, 0.25, c.Delta(), 1e-9)

	ft.advance(500 * time.Millisecond)
	c.Update()
	assert.InDelta(t, 0.5, c.Delta(), 1e-9)
	assert.InDelta(t, 0.75, c.Elapsed(), 1e-9)
}

func TestClockStopExcludesPausedTime(t *testing.T) {
	ft := &fakeTime{t: time.Unix(0, 0)}
	c := NewClock()
	c.now = ft.now

	c.Start()
	ft.advance(time.Second)
	c.Update()
	c.Stop()
	assert.True(t, c.Stopped())

	ft.advance(10 * time.Second)
	c.Update()
	assert.Zero(t, c.Delta())
	assert.InDelta(t, 1.0, c.Elapsed(), 1e-9)

	c.Resume()
	ft.advance(time.Second)
	c.Update()
	assert.InDelta(t, 1.0, c.Delta(), 1e-9)
	assert.InDelta(t, 2.0, c.Elapsed(), 1e-9)
}
