package frame

import (
	"context"
	"fmt"

	"github.com/spaghettifunk/castle/engine/renderer/metadata"
)

/**
 * @brief The CPU side of the GPU timeline: a counter of issued signals and the
 * fence the queue writes them into. Values are only ever incremented.
 */
type Timeline struct {
	fence   metadata.Fence
	queue   metadata.Queue
	current uint64
}

func NewTimeline(device metadata.Device) (*Timeline, error) {
	fence, err := device.CreateFence(0)
	if err != nil {
		return nil, fmt.Errorf("creating timeline fence: %w", err)
	}
	return &Timeline{fence: fence, queue: device.Queue()}, nil
}

// Signal advances the counter and asks the queue to publish it once prior work completes.
func (t *Timeline) Signal() (uint64, error) {
	t.current++
	if err := t.queue.Signal(t.fence, t.current); err != nil {
		return 0, fmt.Errorf("signalling fence value %d: %w", t.current, err)
	}
	return t.current, nil
}

// Completed is the highest value the GPU has reached.
func (t *Timeline) Completed() uint64 {
	return t.fence.CompletedValue()
}

// Current is the last value handed out by Signal.
func (t *Timeline) Current() uint64 {
	return t.current
}

// Wait blocks until value is reached. Zero means "never submitted" and returns
// immediately, as does a value the GPU already passed. Reports whether it blocked.
func (t *Timeline) Wait(ctx context.Context, value uint64) (bool, error) {
	if value == 0 || t.fence.CompletedValue() >= value {
		return false, nil
	}
	if err := t.fence.WaitUntil(ctx, value); err != nil {
		return true, err
	}
	return true, nil
}

// Flush signals a fresh value and waits for it, draining all submitted work.
func (t *Timeline) Flush(ctx context.Context) error {
	value, err := t.Signal()
	if err != nil {
		return err
	}
	_, err = t.Wait(ctx, value)
	return err
}

func (t *Timeline) Destroy() {
	t.fence.Destroy()
}
