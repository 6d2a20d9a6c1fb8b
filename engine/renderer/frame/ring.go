package frame

import (
	"context"
	"fmt"

	"github.com/spaghettifunk/castle/engine/core"
	"github.com/spaghettifunk/castle/engine/renderer/metadata"
)

// The number of frames the CPU may run ahead of the GPU.
const DefaultFrameResourceCount = 3

/**
 * @brief The explicit per-frame handle returned by Ring.Begin. Everything that
 * writes constants or records commands for the frame receives it.
 */
type Context struct {
	// Ring slot used by this frame.
	Index int
	// Monotonic frame number, starting at 0.
	Number   uint64
	Resource *Resource
	// Whether Begin had to block for the GPU to release the slot.
	Waited bool
}

/**
 * @brief A fixed ring of frame resources. Frame n uses slot n mod N; a slot
 * is handed out again only once the GPU passed its checkpoint, so at most N
 * frames are ever in flight.
 */
type Ring struct {
	resources   []*Resource
	timeline    *Timeline
	frameNumber uint64
	active      *Context
	closed      bool
}

func NewRing(device metadata.Device, count int, config ResourceConfig) (*Ring, error) {
	if count < 1 {
		return nil, fmt.Errorf("frame resource ring needs at least one slot, got %d", count)
	}
	timeline, err := NewTimeline(device)
	if err != nil {
		return nil, err
	}

	r := &Ring{
		resources: make([]*Resource, 0, count),
		timeline:  timeline,
	}
	for i := 0; i < count; i++ {
		res, err := NewResource(device, i, config)
		if err != nil {
			for _, created := range r.resources {
				created.Destroy()
			}
			timeline.Destroy()
			return nil, err
		}
		r.resources = append(r.resources, res)
	}
	core.LogDebug("frame resource ring created with %d slots (%d objects, %d materials)", count, config.ObjectCount, config.MaterialCount)
	return r, nil
}

// Begin selects the next slot, blocking only while the GPU still uses it.
func (r *Ring) Begin(ctx context.Context) (*Context, error) {
	if r.closed {
		return nil, core.ErrRingClosed
	}
	if r.active != nil {
		return nil, core.ErrFrameInProgress
	}

	index := int(r.frameNumber % uint64(len(r.resources)))
	res := r.resources[index]

	waited, err := r.timeline.Wait(ctx, res.Fence)
	if err != nil {
		return nil, fmt.Errorf("waiting for frame resource %d (fence %d): %w", index, res.Fence, err)
	}

	res.State = FRAME_STATE_RECORDING
	r.active = &Context{
		Index:    index,
		Number:   r.frameNumber,
		Resource: res,
		Waited:   waited,
	}
	return r.active, nil
}

// End marks the frame's slot with a fresh checkpoint and queues its signal.
// Must be called after the frame's command lists were executed.
func (r *Ring) End(fc *Context) error {
	if r.closed {
		return core.ErrRingClosed
	}
	if r.active == nil || fc != r.active {
		return core.ErrNoFrame
	}
	value, err := r.timeline.Signal()
	if err != nil {
		return err
	}
	fc.Resource.Fence = value
	fc.Resource.State = FRAME_STATE_SUBMITTED
	r.active = nil
	r.frameNumber++
	return nil
}

// Flush waits until the GPU drained every submitted frame.
func (r *Ring) Flush(ctx context.Context) error {
	if r.closed {
		return core.ErrRingClosed
	}
	if err := r.timeline.Flush(ctx); err != nil {
		return fmt.Errorf("flushing frame resource ring: %w", err)
	}
	for _, res := range r.resources {
		if res.State == FRAME_STATE_SUBMITTED {
			res.State = FRAME_STATE_IDLE
		}
	}
	return nil
}

// Destroy flushes and releases every slot. The ring is unusable afterwards.
func (r *Ring) Destroy(ctx context.Context) error {
	if r.closed {
		return nil
	}
	err := r.Flush(ctx)
	if err != nil {
		// The GPU may still read the regions, keep them alive.
		core.LogError("frame resources leaked: %s", err)
		r.closed = true
		return err
	}
	for _, res := range r.resources {
		res.Destroy()
	}
	r.timeline.Destroy()
	r.closed = true
	return nil
}

// Count is the number of slots N.
func (r *Ring) Count() int {
	return len(r.resources)
}

func (r *Ring) Resource(index int) *Resource {
	return r.resources[index]
}

// FrameNumber is the number of frames ended so far.
func (r *Ring) FrameNumber() uint64 {
	return r.frameNumber
}

func (r *Ring) Timeline() *Timeline {
	return r.timeline
}

// InFlight is the number of submitted frames the GPU has not finished yet.
func (r *Ring) InFlight() int {
	completed := r.timeline.Completed()
	n := 0
	for _, res := range r.resources {
		if res.Fence != 0 && res.Fence > completed {
			n++
		}
	}
	return n
}
