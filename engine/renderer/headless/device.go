package headless

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/spaghettifunk/castle/engine/containers"
	"github.com/spaghettifunk/castle/engine/core"
	"github.com/spaghettifunk/castle/engine/renderer/metadata"
)

const addressShift = 40

// Max number of queue operations waiting for the GPU timeline.
const maxPendingOperations = 1024

/**
 * @brief An in-memory device. Buffers are plain byte slices, and a goroutine plays
 * the GPU timeline: submitted command lists are executed in order and fences are
 * written once everything queued before them ran. Executing a draw snapshots
 * the constant records it reads, so the data the GPU saw can be inspected.
 *
 * Hold and Release stall and resume the timeline; LoseDevice makes every wait fail.
 */
type Device struct {
	mu      sync.Mutex
	id      uuid.UUID
	buffers map[uint64]*Buffer
	nextID  uint64
	fences  []*Fence
	lost    bool

	queue   *Queue
	surface *Surface

	timeline *timeline
}

func New(width, height uint32) *Device {
	d := &Device{
		id:      uuid.New(),
		buffers: make(map[uint64]*Buffer),
		nextID:  1,
	}
	d.timeline = newTimeline()
	d.queue = &Queue{device: d}
	d.surface = &Surface{device: d, width: width, height: height, bufferCount: 2}
	go d.timeline.run()
	core.LogDebug("headless device %s created (%dx%d)", d.id, width, height)
	return d
}

func (d *Device) CreateUploadBuffer(name string, size uint64) (metadata.Buffer, error) {
	return d.createBuffer(name, size, nil, true)
}

func (d *Device) CreateStaticBuffer(name string, usage metadata.BufferUsage, data []byte) (metadata.Buffer, error) {
	return d.createBuffer(name, uint64(len(data)), data, false)
}

func (d *Device) createBuffer(name string, size uint64, data []byte, mapped bool) (*Buffer, error) {
	if size == 0 {
		return nil, fmt.Errorf("buffer %s: size must be greater than zero", name)
	}
	if size >= 1<<addressShift {
		return nil, fmt.Errorf("buffer %s: size %d too large", name, size)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return nil, core.ErrDeviceLost
	}

	b := &Buffer{
		device: d,
		id:     d.nextID,
		name:   name,
		data:   make([]byte, size),
		mapped: mapped,
	}
	copy(b.data, data)
	d.buffers[b.id] = b
	d.nextID++
	return b, nil
}

// resolve maps an address back to its buffer and the offset inside it.
func (d *Device) resolve(address metadata.GPUAddress) (*Buffer, uint64, error) {
	id := uint64(address) >> addressShift
	offset := uint64(address) & (1<<addressShift - 1)
	d.mu.Lock()
	b, ok := d.buffers[id]
	d.mu.Unlock()
	if !ok {
		return nil, 0, fmt.Errorf("address %#x does not belong to a live buffer", uint64(address))
	}
	if offset >= uint64(len(b.data)) {
		return nil, 0, fmt.Errorf("address %#x is past the end of buffer %s", uint64(address), b.name)
	}
	return b, offset, nil
}

func (d *Device) releaseBuffer(b *Buffer) {
	d.mu.Lock()
	delete(d.buffers, b.id)
	d.mu.Unlock()
}

func (d *Device) CreateFence(initialValue uint64) (metadata.Fence, error) {
	f := &Fence{device: d, value: initialValue, changed: make(chan struct{})}
	d.mu.Lock()
	d.fences = append(d.fences, f)
	d.mu.Unlock()
	return f, nil
}

func (d *Device) CreateCommandAllocator() (metadata.CommandAllocator, error) {
	return &CommandAllocator{device: d}, nil
}

func (d *Device) CreateCommandList(alloc metadata.CommandAllocator) (metadata.CommandList, error) {
	a, ok := alloc.(*CommandAllocator)
	if !ok {
		return nil, fmt.Errorf("command allocator %T does not belong to the headless device", alloc)
	}
	return &CommandList{device: d, allocator: a, recording: true}, nil
}

func (d *Device) CreatePipelineState(desc metadata.PipelineDesc) (metadata.PipelineState, error) {
	if desc.Name == "" {
		return nil, fmt.Errorf("pipeline state requires a name")
	}
	return &PipelineState{desc: desc}, nil
}

func (d *Device) CreateDescriptorHeap(count uint32) (metadata.DescriptorHeap, error) {
	if count == 0 {
		return nil, fmt.Errorf("descriptor heap requires at least one descriptor")
	}
	return &DescriptorHeap{device: d, views: make([]constantBufferView, count)}, nil
}

func (d *Device) Queue() metadata.Queue {
	return d.queue
}

func (d *Device) Surface() metadata.Surface {
	return d.surface
}

func (d *Device) Destroy() error {
	d.timeline.stop()
	d.mu.Lock()
	leaked := len(d.buffers)
	d.mu.Unlock()
	if leaked > 0 {
		core.LogWarn("headless device destroyed with %d live buffers", leaked)
	}
	return nil
}

// LiveBuffers is the number of buffers not yet destroyed.
func (d *Device) LiveBuffers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buffers)
}

// Hold stops the GPU timeline before its next operation.
func (d *Device) Hold() {
	d.timeline.hold()
}

// Release resumes a held GPU timeline.
func (d *Device) Release() {
	d.timeline.release()
}

// WaitIdle blocks until every queued operation ran. The timeline must not be held.
func (d *Device) WaitIdle() {
	d.timeline.waitIdle()
}

// LoseDevice simulates a removed device: every pending and future wait fails.
func (d *Device) LoseDevice() {
	d.mu.Lock()
	d.lost = true
	fences := append([]*Fence(nil), d.fences...)
	d.mu.Unlock()
	for _, f := range fences {
		f.notify()
	}
}

func (d *Device) isLost() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lost
}

// Executed returns the command lists run by the GPU timeline so far, in order.
func (d *Device) Executed() []ExecutedList {
	return d.timeline.executedLists()
}

// Presents is the number of presents executed so far.
func (d *Device) Presents() int {
	return d.surface.presents()
}

type timelineOp func()

type timeline struct {
	mu       sync.Mutex
	cond     *sync.Cond
	pending  *containers.RingQueue[timelineOp]
	held     bool
	busy     bool
	stopped  bool
	executed []ExecutedList
}

func newTimeline() *timeline {
	t := &timeline{pending: containers.NewRingQueue[timelineOp](maxPendingOperations)}
	t.cond = sync.NewCond(&t.mu)
	return t
}

func (t *timeline) enqueue(op timelineOp) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return core.ErrDeviceLost
	}
	if err := t.pending.Enqueue(op); err != nil {
		return fmt.Errorf("gpu timeline: %w", err)
	}
	t.cond.Broadcast()
	return nil
}

func (t *timeline) run() {
	for {
		t.mu.Lock()
		for !t.stopped && (t.held || t.pending.IsEmpty()) {
			t.cond.Wait()
		}
		if t.stopped {
			t.mu.Unlock()
			return
		}
		op, _ := t.pending.Dequeue()
		t.busy = true
		t.mu.Unlock()

		op()

		t.mu.Lock()
		t.busy = false
		t.cond.Broadcast()
		t.mu.Unlock()
	}
}

func (t *timeline) record(list ExecutedList) {
	t.mu.Lock()
	t.executed = append(t.executed, list)
	t.mu.Unlock()
}

func (t *timeline) executedLists() []ExecutedList {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]ExecutedList(nil), t.executed...)
}

func (t *timeline) hold() {
	t.mu.Lock()
	t.held = true
	t.mu.Unlock()
}

func (t *timeline) release() {
	t.mu.Lock()
	t.held = false
	t.cond.Broadcast()
	t.mu.Unlock()
}

func (t *timeline) waitIdle() {
	t.mu.Lock()
	for !t.stopped && (t.busy || !t.pending.IsEmpty()) {
		t.cond.Wait()
	}
	t.mu.Unlock()
}

func (t *timeline) stop() {
	t.mu.Lock()
	t.stopped = true
	t.cond.Broadcast()
	t.mu.Unlock()
}
