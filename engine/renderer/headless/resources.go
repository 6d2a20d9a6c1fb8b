package headless

import (
	"context"
	"fmt"
	"sync"

	"github.com/spaghettifunk/castle/engine/core"
	"github.com/spaghettifunk/castle/engine/renderer/metadata"
)

type Buffer struct {
	device *Device
	id     uint64
	name   string
	data   []byte
	mapped bool
}

func (b *Buffer) Name() string { return b.name }

func (b *Buffer) Size() uint64 { return uint64(len(b.data)) }

func (b *Buffer) Address() metadata.GPUAddress {
	return metadata.GPUAddress(b.id << addressShift)
}

func (b *Buffer) Bytes() []byte {
	if !b.mapped {
		return nil
	}
	return b.data
}

func (b *Buffer) Destroy() {
	b.device.releaseBuffer(b)
}

type Fence struct {
	device *Device

	mu      sync.Mutex
	value   uint64
	changed chan struct{}
}

func (f *Fence) CompletedValue() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

func (f *Fence) WaitUntil(ctx context.Context, value uint64) error {
	for {
		if f.device.isLost() {
			return fmt.Errorf("waiting for fence value %d: %w", value, core.ErrDeviceLost)
		}
		f.mu.Lock()
		if f.value >= value {
			f.mu.Unlock()
			return nil
		}
		changed := f.changed
		f.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (f *Fence) Destroy() {}

func (f *Fence) set(value uint64) {
	f.mu.Lock()
	f.value = value
	f.mu.Unlock()
	f.notify()
}

func (f *Fence) notify() {
	f.mu.Lock()
	close(f.changed)
	f.changed = make(chan struct{})
	f.mu.Unlock()
}

type CommandAllocator struct {
	device *Device

	mu     sync.Mutex
	resets int
}

func (a *CommandAllocator) Reset() error {
	a.mu.Lock()
	a.resets++
	a.mu.Unlock()
	return nil
}

// Resets is how many times the allocator was reset.
func (a *CommandAllocator) Resets() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.resets
}

func (a *CommandAllocator) Destroy() {}

type PipelineState struct {
	desc metadata.PipelineDesc
}

func (p *PipelineState) Name() string { return p.desc.Name }

func (p *PipelineState) Desc() metadata.PipelineDesc { return p.desc }

func (p *PipelineState) Destroy() {}

type constantBufferView struct {
	address metadata.GPUAddress
	size    uint32
	valid   bool
}

type DescriptorHeap struct {
	device *Device

	mu    sync.Mutex
	views []constantBufferView
}

func (h *DescriptorHeap) Count() uint32 {
	return uint32(len(h.views))
}

func (h *DescriptorHeap) CreateConstantBufferView(index uint32, address metadata.GPUAddress, size uint32) error {
	if index >= uint32(len(h.views)) {
		return fmt.Errorf("descriptor %d outside heap of %d: %w", index, len(h.views), core.ErrCapacityExceeded)
	}
	if uint64(size)%metadata.ConstantBufferAlignment != 0 {
		return fmt.Errorf("constant buffer view size %d is not a multiple of %d", size, metadata.ConstantBufferAlignment)
	}
	if _, _, err := h.device.resolve(address); err != nil {
		return err
	}
	h.mu.Lock()
	h.views[index] = constantBufferView{address: address, size: size, valid: true}
	h.mu.Unlock()
	return nil
}

func (h *DescriptorHeap) view(index uint32) (constantBufferView, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if index >= uint32(len(h.views)) || !h.views[index].valid {
		return constantBufferView{}, fmt.Errorf("descriptor %d was never written", index)
	}
	return h.views[index], nil
}

func (h *DescriptorHeap) Destroy() {}

type Queue struct {
	device *Device
}

func (q *Queue) Execute(lists ...metadata.CommandList) error {
	for _, l := range lists {
		cl, ok := l.(*CommandList)
		if !ok {
			return fmt.Errorf("command list %T does not belong to the headless device", l)
		}
		if cl.recording {
			return fmt.Errorf("command list must be closed before it is executed")
		}
		commands := append([]command(nil), cl.commands...)
		if err := q.device.timeline.enqueue(func() {
			q.device.timeline.record(q.device.execute(commands))
		}); err != nil {
			return err
		}
	}
	return nil
}

func (q *Queue) Signal(fence metadata.Fence, value uint64) error {
	f, ok := fence.(*Fence)
	if !ok {
		return fmt.Errorf("fence %T does not belong to the headless device", fence)
	}
	return q.device.timeline.enqueue(func() { f.set(value) })
}

type renderTarget uint32

func (t renderTarget) Index() uint32 { return uint32(t) }

type Surface struct {
	device *Device

	mu          sync.Mutex
	width       uint32
	height      uint32
	bufferCount uint32
	current     uint32
	presented   int
}

func (s *Surface) CurrentBackBuffer() (metadata.RenderTarget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return renderTarget(s.current), nil
}

func (s *Surface) Present() error {
	return s.device.timeline.enqueue(func() {
		s.mu.Lock()
		s.current = (s.current + 1) % s.bufferCount
		s.presented++
		s.mu.Unlock()
	})
}

func (s *Surface) Resize(width, height uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.width = width
	s.height = height
	s.current = 0
	return nil
}

func (s *Surface) Size() (uint32, uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

func (s *Surface) BufferCount() uint32 {
	return s.bufferCount
}

func (s *Surface) presents() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presented
}
