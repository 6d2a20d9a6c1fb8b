package metadata

import "context"

// GPUAddress is a virtual address understood by the device. Offsets can be
// added to it to reach an element inside a buffer.
type GPUAddress uint64

/**
 * @brief A linear block of device memory. Upload buffers are persistently
 * mapped and expose their CPU view through Bytes; static buffers return nil.
 */
type Buffer interface {
	Name() string
	Size() uint64
	Address() GPUAddress
	Bytes() []byte
	Destroy()
}

/**
 * @brief A monotonically increasing 64-bit value written by the GPU queue.
 */
type Fence interface {
	CompletedValue() uint64
	/**
	 * @brief Blocks until the completed value is at least value.
	 * Returns an error wrapping core.ErrDeviceLost if the device is gone.
	 */
	WaitUntil(ctx context.Context, value uint64) error
	Destroy()
}

/**
 * @brief Backing memory for recorded commands. Must only be reset once
 * the GPU finished every command list recorded with it.
 */
type CommandAllocator interface {
	Reset() error
	Destroy()
}

type PipelineState interface {
	Name() string
	Destroy()
}

/**
 * @brief Shader visible array of constant buffer views, addressed by index.
 */
type DescriptorHeap interface {
	Count() uint32
	CreateConstantBufferView(index uint32, address GPUAddress, size uint32) error
	Destroy()
}

type RenderTarget interface {
	Index() uint32
}

type CommandList interface {
	// Reset reopens the list for recording against alloc, with pso as the initial pipeline.
	Reset(alloc CommandAllocator, pso PipelineState) error
	SetViewport(viewport Viewport, scissor ScissorRect)
	BeginRenderPass(target RenderTarget, clear ClearValue)
	EndRenderPass()
	SetPipelineState(pso PipelineState)
	SetDescriptorHeap(heap DescriptorHeap)
	SetVertexBuffer(view VertexBufferView)
	SetIndexBuffer(view IndexBufferView)
	SetPrimitiveTopology(topology PrimitiveTopology)
	// SetConstantBufferView binds a constant buffer directly by address to a root slot.
	SetConstantBufferView(slot uint32, address GPUAddress)
	// SetDescriptorTable binds the view at heapIndex of the current heap to a root slot.
	SetDescriptorTable(slot uint32, heapIndex uint32)
	SetTexture(slot uint32, textureIndex uint32)
	DrawIndexedInstanced(indexCount, instanceCount, startIndex uint32, baseVertex int32, startInstance uint32)
	Close() error
}

type Queue interface {
	Execute(lists ...CommandList) error
	// Signal asks the queue to write value into the fence once all prior work completed.
	Signal(fence Fence, value uint64) error
}

type Surface interface {
	CurrentBackBuffer() (RenderTarget, error)
	Present() error
	Resize(width, height uint32) error
	Size() (uint32, uint32)
	BufferCount() uint32
}

/**
 * @brief The GPU device abstraction the frame machinery is written against.
 * Implemented by the vulkan backend and by the in-memory headless device.
 */
type Device interface {
	// CreateUploadBuffer returns a CPU-writable, GPU-readable buffer that stays mapped.
	CreateUploadBuffer(name string, size uint64) (Buffer, error)
	// CreateStaticBuffer returns an immutable buffer initialised with data.
	CreateStaticBuffer(name string, usage BufferUsage, data []byte) (Buffer, error)
	CreateFence(initialValue uint64) (Fence, error)
	CreateCommandAllocator() (CommandAllocator, error)
	CreateCommandList(alloc CommandAllocator) (CommandList, error)
	CreatePipelineState(desc PipelineDesc) (PipelineState, error)
	CreateDescriptorHeap(count uint32) (DescriptorHeap, error)
	Queue() Queue
	Surface() Surface
	Destroy() error
}
