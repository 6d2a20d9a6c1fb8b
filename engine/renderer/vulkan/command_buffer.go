package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/castle/engine/core"
	"github.com/spaghettifunk/castle/engine/renderer/metadata"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

type VulkanCommandBuffer struct {
	Handle vk.CommandBuffer
	// Command buffer state.
	State VulkanCommandBufferState
}

func NewVulkanCommandBuffer(context *VulkanContext, pool vk.CommandPool, isPrimary bool) (*VulkanCommandBuffer, error) {
	vCommandBuffer := &VulkanCommandBuffer{
		State: COMMAND_BUFFER_STATE_NOT_ALLOCATED,
	}

	level := vk.CommandBufferLevelSecondary
	if isPrimary {
		level = vk.CommandBufferLevelPrimary
	}

	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		CommandBufferCount: 1,
		Level:              level,
	}

	handles := make([]vk.CommandBuffer, 1)
	if err := checkResult("vkAllocateCommandBuffers", vk.AllocateCommandBuffers(context.Device.LogicalDevice, &allocateInfo, handles)); err != nil {
		return nil, err
	}
	vCommandBuffer.Handle = handles[0]
	vCommandBuffer.State = COMMAND_BUFFER_STATE_READY

	return vCommandBuffer, nil
}

func (v *VulkanCommandBuffer) Free(context *VulkanContext, pool vk.CommandPool) {
	vk.FreeCommandBuffers(context.Device.LogicalDevice, pool, 1, []vk.CommandBuffer{v.Handle})
	v.Handle = nil
	v.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
}

func (v *VulkanCommandBuffer) Begin(isSingleUse, isRenderpassContinue, isSimultaneousUse bool) error {
	vBeginInfo := &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: 0,
	}

	if isSingleUse {
		vBeginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	if isRenderpassContinue {
		vBeginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageRenderPassContinueBit)
	}
	if isSimultaneousUse {
		vBeginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageSimultaneousUseBit)
	}

	if err := checkResult("vkBeginCommandBuffer", vk.BeginCommandBuffer(v.Handle, vBeginInfo)); err != nil {
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING

	return nil
}

func (v *VulkanCommandBuffer) End() error {
	if err := checkResult("vkEndCommandBuffer", vk.EndCommandBuffer(v.Handle)); err != nil {
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

func (v *VulkanCommandBuffer) UpdateSubmitted() {
	v.State = COMMAND_BUFFER_STATE_SUBMITTED
}

func (v *VulkanCommandBuffer) Reset() {
	v.State = COMMAND_BUFFER_STATE_READY
}

/**
 * Allocates and begins recording a primary, one time command buffer.
 */
func AllocateAndBeginSingleUse(context *VulkanContext, pool vk.CommandPool) (*VulkanCommandBuffer, error) {
	cb, err := NewVulkanCommandBuffer(context, pool, true)
	if err != nil {
		return nil, err
	}
	if err := cb.Begin(true, false, false); err != nil {
		cb.Free(context, pool)
		return nil, err
	}
	return cb, nil
}

/**
 * Submits an ended command buffer and waits for the queue to go idle.
 * The caller owns the queue lock.
 */
func (v *VulkanCommandBuffer) SubmitAndWait(queue vk.Queue) error {
	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{v.Handle},
	}

	if err := checkResult("vkQueueSubmit", vk.QueueSubmit(queue, 1, []vk.SubmitInfo{submitInfo}, nil)); err != nil {
		return err
	}
	v.UpdateSubmitted()

	// Wait for it to finish
	return checkResult("vkQueueWaitIdle", vk.QueueWaitIdle(queue))
}

/**
 * @brief A command pool. Resetting it recycles every command buffer allocated
 * from it, so it must only happen once the GPU is done with them.
 */
type VulkanCommandAllocator struct {
	device *Device
	Pool   vk.CommandPool
	// Buffers handed out to command lists, reset together with the pool.
	buffers []*VulkanCommandBuffer
}

func (d *Device) CreateCommandAllocator() (metadata.CommandAllocator, error) {
	ctx := d.context
	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: uint32(ctx.Device.GraphicsQueueIndex),
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit),
	}
	var pool vk.CommandPool
	if err := checkResult("vkCreateCommandPool", vk.CreateCommandPool(ctx.Device.LogicalDevice, &poolCreateInfo, ctx.Allocator, &pool)); err != nil {
		return nil, err
	}
	return &VulkanCommandAllocator{device: d, Pool: pool}, nil
}

func (a *VulkanCommandAllocator) Reset() error {
	ctx := a.device.context
	if err := checkResult("vkResetCommandPool", vk.ResetCommandPool(ctx.Device.LogicalDevice, a.Pool, 0)); err != nil {
		return err
	}
	for _, cb := range a.buffers {
		cb.Reset()
	}
	return nil
}

func (a *VulkanCommandAllocator) Destroy() {
	if a.Pool == nil {
		return
	}
	ctx := a.device.context
	vk.DestroyCommandPool(ctx.Device.LogicalDevice, a.Pool, ctx.Allocator)
	a.Pool = nil
	for _, cb := range a.buffers {
		cb.Handle = nil
		cb.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
	}
	a.buffers = nil
}

func (a *VulkanCommandAllocator) commandBuffer() (*VulkanCommandBuffer, error) {
	cb, err := NewVulkanCommandBuffer(a.device.context, a.Pool, true)
	if err != nil {
		return nil, err
	}
	a.buffers = append(a.buffers, cb)
	return cb, nil
}

/**
 * @brief Records into one primary command buffer per allocator it was reset
 * against. Binding errors are kept and reported by Close.
 */
type VulkanCommandList struct {
	device *Device

	buffer  *VulkanCommandBuffer
	buffers map[*VulkanCommandAllocator]*VulkanCommandBuffer

	pipeline *VulkanPipeline
	heap     *VulkanDescriptorHeap

	err error
}

func (d *Device) CreateCommandList(alloc metadata.CommandAllocator) (metadata.CommandList, error) {
	list := &VulkanCommandList{
		device:  d,
		buffers: make(map[*VulkanCommandAllocator]*VulkanCommandBuffer),
	}
	if err := list.Reset(alloc, nil); err != nil {
		return nil, err
	}
	return list, nil
}

func (l *VulkanCommandList) fail(err error) {
	if l.err == nil {
		l.err = err
		core.LogError("command list: %s", err)
	}
}

func (l *VulkanCommandList) Reset(alloc metadata.CommandAllocator, pso metadata.PipelineState) error {
	a, ok := alloc.(*VulkanCommandAllocator)
	if !ok {
		return fmt.Errorf("allocator %T does not belong to this device", alloc)
	}
	if l.buffer != nil && (l.buffer.State == COMMAND_BUFFER_STATE_RECORDING || l.buffer.State == COMMAND_BUFFER_STATE_IN_RENDER_PASS) {
		return fmt.Errorf("command list reset while still recording")
	}

	cb, ok := l.buffers[a]
	if !ok || cb.Handle == nil {
		var err error
		if cb, err = a.commandBuffer(); err != nil {
			return err
		}
		l.buffers[a] = cb
	}
	if cb.State != COMMAND_BUFFER_STATE_READY {
		return fmt.Errorf("command allocator was not reset since the list last used it")
	}
	if err := cb.Begin(true, false, false); err != nil {
		return err
	}

	l.buffer = cb
	l.pipeline = nil
	l.heap = nil
	l.err = nil
	if pso != nil {
		l.SetPipelineState(pso)
	}
	return nil
}

func (l *VulkanCommandList) SetViewport(viewport metadata.Viewport, scissor metadata.ScissorRect) {
	// Negative height flips Y so clip space matches the row vector convention.
	vk.CmdSetViewport(l.buffer.Handle, 0, 1, []vk.Viewport{{
		X:        viewport.X,
		Y:        viewport.Y + viewport.Height,
		Width:    viewport.Width,
		Height:   -viewport.Height,
		MinDepth: viewport.MinDepth,
		MaxDepth: viewport.MaxDepth,
	}})
	vk.CmdSetScissor(l.buffer.Handle, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: scissor.Left, Y: scissor.Top},
		Extent: vk.Extent2D{
			Width:  uint32(scissor.Right - scissor.Left),
			Height: uint32(scissor.Bottom - scissor.Top),
		},
	}})
}

func (l *VulkanCommandList) BeginRenderPass(target metadata.RenderTarget, clear metadata.ClearValue) {
	fb, extent, err := l.device.surface.framebuffer(target.Index())
	if err != nil {
		l.fail(err)
		return
	}
	l.device.context.MainRenderpass.RenderpassBegin(l.buffer, fb.Handle, extent.Width, extent.Height, clear)
}

func (l *VulkanCommandList) EndRenderPass() {
	if l.buffer.State != COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		l.fail(fmt.Errorf("end of render pass without a matching begin"))
		return
	}
	l.device.context.MainRenderpass.RenderpassEnd(l.buffer)
}

func (l *VulkanCommandList) SetPipelineState(pso metadata.PipelineState) {
	p, ok := pso.(*VulkanPipeline)
	if !ok {
		l.fail(fmt.Errorf("pipeline %T does not belong to this device", pso))
		return
	}
	p.Bind(l.buffer)
	l.pipeline = p
}

func (l *VulkanCommandList) SetDescriptorHeap(heap metadata.DescriptorHeap) {
	h, ok := heap.(*VulkanDescriptorHeap)
	if !ok {
		l.fail(fmt.Errorf("descriptor heap %T does not belong to this device", heap))
		return
	}
	l.heap = h
}

func (l *VulkanCommandList) SetVertexBuffer(view metadata.VertexBufferView) {
	b, offset, err := l.device.resolve(view.Address)
	if err != nil {
		l.fail(fmt.Errorf("vertex buffer: %w", err))
		return
	}
	vk.CmdBindVertexBuffers(l.buffer.Handle, 0, 1, []vk.Buffer{b.Handle}, []vk.DeviceSize{vk.DeviceSize(offset)})
}

func (l *VulkanCommandList) SetIndexBuffer(view metadata.IndexBufferView) {
	b, offset, err := l.device.resolve(view.Address)
	if err != nil {
		l.fail(fmt.Errorf("index buffer: %w", err))
		return
	}
	indexType := vk.IndexTypeUint16
	if view.Format == metadata.IndexFormatUint32 {
		indexType = vk.IndexTypeUint32
	}
	vk.CmdBindIndexBuffer(l.buffer.Handle, b.Handle, vk.DeviceSize(offset), indexType)
}

// SetPrimitiveTopology only accepts triangle lists; pipelines are built with a fixed topology.
func (l *VulkanCommandList) SetPrimitiveTopology(topology metadata.PrimitiveTopology) {
	if topology != metadata.PrimitiveTopologyTriangleList {
		l.fail(fmt.Errorf("primitive topology %d is not supported", topology))
	}
}

func (l *VulkanCommandList) rootParameter(slot uint32, kind metadata.RootParameterKind) (metadata.RootParameter, bool) {
	if l.pipeline == nil {
		l.fail(fmt.Errorf("root slot %d bound without a pipeline", slot))
		return metadata.RootParameter{}, false
	}
	if slot >= uint32(len(l.pipeline.desc.Parameters)) {
		l.fail(fmt.Errorf("root slot %d outside pipeline %s", slot, l.pipeline.desc.Name))
		return metadata.RootParameter{}, false
	}
	param := l.pipeline.desc.Parameters[slot]
	if param.Kind != kind {
		l.fail(fmt.Errorf("root slot %d of pipeline %s has kind %d, not %d", slot, l.pipeline.desc.Name, param.Kind, kind))
		return metadata.RootParameter{}, false
	}
	return param, true
}

func (l *VulkanCommandList) SetConstantBufferView(slot uint32, address metadata.GPUAddress) {
	param, ok := l.rootParameter(slot, metadata.RootParameterConstantBuffer)
	if !ok {
		return
	}
	b, offset, err := l.device.resolve(address)
	if err != nil {
		l.fail(fmt.Errorf("constant buffer at slot %d: %w", slot, err))
		return
	}
	if offset+uint64(param.RecordSize) > b.size {
		l.fail(fmt.Errorf("constant buffer at slot %d reads past the end of %s: %w", slot, b.name, core.ErrCapacityExceeded))
		return
	}
	set, err := l.device.uniformSet(b, param.RecordSize)
	if err != nil {
		l.fail(err)
		return
	}
	vk.CmdBindDescriptorSets(l.buffer.Handle, vk.PipelineBindPointGraphics, l.pipeline.Layout,
		l.pipeline.setIndex[slot], 1, []vk.DescriptorSet{set}, 1, []uint32{uint32(offset)})
}

func (l *VulkanCommandList) SetDescriptorTable(slot uint32, heapIndex uint32) {
	if _, ok := l.rootParameter(slot, metadata.RootParameterDescriptorTable); !ok {
		return
	}
	if l.heap == nil {
		l.fail(fmt.Errorf("descriptor table at slot %d bound without a heap", slot))
		return
	}
	set, err := l.heap.set(heapIndex)
	if err != nil {
		l.fail(err)
		return
	}
	vk.CmdBindDescriptorSets(l.buffer.Handle, vk.PipelineBindPointGraphics, l.pipeline.Layout,
		l.pipeline.setIndex[slot], 1, []vk.DescriptorSet{set}, 0, nil)
}

// SetTexture pushes the texture index to the fragment stage.
func (l *VulkanCommandList) SetTexture(slot uint32, textureIndex uint32) {
	if _, ok := l.rootParameter(slot, metadata.RootParameterTexture); !ok {
		return
	}
	vk.CmdPushConstants(l.buffer.Handle, l.pipeline.Layout, vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
		0, texturePushConstantSize, unsafe.Pointer(&textureIndex))
}

func (l *VulkanCommandList) DrawIndexedInstanced(indexCount, instanceCount, startIndex uint32, baseVertex int32, startInstance uint32) {
	if l.pipeline == nil {
		l.fail(fmt.Errorf("draw without a pipeline"))
		return
	}
	vk.CmdDrawIndexed(l.buffer.Handle, indexCount, instanceCount, startIndex, baseVertex, startInstance)
}

func (l *VulkanCommandList) Close() error {
	if l.buffer == nil || l.buffer.State == COMMAND_BUFFER_STATE_RECORDING_ENDED {
		return fmt.Errorf("command list is not recording")
	}
	if l.buffer.State == COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		l.fail(fmt.Errorf("command list closed inside a render pass"))
		l.device.context.MainRenderpass.RenderpassEnd(l.buffer)
	}
	if err := l.buffer.End(); err != nil {
		return err
	}
	return l.err
}
