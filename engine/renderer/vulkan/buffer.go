package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/castle/engine/core"
	"github.com/spaghettifunk/castle/engine/renderer/metadata"
)

/**
 * @brief A device buffer with its own memory allocation. Upload buffers live in
 * host visible, coherent memory and stay mapped for their whole lifetime.
 */
type VulkanBuffer struct {
	device *Device
	id     uint64
	name   string
	size   uint64

	Handle vk.Buffer
	Memory vk.DeviceMemory

	mapped []byte
}

func (b *VulkanBuffer) Name() string {
	return b.name
}

func (b *VulkanBuffer) Size() uint64 {
	return b.size
}

func (b *VulkanBuffer) Address() metadata.GPUAddress {
	return metadata.GPUAddress(b.id << addressShift)
}

func (b *VulkanBuffer) Bytes() []byte {
	return b.mapped
}

func (b *VulkanBuffer) Destroy() {
	if b.Handle == nil {
		return
	}
	b.device.releaseBuffer(b)
	ctx := b.device.context
	if b.mapped != nil {
		vk.UnmapMemory(ctx.Device.LogicalDevice, b.Memory)
		b.mapped = nil
	}
	destroyRawBuffer(ctx, b.Handle, b.Memory)
	b.Handle = nil
	b.Memory = nil
}

func bufferUsageFlags(usage metadata.BufferUsage) vk.BufferUsageFlags {
	switch usage {
	case metadata.BufferUsageVertex:
		return vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit)
	case metadata.BufferUsageIndex:
		return vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit)
	default:
		return vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit)
	}
}

func createRawBuffer(context *VulkanContext, size uint64, usage vk.BufferUsageFlags, memoryFlags vk.MemoryPropertyFlags) (vk.Buffer, vk.DeviceMemory, error) {
	device := context.Device.LogicalDevice
	bufferCreateInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}
	var buffer vk.Buffer
	if err := checkResult("vkCreateBuffer", vk.CreateBuffer(device, &bufferCreateInfo, context.Allocator, &buffer)); err != nil {
		return nil, nil, err
	}

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(device, buffer, &requirements)
	requirements.Deref()

	memoryType := context.FindMemoryIndex(requirements.MemoryTypeBits, uint32(memoryFlags))
	if memoryType < 0 {
		vk.DestroyBuffer(device, buffer, context.Allocator)
		return nil, nil, fmt.Errorf("required memory type not found, buffer not valid")
	}

	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(memoryType),
	}
	var memory vk.DeviceMemory
	if err := checkResult("vkAllocateMemory", vk.AllocateMemory(device, &allocateInfo, context.Allocator, &memory)); err != nil {
		vk.DestroyBuffer(device, buffer, context.Allocator)
		return nil, nil, err
	}
	if err := checkResult("vkBindBufferMemory", vk.BindBufferMemory(device, buffer, memory, 0)); err != nil {
		destroyRawBuffer(context, buffer, memory)
		return nil, nil, err
	}
	return buffer, memory, nil
}

func destroyRawBuffer(context *VulkanContext, buffer vk.Buffer, memory vk.DeviceMemory) {
	if buffer != nil {
		vk.DestroyBuffer(context.Device.LogicalDevice, buffer, context.Allocator)
	}
	if memory != nil {
		vk.FreeMemory(context.Device.LogicalDevice, memory, context.Allocator)
	}
}

func mapMemory(context *VulkanContext, memory vk.DeviceMemory, size uint64) ([]byte, error) {
	var ptr unsafe.Pointer
	if err := checkResult("vkMapMemory", vk.MapMemory(context.Device.LogicalDevice, memory, 0, vk.DeviceSize(size), 0, &ptr)); err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(ptr), size), nil
}

func (d *Device) CreateUploadBuffer(name string, size uint64) (metadata.Buffer, error) {
	if err := d.checkBufferSize(name, size); err != nil {
		return nil, err
	}
	usage := vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit) |
		vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit) |
		vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit)
	memoryFlags := vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) | vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit)

	handle, memory, err := createRawBuffer(d.context, size, usage, memoryFlags)
	if err != nil {
		return nil, fmt.Errorf("upload buffer %s: %w", name, err)
	}
	mapped, err := mapMemory(d.context, memory, size)
	if err != nil {
		destroyRawBuffer(d.context, handle, memory)
		return nil, fmt.Errorf("upload buffer %s: %w", name, err)
	}
	b := &VulkanBuffer{device: d, name: name, size: size, Handle: handle, Memory: memory, mapped: mapped}
	d.registerBuffer(b)
	return b, nil
}

// CreateStaticBuffer places data in device local memory through a staging copy.
func (d *Device) CreateStaticBuffer(name string, usage metadata.BufferUsage, data []byte) (metadata.Buffer, error) {
	size := uint64(len(data))
	if err := d.checkBufferSize(name, size); err != nil {
		return nil, err
	}
	ctx := d.context

	staging, stagingMemory, err := createRawBuffer(ctx, size,
		vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit)|vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		return nil, fmt.Errorf("staging buffer for %s: %w", name, err)
	}
	defer destroyRawBuffer(ctx, staging, stagingMemory)

	mapped, err := mapMemory(ctx, stagingMemory, size)
	if err != nil {
		return nil, fmt.Errorf("staging buffer for %s: %w", name, err)
	}
	copy(mapped, data)
	vk.UnmapMemory(ctx.Device.LogicalDevice, stagingMemory)

	handle, memory, err := createRawBuffer(ctx, size,
		bufferUsageFlags(usage)|vk.BufferUsageFlags(vk.BufferUsageTransferDstBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		return nil, fmt.Errorf("static buffer %s: %w", name, err)
	}

	if err := d.copyBuffer(staging, handle, size); err != nil {
		destroyRawBuffer(ctx, handle, memory)
		return nil, fmt.Errorf("uploading static buffer %s: %w", name, err)
	}

	b := &VulkanBuffer{device: d, name: name, size: size, Handle: handle, Memory: memory}
	d.registerBuffer(b)
	core.LogDebug("static buffer %s uploaded (%d bytes)", name, size)
	return b, nil
}

func (d *Device) copyBuffer(src, dst vk.Buffer, size uint64) error {
	ctx := d.context
	pool := ctx.Device.TransferCommandPool
	var cb *VulkanCommandBuffer
	err := d.locks.SafeCall(CommandPoolManagement, func() error {
		var err error
		cb, err = AllocateAndBeginSingleUse(ctx, pool)
		if err != nil {
			return err
		}
		vk.CmdCopyBuffer(cb.Handle, src, dst, 1, []vk.BufferCopy{{
			SrcOffset: 0,
			DstOffset: 0,
			Size:      vk.DeviceSize(size),
		}})
		return cb.End()
	})
	if err != nil {
		return err
	}
	defer d.locks.SafeCall(CommandPoolManagement, func() error {
		cb.Free(ctx, pool)
		return nil
	})
	return d.locks.SafeQueueCall(uint32(ctx.Device.GraphicsQueueIndex), func() error {
		return cb.SubmitAndWait(ctx.Device.GraphicsQueue)
	})
}

func (d *Device) checkBufferSize(name string, size uint64) error {
	if size == 0 {
		return fmt.Errorf("buffer %s: size must be greater than zero", name)
	}
	if size >= 1<<addressShift {
		return fmt.Errorf("buffer %s: size %d too large", name, size)
	}
	if d.queue.isLost() {
		return core.ErrDeviceLost
	}
	return nil
}

func (d *Device) registerBuffer(b *VulkanBuffer) {
	d.locks.SafeCall(BufferManagement, func() error {
		b.id = d.nextBufferID
		d.nextBufferID++
		d.buffers[b.id] = b
		return nil
	})
}

func (d *Device) releaseBuffer(b *VulkanBuffer) {
	d.locks.SafeCall(BufferManagement, func() error {
		delete(d.buffers, b.id)
		return nil
	})
	d.forgetUniformSets(b.Handle)
}

// resolve maps an address back to its buffer and the offset inside it.
func (d *Device) resolve(address metadata.GPUAddress) (*VulkanBuffer, uint64, error) {
	id := uint64(address) >> addressShift
	offset := uint64(address) & (1<<addressShift - 1)
	var b *VulkanBuffer
	d.locks.SafeCall(BufferManagement, func() error {
		b = d.buffers[id]
		return nil
	})
	if b == nil {
		return nil, 0, fmt.Errorf("address %#x does not belong to a live buffer", uint64(address))
	}
	if offset >= b.size {
		return nil, 0, fmt.Errorf("address %#x is past the end of buffer %s", uint64(address), b.name)
	}
	return b, offset, nil
}
