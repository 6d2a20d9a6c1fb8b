package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/castle/engine/core"
	"github.com/spaghettifunk/castle/engine/renderer/metadata"
)

// Every constant buffer set has a single uniform buffer at binding 0.
func createSetLayout(context *VulkanContext, descriptorType vk.DescriptorType) (vk.DescriptorSetLayout, error) {
	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: 1,
		PBindings: []vk.DescriptorSetLayoutBinding{{
			Binding:         0,
			DescriptorType:  descriptorType,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageVertexBit) | vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
		}},
	}
	var layout vk.DescriptorSetLayout
	if err := checkResult("vkCreateDescriptorSetLayout", vk.CreateDescriptorSetLayout(context.Device.LogicalDevice, &layoutInfo, context.Allocator, &layout)); err != nil {
		return nil, err
	}
	return layout, nil
}

// DescriptorsCreate builds the shared set layouts and the descriptor pool.
func DescriptorsCreate(context *VulkanContext) error {
	var err error
	if context.DynamicSetLayout, err = createSetLayout(context, vk.DescriptorTypeUniformBufferDynamic); err != nil {
		return err
	}
	if context.TableSetLayout, err = createSetLayout(context, vk.DescriptorTypeUniformBuffer); err != nil {
		return err
	}

	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		MaxSets:       VULKAN_MAX_DESCRIPTOR_SETS,
		PoolSizeCount: 2,
		PPoolSizes: []vk.DescriptorPoolSize{
			{Type: vk.DescriptorTypeUniformBufferDynamic, DescriptorCount: VULKAN_MAX_DESCRIPTOR_SETS},
			{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: VULKAN_MAX_DESCRIPTOR_SETS},
		},
	}
	var pool vk.DescriptorPool
	if err := checkResult("vkCreateDescriptorPool", vk.CreateDescriptorPool(context.Device.LogicalDevice, &poolInfo, context.Allocator, &pool)); err != nil {
		return err
	}
	context.DescriptorPool = pool
	return nil
}

func DescriptorsDestroy(context *VulkanContext) {
	device := context.Device.LogicalDevice
	if context.DescriptorPool != nil {
		vk.DestroyDescriptorPool(device, context.DescriptorPool, context.Allocator)
		context.DescriptorPool = nil
	}
	if context.DynamicSetLayout != nil {
		vk.DestroyDescriptorSetLayout(device, context.DynamicSetLayout, context.Allocator)
		context.DynamicSetLayout = nil
	}
	if context.TableSetLayout != nil {
		vk.DestroyDescriptorSetLayout(device, context.TableSetLayout, context.Allocator)
		context.TableSetLayout = nil
	}
}

func allocateSet(context *VulkanContext, layout vk.DescriptorSetLayout) (vk.DescriptorSet, error) {
	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     context.DescriptorPool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout},
	}
	var set vk.DescriptorSet
	if err := checkResult("vkAllocateDescriptorSets", vk.AllocateDescriptorSets(context.Device.LogicalDevice, &allocInfo, &set)); err != nil {
		return nil, fmt.Errorf("descriptor pool of %d sets: %w", VULKAN_MAX_DESCRIPTOR_SETS, err)
	}
	return set, nil
}

func writeBufferSet(context *VulkanContext, set vk.DescriptorSet, descriptorType vk.DescriptorType, buffer vk.Buffer, offset, size uint64) {
	write := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          set,
		DstBinding:      0,
		DstArrayElement: 0,
		DescriptorCount: 1,
		DescriptorType:  descriptorType,
		PBufferInfo: []vk.DescriptorBufferInfo{{
			Buffer: buffer,
			Offset: vk.DeviceSize(offset),
			Range:  vk.DeviceSize(size),
		}},
	}
	vk.UpdateDescriptorSets(context.Device.LogicalDevice, 1, []vk.WriteDescriptorSet{write}, 0, nil)
}

type uniformSetKey struct {
	buffer vk.Buffer
	size   uint32
}

// uniformSet returns the dynamic set viewing size bytes of b; the record is
// picked with a dynamic offset at bind time.
func (d *Device) uniformSet(b *VulkanBuffer, size uint32) (vk.DescriptorSet, error) {
	key := uniformSetKey{buffer: b.Handle, size: size}
	var set vk.DescriptorSet
	err := d.locks.SafeCall(DescriptorManagement, func() error {
		if cached, ok := d.uniformSets[key]; ok {
			set = cached
			return nil
		}
		allocated, err := allocateSet(d.context, d.context.DynamicSetLayout)
		if err != nil {
			return err
		}
		writeBufferSet(d.context, allocated, vk.DescriptorTypeUniformBufferDynamic, b.Handle, 0, uint64(size))
		d.uniformSets[key] = allocated
		set = allocated
		return nil
	})
	return set, err
}

func (d *Device) forgetUniformSets(buffer vk.Buffer) {
	d.locks.SafeCall(DescriptorManagement, func() error {
		for key, set := range d.uniformSets {
			if key.buffer != buffer {
				continue
			}
			vk.FreeDescriptorSets(d.context.Device.LogicalDevice, d.context.DescriptorPool, 1, &set)
			delete(d.uniformSets, key)
		}
		return nil
	})
}

/**
 * @brief A fixed array of plain uniform buffer sets. Each entry views one
 * record and is bound as a whole by SetDescriptorTable.
 */
type VulkanDescriptorHeap struct {
	device  *Device
	sets    []vk.DescriptorSet
	written []bool
}

func (d *Device) CreateDescriptorHeap(count uint32) (metadata.DescriptorHeap, error) {
	if count == 0 {
		return nil, fmt.Errorf("descriptor heap must hold at least one view")
	}
	h := &VulkanDescriptorHeap{device: d, written: make([]bool, count)}
	err := d.locks.SafeCall(DescriptorManagement, func() error {
		for i := uint32(0); i < count; i++ {
			set, err := allocateSet(d.context, d.context.TableSetLayout)
			if err != nil {
				return err
			}
			h.sets = append(h.sets, set)
		}
		return nil
	})
	if err != nil {
		h.Destroy()
		return nil, fmt.Errorf("descriptor heap of %d views: %w", count, err)
	}
	return h, nil
}

func (h *VulkanDescriptorHeap) Count() uint32 {
	return uint32(len(h.written))
}

func (h *VulkanDescriptorHeap) CreateConstantBufferView(index uint32, address metadata.GPUAddress, size uint32) error {
	if index >= h.Count() {
		return fmt.Errorf("descriptor %d outside heap of %d: %w", index, h.Count(), core.ErrCapacityExceeded)
	}
	b, offset, err := h.device.resolve(address)
	if err != nil {
		return err
	}
	if offset+uint64(size) > b.size {
		return fmt.Errorf("view of %d bytes at %#x overruns %s: %w", size, uint64(address), b.name, core.ErrCapacityExceeded)
	}
	h.device.locks.SafeCall(DescriptorManagement, func() error {
		writeBufferSet(h.device.context, h.sets[index], vk.DescriptorTypeUniformBuffer, b.Handle, offset, uint64(size))
		return nil
	})
	h.written[index] = true
	return nil
}

func (h *VulkanDescriptorHeap) set(index uint32) (vk.DescriptorSet, error) {
	if index >= h.Count() {
		return nil, fmt.Errorf("descriptor %d outside heap of %d: %w", index, h.Count(), core.ErrCapacityExceeded)
	}
	if !h.written[index] {
		return nil, fmt.Errorf("descriptor %d was never written", index)
	}
	return h.sets[index], nil
}

func (h *VulkanDescriptorHeap) Destroy() {
	if len(h.sets) == 0 {
		return
	}
	ctx := h.device.context
	h.device.locks.SafeCall(DescriptorManagement, func() error {
		vk.FreeDescriptorSets(ctx.Device.LogicalDevice, ctx.DescriptorPool, uint32(len(h.sets)), &h.sets[0])
		return nil
	})
	h.sets = nil
}
