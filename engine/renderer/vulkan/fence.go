package vulkan

import (
	"context"
	"fmt"
	"sync/atomic"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/castle/engine/core"
)

/**
 * @brief A 64-bit timeline built on binary fences. The queue attaches signal
 * values to submissions and publishes them here once the submission's fence
 * is observed signalled.
 */
type VulkanFence struct {
	device    *Device
	completed atomic.Uint64
}

func newFence(device *Device, initialValue uint64) *VulkanFence {
	f := &VulkanFence{device: device}
	f.completed.Store(initialValue)
	return f
}

// advance raises the completed value; it never goes backwards.
func (vf *VulkanFence) advance(value uint64) {
	for {
		current := vf.completed.Load()
		if value <= current || vf.completed.CompareAndSwap(current, value) {
			return
		}
	}
}

func (vf *VulkanFence) CompletedValue() uint64 {
	vf.device.queue.poll()
	return vf.completed.Load()
}

func (vf *VulkanFence) WaitUntil(ctx context.Context, value uint64) error {
	q := vf.device.queue
	for {
		q.poll()
		if vf.completed.Load() >= value {
			return nil
		}
		if q.isLost() {
			return fmt.Errorf("waiting for fence value %d: %w", value, core.ErrDeviceLost)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		oldest, ok := q.oldestFence()
		if !ok {
			return fmt.Errorf("fence value %d was never signalled", value)
		}
		result := vk.WaitForFences(vf.device.context.Device.LogicalDevice, 1, []vk.Fence{oldest}, vk.True, uint64(fenceWaitSlice.Nanoseconds()))
		switch result {
		case vk.Success, vk.Timeout:
		case vk.ErrorDeviceLost:
			q.markLost()
			core.LogError("vk_fence_wait - VK_ERROR_DEVICE_LOST.")
			return fmt.Errorf("waiting for fence value %d: %w", value, core.ErrDeviceLost)
		default:
			return checkResult("vkWaitForFences", result)
		}
	}
}

// Destroy is a no-op: the binary fences backing the timeline belong to the queue.
func (vf *VulkanFence) Destroy() {}

func createBinaryFence(context *VulkanContext) (vk.Fence, error) {
	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	var fence vk.Fence
	if err := checkResult("vkCreateFence", vk.CreateFence(context.Device.LogicalDevice, &fenceCreateInfo, context.Allocator, &fence)); err != nil {
		return nil, err
	}
	return fence, nil
}

func createSemaphore(context *VulkanContext) (vk.Semaphore, error) {
	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var semaphore vk.Semaphore
	if err := checkResult("vkCreateSemaphore", vk.CreateSemaphore(context.Device.LogicalDevice, &semaphoreCreateInfo, context.Allocator, &semaphore)); err != nil {
		return nil, err
	}
	return semaphore, nil
}
