package vulkan

import (
	"errors"
	"fmt"
	"math"
	"sync"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/castle/engine/containers"
	"github.com/spaghettifunk/castle/engine/core"
	"github.com/spaghettifunk/castle/engine/renderer/metadata"
)

type fenceSignal struct {
	fence *VulkanFence
	value uint64
}

type submission struct {
	fence vk.Fence
	// Returned to the free list once the fence is signalled.
	semaphores []vk.Semaphore
	signals    []fenceSignal
}

/**
 * @brief The graphics queue. Every submission gets a binary fence from a free
 * list and is tracked in submission order; timeline signals ride on the last
 * submission and are published when it retires.
 */
type VulkanQueue struct {
	device *Device

	mu             sync.Mutex
	pending        *containers.RingQueue[*submission]
	last           *submission
	freeFences     []vk.Fence
	freeSemaphores []vk.Semaphore
	lost           bool
}

func newQueue(device *Device) *VulkanQueue {
	return &VulkanQueue{
		device:  device,
		pending: containers.NewRingQueue[*submission](int(VULKAN_MAX_PENDING_SUBMISSIONS)),
	}
}

func (q *VulkanQueue) Execute(lists ...metadata.CommandList) error {
	buffers := make([]vk.CommandBuffer, 0, len(lists))
	for _, l := range lists {
		list, ok := l.(*VulkanCommandList)
		if !ok {
			return fmt.Errorf("command list %T does not belong to this device", l)
		}
		if list.buffer == nil || list.buffer.State != COMMAND_BUFFER_STATE_RECORDING_ENDED {
			return fmt.Errorf("command list must be closed before it is executed")
		}
		buffers = append(buffers, list.buffer.Handle)
	}
	if err := q.submit(buffers); err != nil {
		return err
	}
	for _, l := range lists {
		l.(*VulkanCommandList).buffer.UpdateSubmitted()
	}
	return nil
}

func (q *VulkanQueue) Signal(fence metadata.Fence, value uint64) error {
	f, ok := fence.(*VulkanFence)
	if !ok {
		return fmt.Errorf("fence %T does not belong to this device", fence)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.lost {
		return core.ErrDeviceLost
	}
	q.pollLocked()
	if q.last == nil {
		f.advance(value)
		return nil
	}
	q.last.signals = append(q.last.signals, fenceSignal{fence: f, value: value})
	return nil
}

// submit hands buffers to the GPU. The first submission after an acquire
// waits on the image and signals the present semaphore.
func (q *VulkanQueue) submit(buffers []vk.CommandBuffer) error {
	wait, signal := q.device.surface.takeAcquire()

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.lost {
		return core.ErrDeviceLost
	}
	q.pollLocked()
	if q.pending.IsFull() {
		if err := q.retireOldestLocked(); err != nil {
			return err
		}
	}

	fence, err := q.takeFenceLocked()
	if err != nil {
		return err
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: uint32(len(buffers)),
		PCommandBuffers:    buffers,
	}
	s := &submission{fence: fence}
	if wait != nil {
		submitInfo.WaitSemaphoreCount = 1
		submitInfo.PWaitSemaphores = []vk.Semaphore{wait}
		submitInfo.PWaitDstStageMask = []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)}
		submitInfo.SignalSemaphoreCount = 1
		submitInfo.PSignalSemaphores = []vk.Semaphore{signal}
		s.semaphores = append(s.semaphores, wait)
	}

	ctx := q.device.context
	err = q.device.locks.SafeQueueCall(uint32(ctx.Device.GraphicsQueueIndex), func() error {
		return checkResult("vkQueueSubmit", vk.QueueSubmit(ctx.Device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, fence))
	})
	if err != nil {
		q.freeFences = append(q.freeFences, fence)
		if errors.Is(err, core.ErrDeviceLost) {
			q.lost = true
		}
		return err
	}

	if err := q.pending.Enqueue(s); err != nil {
		return err
	}
	q.last = s
	return nil
}

// poll retires every submission whose fence is signalled, in order.
func (q *VulkanQueue) poll() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pollLocked()
}

func (q *VulkanQueue) pollLocked() {
	device := q.device.context.Device.LogicalDevice
	for !q.pending.IsEmpty() {
		s, _ := q.pending.Peek()
		result := vk.GetFenceStatus(device, s.fence)
		if result == vk.ErrorDeviceLost {
			q.lost = true
			return
		}
		if result != vk.Success {
			return
		}
		q.pending.Dequeue()
		q.retire(s)
	}
	q.last = nil
}

func (q *VulkanQueue) retireOldestLocked() error {
	s, err := q.pending.Peek()
	if err != nil {
		return nil
	}
	result := vk.WaitForFences(q.device.context.Device.LogicalDevice, 1, []vk.Fence{s.fence}, vk.True, math.MaxUint64)
	if err := checkResult("vkWaitForFences", result); err != nil {
		if result == vk.ErrorDeviceLost {
			q.lost = true
		}
		return err
	}
	q.pollLocked()
	return nil
}

func (q *VulkanQueue) retire(s *submission) {
	for _, sig := range s.signals {
		sig.fence.advance(sig.value)
	}
	if err := checkResult("vkResetFences", vk.ResetFences(q.device.context.Device.LogicalDevice, 1, []vk.Fence{s.fence})); err != nil {
		core.LogWarn("dropping submission fence: %s", err)
		vk.DestroyFence(q.device.context.Device.LogicalDevice, s.fence, q.device.context.Allocator)
	} else {
		q.freeFences = append(q.freeFences, s.fence)
	}
	q.freeSemaphores = append(q.freeSemaphores, s.semaphores...)
}

func (q *VulkanQueue) takeFenceLocked() (vk.Fence, error) {
	if n := len(q.freeFences); n > 0 {
		fence := q.freeFences[n-1]
		q.freeFences = q.freeFences[:n-1]
		return fence, nil
	}
	return createBinaryFence(q.device.context)
}

func (q *VulkanQueue) takeSemaphore() (vk.Semaphore, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n := len(q.freeSemaphores); n > 0 {
		sem := q.freeSemaphores[n-1]
		q.freeSemaphores = q.freeSemaphores[:n-1]
		return sem, nil
	}
	return createSemaphore(q.device.context)
}

func (q *VulkanQueue) recycleSemaphores(sems ...vk.Semaphore) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.freeSemaphores = append(q.freeSemaphores, sems...)
}

func (q *VulkanQueue) oldestFence() (vk.Fence, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	s, err := q.pending.Peek()
	if err != nil {
		return nil, false
	}
	return s.fence, true
}

func (q *VulkanQueue) isLost() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lost
}

func (q *VulkanQueue) markLost() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lost = true
}

// waitIdle drains the GPU and retires everything that was pending.
func (q *VulkanQueue) waitIdle() error {
	ctx := q.device.context
	err := q.device.locks.SafeQueueCall(uint32(ctx.Device.GraphicsQueueIndex), func() error {
		return checkResult("vkQueueWaitIdle", vk.QueueWaitIdle(ctx.Device.GraphicsQueue))
	})
	q.poll()
	return err
}

func (q *VulkanQueue) destroy() {
	q.mu.Lock()
	defer q.mu.Unlock()
	ctx := q.device.context
	for !q.pending.IsEmpty() {
		s, _ := q.pending.Dequeue()
		vk.DestroyFence(ctx.Device.LogicalDevice, s.fence, ctx.Allocator)
		q.freeSemaphores = append(q.freeSemaphores, s.semaphores...)
	}
	q.last = nil
	for _, fence := range q.freeFences {
		vk.DestroyFence(ctx.Device.LogicalDevice, fence, ctx.Allocator)
	}
	q.freeFences = nil
	for _, sem := range q.freeSemaphores {
		vk.DestroySemaphore(ctx.Device.LogicalDevice, sem, ctx.Allocator)
	}
	q.freeSemaphores = nil
}
