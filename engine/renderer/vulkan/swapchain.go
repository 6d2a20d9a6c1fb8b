package vulkan

import (
	"fmt"
	"math"
	"sync"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/castle/engine/core"
	"github.com/spaghettifunk/castle/engine/renderer/metadata"
)

type VulkanSwapchain struct {
	ImageFormat vk.SurfaceFormat
	Extent      vk.Extent2D
	Handle      vk.Swapchain
	ImageCount  uint32
	Images      []vk.Image
	Views       []vk.ImageView

	DepthAttachment *VulkanImage

	// framebuffers used for on-screen rendering, one per image.
	Framebuffers []*VulkanFramebuffer
}

type VulkanSwapchainSupportInfo struct {
	Capabilities     vk.SurfaceCapabilities
	FormatCount      uint32
	Formats          []vk.SurfaceFormat
	PresentModeCount uint32
	PresentModes     []vk.PresentMode
}

func SwapchainCreate(context *VulkanContext, width uint32, height uint32) (*VulkanSwapchain, error) {
	// Simply create a new one.
	return createSwapchain(context, width, height)
}

// SwapchainRecreate destroys the swapchain with its framebuffers and builds a
// new one for the given size. The render pass must already exist.
func (vs *VulkanSwapchain) SwapchainRecreate(context *VulkanContext, width uint32, height uint32) (*VulkanSwapchain, error) {
	vk.DeviceWaitIdle(context.Device.LogicalDevice)
	vs.destroySwapchain(context)

	if err := DeviceQuerySwapchainSupport(context.Device.PhysicalDevice, context.Surface, &context.Device.SwapchainSupport); err != nil {
		return nil, err
	}
	swapchain, err := createSwapchain(context, width, height)
	if err != nil {
		return nil, err
	}
	if err := swapchain.RegenerateFramebuffers(context, context.MainRenderpass); err != nil {
		swapchain.destroySwapchain(context)
		return nil, err
	}
	return swapchain, nil
}

func (vs *VulkanSwapchain) SwapchainDestroy(context *VulkanContext) {
	vk.DeviceWaitIdle(context.Device.LogicalDevice)
	vs.destroySwapchain(context)
}

// RegenerateFramebuffers builds one framebuffer per swapchain image sharing the depth attachment.
func (vs *VulkanSwapchain) RegenerateFramebuffers(context *VulkanContext, renderpass *VulkanRenderpass) error {
	for _, fb := range vs.Framebuffers {
		fb.Destroy(context)
	}
	vs.Framebuffers = make([]*VulkanFramebuffer, vs.ImageCount)
	for i := uint32(0); i < vs.ImageCount; i++ {
		attachments := []vk.ImageView{vs.Views[i], vs.DepthAttachment.View}
		fb, err := FramebufferCreate(context, renderpass, vs.Extent.Width, vs.Extent.Height, attachments)
		if err != nil {
			return fmt.Errorf("framebuffer %d: %w", i, err)
		}
		vs.Framebuffers[i] = fb
	}
	return nil
}

// SwapchainAcquireNextImageIndex returns the next image index. ok is false when
// the swapchain is out of date and must be recreated before rendering.
func (vs *VulkanSwapchain) SwapchainAcquireNextImageIndex(context *VulkanContext, timeoutNS uint64, imageAvailableSemaphore vk.Semaphore, fence vk.Fence) (index uint32, ok bool, err error) {
	result := vk.AcquireNextImage(context.Device.LogicalDevice, vs.Handle, timeoutNS, imageAvailableSemaphore, fence, &index)
	switch result {
	case vk.Success, vk.Suboptimal:
		return index, true, nil
	case vk.ErrorOutOfDate:
		return 0, false, nil
	default:
		return 0, false, checkResult("vkAcquireNextImageKHR", result)
	}
}

// SwapchainPresent hands the image back for presentation. ok is false when the
// swapchain is out of date or suboptimal.
func (vs *VulkanSwapchain) SwapchainPresent(presentQueue vk.Queue, renderCompleteSemaphore vk.Semaphore, presentImageIndex uint32) (ok bool, err error) {
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{renderCompleteSemaphore},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{vs.Handle},
		PImageIndices:      []uint32{presentImageIndex},
		PResults:           nil,
	}

	result := vk.QueuePresent(presentQueue, &presentInfo)
	switch result {
	case vk.Success:
		return true, nil
	case vk.ErrorOutOfDate, vk.Suboptimal:
		return false, nil
	default:
		return false, checkResult("vkQueuePresentKHR", result)
	}
}

func createSwapchain(context *VulkanContext, width, height uint32) (*VulkanSwapchain, error) {
	swapchain := &VulkanSwapchain{}
	support := &context.Device.SwapchainSupport
	if support.FormatCount == 0 {
		return nil, fmt.Errorf("surface reports no formats")
	}

	swapchainExtent := vk.Extent2D{
		Width:  width,
		Height: height,
	}

	// Choose a swap surface format.
	swapchain.ImageFormat = support.Formats[0]
	for _, format := range support.Formats[:support.FormatCount] {
		// Preferred formats
		if format.Format == vk.FormatB8g8r8a8Unorm && format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			swapchain.ImageFormat = format
			break
		}
	}

	presentMode := vk.PresentModeFifo
	for _, mode := range support.PresentModes[:support.PresentModeCount] {
		if mode == vk.PresentModeMailbox {
			presentMode = mode
			break
		}
	}

	// Swapchain extent
	if support.Capabilities.CurrentExtent.Width != math.MaxUint32 {
		swapchainExtent = support.Capabilities.CurrentExtent
	}

	// Clamp to the value allowed by the GPU.
	min := support.Capabilities.MinImageExtent
	max := support.Capabilities.MaxImageExtent
	swapchainExtent.Width = MathClamp(swapchainExtent.Width, min.Width, max.Width)
	swapchainExtent.Height = MathClamp(swapchainExtent.Height, min.Height, max.Height)
	swapchain.Extent = swapchainExtent

	imageCount := support.Capabilities.MinImageCount + 1
	if support.Capabilities.MaxImageCount > 0 && imageCount > support.Capabilities.MaxImageCount {
		imageCount = support.Capabilities.MaxImageCount
	}

	// Swapchain create info
	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          context.Surface,
		MinImageCount:    imageCount,
		ImageFormat:      swapchain.ImageFormat.Format,
		ImageColorSpace:  swapchain.ImageFormat.ColorSpace,
		ImageExtent:      swapchainExtent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     support.Capabilities.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
	}

	// Setup the queue family indices
	if context.Device.GraphicsQueueIndex != context.Device.PresentQueueIndex {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeConcurrent
		swapchainCreateInfo.QueueFamilyIndexCount = 2
		swapchainCreateInfo.PQueueFamilyIndices = []uint32{
			uint32(context.Device.GraphicsQueueIndex),
			uint32(context.Device.PresentQueueIndex),
		}
	} else {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	var swapchainHandle vk.Swapchain
	if err := checkResult("vkCreateSwapchainKHR", vk.CreateSwapchain(context.Device.LogicalDevice, &swapchainCreateInfo, context.Allocator, &swapchainHandle)); err != nil {
		return nil, err
	}
	swapchain.Handle = swapchainHandle

	// Images
	if err := checkResult("vkGetSwapchainImagesKHR", vk.GetSwapchainImages(context.Device.LogicalDevice, swapchain.Handle, &swapchain.ImageCount, nil)); err != nil {
		swapchain.destroySwapchain(context)
		return nil, err
	}
	swapchain.Images = make([]vk.Image, swapchain.ImageCount)
	if err := checkResult("vkGetSwapchainImagesKHR", vk.GetSwapchainImages(context.Device.LogicalDevice, swapchain.Handle, &swapchain.ImageCount, swapchain.Images)); err != nil {
		swapchain.destroySwapchain(context)
		return nil, err
	}

	// Views
	swapchain.Views = make([]vk.ImageView, 0, swapchain.ImageCount)
	for i := 0; i < int(swapchain.ImageCount); i++ {
		viewInfo := vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    swapchain.Images[i],
			ViewType: vk.ImageViewType2d,
			Format:   swapchain.ImageFormat.Format,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
		}

		var view vk.ImageView
		if err := checkResult("vkCreateImageView", vk.CreateImageView(context.Device.LogicalDevice, &viewInfo, context.Allocator, &view)); err != nil {
			swapchain.destroySwapchain(context)
			return nil, err
		}
		swapchain.Views = append(swapchain.Views, view)
	}

	// Depth resources
	if !DeviceDetectDepthFormat(context.Device) {
		context.Device.DepthFormat = vk.FormatUndefined
		swapchain.destroySwapchain(context)
		return nil, fmt.Errorf("failed to find a supported depth format")
	}

	// Create depth image and its view.
	depthAttachment, err := ImageCreate(
		context,
		swapchainExtent.Width,
		swapchainExtent.Height,
		context.Device.DepthFormat,
		vk.ImageTilingOptimal,
		vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
		true,
		vk.ImageAspectFlags(vk.ImageAspectDepthBit))
	if err != nil {
		swapchain.destroySwapchain(context)
		return nil, fmt.Errorf("depth attachment: %w", err)
	}
	swapchain.DepthAttachment = depthAttachment

	core.LogInfo("Swapchain created successfully (%dx%d, %d images).", swapchainExtent.Width, swapchainExtent.Height, swapchain.ImageCount)

	return swapchain, nil
}

func (vs *VulkanSwapchain) destroySwapchain(context *VulkanContext) {
	for _, fb := range vs.Framebuffers {
		if fb != nil {
			fb.Destroy(context)
		}
	}
	vs.Framebuffers = nil

	if vs.DepthAttachment != nil {
		vs.DepthAttachment.ImageDestroy(context)
		vs.DepthAttachment = nil
	}

	// Only destroy the views, not the images, since those are owned by the swapchain and are thus
	// destroyed when it is.
	for _, view := range vs.Views {
		vk.DestroyImageView(context.Device.LogicalDevice, view, context.Allocator)
	}
	vs.Views = nil

	if vs.Handle != nil {
		vk.DestroySwapchain(context.Device.LogicalDevice, vs.Handle, context.Allocator)
		vs.Handle = nil
	}
}

type renderTarget struct {
	index uint32
}

func (t renderTarget) Index() uint32 {
	return t.index
}

/**
 * @brief The presentation side of the device. An image is acquired on the first
 * CurrentBackBuffer of a frame, the next Execute waits on it and Present hands
 * it back. An out of date swapchain is rebuilt on the spot and the frame is
 * dropped with core.ErrSwapchainBooting.
 */
type VulkanSurface struct {
	device *Device

	mu         sync.Mutex
	acquired   bool
	imageIndex uint32
	// Signalled by the acquire, consumed by the first submission after it.
	imageAvailable vk.Semaphore
	renderComplete []vk.Semaphore
}

func newSurface(device *Device) (*VulkanSurface, error) {
	s := &VulkanSurface{device: device}
	if err := s.createRenderSemaphores(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *VulkanSurface) createRenderSemaphores() error {
	ctx := s.device.context
	s.destroyRenderSemaphores()
	s.renderComplete = make([]vk.Semaphore, 0, ctx.Swapchain.ImageCount)
	for i := uint32(0); i < ctx.Swapchain.ImageCount; i++ {
		sem, err := createSemaphore(ctx)
		if err != nil {
			return err
		}
		s.renderComplete = append(s.renderComplete, sem)
	}
	return nil
}

func (s *VulkanSurface) destroyRenderSemaphores() {
	ctx := s.device.context
	for _, sem := range s.renderComplete {
		vk.DestroySemaphore(ctx.Device.LogicalDevice, sem, ctx.Allocator)
	}
	s.renderComplete = nil
}

func (s *VulkanSurface) CurrentBackBuffer() (metadata.RenderTarget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acquired {
		return renderTarget{index: s.imageIndex}, nil
	}

	ctx := s.device.context
	sem, err := s.device.queue.takeSemaphore()
	if err != nil {
		return nil, err
	}
	index, ok, err := ctx.Swapchain.SwapchainAcquireNextImageIndex(ctx, math.MaxUint64, sem, nil)
	if err != nil {
		s.device.queue.recycleSemaphores(sem)
		return nil, err
	}
	if !ok {
		// Nothing was signalled, the semaphore can go straight back.
		s.device.queue.recycleSemaphores(sem)
		if err := s.recreate(ctx.FramebufferWidth, ctx.FramebufferHeight); err != nil {
			return nil, err
		}
		return nil, core.ErrSwapchainBooting
	}

	s.acquired = true
	s.imageIndex = index
	s.imageAvailable = sem
	return renderTarget{index: index}, nil
}

// takeAcquire hands the pending acquire semaphore to a submission together
// with the semaphore it must signal for present.
func (s *VulkanSurface) takeAcquire() (wait vk.Semaphore, signal vk.Semaphore) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.acquired {
		return nil, nil
	}
	wait = s.imageAvailable
	s.imageAvailable = nil
	return wait, s.renderComplete[s.imageIndex]
}

func (s *VulkanSurface) Present() error {
	s.mu.Lock()
	if !s.acquired {
		s.mu.Unlock()
		return fmt.Errorf("present without an acquired back buffer: %w", core.ErrNoFrame)
	}
	pendingAcquire := s.imageAvailable != nil
	s.mu.Unlock()

	// The image was acquired but nothing was submitted against it.
	if pendingAcquire {
		if err := s.device.queue.submit(nil); err != nil {
			return err
		}
	}

	s.mu.Lock()
	index := s.imageIndex
	s.acquired = false
	s.mu.Unlock()

	ctx := s.device.context
	var ok bool
	err := s.device.locks.SafeQueueCall(uint32(ctx.Device.PresentQueueIndex), func() error {
		var presentErr error
		ok, presentErr = ctx.Swapchain.SwapchainPresent(ctx.Device.PresentQueue, s.renderComplete[index], index)
		return presentErr
	})
	if err != nil {
		return err
	}
	if !ok {
		s.mu.Lock()
		defer s.mu.Unlock()
		if err := s.recreate(ctx.FramebufferWidth, ctx.FramebufferHeight); err != nil {
			return err
		}
		return core.ErrSwapchainBooting
	}
	return nil
}

func (s *VulkanSurface) Resize(width, height uint32) error {
	if width == 0 || height == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recreate(width, height)
}

// recreate must be called with mu held.
func (s *VulkanSurface) recreate(width, height uint32) error {
	ctx := s.device.context
	ctx.FramebufferWidth = width
	ctx.FramebufferHeight = height

	oldCount := ctx.Swapchain.ImageCount
	swapchain, err := ctx.Swapchain.SwapchainRecreate(ctx, width, height)
	if err != nil {
		return fmt.Errorf("recreating swapchain: %w", err)
	}
	ctx.Swapchain = swapchain
	// The device is idle, so every pending submission can retire.
	s.device.queue.poll()
	if s.imageAvailable != nil {
		s.device.queue.recycleSemaphores(s.imageAvailable)
		s.imageAvailable = nil
	}
	s.acquired = false

	if swapchain.ImageCount != oldCount {
		return s.createRenderSemaphores()
	}
	return nil
}

func (s *VulkanSurface) Size() (uint32, uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	extent := s.device.context.Swapchain.Extent
	return extent.Width, extent.Height
}

func (s *VulkanSurface) BufferCount() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device.context.Swapchain.ImageCount
}

func (s *VulkanSurface) framebuffer(index uint32) (*VulkanFramebuffer, vk.Extent2D, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	swapchain := s.device.context.Swapchain
	if index >= uint32(len(swapchain.Framebuffers)) {
		return nil, vk.Extent2D{}, fmt.Errorf("render target %d outside swapchain of %d images", index, len(swapchain.Framebuffers))
	}
	return swapchain.Framebuffers[index], swapchain.Extent, nil
}

func (s *VulkanSurface) destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyRenderSemaphores()
}
