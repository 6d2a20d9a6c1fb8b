package vulkan

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/castle/engine/core"
	"github.com/spaghettifunk/castle/engine/platform"
	"github.com/spaghettifunk/castle/engine/renderer/metadata"
)

var (
	_ metadata.Device  = (*Device)(nil)
	_ metadata.Surface = (*VulkanSurface)(nil)
	_ metadata.Queue   = (*VulkanQueue)(nil)
)

type Config struct {
	ApplicationName string
	Width           uint32
	Height          uint32
	// Enables VK_LAYER_KHRONOS_validation and the debug report callback.
	Validation bool
	// ShaderSource returns the SPIR-V code of a named shader.
	ShaderSource func(name string) ([]byte, error)
}

/**
 * @brief metadata.Device on top of Vulkan 1.1. Buffers are addressed by an id
 * in the upper bits of a GPUAddress; constant buffer views become dynamic
 * uniform descriptor sets and descriptor tables plain uniform sets.
 */
type Device struct {
	platform     *platform.Platform
	context      *VulkanContext
	locks        *VulkanLockPool
	shaderSource func(name string) ([]byte, error)
	validation   bool

	buffers      map[uint64]*VulkanBuffer
	nextBufferID uint64
	uniformSets  map[uniformSetKey]vk.DescriptorSet

	queue   *VulkanQueue
	surface *VulkanSurface
}

func New(p *platform.Platform, config Config) (*Device, error) {
	d := &Device{
		platform:     p,
		context:      &VulkanContext{FramebufferWidth: config.Width, FramebufferHeight: config.Height},
		locks:        NewVulkanLockPool(),
		shaderSource: config.ShaderSource,
		validation:   config.Validation,
		buffers:      make(map[uint64]*VulkanBuffer),
		nextBufferID: 1,
		uniformSets:  make(map[uniformSetKey]vk.DescriptorSet),
	}
	if err := d.initialize(config.ApplicationName); err != nil {
		d.Destroy()
		return nil, err
	}
	core.LogInfo("Vulkan renderer initialized successfully.")
	return d, nil
}

func (d *Device) initialize(appName string) error {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		return fmt.Errorf("GetInstanceProcAddress is nil")
	}
	vk.SetGetInstanceProcAddr(procAddr)

	if err := vk.Init(); err != nil {
		return fmt.Errorf("failed to initialize vk: %w", err)
	}

	if err := d.createInstance(appName); err != nil {
		return err
	}

	if d.validation {
		if err := d.createDebugCallback(); err != nil {
			return err
		}
	}

	// Surface
	core.LogDebug("Creating Vulkan surface...")
	surface, err := d.platform.Window.CreateWindowSurface(d.context.Instance, nil)
	if err != nil {
		return fmt.Errorf("vulkan surface creation failed: %w", err)
	}
	d.context.Surface = vk.SurfaceFromPointer(surface)
	core.LogDebug("Vulkan surface created.")

	// Device creation
	if err := DeviceCreate(d.context); err != nil {
		return fmt.Errorf("failed to create device: %w", err)
	}
	d.locks.SetQueueFamily(uint32(d.context.Device.GraphicsQueueIndex))
	d.locks.SetQueueFamily(uint32(d.context.Device.PresentQueueIndex))

	// Swapchain
	sc, err := SwapchainCreate(d.context, d.context.FramebufferWidth, d.context.FramebufferHeight)
	if err != nil {
		return err
	}
	d.context.Swapchain = sc

	rp, err := RenderpassCreate(d.context, sc.ImageFormat.Format)
	if err != nil {
		return err
	}
	d.context.MainRenderpass = rp

	// Swapchain framebuffers.
	if err := sc.RegenerateFramebuffers(d.context, rp); err != nil {
		return err
	}

	if err := DescriptorsCreate(d.context); err != nil {
		return err
	}

	d.queue = newQueue(d)
	if d.surface, err = newSurface(d); err != nil {
		return err
	}
	return nil
}

func (d *Device) createInstance(appName string) error {
	// Setup Vulkan instance. 1.1 is needed for negative viewport heights.
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(appName),
		PEngineName:        VulkanSafeString("Castle Engine"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	// Obtain a list of required extensions
	requiredExtensions := []string{"VK_KHR_surface"} // Generic surface extension
	requiredExtensions = append(requiredExtensions, d.platform.GetRequiredExtensionNames()...)

	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}

	// Validation layers.
	var requiredValidationLayerNames []string
	if d.validation {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
		requiredValidationLayerNames = []string{"VK_LAYER_KHRONOS_validation"}
		if err := checkValidationLayers(requiredValidationLayerNames); err != nil {
			return err
		}
	}

	core.LogInfo("Required extensions:")
	for _, name := range requiredExtensions {
		core.LogInfo(name)
	}

	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)
	createInfo.EnabledLayerCount = uint32(len(requiredValidationLayerNames))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(requiredValidationLayerNames)

	var instance vk.Instance
	if err := checkResult("vkCreateInstance", vk.CreateInstance(&createInfo, d.context.Allocator, &instance)); err != nil {
		return err
	}
	d.context.Instance = instance
	if err := vk.InitInstance(instance); err != nil {
		return err
	}

	core.LogInfo("Vulkan Instance created.")
	return nil
}

// checkValidationLayers makes sure every required layer is available.
func checkValidationLayers(required []string) error {
	core.LogInfo("Validation layers enabled. Enumerating...")

	var availableLayerCount uint32
	if err := checkResult("vkEnumerateInstanceLayerProperties", vk.EnumerateInstanceLayerProperties(&availableLayerCount, nil)); err != nil {
		return err
	}
	availableLayers := make([]vk.LayerProperties, availableLayerCount)
	if err := checkResult("vkEnumerateInstanceLayerProperties", vk.EnumerateInstanceLayerProperties(&availableLayerCount, availableLayers)); err != nil {
		return err
	}

	for _, name := range required {
		core.LogInfo("Searching for layer: %s...", name)
		found := false
		for j := range availableLayers {
			availableLayers[j].Deref()
			if vulkanString(availableLayers[j].LayerName[:]) == name {
				found = true
				core.LogInfo("Found.")
				break
			}
		}
		if !found {
			return fmt.Errorf("required validation layer is missing: %s", name)
		}
	}
	core.LogInfo("All required validation layers are present.")
	return nil
}

func (d *Device) createDebugCallback() error {
	core.LogDebug("Creating Vulkan debugger...")
	debugCreateInfo := vk.DebugReportCallbackCreateInfo{
		SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
		PfnCallback: dbgCallbackFunc,
	}

	var dbg vk.DebugReportCallback
	if err := checkResult("vkCreateDebugReportCallbackEXT", vk.CreateDebugReportCallback(d.context.Instance, &debugCreateInfo, nil, &dbg)); err != nil {
		return err
	}
	d.context.debugMessenger = dbg
	core.LogDebug("Vulkan debugger created.")
	return nil
}

func (d *Device) CreateFence(initialValue uint64) (metadata.Fence, error) {
	return newFence(d, initialValue), nil
}

func (d *Device) Queue() metadata.Queue {
	return d.queue
}

func (d *Device) Surface() metadata.Surface {
	return d.surface
}

// Destroy waits for the GPU and releases everything in the opposite order of creation.
func (d *Device) Destroy() error {
	ctx := d.context
	var err error
	if ctx.Device != nil && ctx.Device.LogicalDevice != nil {
		if d.queue != nil {
			err = d.queue.waitIdle()
			d.queue.destroy()
		}
		if d.surface != nil {
			d.surface.destroy()
		}
		if n := len(d.buffers); n > 0 {
			core.LogWarn("%d buffers still alive at device destruction", n)
		}
		// Sets go away with the pool.
		d.uniformSets = make(map[uniformSetKey]vk.DescriptorSet)
		DescriptorsDestroy(ctx)

		if ctx.MainRenderpass != nil {
			ctx.MainRenderpass.RenderpassDestroy(ctx)
			ctx.MainRenderpass = nil
		}
		if ctx.Swapchain != nil {
			ctx.Swapchain.SwapchainDestroy(ctx)
			ctx.Swapchain = nil
		}
	}
	DeviceDestroy(ctx)

	if ctx.Surface != nil {
		core.LogDebug("Destroying Vulkan surface...")
		vk.DestroySurface(ctx.Instance, ctx.Surface, ctx.Allocator)
		ctx.Surface = nil
	}
	if ctx.debugMessenger != nil {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(ctx.Instance, ctx.debugMessenger, ctx.Allocator)
		ctx.debugMessenger = nil
	}
	if ctx.Instance != nil {
		core.LogDebug("Destroying Vulkan instance...")
		vk.DestroyInstance(ctx.Instance, ctx.Allocator)
		ctx.Instance = nil
	}
	return err
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogInfo("INFORMATION: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
