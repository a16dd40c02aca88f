package vulkan

import (
	"errors"
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/platform"
	"github.com/spaghettifunk/lumen/engine/renderer"
)

const validationLayerName = "VK_LAYER_KHRONOS_validation"

// VulkanRenderer is the Vulkan implementation of renderer.Device. It owns the
// instance, the surface and the logical device, and hands out the swapchain
// as the renderer.Presenter.
type VulkanRenderer struct {
	platform *platform.Platform
	config   core.RendererConfig
	appName  string
	context  *VulkanContext

	// Command buffers allocated from each pool, freed with it.
	poolBuffers map[renderer.Handle][]renderer.Handle

	debug       bool
	initialized bool
}

// New creates the Vulkan backend for the platform window. Everything created
// before a failure is destroyed again.
func New(p *platform.Platform, cfg core.RendererConfig, appName string) (*VulkanRenderer, error) {
	vr := &VulkanRenderer{
		platform:    p,
		config:      cfg,
		appName:     appName,
		context:     newVulkanContext(),
		poolBuffers: make(map[renderer.Handle][]renderer.Handle),
		debug:       cfg.Validation,
	}
	if err := vr.Initialize(); err != nil {
		vr.destroy()
		return nil, err
	}
	vr.initialized = true
	return vr, nil
}

func (vr *VulkanRenderer) Initialize() error {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		return errors.New("GetInstanceProcAddress is nil")
	}
	vk.SetGetInstanceProcAddr(procAddr)

	if err := vk.Init(); err != nil {
		core.LogError("failed to initialize vk: %s", err)
		return err
	}

	if err := vr.createInstance(); err != nil {
		return err
	}

	// Debugger
	if vr.debug {
		core.LogDebug("Creating Vulkan debugger...")
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if err := vk.Error(vk.CreateDebugReportCallback(vr.context.Instance, &debugCreateInfo, vr.context.Allocator, &dbg)); err != nil {
			core.LogError("vk.CreateDebugReportCallback failed with %s", err)
			return err
		}
		vr.context.debugCallback = dbg
		core.LogDebug("Vulkan debugger created.")
	}

	// Surface
	core.LogDebug("Creating Vulkan surface...")
	surface, err := vr.platform.Window.CreateWindowSurface(vr.context.Instance, nil)
	if err != nil {
		return fmt.Errorf("vulkan surface creation failed: %w", err)
	}
	vr.context.Surface = vk.SurfaceFromPointer(surface)
	core.LogDebug("Vulkan surface created.")

	// Device creation
	if err := DeviceCreate(vr.context); err != nil {
		core.LogError("Failed to create device!")
		return err
	}

	// Swapchain
	width, height := vr.platform.FramebufferSize()
	sc, err := SwapchainCreate(vr.context, width, height, vr.config.PresentMode)
	if err != nil {
		return err
	}
	vr.context.Swapchain = sc

	core.LogInfo("Vulkan renderer initialized successfully on %s.", vr.context.Device)
	return nil
}

func (vr *VulkanRenderer) createInstance() error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 0, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(vr.appName),
		PEngineName:        VulkanSafeString("Lumen"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	// Obtain a list of required extensions. GLFW already includes the
	// generic surface extension.
	requiredExtensions := vr.platform.GetRequiredExtensionNames()
	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}

	// Validation layers.
	var requiredLayers []string
	if vr.debug {
		found, err := instanceLayerAvailable(validationLayerName)
		if err != nil {
			return err
		}
		if found {
			core.LogInfo("Validation layers enabled.")
			requiredLayers = []string{validationLayerName}
			requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
		} else {
			core.LogWarn("Required validation layer is missing: %s. Continuing without validation.", validationLayerName)
			vr.debug = false
		}
	}
	requiredExtensions = dedupe(requiredExtensions)

	core.LogDebug("Required extensions:")
	for _, ext := range requiredExtensions {
		core.LogDebug(ext)
	}

	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)
	createInfo.EnabledLayerCount = uint32(len(requiredLayers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(requiredLayers)

	if res := vk.CreateInstance(&createInfo, vr.context.Allocator, &vr.context.Instance); res != vk.Success {
		err := resultError("vkCreateInstance", res)
		core.LogError(err.Error())
		return err
	}
	if err := vk.InitInstance(vr.context.Instance); err != nil {
		core.LogError(err.Error())
		return err
	}

	core.LogInfo("Vulkan Instance created.")
	return nil
}

func instanceLayerAvailable(name string) (bool, error) {
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
		return false, resultError("vkEnumerateInstanceLayerProperties", res)
	}
	layers := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, layers); res != vk.Success {
		return false, resultError("vkEnumerateInstanceLayerProperties", res)
	}
	for i := range layers {
		layers[i].Deref()
		if cString(layers[i].LayerName[:]) == name {
			return true, nil
		}
	}
	return false, nil
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := names[:0]
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

func (vr *VulkanRenderer) Presenter() renderer.Presenter {
	return vr.context.Swapchain
}

func (vr *VulkanRenderer) Submit(info renderer.SubmitInfo) error {
	cb, ok := vr.context.commandBuffers[info.Commands]
	if !ok {
		return fmt.Errorf("submit: unknown command buffer %d", info.Commands)
	}
	wait, ok := vr.context.semaphores[info.Wait.Semaphore]
	if !ok {
		return fmt.Errorf("submit: unknown wait semaphore %d", info.Wait.Semaphore)
	}
	signal, ok := vr.context.semaphores[info.Signal.Semaphore]
	if !ok {
		return fmt.Errorf("submit: unknown signal semaphore %d", info.Signal.Semaphore)
	}
	fence := vk.NullFence
	var vf *VulkanFence
	if info.Fence != renderer.NullHandle {
		if vf, ok = vr.context.fences[info.Fence]; !ok {
			return fmt.Errorf("submit: unknown fence %d", info.Fence)
		}
		fence = vf.Handle
	}

	// Semaphores are signaled once every command completed, so the signal
	// stage needs no mask here.
	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   1,
		PWaitSemaphores:      []vk.Semaphore{wait},
		PWaitDstStageMask:    []vk.PipelineStageFlags{toVkStage(info.Wait.Stage)},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{cb.Buffer},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{signal},
	}
	if result := vk.QueueSubmit(vr.context.Device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, fence); result != vk.Success {
		err := resultError("vkQueueSubmit", result)
		core.LogError(err.Error())
		return err
	}
	if vf != nil {
		vf.IsSignaled = false
	}
	cb.UpdateSubmitted()
	return nil
}

func (vr *VulkanRenderer) WaitIdle() error {
	if vr.context.Device.LogicalDevice == nil {
		return nil
	}
	return vr.context.Device.waitIdle()
}

// Release destroys a single resource. Swapchain images are owned by the
// swapchain and cannot be released individually.
func (vr *VulkanRenderer) Release(r renderer.Release) error {
	ctx := vr.context
	device := ctx.Device.LogicalDevice
	switch r.Kind {
	case renderer.ResourceFence:
		fence, ok := ctx.fences[r.Handle]
		if !ok {
			break
		}
		fence.FenceDestroy(ctx)
		delete(ctx.fences, r.Handle)
		return nil
	case renderer.ResourceSemaphore:
		semaphore, ok := ctx.semaphores[r.Handle]
		if !ok {
			break
		}
		vk.DestroySemaphore(device, semaphore, ctx.Allocator)
		delete(ctx.semaphores, r.Handle)
		return nil
	case renderer.ResourceCommandPool:
		pool, ok := ctx.commandPools[r.Handle]
		if !ok {
			break
		}
		// Destroying the pool frees every buffer allocated from it.
		vk.DestroyCommandPool(device, pool, ctx.Allocator)
		for _, cb := range vr.poolBuffers[r.Handle] {
			delete(ctx.commandBuffers, cb)
		}
		delete(vr.poolBuffers, r.Handle)
		delete(ctx.commandPools, r.Handle)
		return nil
	case renderer.ResourceImage:
		if ctx.Swapchain != nil && ctx.Swapchain.owns(r.Handle) {
			return fmt.Errorf("release %s: swapchain images are owned by the swapchain", r)
		}
		image, ok := ctx.images[r.Handle]
		if !ok {
			break
		}
		vk.DestroyImage(device, image, ctx.Allocator)
		delete(ctx.images, r.Handle)
		return nil
	case renderer.ResourceImageView:
		view, ok := ctx.imageViews[r.Handle]
		if !ok {
			break
		}
		vk.DestroyImageView(device, view, ctx.Allocator)
		delete(ctx.imageViews, r.Handle)
		return nil
	case renderer.ResourceDeviceMemory:
		memory, ok := ctx.memory[r.Handle]
		if !ok {
			break
		}
		vk.FreeMemory(device, memory, ctx.Allocator)
		delete(ctx.memory, r.Handle)
		return nil
	}
	return fmt.Errorf("release %s: unknown handle", r)
}

// Shutdown destroys the swapchain, the device, the surface and the instance.
// Every resource handed out must have been released before.
func (vr *VulkanRenderer) Shutdown() error {
	if !vr.initialized {
		return nil
	}
	vr.initialized = false
	if err := vr.WaitIdle(); err != nil {
		core.LogWarn("Device wait idle on shutdown failed: %s", err)
	}
	if leaked := vr.liveResources(); leaked > 0 {
		core.LogWarn("Shutting down with %d live resources.", leaked)
	}
	vr.destroy()
	return nil
}

func (vr *VulkanRenderer) liveResources() int {
	ctx := vr.context
	swapchainImages := 0
	if ctx.Swapchain != nil {
		swapchainImages = len(ctx.Swapchain.handles)
	}
	return len(ctx.fences) + len(ctx.semaphores) + len(ctx.commandPools) +
		len(ctx.images) - swapchainImages + len(ctx.imageViews) + len(ctx.memory)
}

// destroy tears down in the opposite order of creation and tolerates a
// partially initialized context.
func (vr *VulkanRenderer) destroy() {
	ctx := vr.context

	// Swapchain
	if ctx.Swapchain != nil {
		ctx.Swapchain.Destroy()
		ctx.Swapchain = nil
	}

	core.LogDebug("Destroying Vulkan device...")
	DeviceDestroy(ctx)

	core.LogDebug("Destroying Vulkan surface...")
	if ctx.Surface != vk.NullSurface {
		vk.DestroySurface(ctx.Instance, ctx.Surface, ctx.Allocator)
		ctx.Surface = vk.NullSurface
	}

	if ctx.debugCallback != vk.NullDebugReportCallback {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(ctx.Instance, ctx.debugCallback, ctx.Allocator)
		ctx.debugCallback = vk.NullDebugReportCallback
	}

	if ctx.Instance != nil {
		core.LogDebug("Destroying Vulkan instance...")
		vk.DestroyInstance(ctx.Instance, ctx.Allocator)
		ctx.Instance = nil
	}
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportDebugBit) != 0:
		core.LogDebug("DEBUG: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogInfo("INFORMATION: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
