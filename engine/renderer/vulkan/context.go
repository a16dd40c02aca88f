package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
)

// VulkanContext owns the Vulkan objects of the backend and maps the opaque
// renderer handles onto them.
type VulkanContext struct {
	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks
	Surface   vk.Surface

	debugCallback vk.DebugReportCallback

	Device    *VulkanDevice
	Swapchain *VulkanSwapchain

	// One counter for every handle kind, so a handle is never ambiguous.
	nextHandle     renderer.Handle
	fences         map[renderer.Handle]*VulkanFence
	semaphores     map[renderer.Handle]vk.Semaphore
	commandPools   map[renderer.Handle]vk.CommandPool
	commandBuffers map[renderer.Handle]*VulkanCommandBuffer
	images         map[renderer.Handle]vk.Image
	imageViews     map[renderer.Handle]vk.ImageView
	memory         map[renderer.Handle]vk.DeviceMemory
}

func newVulkanContext() *VulkanContext {
	return &VulkanContext{
		Allocator:      nil,
		Device:         &VulkanDevice{GraphicsQueueIndex: -1, PresentQueueIndex: -1},
		fences:         make(map[renderer.Handle]*VulkanFence),
		semaphores:     make(map[renderer.Handle]vk.Semaphore),
		commandPools:   make(map[renderer.Handle]vk.CommandPool),
		commandBuffers: make(map[renderer.Handle]*VulkanCommandBuffer),
		images:         make(map[renderer.Handle]vk.Image),
		imageViews:     make(map[renderer.Handle]vk.ImageView),
		memory:         make(map[renderer.Handle]vk.DeviceMemory),
	}
}

func (vc *VulkanContext) newHandle() renderer.Handle {
	vc.nextHandle++
	return vc.nextHandle
}

// FindMemoryIndex returns the index of a memory type allowed by typeFilter
// that has every flag in propertyFlags.
func (vc *VulkanContext) FindMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) (uint32, bool) {
	var memoryProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(vc.Device.PhysicalDevice, &memoryProperties)
	memoryProperties.Deref()

	for i := uint32(0); i < memoryProperties.MemoryTypeCount; i++ {
		// Check each memory type to see if its bit is set to 1.
		memoryType := memoryProperties.MemoryTypes[i]
		memoryType.Deref()
		if (typeFilter&(1<<i)) != 0 && memoryType.PropertyFlags&propertyFlags == propertyFlags {
			return i, true
		}
	}
	core.LogWarn("Unable to find suitable memory type!")
	return 0, false
}
