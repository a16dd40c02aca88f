package vulkan

import (
	"fmt"
	"math"
	"time"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	emath "github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer"
)

// VulkanSwapchain owns the presentable images of the window surface and
// implements renderer.Presenter.
type VulkanSwapchain struct {
	context     *VulkanContext
	presentMode string

	ImageFormat vk.SurfaceFormat
	Handle      vk.Swapchain
	ImageCount  uint32
	Images      []vk.Image
	Views       []vk.ImageView
	Extent      vk.Extent2D

	// Renderer handles of Images, by image index.
	handles []renderer.Handle
}

func SwapchainCreate(context *VulkanContext, width, height uint32, presentMode string) (*VulkanSwapchain, error) {
	swapchain := &VulkanSwapchain{
		context:     context,
		presentMode: presentMode,
	}
	if err := swapchain.create(width, height); err != nil {
		return nil, err
	}
	return swapchain, nil
}

func (vs *VulkanSwapchain) Images() []renderer.Handle {
	return vs.handles
}

func (vs *VulkanSwapchain) Format() renderer.Format {
	return fromVkFormat(vs.ImageFormat.Format)
}

func (vs *VulkanSwapchain) Extent() renderer.Extent {
	return renderer.Extent{Width: vs.Extent.Width, Height: vs.Extent.Height}
}

func (vs *VulkanSwapchain) AcquireNextImage(timeout time.Duration, signal renderer.Handle) (uint32, error) {
	semaphore, ok := vs.context.semaphores[signal]
	if !ok {
		return 0, fmt.Errorf("acquire: unknown semaphore %d", signal)
	}
	var imageIndex uint32
	result := vk.AcquireNextImage(vs.context.Device.LogicalDevice, vs.Handle, uint64(timeout.Nanoseconds()), semaphore, vk.NullFence, &imageIndex)
	switch result {
	case vk.Success:
		return imageIndex, nil
	case vk.Suboptimal:
		// The semaphore is signaled and the image is usable. The next
		// present reports the stale surface.
		return imageIndex, nil
	default:
		return 0, resultError("vkAcquireNextImageKHR", result)
	}
}

func (vs *VulkanSwapchain) Present(imageIndex uint32, wait renderer.Handle) error {
	semaphore, ok := vs.context.semaphores[wait]
	if !ok {
		return fmt.Errorf("present: unknown semaphore %d", wait)
	}
	// Return the image to the swapchain for presentation.
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{semaphore},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{vs.Handle},
		PImageIndices:      []uint32{imageIndex},
	}
	result := vk.QueuePresent(vs.context.Device.PresentQueue, &presentInfo)
	if result != vk.Success {
		return resultError("vkQueuePresentKHR", result)
	}
	return nil
}

// Recreate requeries the surface support, since the capabilities follow the
// window, then rebuilds the swapchain.
func (vs *VulkanSwapchain) Recreate(extent renderer.Extent) error {
	device := vs.context.Device
	if err := DeviceQuerySwapchainSupport(device.PhysicalDevice, vs.context.Surface, &device.SwapchainSupport); err != nil {
		return err
	}
	vs.destroy()
	return vs.create(extent.Width, extent.Height)
}

func (vs *VulkanSwapchain) Destroy() {
	vs.destroy()
}

func (vs *VulkanSwapchain) chooseSurfaceFormat() vk.SurfaceFormat {
	formats := vs.context.Device.SwapchainSupport.Formats
	for _, format := range formats {
		// Preferred formats
		if format.Format == vk.FormatB8g8r8a8Srgb && format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return format
		}
	}
	return formats[0]
}

func (vs *VulkanSwapchain) choosePresentMode() vk.PresentMode {
	if vs.presentMode == core.PresentModeMailbox {
		for _, mode := range vs.context.Device.SwapchainSupport.PresentModes {
			if mode == vk.PresentModeMailbox {
				return mode
			}
		}
		core.LogWarn("Mailbox present mode unavailable, falling back to FIFO.")
	}
	// FIFO is always supported.
	return vk.PresentModeFifo
}

func (vs *VulkanSwapchain) create(width, height uint32) error {
	context := vs.context
	support := &context.Device.SwapchainSupport
	if len(support.Formats) == 0 {
		return fmt.Errorf("swapchain: surface reports no formats")
	}

	vs.ImageFormat = vs.chooseSurfaceFormat()
	presentMode := vs.choosePresentMode()

	swapchainExtent := vk.Extent2D{Width: width, Height: height}
	if support.Capabilities.CurrentExtent.Width != math.MaxUint32 {
		swapchainExtent = support.Capabilities.CurrentExtent
	}

	// Clamp to the value allowed by the GPU.
	min := support.Capabilities.MinImageExtent
	max := support.Capabilities.MaxImageExtent
	swapchainExtent.Width = emath.Clamp(swapchainExtent.Width, min.Width, max.Width)
	swapchainExtent.Height = emath.Clamp(swapchainExtent.Height, min.Height, max.Height)

	imageCount := support.Capabilities.MinImageCount + 1
	if support.Capabilities.MaxImageCount > 0 && imageCount > support.Capabilities.MaxImageCount {
		imageCount = support.Capabilities.MaxImageCount
	}

	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          context.Surface,
		MinImageCount:    imageCount,
		ImageFormat:      vs.ImageFormat.Format,
		ImageColorSpace:  vs.ImageFormat.ColorSpace,
		ImageExtent:      swapchainExtent,
		ImageArrayLayers: 1,
		// Frames are cleared or copied into, never rendered with a pass.
		ImageUsage:     vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit),
		PreTransform:   support.Capabilities.CurrentTransform,
		CompositeAlpha: vk.CompositeAlphaOpaqueBit,
		PresentMode:    presentMode,
		Clipped:        vk.True,
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
	if res := vk.CreateSwapchain(context.Device.LogicalDevice, &swapchainCreateInfo, context.Allocator, &swapchainHandle); res != vk.Success {
		err := resultError("vkCreateSwapchainKHR", res)
		core.LogError(err.Error())
		return err
	}
	vs.Handle = swapchainHandle
	vs.Extent = swapchainExtent

	// Images
	vs.ImageCount = 0
	if res := vk.GetSwapchainImages(context.Device.LogicalDevice, vs.Handle, &vs.ImageCount, nil); res != vk.Success {
		vs.destroy()
		return resultError("vkGetSwapchainImagesKHR", res)
	}
	vs.Images = make([]vk.Image, vs.ImageCount)
	if res := vk.GetSwapchainImages(context.Device.LogicalDevice, vs.Handle, &vs.ImageCount, vs.Images); res != vk.Success {
		vs.destroy()
		return resultError("vkGetSwapchainImagesKHR", res)
	}

	// Views
	vs.Views = make([]vk.ImageView, 0, vs.ImageCount)
	vs.handles = make([]renderer.Handle, vs.ImageCount)
	for i := range vs.Images {
		view, err := imageViewCreate(context, vs.Images[i], vs.ImageFormat.Format)
		if err != nil {
			vs.destroy()
			return err
		}
		vs.Views = append(vs.Views, view)

		h := context.newHandle()
		context.images[h] = vs.Images[i]
		vs.handles[i] = h
	}

	core.LogInfo("Swapchain created successfully: %d images, %dx%d.", vs.ImageCount, swapchainExtent.Width, swapchainExtent.Height)
	return nil
}

// destroy expects the device to be idle.
func (vs *VulkanSwapchain) destroy() {
	device := vs.context.Device.LogicalDevice
	for _, h := range vs.handles {
		delete(vs.context.images, h)
	}
	vs.handles = nil

	// Only destroy the views, not the images, since those are owned by the swapchain and are thus
	// destroyed when it is.
	for _, view := range vs.Views {
		vk.DestroyImageView(device, view, vs.context.Allocator)
	}
	vs.Views = nil
	vs.Images = nil
	vs.ImageCount = 0

	if vs.Handle != vk.NullSwapchain {
		vk.DestroySwapchain(device, vs.Handle, vs.context.Allocator)
		vs.Handle = vk.NullSwapchain
	}
}

func (vs *VulkanSwapchain) owns(h renderer.Handle) bool {
	for _, own := range vs.handles {
		if own == h {
			return true
		}
	}
	return false
}
