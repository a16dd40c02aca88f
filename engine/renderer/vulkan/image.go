package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
)

type VulkanImage struct {
	Handle vk.Image
	Memory vk.DeviceMemory
	View   vk.ImageView
	Width  uint32
	Height uint32
}

// ImageCreate creates a single-mip 2D color image backed by its own memory
// allocation, plus a view over it when createView is set.
func ImageCreate(
	context *VulkanContext,
	width, height uint32,
	format vk.Format,
	usage vk.ImageUsageFlags,
	memoryFlags vk.MemoryPropertyFlags,
	createView bool,
) (*VulkanImage, error) {
	outImage := &VulkanImage{
		Width:  width,
		Height: height,
	}
	device := context.Device.LogicalDevice

	imageCreateInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        format,
		Tiling:        vk.ImageTilingOptimal,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         usage,
		Samples:       vk.SampleCount1Bit,
		SharingMode:   vk.SharingModeExclusive,
	}

	var image vk.Image
	if res := vk.CreateImage(device, &imageCreateInfo, context.Allocator, &image); res != vk.Success {
		return nil, resultError("vkCreateImage", res)
	}
	outImage.Handle = image

	// Query memory requirements.
	var memoryRequirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(device, image, &memoryRequirements)
	memoryRequirements.Deref()

	memoryType, ok := context.FindMemoryIndex(memoryRequirements.MemoryTypeBits, memoryFlags)
	if !ok {
		vk.DestroyImage(device, image, context.Allocator)
		return nil, fmt.Errorf("required memory type not found, image not valid")
	}

	// Allocate memory
	memoryAllocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memoryRequirements.Size,
		MemoryTypeIndex: memoryType,
	}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(device, &memoryAllocateInfo, context.Allocator, &memory); res != vk.Success {
		vk.DestroyImage(device, image, context.Allocator)
		return nil, resultError("vkAllocateMemory", res)
	}
	outImage.Memory = memory

	// Bind the memory
	if res := vk.BindImageMemory(device, image, memory, 0); res != vk.Success {
		vk.FreeMemory(device, memory, context.Allocator)
		vk.DestroyImage(device, image, context.Allocator)
		return nil, resultError("vkBindImageMemory", res)
	}

	if createView {
		view, err := imageViewCreate(context, image, format)
		if err != nil {
			outImage.ImageDestroy(context)
			return nil, err
		}
		outImage.View = view
	}
	return outImage, nil
}

func imageViewCreate(context *VulkanContext, image vk.Image, format vk.Format) (vk.ImageView, error) {
	viewCreateInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: colorRange(),
	}
	var view vk.ImageView
	if res := vk.CreateImageView(context.Device.LogicalDevice, &viewCreateInfo, context.Allocator, &view); res != vk.Success {
		return nil, resultError("vkCreateImageView", res)
	}
	return view, nil
}

func (vi *VulkanImage) ImageDestroy(context *VulkanContext) {
	device := context.Device.LogicalDevice
	if vi.View != nil {
		vk.DestroyImageView(device, vi.View, context.Allocator)
		vi.View = nil
	}
	if vi.Memory != nil {
		vk.FreeMemory(device, vi.Memory, context.Allocator)
		vi.Memory = nil
	}
	if vi.Handle != nil {
		vk.DestroyImage(device, vi.Handle, context.Allocator)
		vi.Handle = nil
	}
}

// CreateImage creates an offscreen color image usable as a transfer source,
// a clear target and a storage image. The three objects are returned as
// separate handles so they can be released individually.
func (vr *VulkanRenderer) CreateImage(spec renderer.ImageSpec) (*renderer.Image, error) {
	format := toVkFormat(spec.Format)
	if format == vk.FormatUndefined {
		return nil, fmt.Errorf("image %s: unsupported format %s", spec.Name, spec.Format)
	}
	usage := vk.ImageUsageFlags(vk.ImageUsageTransferSrcBit | vk.ImageUsageTransferDstBit |
		vk.ImageUsageStorageBit | vk.ImageUsageColorAttachmentBit)

	img, err := ImageCreate(vr.context, spec.Extent.Width, spec.Extent.Height, format, usage,
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit), true)
	if err != nil {
		core.LogError("image %s: %s", spec.Name, err)
		return nil, err
	}

	out := &renderer.Image{
		Name:   spec.Name,
		Handle: vr.context.newHandle(),
		View:   vr.context.newHandle(),
		Memory: vr.context.newHandle(),
		Format: spec.Format,
		Extent: spec.Extent,
	}
	vr.context.images[out.Handle] = img.Handle
	vr.context.imageViews[out.View] = img.View
	vr.context.memory[out.Memory] = img.Memory
	core.LogDebug("Image %s created (%dx%d, %s).", spec.Name, spec.Extent.Width, spec.Extent.Height, spec.Format)
	return out, nil
}
