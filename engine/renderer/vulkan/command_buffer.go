package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"golang.org/x/image/math/f32"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

type VulkanCommandBuffer struct {
	context *VulkanContext
	handle  renderer.Handle

	Buffer vk.CommandBuffer
	// Command buffer state.
	State VulkanCommandBufferState
	// first recording failure, reported by End
	err error
}

func NewVulkanCommandBuffer(context *VulkanContext, pool vk.CommandPool, isPrimary bool) (*VulkanCommandBuffer, error) {
	vCommandBuffer := &VulkanCommandBuffer{
		context: context,
		State:   COMMAND_BUFFER_STATE_NOT_ALLOCATED,
	}

	level := vk.CommandBufferLevelSecondary
	if isPrimary {
		level = vk.CommandBufferLevelPrimary
	}

	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		CommandBufferCount: 1,
		Level:              level,
	}

	buffers := make([]vk.CommandBuffer, 1)
	if res := vk.AllocateCommandBuffers(context.Device.LogicalDevice, &allocateInfo, buffers); res != vk.Success {
		err := resultError("vkAllocateCommandBuffers", res)
		core.LogError(err.Error())
		return nil, err
	}
	vCommandBuffer.Buffer = buffers[0]
	vCommandBuffer.State = COMMAND_BUFFER_STATE_READY

	return vCommandBuffer, nil
}

func (v *VulkanCommandBuffer) Handle() renderer.Handle {
	return v.handle
}

// Reset returns the buffer to the ready state. The pool must have been
// created with the reset-command-buffer flag.
func (v *VulkanCommandBuffer) Reset() error {
	if res := vk.ResetCommandBuffer(v.Buffer, 0); res != vk.Success {
		return resultError("vkResetCommandBuffer", res)
	}
	v.State = COMMAND_BUFFER_STATE_READY
	v.err = nil
	return nil
}

func (v *VulkanCommandBuffer) Begin() error {
	if v.State != COMMAND_BUFFER_STATE_READY {
		return fmt.Errorf("command buffer %d: begin in state %d", v.handle, v.State)
	}
	vBeginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if res := vk.BeginCommandBuffer(v.Buffer, &vBeginInfo); res != vk.Success {
		err := resultError("vkBeginCommandBuffer", res)
		core.LogError(err.Error())
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING
	return nil
}

func (v *VulkanCommandBuffer) End() error {
	if res := vk.EndCommandBuffer(v.Buffer); res != vk.Success {
		err := resultError("vkEndCommandBuffer", res)
		core.LogError(err.Error())
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	if err := v.err; err != nil {
		v.err = nil
		return err
	}
	return nil
}

func (v *VulkanCommandBuffer) UpdateSubmitted() {
	v.State = COMMAND_BUFFER_STATE_SUBMITTED
}

func (v *VulkanCommandBuffer) image(h renderer.Handle) (vk.Image, bool) {
	img, ok := v.context.images[h]
	if !ok && v.err == nil {
		v.err = fmt.Errorf("command buffer %d: unknown image %d", v.handle, h)
		core.LogError(v.err.Error())
	}
	return img, ok
}

func colorRange() vk.ImageSubresourceRange {
	return vk.ImageSubresourceRange{
		AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
		BaseMipLevel:   0,
		LevelCount:     1,
		BaseArrayLayer: 0,
		LayerCount:     1,
	}
}

// TransitionImage records a full barrier moving image between layouts. It
// stalls every stage.
func (v *VulkanCommandBuffer) TransitionImage(h renderer.Handle, from, to renderer.ImageLayout) {
	img, ok := v.image(h)
	if !ok {
		return
	}
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       vk.AccessFlags(vk.AccessMemoryWriteBit),
		DstAccessMask:       vk.AccessFlags(vk.AccessMemoryWriteBit | vk.AccessMemoryReadBit),
		OldLayout:           toVkLayout(from),
		NewLayout:           toVkLayout(to),
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               img,
		SubresourceRange:    colorRange(),
	}
	allCommands := vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit)
	vk.CmdPipelineBarrier(v.Buffer, allCommands, allCommands, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}

func (v *VulkanCommandBuffer) ClearColorImage(h renderer.Handle, layout renderer.ImageLayout, color f32.Vec4) {
	img, ok := v.image(h)
	if !ok {
		return
	}
	var clearColor vk.ClearColorValue
	floats := (*[4]float32)(unsafe.Pointer(&clearColor))
	*floats = color
	vk.CmdClearColorImage(v.Buffer, img, toVkLayout(layout), &clearColor, 1, []vk.ImageSubresourceRange{colorRange()})
}

func (vr *VulkanRenderer) CreateCommandPool(name string) (renderer.Handle, error) {
	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: uint32(vr.context.Device.GraphicsQueueIndex),
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vk.CommandPool
	if res := vk.CreateCommandPool(vr.context.Device.LogicalDevice, &poolCreateInfo, vr.context.Allocator, &pool); res != vk.Success {
		err := resultError("vkCreateCommandPool", res)
		core.LogError("command pool %s: %s", name, err)
		return renderer.NullHandle, err
	}
	h := vr.context.newHandle()
	vr.context.commandPools[h] = pool
	core.LogDebug("Command pool %s created.", name)
	return h, nil
}

func (vr *VulkanRenderer) AllocateCommandBuffer(pool renderer.Handle) (renderer.CommandBuffer, error) {
	vkPool, ok := vr.context.commandPools[pool]
	if !ok {
		return nil, fmt.Errorf("unknown command pool %d", pool)
	}
	cb, err := NewVulkanCommandBuffer(vr.context, vkPool, true)
	if err != nil {
		return nil, err
	}
	cb.handle = vr.context.newHandle()
	vr.context.commandBuffers[cb.handle] = cb
	vr.poolBuffers[pool] = append(vr.poolBuffers[pool], cb.handle)
	return cb, nil
}
