package vulkan

import (
	"fmt"
	"time"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
)

type VulkanFence struct {
	Name       string
	Handle     vk.Fence
	IsSignaled bool
}

func NewFence(context *VulkanContext, name string, createSignaled bool) (*VulkanFence, error) {
	fence := &VulkanFence{
		Name: name,
		// Make sure to signal the fence if required.
		IsSignaled: createSignaled,
	}

	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if fence.IsSignaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	var pFence vk.Fence
	if res := vk.CreateFence(context.Device.LogicalDevice, &fenceCreateInfo, context.Allocator, &pFence); res != vk.Success {
		err := resultError("vkCreateFence", res)
		core.LogError("fence %s: %s", name, err)
		return nil, err
	}
	fence.Handle = pFence
	return fence, nil
}

func (vf *VulkanFence) FenceDestroy(context *VulkanContext) {
	if vf.Handle != nil {
		vk.DestroyFence(context.Device.LogicalDevice, vf.Handle, context.Allocator)
		vf.Handle = nil
	}
	vf.IsSignaled = false
}

// FenceWait blocks for at most timeout. Timeouts wrap core.ErrWaitTimeout and
// a lost device wraps core.ErrDeviceLost.
func (vf *VulkanFence) FenceWait(context *VulkanContext, timeout time.Duration) error {
	if vf.IsSignaled {
		// If already signaled, do not wait.
		return nil
	}
	result := vk.WaitForFences(context.Device.LogicalDevice, 1, []vk.Fence{vf.Handle}, vk.True, uint64(timeout.Nanoseconds()))
	switch result {
	case vk.Success:
		vf.IsSignaled = true
		return nil
	case vk.Timeout:
		core.LogWarn("vk_fence_wait - Timed out")
	case vk.ErrorDeviceLost:
		core.LogError("vk_fence_wait - VK_ERROR_DEVICE_LOST.")
	case vk.ErrorOutOfHostMemory:
		core.LogError("vk_fence_wait - VK_ERROR_OUT_OF_HOST_MEMORY.")
	case vk.ErrorOutOfDeviceMemory:
		core.LogError("vk_fence_wait - VK_ERROR_OUT_OF_DEVICE_MEMORY.")
	default:
		core.LogError("vk_fence_wait - An unknown error has occurred.")
	}
	return resultError(fmt.Sprintf("vkWaitForFences(%s)", vf.Name), result)
}

func (vf *VulkanFence) FenceReset(context *VulkanContext) error {
	if vf.IsSignaled {
		if res := vk.ResetFences(context.Device.LogicalDevice, 1, []vk.Fence{vf.Handle}); res != vk.Success {
			err := resultError("vkResetFences", res)
			core.LogError(err.Error())
			return err
		}
		vf.IsSignaled = false
	}
	return nil
}

func (vr *VulkanRenderer) CreateFence(name string, signaled bool) (renderer.Handle, error) {
	fence, err := NewFence(vr.context, name, signaled)
	if err != nil {
		return renderer.NullHandle, err
	}
	h := vr.context.newHandle()
	vr.context.fences[h] = fence
	return h, nil
}

func (vr *VulkanRenderer) WaitForFence(h renderer.Handle, timeout time.Duration) error {
	fence, ok := vr.context.fences[h]
	if !ok {
		return fmt.Errorf("unknown fence %d", h)
	}
	return fence.FenceWait(vr.context, timeout)
}

func (vr *VulkanRenderer) ResetFence(h renderer.Handle) error {
	fence, ok := vr.context.fences[h]
	if !ok {
		return fmt.Errorf("unknown fence %d", h)
	}
	return fence.FenceReset(vr.context)
}

func (vr *VulkanRenderer) CreateSemaphore(name string) (renderer.Handle, error) {
	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var semaphore vk.Semaphore
	if res := vk.CreateSemaphore(vr.context.Device.LogicalDevice, &semaphoreCreateInfo, vr.context.Allocator, &semaphore); res != vk.Success {
		err := resultError("vkCreateSemaphore", res)
		core.LogError("semaphore %s: %s", name, err)
		return renderer.NullHandle, err
	}
	h := vr.context.newHandle()
	vr.context.semaphores[h] = semaphore
	return h, nil
}
