package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
)

// VulkanResultString returns the name of a result code and, when getExtended
// is set, a short description of it.
// From: https://www.khronos.org/registry/vulkan/specs/1.3-extensions/man/html/VkResult.html
func VulkanResultString(result vk.Result, getExtended bool) string {
	switch result {
	// Success Codes
	case vk.Success:
		return ConditionalOperator(!getExtended, "VK_SUCCESS", "VK_SUCCESS Command successfully completed")
	case vk.NotReady:
		return ConditionalOperator(!getExtended, "VK_NOT_READY", "VK_NOT_READY A fence or query has not yet completed")
	case vk.Timeout:
		return ConditionalOperator(!getExtended, "VK_TIMEOUT", "VK_TIMEOUT A wait operation has not completed in the specified time")
	case vk.Incomplete:
		return ConditionalOperator(!getExtended, "VK_INCOMPLETE", "VK_INCOMPLETE A return array was too small for the result")
	case vk.Suboptimal:
		return ConditionalOperator(!getExtended, "VK_SUBOPTIMAL_KHR", "VK_SUBOPTIMAL_KHR A swapchain no longer matches the surface properties exactly, but can still be used to present to the surface successfully.")

	// Error codes
	case vk.ErrorOutOfHostMemory:
		return ConditionalOperator(!getExtended, "VK_ERROR_OUT_OF_HOST_MEMORY", "VK_ERROR_OUT_OF_HOST_MEMORY A host memory allocation has failed.")
	case vk.ErrorOutOfDeviceMemory:
		return ConditionalOperator(!getExtended, "VK_ERROR_OUT_OF_DEVICE_MEMORY", "VK_ERROR_OUT_OF_DEVICE_MEMORY A device memory allocation has failed.")
	case vk.ErrorInitializationFailed:
		return ConditionalOperator(!getExtended, "VK_ERROR_INITIALIZATION_FAILED", "VK_ERROR_INITIALIZATION_FAILED Initialization of an object could not be completed for implementation-specific reasons.")
	case vk.ErrorDeviceLost:
		return ConditionalOperator(!getExtended, "VK_ERROR_DEVICE_LOST", "VK_ERROR_DEVICE_LOST The logical or physical device has been lost.")
	case vk.ErrorLayerNotPresent:
		return ConditionalOperator(!getExtended, "VK_ERROR_LAYER_NOT_PRESENT", "VK_ERROR_LAYER_NOT_PRESENT A requested layer is not present or could not be loaded.")
	case vk.ErrorExtensionNotPresent:
		return ConditionalOperator(!getExtended, "VK_ERROR_EXTENSION_NOT_PRESENT", "VK_ERROR_EXTENSION_NOT_PRESENT A requested extension is not supported.")
	case vk.ErrorFeatureNotPresent:
		return ConditionalOperator(!getExtended, "VK_ERROR_FEATURE_NOT_PRESENT", "VK_ERROR_FEATURE_NOT_PRESENT A requested feature is not supported.")
	case vk.ErrorIncompatibleDriver:
		return ConditionalOperator(!getExtended, "VK_ERROR_INCOMPATIBLE_DRIVER", "VK_ERROR_INCOMPATIBLE_DRIVER The requested version of Vulkan is not supported by the driver.")
	case vk.ErrorFormatNotSupported:
		return ConditionalOperator(!getExtended, "VK_ERROR_FORMAT_NOT_SUPPORTED", "VK_ERROR_FORMAT_NOT_SUPPORTED A requested format is not supported on this device.")
	case vk.ErrorSurfaceLost:
		return ConditionalOperator(!getExtended, "VK_ERROR_SURFACE_LOST_KHR", "VK_ERROR_SURFACE_LOST_KHR A surface is no longer available.")
	case vk.ErrorNativeWindowInUse:
		return ConditionalOperator(!getExtended, "VK_ERROR_NATIVE_WINDOW_IN_USE_KHR", "VK_ERROR_NATIVE_WINDOW_IN_USE_KHR The requested window is already in use by Vulkan or another API.")
	case vk.ErrorOutOfDate:
		return ConditionalOperator(!getExtended, "VK_ERROR_OUT_OF_DATE_KHR", "VK_ERROR_OUT_OF_DATE_KHR A surface has changed in such a way that it is no longer compatible with the swapchain.")
	case vk.ErrorUnknown:
		return ConditionalOperator(!getExtended, "VK_ERROR_UNKNOWN", "VK_ERROR_UNKNOWN An unknown error has occurred.")
	default:
		return fmt.Sprintf("VkResult(%d)", int32(result))
	}
}

func VulkanResultIsSuccess(result vk.Result) bool {
	switch result {
	case vk.Success, vk.NotReady, vk.Timeout, vk.EventSet, vk.EventReset,
		vk.Incomplete, vk.Suboptimal:
		return true
	default:
		return false
	}
}

// resultError converts a failed result into an error. The statuses the frame
// pipeline reacts to are wrapped in the matching core sentinel.
func resultError(op string, result vk.Result) error {
	switch result {
	case vk.ErrorOutOfDate, vk.Suboptimal:
		return fmt.Errorf("%s: %w", op, core.ErrSurfaceOutOfDate)
	case vk.Timeout, vk.NotReady:
		return fmt.Errorf("%s: %w", op, core.ErrWaitTimeout)
	case vk.ErrorDeviceLost:
		return fmt.Errorf("%s: %w", op, core.ErrDeviceLost)
	default:
		return fmt.Errorf("%s failed with `%s`", op, VulkanResultString(result, true))
	}
}

func ConditionalOperator(condition bool, res1, res2 string) string {
	if condition {
		return res1
	}
	return res2
}

var end = "\x00"
var endChar byte = '\x00'

func VulkanSafeString(s string) string {
	if len(s) == 0 {
		return end
	}
	if s[len(s)-1] != endChar {
		return s + end
	}
	return s
}

func VulkanSafeStrings(list []string) []string {
	out := make([]string, len(list))
	for i := range list {
		out[i] = VulkanSafeString(list[i])
	}
	return out
}

// FindFirstZeroInByteArray returns the index of the first NUL byte, or the
// length of arr when there is none.
func FindFirstZeroInByteArray(arr []byte) int {
	for i, b := range arr {
		if b == 0 {
			return i
		}
	}
	return len(arr)
}

// cString turns a fixed-size NUL-terminated name returned by the driver into
// a Go string.
func cString(arr []byte) string {
	return string(arr[:FindFirstZeroInByteArray(arr)])
}

func toVkFormat(f renderer.Format) vk.Format {
	switch f {
	case renderer.FormatR16G16B16A16Sfloat:
		return vk.FormatR16g16b16a16Sfloat
	case renderer.FormatB8G8R8A8Srgb:
		return vk.FormatB8g8r8a8Srgb
	default:
		return vk.FormatUndefined
	}
}

func fromVkFormat(f vk.Format) renderer.Format {
	switch f {
	case vk.FormatR16g16b16a16Sfloat:
		return renderer.FormatR16G16B16A16Sfloat
	case vk.FormatB8g8r8a8Srgb:
		return renderer.FormatB8G8R8A8Srgb
	default:
		return renderer.FormatUndefined
	}
}

func toVkLayout(l renderer.ImageLayout) vk.ImageLayout {
	switch l {
	case renderer.LayoutGeneral:
		return vk.ImageLayoutGeneral
	case renderer.LayoutTransferDst:
		return vk.ImageLayoutTransferDstOptimal
	case renderer.LayoutPresentSrc:
		return vk.ImageLayoutPresentSrc
	default:
		return vk.ImageLayoutUndefined
	}
}

func toVkStage(s renderer.PipelineStage) vk.PipelineStageFlags {
	switch s {
	case renderer.StageColorAttachmentOutput:
		return vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	case renderer.StageAllGraphics:
		return vk.PipelineStageFlags(vk.PipelineStageAllGraphicsBit)
	default:
		return vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit)
	}
}
