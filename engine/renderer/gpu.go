package renderer

import (
	"fmt"
	"time"

	"golang.org/x/image/math/f32"
)

// Handle is an opaque reference to a GPU object owned by a Device or a
// Presenter. The zero value never refers to a live object.
type Handle uint64

const NullHandle Handle = 0

// ResourceKind tags a Handle so a Releaser knows which destroy call to issue.
type ResourceKind uint8

const (
	ResourceFence ResourceKind = iota
	ResourceSemaphore
	ResourceCommandPool
	ResourceImage
	ResourceImageView
	ResourceDeviceMemory
)

func (k ResourceKind) String() string {
	switch k {
	case ResourceFence:
		return "fence"
	case ResourceSemaphore:
		return "semaphore"
	case ResourceCommandPool:
		return "command_pool"
	case ResourceImage:
		return "image"
	case ResourceImageView:
		return "image_view"
	case ResourceDeviceMemory:
		return "device_memory"
	default:
		return fmt.Sprintf("resource(%d)", uint8(k))
	}
}

type ImageLayout uint8

const (
	LayoutUndefined ImageLayout = iota
	LayoutGeneral
	LayoutTransferDst
	LayoutPresentSrc
)

func (l ImageLayout) String() string {
	switch l {
	case LayoutUndefined:
		return "undefined"
	case LayoutGeneral:
		return "general"
	case LayoutTransferDst:
		return "transfer_dst"
	case LayoutPresentSrc:
		return "present_src"
	default:
		return "unknown"
	}
}

type PipelineStage uint8

const (
	StageColorAttachmentOutput PipelineStage = iota
	StageAllGraphics
	StageAllCommands
)

func (s PipelineStage) String() string {
	switch s {
	case StageColorAttachmentOutput:
		return "color_attachment_output"
	case StageAllGraphics:
		return "all_graphics"
	case StageAllCommands:
		return "all_commands"
	default:
		return "unknown"
	}
}

type Format uint8

const (
	FormatUndefined Format = iota
	// 16-bit float per channel, used by the off-screen draw target.
	FormatR16G16B16A16Sfloat
	// 8-bit sRGB per channel, used by presentable images.
	FormatB8G8R8A8Srgb
)

func (f Format) String() string {
	switch f {
	case FormatR16G16B16A16Sfloat:
		return "R16G16B16A16_SFLOAT"
	case FormatB8G8R8A8Srgb:
		return "B8G8R8A8_SRGB"
	default:
		return "UNDEFINED"
	}
}

type Extent struct {
	Width  uint32
	Height uint32
}

// IsZero reports whether the extent has no drawable area, which is what a
// minimized window reports.
func (e Extent) IsZero() bool {
	return e.Width == 0 || e.Height == 0
}

type ImageSpec struct {
	Name   string
	Format Format
	Extent Extent
}

// Image is a device-owned color image together with its view and backing memory.
type Image struct {
	Name   string
	Handle Handle
	View   Handle
	Memory Handle
	Format Format
	Extent Extent
}

// Releases returns the descriptors needed to destroy the image, in creation
// order, ready to be pushed on a ReleaseQueue.
func (img *Image) Releases() []Release {
	return []Release{
		{Kind: ResourceImage, Handle: img.Handle, Name: img.Name},
		{Kind: ResourceDeviceMemory, Handle: img.Memory, Name: img.Name},
		{Kind: ResourceImageView, Handle: img.View, Name: img.Name},
	}
}

type SemaphoreSubmit struct {
	Semaphore Handle
	Stage     PipelineStage
}

// SubmitInfo describes one queue submission of a single command buffer.
type SubmitInfo struct {
	Commands Handle
	Wait     SemaphoreSubmit
	Signal   SemaphoreSubmit
	Fence    Handle
}

// CommandBuffer records GPU work for one frame slot.
type CommandBuffer interface {
	Handle() Handle
	Reset() error
	// Begin starts a one-time-submit recording.
	Begin() error
	// End finishes the recording. It also reports commands that could not
	// be recorded, such as those naming an unknown image.
	End() error
	TransitionImage(image Handle, from, to ImageLayout)
	ClearColorImage(image Handle, layout ImageLayout, color f32.Vec4)
}

// Releaser destroys a single resource described by a Release.
type Releaser interface {
	Release(r Release) error
}

// Device is the set of GPU operations the frame pipeline depends on.
type Device interface {
	Releaser

	CreateFence(name string, signaled bool) (Handle, error)
	// WaitForFence blocks until the fence is signaled. It returns an error
	// wrapping core.ErrWaitTimeout when timeout elapses first.
	WaitForFence(fence Handle, timeout time.Duration) error
	ResetFence(fence Handle) error
	CreateSemaphore(name string) (Handle, error)
	CreateCommandPool(name string) (Handle, error)
	// AllocateCommandBuffer allocates a primary command buffer from pool. The
	// buffer is freed together with its pool.
	AllocateCommandBuffer(pool Handle) (CommandBuffer, error)
	CreateImage(spec ImageSpec) (*Image, error)
	Submit(info SubmitInfo) error
	WaitIdle() error
}

// Presenter owns the presentable images of a window surface.
type Presenter interface {
	Images() []Handle
	Format() Format
	Extent() Extent
	// AcquireNextImage returns the index of the next presentable image and
	// arranges for signal to be signaled once the image can be written. It
	// returns errors wrapping core.ErrSurfaceOutOfDate or core.ErrWaitTimeout.
	AcquireNextImage(timeout time.Duration, signal Handle) (uint32, error)
	// Present queues the image for display once wait is signaled. Out-of-date
	// and suboptimal surfaces are reported as core.ErrSurfaceOutOfDate.
	Present(imageIndex uint32, wait Handle) error
	// Recreate rebuilds the presentable images for the given extent. The
	// caller guarantees the device is idle.
	Recreate(extent Extent) error
	Destroy()
}
