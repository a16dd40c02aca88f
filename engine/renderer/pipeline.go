package renderer

import (
	"errors"
	"fmt"
	"time"

	"github.com/spaghettifunk/lumen/engine/core"
)

// FrameContext is what a RenderPass sees while the frame is being recorded.
type FrameContext struct {
	Frame      uint64
	Slot       int
	Commands   CommandBuffer
	ImageIndex uint32
	// Acquired presentable image, already in LayoutGeneral.
	Target Handle
	Extent Extent
	// Off-screen target owned by the process lifetime. May be nil.
	DrawTarget *Image
	// Release queue of the current slot. Anything pushed here is destroyed
	// once the GPU has finished this frame.
	Releases *ReleaseQueue
}

// RenderPass records the drawing commands of one frame. It must not change
// the target layout or touch synchronization objects.
type RenderPass interface {
	Draw(ctx *FrameContext) error
}

type RenderPassFunc func(ctx *FrameContext) error

func (f RenderPassFunc) Draw(ctx *FrameContext) error {
	return f(ctx)
}

type PipelineConfig struct {
	FramesInFlight int
	FenceTimeout   time.Duration
	AcquireTimeout time.Duration
}

// Pipeline drives frames through await, reclaim, acquire, record, submit,
// present and advance.
type Pipeline struct {
	dev     Device
	surface *SurfaceState
	ring    *FrameRing
	pass    RenderPass
	target  *Image
	cfg     PipelineConfig

	frame  uint64
	extent Extent
	closed bool
}

func NewPipeline(dev Device, presenter Presenter, target *Image, pass RenderPass, cfg PipelineConfig) (*Pipeline, error) {
	if cfg.FenceTimeout <= 0 || cfg.AcquireTimeout <= 0 {
		return nil, fmt.Errorf("pipeline timeouts must be positive: %w", core.ErrInvalidConfig)
	}
	if pass == nil {
		return nil, errors.New("pipeline needs a render pass")
	}

	ring, err := NewFrameRing(dev, cfg.FramesInFlight)
	if err != nil {
		return nil, err
	}
	surface, err := NewSurfaceState(dev, presenter)
	if err != nil {
		_ = ring.Destroy(dev)
		return nil, err
	}

	core.LogInfo("frame pipeline ready: %d frames in flight, %d presentable images", ring.Len(), surface.ImageCount())

	return &Pipeline{
		dev:     dev,
		surface: surface,
		ring:    ring,
		pass:    pass,
		target:  target,
		cfg:     cfg,
		extent:  presenter.Extent(),
	}, nil
}

// FrameNumber returns the number of frames completed so far.
func (p *Pipeline) FrameNumber() uint64 {
	return p.frame
}

func (p *Pipeline) Surface() *SurfaceState {
	return p.surface
}

func (p *Pipeline) Ring() *FrameRing {
	return p.ring
}

// Resize records the new framebuffer extent. The surface is recreated before
// the next acquisition.
func (p *Pipeline) Resize(extent Extent) {
	if extent == p.extent && !p.surface.Stale() {
		return
	}
	p.extent = extent
	p.surface.MarkStale()
}

// DrawFrame runs one complete frame iteration.
func (p *Pipeline) DrawFrame() error {
	if p.closed {
		return core.ErrNotInitialized
	}
	slot := p.ring.Slot(p.frame)

	// await: the slot's previous submission must be complete before reuse
	if err := p.dev.WaitForFence(slot.Fence, p.cfg.FenceTimeout); err != nil {
		return p.frameError(slot, "await slot fence", err)
	}

	// reclaim
	if err := slot.Releases.Flush(p.dev); err != nil {
		return p.frameError(slot, "flush slot releases", err)
	}

	index, err := p.acquire()
	if err != nil {
		return p.frameError(slot, "acquire image", err)
	}

	// The fence is only reset once a submission is certain to signal it
	// again, so a failed acquisition leaves the slot reusable.
	if err := p.dev.ResetFence(slot.Fence); err != nil {
		return p.frameError(slot, "reset slot fence", err)
	}

	if err := p.record(slot, index); err != nil {
		return p.frameError(slot, "record", err)
	}

	pair := p.surface.Pair(index)
	submit := SubmitInfo{
		Commands: slot.Commands.Handle(),
		Wait:     SemaphoreSubmit{Semaphore: pair.ImageAvailable, Stage: StageColorAttachmentOutput},
		Signal:   SemaphoreSubmit{Semaphore: pair.RenderFinished, Stage: StageAllGraphics},
		Fence:    slot.Fence,
	}
	if err := p.dev.Submit(submit); err != nil {
		return p.frameError(slot, "submit", err)
	}

	if err := p.surface.Present(index); err != nil {
		if !errors.Is(err, core.ErrSurfaceOutOfDate) {
			return p.frameError(slot, "present", err)
		}
		core.LogDebug("frame %d: surface out of date after present", p.frame)
	}

	p.frame++
	return nil
}

// acquire returns the next image index, recreating the surface first when
// it is stale and once more when acquisition reports it out of date.
func (p *Pipeline) acquire() (uint32, error) {
	if p.surface.Stale() {
		if err := p.surface.Recreate(p.extent); err != nil {
			return 0, err
		}
	}

	index, err := p.surface.Acquire(p.cfg.AcquireTimeout)
	if errors.Is(err, core.ErrSurfaceOutOfDate) {
		if err := p.surface.Recreate(p.extent); err != nil {
			return 0, err
		}
		index, err = p.surface.Acquire(p.cfg.AcquireTimeout)
	}
	return index, err
}

func (p *Pipeline) record(slot *FrameSlot, index uint32) error {
	cmd := slot.Commands
	if err := cmd.Reset(); err != nil {
		return err
	}
	if err := cmd.Begin(); err != nil {
		return err
	}

	image := p.surface.Image(index)
	cmd.TransitionImage(image, LayoutUndefined, LayoutGeneral)

	ctx := &FrameContext{
		Frame:      p.frame,
		Slot:       slot.Index,
		Commands:   cmd,
		ImageIndex: index,
		Target:     image,
		Extent:     p.surface.Extent(),
		DrawTarget: p.target,
		Releases:   &slot.Releases,
	}
	if err := p.pass.Draw(ctx); err != nil {
		return fmt.Errorf("render pass: %w", err)
	}

	cmd.TransitionImage(image, LayoutGeneral, LayoutPresentSrc)
	return cmd.End()
}

func (p *Pipeline) frameError(slot *FrameSlot, step string, err error) error {
	return fmt.Errorf("frame %d (slot %d): %s: %w", p.frame, slot.Index, step, err)
}

// Shutdown waits for the device to go idle, flushes every slot queue, then
// main, then destroys the frame slots and the surface state. Calling it more
// than once is a no-op.
func (p *Pipeline) Shutdown(main *ReleaseQueue) error {
	if p.closed {
		return nil
	}
	p.closed = true

	if err := p.dev.WaitIdle(); err != nil {
		// nothing can be destroyed safely on a device that never went idle
		return fmt.Errorf("wait idle: %w: %w", core.ErrDeviceNotIdle, err)
	}

	var errs []error
	if err := p.ring.FlushAll(p.dev); err != nil {
		errs = append(errs, err)
	}
	if main != nil {
		if err := main.Flush(p.dev); err != nil {
			errs = append(errs, err)
		}
	}
	if err := p.ring.Destroy(p.dev); err != nil {
		errs = append(errs, err)
	}
	if err := p.surface.Destroy(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
