package renderertest

import (
	"fmt"
	"time"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
)

type Acquire struct {
	Index  uint32
	Signal renderer.Handle
}

type Present struct {
	Index uint32
	Wait  renderer.Handle
}

// Presenter is a fake renderer.Presenter returning a scripted sequence of
// image indices. Once the script is exhausted indices continue round-robin.
type Presenter struct {
	dev    *Device
	images []renderer.Handle
	extent renderer.Extent
	next   uint32

	// Indices scripts the values returned by successive acquisitions.
	Indices []uint32
	// AcquireErrors and PresentErrors inject an error on the call with the
	// given zero-based number.
	AcquireErrors map[int]error
	PresentErrors map[int]error
	// RecreateImageCount, when non zero, is the image count after Recreate.
	RecreateImageCount int

	Acquires     []Acquire
	Presents     []Present
	acquireCalls int
	presentCalls int
	Recreations  []renderer.Extent
	Destroyed    bool
}

func NewPresenter(dev *Device, imageCount int, extent renderer.Extent) *Presenter {
	p := &Presenter{
		dev:           dev,
		extent:        extent,
		AcquireErrors: make(map[int]error),
		PresentErrors: make(map[int]error),
	}
	p.createImages(imageCount)
	return p
}

func (p *Presenter) createImages(n int) {
	p.dropImages()
	p.images = make([]renderer.Handle, n)
	for i := range p.images {
		p.dev.next++
		p.images[i] = p.dev.next
		p.dev.presentable[p.dev.next] = struct{}{}
	}
}

func (p *Presenter) dropImages() {
	for _, h := range p.images {
		delete(p.dev.presentable, h)
	}
}

func (p *Presenter) Images() []renderer.Handle {
	out := make([]renderer.Handle, len(p.images))
	copy(out, p.images)
	return out
}

func (p *Presenter) Format() renderer.Format {
	return renderer.FormatB8G8R8A8Srgb
}

func (p *Presenter) Extent() renderer.Extent {
	return p.extent
}

func (p *Presenter) AcquireNextImage(timeout time.Duration, signal renderer.Handle) (uint32, error) {
	call := p.acquireCalls
	p.acquireCalls++
	p.dev.logf("acquire signal=%d", signal)
	if err, ok := p.AcquireErrors[call]; ok {
		return 0, err
	}

	if signaled, ok := p.dev.semaphores[signal]; !ok {
		p.dev.violation("acquire signals unknown semaphore %d", signal)
	} else if signaled {
		p.dev.violation("acquire signals semaphore %d which is already signaled", signal)
	}
	p.dev.semaphores[signal] = true

	var index uint32
	if len(p.Indices) > 0 {
		index = p.Indices[0]
		p.Indices = p.Indices[1:]
	} else {
		index = p.next % uint32(len(p.images))
	}
	p.next = index + 1
	p.Acquires = append(p.Acquires, Acquire{Index: index, Signal: signal})
	return index, nil
}

func (p *Presenter) Present(imageIndex uint32, wait renderer.Handle) error {
	call := p.presentCalls
	p.presentCalls++
	p.dev.logf("present %d wait=%d", imageIndex, wait)
	if int(imageIndex) >= len(p.images) {
		return fmt.Errorf("present of unknown image %d", imageIndex)
	}
	if !p.dev.semaphores[wait] {
		p.dev.violation("present waits on semaphore %d which has no pending signal", wait)
	}
	p.dev.semaphores[wait] = false
	p.Presents = append(p.Presents, Present{Index: imageIndex, Wait: wait})
	if err, ok := p.PresentErrors[call]; ok {
		return err
	}
	return nil
}

// OutOfDate is the error a real presenter reports for a stale surface.
func OutOfDate() error {
	return fmt.Errorf("swapchain: %w", core.ErrSurfaceOutOfDate)
}

func (p *Presenter) Recreate(extent renderer.Extent) error {
	p.dev.logf("recreate_presenter %dx%d", extent.Width, extent.Height)
	p.Recreations = append(p.Recreations, extent)
	p.extent = extent
	n := len(p.images)
	if p.RecreateImageCount > 0 {
		n = p.RecreateImageCount
	}
	p.createImages(n)
	p.next = 0
	return nil
}

func (p *Presenter) Destroy() {
	p.dev.logf("destroy_presenter")
	if p.dev.WaitIdleCalls == 0 {
		p.dev.violation("presenter destroyed before the device went idle")
	}
	p.Destroyed = true
	p.dropImages()
	p.images = nil
}
