// Package renderertest provides an in-memory GPU for exercising the frame
// pipeline without a device. The fake models fence and binary semaphore
// state and records every call, so tests can assert ordering. Protocol
// misuse (resetting an in-flight fence, waiting on a semaphore nobody
// signals, destroying an object still used by pending GPU work) is recorded
// in Violations instead of failing the call.
package renderertest

import (
	"fmt"
	"time"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"golang.org/x/image/math/f32"
)

type fenceState struct {
	signaled bool
	// handles referenced by the submission that will signal this fence
	inFlight map[renderer.Handle]struct{}
}

type Transition struct {
	Commands renderer.Handle
	Image    renderer.Handle
	From     renderer.ImageLayout
	To       renderer.ImageLayout
}

type Clear struct {
	Commands renderer.Handle
	Image    renderer.Handle
	Layout   renderer.ImageLayout
	Color    f32.Vec4
}

// Device is a fake renderer.Device. Its zero value is not usable, call NewDevice.
type Device struct {
	next renderer.Handle

	live       map[renderer.Handle]renderer.ResourceKind
	fences     map[renderer.Handle]*fenceState
	semaphores map[renderer.Handle]bool
	commands   map[renderer.Handle]*CommandBuffer
	// images owned by a Presenter
	presentable map[renderer.Handle]struct{}

	// Log holds one line per call, in call order.
	Log         []string
	Submits     []renderer.SubmitInfo
	Released    []renderer.Release
	Transitions []Transition
	Clears      []Clear
	FenceWaits  []renderer.Handle
	Violations  []string

	WaitIdleCalls int
	// Hung stops the fake GPU from completing submissions, so fence waits
	// on pending work time out.
	Hung bool
	// SubmitErr, when set, is returned by the next Submit.
	SubmitErr error
	// FenceErr, when set, is returned by the next CreateFence.
	FenceErr error
	// WaitIdleErr, when set, is returned by WaitIdle, which then leaves
	// pending submissions in flight.
	WaitIdleErr error
	// ReleaseErr, when set, is returned by every Release after it is
	// recorded.
	ReleaseErr error
}

func NewDevice() *Device {
	return &Device{
		live:        make(map[renderer.Handle]renderer.ResourceKind),
		fences:      make(map[renderer.Handle]*fenceState),
		semaphores:  make(map[renderer.Handle]bool),
		commands:    make(map[renderer.Handle]*CommandBuffer),
		presentable: make(map[renderer.Handle]struct{}),
	}
}

func (d *Device) newHandle(kind renderer.ResourceKind) renderer.Handle {
	d.next++
	d.live[d.next] = kind
	return d.next
}

func (d *Device) logf(format string, args ...interface{}) {
	d.Log = append(d.Log, fmt.Sprintf(format, args...))
}

func (d *Device) violation(format string, args ...interface{}) {
	d.Violations = append(d.Violations, fmt.Sprintf(format, args...))
}

func (d *Device) knownImage(h renderer.Handle) bool {
	if _, ok := d.presentable[h]; ok {
		return true
	}
	return d.live[h] == renderer.ResourceImage
}

// Live returns the number of objects created and not yet released.
// Presentable images are owned by the Presenter and not counted.
func (d *Device) Live() int {
	return len(d.live)
}

// Pending reports whether fence is waiting for a submission to complete.
func (d *Device) Pending(fence renderer.Handle) bool {
	f, ok := d.fences[fence]
	return ok && f.inFlight != nil
}

// Signaled reports the fence state as last observed by the fake.
func (d *Device) Signaled(fence renderer.Handle) bool {
	f, ok := d.fences[fence]
	return ok && f.signaled
}

// Index returns the position of the first log line equal to line, or -1.
func (d *Device) Index(line string) int {
	for i, l := range d.Log {
		if l == line {
			return i
		}
	}
	return -1
}

func (d *Device) CreateFence(name string, signaled bool) (renderer.Handle, error) {
	if d.FenceErr != nil {
		err := d.FenceErr
		d.FenceErr = nil
		return renderer.NullHandle, err
	}
	h := d.newHandle(renderer.ResourceFence)
	d.fences[h] = &fenceState{signaled: signaled}
	d.logf("create_fence %d", h)
	return h, nil
}

// WaitForFence completes the pending submission of fence, if any. A fence
// that is neither signaled nor pending can never signal and times out.
func (d *Device) WaitForFence(fence renderer.Handle, timeout time.Duration) error {
	d.logf("wait_fence %d", fence)
	d.FenceWaits = append(d.FenceWaits, fence)
	f, ok := d.fences[fence]
	if !ok {
		d.violation("wait on unknown fence %d", fence)
		return fmt.Errorf("unknown fence %d", fence)
	}
	if f.inFlight != nil && !d.Hung {
		f.inFlight = nil
		f.signaled = true
	}
	if !f.signaled {
		return fmt.Errorf("fence %d after %s: %w", fence, timeout, core.ErrWaitTimeout)
	}
	return nil
}

func (d *Device) ResetFence(fence renderer.Handle) error {
	d.logf("reset_fence %d", fence)
	f, ok := d.fences[fence]
	if !ok {
		d.violation("reset of unknown fence %d", fence)
		return fmt.Errorf("unknown fence %d", fence)
	}
	if f.inFlight != nil {
		d.violation("reset of fence %d with a pending submission", fence)
	}
	f.signaled = false
	return nil
}

func (d *Device) CreateSemaphore(name string) (renderer.Handle, error) {
	h := d.newHandle(renderer.ResourceSemaphore)
	d.semaphores[h] = false
	d.logf("create_semaphore %d", h)
	return h, nil
}

func (d *Device) CreateCommandPool(name string) (renderer.Handle, error) {
	h := d.newHandle(renderer.ResourceCommandPool)
	d.logf("create_pool %d", h)
	return h, nil
}

func (d *Device) AllocateCommandBuffer(pool renderer.Handle) (renderer.CommandBuffer, error) {
	if d.live[pool] != renderer.ResourceCommandPool {
		return nil, fmt.Errorf("unknown command pool %d", pool)
	}
	d.next++
	cb := &CommandBuffer{dev: d, handle: d.next, pool: pool}
	d.commands[cb.handle] = cb
	d.logf("allocate_commands %d", cb.handle)
	return cb, nil
}

func (d *Device) CreateImage(spec renderer.ImageSpec) (*renderer.Image, error) {
	img := &renderer.Image{
		Name:   spec.Name,
		Format: spec.Format,
		Extent: spec.Extent,
	}
	img.Handle = d.newHandle(renderer.ResourceImage)
	img.Memory = d.newHandle(renderer.ResourceDeviceMemory)
	img.View = d.newHandle(renderer.ResourceImageView)
	d.logf("create_image %d", img.Handle)
	return img, nil
}

func (d *Device) Submit(info renderer.SubmitInfo) error {
	d.logf("submit commands=%d wait=%d signal=%d fence=%d", info.Commands, info.Wait.Semaphore, info.Signal.Semaphore, info.Fence)
	if d.SubmitErr != nil {
		err := d.SubmitErr
		d.SubmitErr = nil
		return err
	}
	d.Submits = append(d.Submits, info)

	cb, ok := d.commands[info.Commands]
	if !ok {
		d.violation("submit of unknown command buffer %d", info.Commands)
	} else if cb.recording {
		d.violation("submit of command buffer %d still recording", info.Commands)
	}

	if info.Wait.Semaphore != renderer.NullHandle {
		if !d.semaphores[info.Wait.Semaphore] {
			d.violation("submit waits on semaphore %d which has no pending signal", info.Wait.Semaphore)
		}
		d.semaphores[info.Wait.Semaphore] = false
	}
	if info.Signal.Semaphore != renderer.NullHandle {
		if d.semaphores[info.Signal.Semaphore] {
			d.violation("submit signals semaphore %d which is already signaled", info.Signal.Semaphore)
		}
		d.semaphores[info.Signal.Semaphore] = true
	}

	f, ok := d.fences[info.Fence]
	if !ok {
		d.violation("submit with unknown fence %d", info.Fence)
		return nil
	}
	if f.signaled || f.inFlight != nil {
		d.violation("submit with fence %d that is not reset", info.Fence)
	}
	used := map[renderer.Handle]struct{}{
		info.Commands:         {},
		info.Wait.Semaphore:   {},
		info.Signal.Semaphore: {},
	}
	if cb != nil {
		used[cb.pool] = struct{}{}
		for h := range cb.touched {
			used[h] = struct{}{}
		}
		cb.fence = info.Fence
	}
	f.inFlight = used
	return nil
}

// WaitIdle completes every pending submission.
func (d *Device) WaitIdle() error {
	d.logf("wait_idle")
	d.WaitIdleCalls++
	if d.WaitIdleErr != nil {
		return d.WaitIdleErr
	}
	for _, f := range d.fences {
		if f.inFlight != nil {
			f.inFlight = nil
			f.signaled = true
		}
	}
	return nil
}

func (d *Device) inFlight(h renderer.Handle) bool {
	for _, f := range d.fences {
		if _, ok := f.inFlight[h]; ok {
			return true
		}
	}
	return false
}

func (d *Device) Release(r renderer.Release) error {
	d.logf("release %s %d", r.Kind, r.Handle)
	kind, ok := d.live[r.Handle]
	if !ok {
		d.violation("release of unknown or already released %s", r)
		return fmt.Errorf("unknown handle %d", r.Handle)
	}
	if kind != r.Kind {
		d.violation("release of %s tagged as %s", r, kind)
	}
	if d.inFlight(r.Handle) {
		d.violation("release of %s still used by pending GPU work", r)
	}
	d.Released = append(d.Released, r)
	delete(d.live, r.Handle)
	delete(d.fences, r.Handle)
	delete(d.semaphores, r.Handle)
	if kind == renderer.ResourceCommandPool {
		for h, cb := range d.commands {
			if cb.pool == r.Handle {
				delete(d.commands, h)
			}
		}
	}
	return d.ReleaseErr
}
