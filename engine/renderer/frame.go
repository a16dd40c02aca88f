package renderer

import (
	"errors"
	"fmt"
)

// FrameSlot is one of the rotating CPU-side recording contexts. A slot may
// only be reset and reclaimed after Fence has been observed signaled.
type FrameSlot struct {
	Index    int
	Pool     Handle
	Commands CommandBuffer
	// Signaled by the GPU when the slot's last submission completes. Created
	// signaled so the first wait returns immediately.
	Fence    Handle
	Releases ReleaseQueue
}

// FrameRing is the fixed arena of frame slots, selected by frame mod N.
type FrameRing struct {
	slots []*FrameSlot
}

func NewFrameRing(dev Device, n int) (*FrameRing, error) {
	if n < 2 {
		return nil, fmt.Errorf("frame ring needs at least 2 slots, got %d", n)
	}
	ring := &FrameRing{slots: make([]*FrameSlot, 0, n)}
	for i := 0; i < n; i++ {
		slot, err := newFrameSlot(dev, i)
		if err != nil {
			// destroy the slots created so far, the device is idle at startup
			if derr := ring.Destroy(dev); derr != nil {
				err = errors.Join(err, derr)
			}
			return nil, err
		}
		ring.slots = append(ring.slots, slot)
	}
	return ring, nil
}

func newFrameSlot(dev Device, index int) (*FrameSlot, error) {
	slot := &FrameSlot{Index: index}

	pool, err := dev.CreateCommandPool(fmt.Sprintf("frame-%d", index))
	if err != nil {
		return nil, fmt.Errorf("slot %d: create command pool: %w", index, err)
	}
	slot.Pool = pool

	cmd, err := dev.AllocateCommandBuffer(pool)
	if err != nil {
		err = fmt.Errorf("slot %d: allocate command buffer: %w", index, err)
		return nil, errors.Join(err, dev.Release(Release{Kind: ResourceCommandPool, Handle: pool}))
	}
	slot.Commands = cmd

	fence, err := dev.CreateFence(fmt.Sprintf("frame-%d", index), true)
	if err != nil {
		err = fmt.Errorf("slot %d: create fence: %w", index, err)
		return nil, errors.Join(err, dev.Release(Release{Kind: ResourceCommandPool, Handle: pool}))
	}
	slot.Fence = fence

	return slot, nil
}

func (r *FrameRing) Len() int {
	return len(r.slots)
}

// Slot returns the slot serving the given frame number.
func (r *FrameRing) Slot(frame uint64) *FrameSlot {
	return r.slots[frame%uint64(len(r.slots))]
}

// FlushAll flushes every slot's release queue. The caller guarantees the
// device is idle.
func (r *FrameRing) FlushAll(dev Device) error {
	var errs []error
	for _, slot := range r.slots {
		if err := slot.Releases.Flush(dev); err != nil {
			errs = append(errs, fmt.Errorf("slot %d: %w", slot.Index, err))
		}
	}
	return errors.Join(errs...)
}

// Destroy releases the command pool and fence of every slot. The caller
// guarantees the device is idle and the slot queues are flushed.
func (r *FrameRing) Destroy(dev Device) error {
	var errs []error
	for _, slot := range r.slots {
		if err := dev.Release(Release{Kind: ResourceCommandPool, Handle: slot.Pool, Name: fmt.Sprintf("frame-%d", slot.Index)}); err != nil {
			errs = append(errs, err)
		}
		if err := dev.Release(Release{Kind: ResourceFence, Handle: slot.Fence, Name: fmt.Sprintf("frame-%d", slot.Index)}); err != nil {
			errs = append(errs, err)
		}
	}
	r.slots = nil
	return errors.Join(errs...)
}
