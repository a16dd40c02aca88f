package renderer

import (
	"errors"
	"fmt"
	"time"

	"github.com/spaghettifunk/lumen/engine/core"
)

// SyncPair holds the semaphores guarding one presentable image.
type SyncPair struct {
	// Signaled when the image may be written.
	ImageAvailable Handle
	// Signaled when rendering into the image has completed.
	RenderFinished Handle
}

// SurfaceState tracks the presentable images and one SyncPair per image
// index. Pairs are always selected by the acquired image index.
//
// The image index is only known once acquisition returns, so acquisition
// signals a spare semaphore which is then swapped into the pair of the
// returned index. The displaced semaphore becomes the next spare.
type SurfaceState struct {
	dev       Device
	presenter Presenter

	images []Handle
	pairs  []SyncPair
	spare  Handle
	stale  bool
}

func NewSurfaceState(dev Device, presenter Presenter) (*SurfaceState, error) {
	s := &SurfaceState{
		dev:       dev,
		presenter: presenter,
	}
	if err := s.createSync(); err != nil {
		_ = s.destroySync()
		return nil, err
	}
	return s, nil
}

func (s *SurfaceState) createSync() error {
	s.images = s.presenter.Images()
	if len(s.images) == 0 {
		return errors.New("presenter exposes no images")
	}

	s.pairs = make([]SyncPair, len(s.images))
	for i := range s.pairs {
		available, err := s.dev.CreateSemaphore(fmt.Sprintf("image-available-%d", i))
		if err != nil {
			return fmt.Errorf("image %d: create image-available semaphore: %w", i, err)
		}
		s.pairs[i].ImageAvailable = available

		finished, err := s.dev.CreateSemaphore(fmt.Sprintf("render-finished-%d", i))
		if err != nil {
			return fmt.Errorf("image %d: create render-finished semaphore: %w", i, err)
		}
		s.pairs[i].RenderFinished = finished
	}

	spare, err := s.dev.CreateSemaphore("image-available-spare")
	if err != nil {
		return fmt.Errorf("create spare semaphore: %w", err)
	}
	s.spare = spare

	core.LogDebug("surface state created with %d images (%dx%d)", len(s.images), s.presenter.Extent().Width, s.presenter.Extent().Height)
	return nil
}

func (s *SurfaceState) destroySync() error {
	var errs []error
	for i, pair := range s.pairs {
		if pair.ImageAvailable != NullHandle {
			if err := s.dev.Release(Release{Kind: ResourceSemaphore, Handle: pair.ImageAvailable, Name: fmt.Sprintf("image-available-%d", i)}); err != nil {
				errs = append(errs, err)
			}
		}
		if pair.RenderFinished != NullHandle {
			if err := s.dev.Release(Release{Kind: ResourceSemaphore, Handle: pair.RenderFinished, Name: fmt.Sprintf("render-finished-%d", i)}); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if s.spare != NullHandle {
		if err := s.dev.Release(Release{Kind: ResourceSemaphore, Handle: s.spare, Name: "image-available-spare"}); err != nil {
			errs = append(errs, err)
		}
	}
	s.pairs = nil
	s.spare = NullHandle
	return errors.Join(errs...)
}

// ImageCount returns M, the number of presentable images.
func (s *SurfaceState) ImageCount() int {
	return len(s.images)
}

func (s *SurfaceState) Image(index uint32) Handle {
	return s.images[index]
}

func (s *SurfaceState) Pair(index uint32) SyncPair {
	return s.pairs[index]
}

func (s *SurfaceState) Extent() Extent {
	return s.presenter.Extent()
}

func (s *SurfaceState) Format() Format {
	return s.presenter.Format()
}

// Acquire obtains the next presentable image index. On success the pair at
// the returned index holds the semaphore the acquisition will signal.
func (s *SurfaceState) Acquire(timeout time.Duration) (uint32, error) {
	index, err := s.presenter.AcquireNextImage(timeout, s.spare)
	if err != nil {
		if errors.Is(err, core.ErrSurfaceOutOfDate) {
			s.stale = true
		}
		return 0, err
	}
	if int(index) >= len(s.pairs) {
		return 0, fmt.Errorf("acquired image index %d out of range [0, %d)", index, len(s.pairs))
	}
	s.pairs[index].ImageAvailable, s.spare = s.spare, s.pairs[index].ImageAvailable
	return index, nil
}

// Present queues the image at index for display after its render-finished
// semaphore is signaled. A stale surface is marked for recreation and
// reported as core.ErrSurfaceOutOfDate.
func (s *SurfaceState) Present(index uint32) error {
	err := s.presenter.Present(index, s.pairs[index].RenderFinished)
	if errors.Is(err, core.ErrSurfaceOutOfDate) {
		s.stale = true
	}
	return err
}

func (s *SurfaceState) MarkStale() {
	s.stale = true
}

func (s *SurfaceState) Stale() bool {
	return s.stale
}

// Recreate rebuilds the presentable images and every per-image semaphore for
// the given extent. It waits for the device to go idle first.
func (s *SurfaceState) Recreate(extent Extent) error {
	if err := s.dev.WaitIdle(); err != nil {
		return fmt.Errorf("wait idle before surface recreation: %w", err)
	}
	if err := s.destroySync(); err != nil {
		return fmt.Errorf("destroy surface sync objects: %w", err)
	}
	if err := s.presenter.Recreate(extent); err != nil {
		return fmt.Errorf("recreate presenter: %w", err)
	}
	if err := s.createSync(); err != nil {
		_ = s.destroySync()
		return err
	}
	s.stale = false
	core.LogInfo("surface recreated at %dx%d", s.presenter.Extent().Width, s.presenter.Extent().Height)
	return nil
}

// Destroy releases every semaphore and the presentable images. The caller
// guarantees the device is idle.
func (s *SurfaceState) Destroy() error {
	err := s.destroySync()
	s.presenter.Destroy()
	s.images = nil
	return err
}
