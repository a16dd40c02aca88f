package core

import (
	"errors"
)

var (
	// ErrSurfaceOutOfDate is returned when the presentation surface no longer
	// matches the swapchain and must be recreated before the next acquire.
	ErrSurfaceOutOfDate = errors.New("presentation surface out of date")
	// ErrWaitTimeout is returned when a fence wait or an image acquisition does
	// not complete within its configured timeout.
	ErrWaitTimeout = errors.New("gpu wait timed out")
	// ErrDeviceLost is returned when the logical device is lost.
	ErrDeviceLost = errors.New("gpu device lost")
	// ErrDeviceNotIdle is returned by shutdown when the device could not be
	// drained. Device-level objects must not be destroyed after it.
	ErrDeviceNotIdle = errors.New("gpu device did not go idle")

	ErrNotInitialized     = errors.New("engine not initialized")
	ErrAlreadyInitialized = errors.New("engine already initialized")
	ErrInvalidConfig      = errors.New("invalid configuration")
)
