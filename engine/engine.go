package engine

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Engine released every resource
	EngineStageShutdown
)

// Window is the platform surface the engine draws into.
type Window interface {
	Startup(cfg core.WindowConfig) error
	// PollEvents returns the events produced since the last call. It never blocks.
	PollEvents() []core.Event
	FramebufferSize() (uint32, uint32)
	Shutdown() error
}

// Backend is a GPU device bound to the window surface.
type Backend interface {
	renderer.Device
	Presenter() renderer.Presenter
	// Shutdown destroys the device, the surface and the instance.
	Shutdown() error
}

// BackendFactory creates the backend once the window exists.
type BackendFactory func() (Backend, error)

type Engine struct {
	currentStage Stage
	config       *core.Config

	window     Window
	newBackend BackendFactory
	backend    Backend

	pipeline   *renderer.Pipeline
	background *renderer.ColorCycle
	drawTarget *renderer.Image
	// Resources living as long as the engine, released after every frame slot.
	releases renderer.ReleaseQueue

	clock   *core.Clock
	metrics *core.FrameMetrics
	updates <-chan *core.Config
	sleep   func(time.Duration)

	stopRequested atomic.Bool
	isRunning     bool
	isSuspended   bool
	width         uint32
	height        uint32
}

func New(cfg *core.Config, window Window, newBackend BackendFactory) (*Engine, error) {
	if cfg == nil {
		cfg = core.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if window == nil || newBackend == nil {
		return nil, errors.New("engine: window and backend factory are required")
	}
	return &Engine{
		currentStage: EngineStageUninitialized,
		config:       cfg,
		window:       window,
		newBackend:   newBackend,
		clock:        core.NewClock(),
		metrics:      core.NewFrameMetrics(),
		sleep:        time.Sleep,
	}, nil
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

// Pipeline returns the frame pipeline, nil before Init.
func (e *Engine) Pipeline() *renderer.Pipeline {
	return e.pipeline
}

func (e *Engine) Suspended() bool {
	return e.isSuspended
}

// WatchConfig makes Run apply the configs received on updates between frames.
func (e *Engine) WatchConfig(updates <-chan *core.Config) {
	e.updates = updates
}

// Stop asks Run to return after the current iteration. It is safe to call
// from any goroutine.
func (e *Engine) Stop() {
	e.stopRequested.Store(true)
}

// Init opens the window, creates the backend and builds the frame pipeline.
// It may only be called once. A failed Init undoes whatever it created.
func (e *Engine) Init() (err error) {
	if e.currentStage != EngineStageUninitialized {
		return core.ErrAlreadyInitialized
	}
	e.currentStage = EngineStageInitializing
	defer func() {
		if err != nil {
			e.unwindInit()
			e.currentStage = EngineStageShutdown
		}
	}()

	if err := e.window.Startup(e.config.Window); err != nil {
		return fmt.Errorf("window startup: %w", err)
	}

	backend, err := e.newBackend()
	if err != nil {
		return fmt.Errorf("backend: %w", err)
	}
	e.backend = backend
	presenter := backend.Presenter()

	// The draw target matches the window at startup and is not resized with it.
	extent := presenter.Extent()
	e.drawTarget, err = backend.CreateImage(renderer.ImageSpec{
		Name:   "draw-target-" + uuid.NewString(),
		Format: renderer.FormatR16G16B16A16Sfloat,
		Extent: extent,
	})
	if err != nil {
		return fmt.Errorf("draw target: %w", err)
	}
	e.releases.PushAll(e.drawTarget.Releases())

	e.background = renderer.NewColorCycle(e.config.Background.CycleLength)
	e.pipeline, err = renderer.NewPipeline(backend, presenter, e.drawTarget, e.background, renderer.PipelineConfig{
		FramesInFlight: e.config.Renderer.FramesInFlight,
		FenceTimeout:   e.config.Renderer.FenceTimeout.Duration,
		AcquireTimeout: e.config.Renderer.AcquireTimeout.Duration,
	})
	if err != nil {
		return fmt.Errorf("frame pipeline: %w", err)
	}

	e.width, e.height = extent.Width, extent.Height
	e.currentStage = EngineStageInitialized
	core.LogInfo("Engine initialized: %d frames in flight, %d presentable images, %dx%d.",
		e.config.Renderer.FramesInFlight, e.pipeline.Surface().ImageCount(), extent.Width, extent.Height)
	return nil
}

func (e *Engine) unwindInit() {
	if e.backend != nil {
		if err := e.backend.WaitIdle(); err != nil {
			core.LogWarn("wait idle during failed init: %s", err)
		}
		if err := e.releases.Flush(e.backend); err != nil {
			core.LogWarn("release during failed init: %s", err)
		}
		if err := e.backend.Shutdown(); err != nil {
			core.LogWarn("backend shutdown during failed init: %s", err)
		}
		e.backend = nil
	}
	if err := e.window.Shutdown(); err != nil {
		core.LogWarn("window shutdown during failed init: %s", err)
	}
}

// Run drives frames until a quit event, Stop or the configured frame limit.
// A frame error ends the loop and is returned; the caller still calls Cleanup.
func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return core.ErrNotInitialized
	}
	e.currentStage = EngineStageRunning
	defer func() {
		if e.currentStage == EngineStageRunning {
			e.currentStage = EngineStageInitialized
		}
	}()

	e.isRunning = true
	e.clock.Start()
	e.clock.Update()
	lastTime := e.clock.Elapsed()

	for e.isRunning {
		for _, ev := range e.window.PollEvents() {
			e.onEvent(ev)
		}
		e.applyUpdates()
		if e.stopRequested.Load() {
			core.LogInfo("Stop requested, shutting down.")
			e.isRunning = false
		}
		if !e.isRunning {
			break
		}

		if e.isSuspended {
			e.sleep(e.config.Run.SuspendSleep.Duration)
			continue
		}

		if err := e.pipeline.DrawFrame(); err != nil {
			if errors.Is(err, core.ErrSurfaceOutOfDate) {
				// the surface is marked stale and gets rebuilt by the next frame
				core.LogDebug("Frame skipped: %s", err)
				continue
			}
			core.LogError("Frame failed: %s", err)
			return err
		}

		// Update clock and get delta time.
		e.clock.Update()
		currentTime := e.clock.Elapsed()
		e.metrics.Update((currentTime - lastTime).Seconds())
		lastTime = currentTime

		frames := e.pipeline.FrameNumber()
		if every := e.config.Run.StatsEvery; every > 0 && frames%every == 0 {
			fps, ms := e.metrics.Frame()
			core.LogInfo("Frame %d: %.1f fps, %.3f ms avg", frames, fps, ms)
		}
		if limit := e.config.Run.MaxFrames; limit > 0 && frames >= limit {
			core.LogInfo("Reached %d frames, shutting down.", limit)
			e.isRunning = false
		}
	}
	return nil
}

// Cleanup releases everything Init created. It does nothing unless Init
// succeeded and may be called more than once.
func (e *Engine) Cleanup() error {
	if e.currentStage != EngineStageInitialized && e.currentStage != EngineStageRunning {
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	core.LogInfo("Shutting down engine...")

	var errs []error
	busy := false
	if err := e.pipeline.Shutdown(&e.releases); err != nil {
		errs = append(errs, fmt.Errorf("frame pipeline: %w", err))
		busy = errors.Is(err, core.ErrDeviceNotIdle)
	}
	if busy {
		core.LogError("Device never went idle, leaking backend resources.")
	} else if err := e.backend.Shutdown(); err != nil {
		errs = append(errs, fmt.Errorf("backend: %w", err))
	}
	if err := e.window.Shutdown(); err != nil {
		errs = append(errs, fmt.Errorf("window: %w", err))
	}
	e.currentStage = EngineStageShutdown
	return errors.Join(errs...)
}

func (e *Engine) applyUpdates() {
	if e.updates == nil {
		return
	}
	for {
		select {
		case cfg, ok := <-e.updates:
			if !ok {
				e.updates = nil
				return
			}
			e.applyConfig(cfg)
		default:
			return
		}
	}
}

// applyConfig takes over the settings that can change at runtime. Window and
// renderer settings need a restart.
func (e *Engine) applyConfig(cfg *core.Config) {
	if err := core.SetLogLevel(cfg.Log.Level); err != nil {
		core.LogWarn("config reload: %s", err)
	} else {
		e.config.Log = cfg.Log
	}
	e.background.SetLength(cfg.Background.CycleLength)
	e.config.Background = cfg.Background
	e.config.Run = cfg.Run
	if cfg.Window != e.config.Window || cfg.Renderer != e.config.Renderer {
		core.LogWarn("config reload: window and renderer settings apply on restart")
	}
	core.LogInfo("Configuration reloaded.")
}

func (e *Engine) onEvent(ev core.Event) {
	switch ev.Code {
	case core.EVENT_CODE_APPLICATION_QUIT:
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.isRunning = false
	case core.EVENT_CODE_KEY_PRESSED:
		core.LogDebug("Key %d pressed.", ev.Key)
	case core.EVENT_CODE_MINIMIZED:
		e.suspend()
	case core.EVENT_CODE_RESTORED:
		e.resume()
	case core.EVENT_CODE_RESIZED:
		e.onResized(ev.Width, ev.Height)
	}
}

func (e *Engine) suspend() {
	if !e.isSuspended {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended = true
	}
}

func (e *Engine) resume() {
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}
}

func (e *Engine) onResized(width, height uint32) {
	// Handle minimization
	if width == 0 || height == 0 {
		e.suspend()
		return
	}
	e.resume()

	// Check if different. If so, the surface must be recreated.
	if width != e.width || height != e.height {
		e.width = width
		e.height = height
		core.LogDebug("Window resize: %d, %d", width, height)
		e.pipeline.Resize(renderer.Extent{Width: width, Height: height})
	}
}
