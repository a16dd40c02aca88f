package engine

import (
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/renderertest"
)

type fakeWindow struct {
	// batches holds the events returned by successive polls.
	batches   [][]core.Event
	polls     int
	startups  int
	shutdowns int
	startErr  error
}

func (w *fakeWindow) Startup(cfg core.WindowConfig) error {
	w.startups++
	return w.startErr
}

func (w *fakeWindow) PollEvents() []core.Event {
	w.polls++
	if len(w.batches) == 0 {
		return nil
	}
	b := w.batches[0]
	w.batches = w.batches[1:]
	return b
}

func (w *fakeWindow) FramebufferSize() (uint32, uint32) {
	return 800, 600
}

func (w *fakeWindow) Shutdown() error {
	w.shutdowns++
	return nil
}

type fakeBackend struct {
	*renderertest.Device
	presenter *renderertest.Presenter
	shutdowns int
}

func (b *fakeBackend) Presenter() renderer.Presenter {
	return b.presenter
}

func (b *fakeBackend) Shutdown() error {
	b.shutdowns++
	b.Log = append(b.Log, "backend_shutdown")
	return nil
}

func newFakeBackend() *fakeBackend {
	dev := renderertest.NewDevice()
	return &fakeBackend{
		Device:    dev,
		presenter: renderertest.NewPresenter(dev, 3, renderer.Extent{Width: 800, Height: 600}),
	}
}

func testConfig(maxFrames uint64) *core.Config {
	cfg := core.DefaultConfig()
	cfg.Run.MaxFrames = maxFrames
	cfg.Run.StatsEvery = 0
	return cfg
}

type testEngine struct {
	engine  *Engine
	window  *fakeWindow
	backend *fakeBackend
	sleeps  int
}

func newTestEngine(t *testing.T, cfg *core.Config, batches ...[]core.Event) *testEngine {
	t.Helper()
	te := &testEngine{
		window:  &fakeWindow{batches: batches},
		backend: newFakeBackend(),
	}
	e, err := New(cfg, te.window, func() (Backend, error) { return te.backend, nil })
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	e.sleep = func(time.Duration) { te.sleeps++ }
	te.engine = e
	return te
}

func (te *testEngine) assertClean(t *testing.T) {
	t.Helper()
	if len(te.backend.Violations) > 0 {
		t.Fatalf("expected no protocol violations, got:\n%s", strings.Join(te.backend.Violations, "\n"))
	}
}

func TestEngine_InitOnce(t *testing.T) {
	te := newTestEngine(t, testConfig(1))
	if err := te.engine.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := te.engine.Init(); !errors.Is(err, core.ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
	if te.window.startups != 1 {
		t.Fatalf("expected the window to start once, got %d", te.window.startups)
	}
	if err := te.engine.Cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
}

func TestEngine_RunRequiresInit(t *testing.T) {
	te := newTestEngine(t, testConfig(1))
	if err := te.engine.Run(); !errors.Is(err, core.ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestEngine_CleanupWithoutInitIsNoop(t *testing.T) {
	te := newTestEngine(t, testConfig(1))
	if err := te.engine.Cleanup(); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if te.window.shutdowns != 0 || te.backend.shutdowns != 0 {
		t.Fatalf("expected nothing torn down, got window=%d backend=%d", te.window.shutdowns, te.backend.shutdowns)
	}
}

func TestEngine_RunAndCleanup(t *testing.T) {
	te := newTestEngine(t, testConfig(5))
	if err := te.engine.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	target := te.engine.drawTarget
	if !strings.HasPrefix(target.Name, "draw-target-") {
		t.Fatalf("expected a draw-target name, got %q", target.Name)
	}
	if target.Format != renderer.FormatR16G16B16A16Sfloat {
		t.Fatalf("expected draw target format %s, got %s", renderer.FormatR16G16B16A16Sfloat, target.Format)
	}

	if err := te.engine.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := te.engine.Pipeline().FrameNumber(); got != 5 {
		t.Fatalf("expected 5 frames, got %d", got)
	}
	if got := len(te.backend.Submits); got != 5 {
		t.Fatalf("expected 5 submissions, got %d", got)
	}

	if err := te.engine.Cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if err := te.engine.Cleanup(); err != nil {
		t.Fatalf("second cleanup: %v", err)
	}
	te.assertClean(t)
	if live := te.backend.Live(); live != 0 {
		t.Fatalf("expected every resource released, got %d live", live)
	}
	if te.backend.shutdowns != 1 || te.window.shutdowns != 1 {
		t.Fatalf("expected one backend and one window shutdown, got %d and %d", te.backend.shutdowns, te.window.shutdowns)
	}
	if te.engine.Stage() != EngineStageShutdown {
		t.Fatalf("expected stage %d, got %d", EngineStageShutdown, te.engine.Stage())
	}

	// the draw target goes with the process-wide queue, after the device went idle
	idle := te.backend.Index("wait_idle")
	release := te.backend.Index("release image_view " + itoa(target.View))
	if idle < 0 || release < idle {
		t.Fatalf("expected draw target release after wait_idle, got wait_idle=%d release=%d", idle, release)
	}
	if last := te.backend.Log[len(te.backend.Log)-1]; last != "backend_shutdown" {
		t.Fatalf("expected backend shutdown last, got %q", last)
	}
}

func TestEngine_MinimizePausesDrawing(t *testing.T) {
	te := newTestEngine(t, testConfig(3),
		nil,
		[]core.Event{{Code: core.EVENT_CODE_MINIMIZED}},
		nil,
		[]core.Event{{Code: core.EVENT_CODE_RESTORED}},
	)
	if err := te.engine.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := te.engine.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if te.sleeps != 2 {
		t.Fatalf("expected 2 suspended iterations, got %d", te.sleeps)
	}
	if te.window.polls != 5 {
		t.Fatalf("expected 5 polls, got %d", te.window.polls)
	}
	if got := te.engine.Pipeline().FrameNumber(); got != 3 {
		t.Fatalf("expected 3 frames, got %d", got)
	}
	if n := len(te.backend.presenter.Recreations); n != 0 {
		t.Fatalf("expected restore without recreation, got %d recreations", n)
	}
	if err := te.engine.Cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	te.assertClean(t)
}

func TestEngine_ZeroFramebufferPauses(t *testing.T) {
	te := newTestEngine(t, testConfig(2),
		[]core.Event{{Code: core.EVENT_CODE_RESIZED}},
		[]core.Event{{Code: core.EVENT_CODE_RESIZED, Width: 800, Height: 600}},
	)
	if err := te.engine.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := te.engine.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if te.sleeps != 1 {
		t.Fatalf("expected 1 suspended iteration, got %d", te.sleeps)
	}
	if n := len(te.backend.presenter.Recreations); n != 0 {
		t.Fatalf("expected no recreation for an unchanged size, got %d", n)
	}
	if err := te.engine.Cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
}

func TestEngine_ResizeRecreatesSurface(t *testing.T) {
	te := newTestEngine(t, testConfig(2),
		nil,
		[]core.Event{{Code: core.EVENT_CODE_RESIZED, Width: 1024, Height: 768}},
	)
	if err := te.engine.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := te.engine.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	recreations := te.backend.presenter.Recreations
	if len(recreations) != 1 {
		t.Fatalf("expected 1 recreation, got %d", len(recreations))
	}
	if want := (renderer.Extent{Width: 1024, Height: 768}); recreations[0] != want {
		t.Fatalf("expected recreation at %v, got %v", want, recreations[0])
	}
	if err := te.engine.Cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	te.assertClean(t)
}

func TestEngine_QuitEventStopsLoop(t *testing.T) {
	te := newTestEngine(t, testConfig(0),
		nil,
		nil,
		[]core.Event{{Code: core.EVENT_CODE_APPLICATION_QUIT}},
	)
	if err := te.engine.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := te.engine.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := te.engine.Pipeline().FrameNumber(); got != 2 {
		t.Fatalf("expected 2 frames before quit, got %d", got)
	}
	if err := te.engine.Cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
}

func TestEngine_StopBeforeFirstFrame(t *testing.T) {
	te := newTestEngine(t, testConfig(0))
	if err := te.engine.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	te.engine.Stop()
	if err := te.engine.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := te.engine.Pipeline().FrameNumber(); got != 0 {
		t.Fatalf("expected no frames, got %d", got)
	}
	if err := te.engine.Cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
}

func TestEngine_AppliesConfigUpdates(t *testing.T) {
	te := newTestEngine(t, testConfig(1))
	if err := te.engine.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	updates := make(chan *core.Config, 1)
	reloaded := testConfig(1)
	reloaded.Background.CycleLength = 42
	reloaded.Log.Level = "info"
	updates <- reloaded
	te.engine.WatchConfig(updates)

	if err := te.engine.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := te.engine.background.Length(); got != 42 {
		t.Fatalf("expected cycle length 42, got %d", got)
	}
	if got := te.engine.config.Log.Level; got != "info" {
		t.Fatalf("expected log level info, got %q", got)
	}
	if err := te.engine.Cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	_ = core.SetLogLevel("debug")
}

func TestEngine_FrameErrorEndsRun(t *testing.T) {
	te := newTestEngine(t, testConfig(0))
	if err := te.engine.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	te.backend.SubmitErr = core.ErrDeviceLost
	err := te.engine.Run()
	if !errors.Is(err, core.ErrDeviceLost) {
		t.Fatalf("expected ErrDeviceLost, got %v", err)
	}
	if err := te.engine.Cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if te.backend.shutdowns != 1 {
		t.Fatalf("expected backend shutdown after a failed run, got %d", te.backend.shutdowns)
	}
}

func TestEngine_OutOfDateFrameIsSkipped(t *testing.T) {
	te := newTestEngine(t, testConfig(3))
	if err := te.engine.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	te.backend.presenter.AcquireErrors[0] = renderertest.OutOfDate()
	te.backend.presenter.AcquireErrors[1] = renderertest.OutOfDate()

	if err := te.engine.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := te.engine.Pipeline().FrameNumber(); got != 3 {
		t.Fatalf("expected 3 frames, got %d", got)
	}
	if got := len(te.backend.Submits); got != 3 {
		t.Fatalf("expected 3 submissions, got %d", got)
	}
	if got := len(te.backend.presenter.Recreations); got != 2 {
		t.Fatalf("expected 2 recreations, got %d", got)
	}
	if err := te.engine.Cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	te.assertClean(t)
}

func TestEngine_CleanupKeepsBusyDevice(t *testing.T) {
	te := newTestEngine(t, testConfig(2))
	if err := te.engine.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := te.engine.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	te.backend.WaitIdleErr = core.ErrDeviceLost

	err := te.engine.Cleanup()
	if !errors.Is(err, core.ErrDeviceNotIdle) {
		t.Fatalf("expected ErrDeviceNotIdle, got %v", err)
	}
	if te.backend.shutdowns != 0 {
		t.Fatalf("expected the backend left alone, got %d shutdowns", te.backend.shutdowns)
	}
	if te.window.shutdowns != 1 {
		t.Fatalf("expected the window shut down, got %d", te.window.shutdowns)
	}
	if te.engine.Stage() != EngineStageShutdown {
		t.Fatalf("expected stage %d, got %d", EngineStageShutdown, te.engine.Stage())
	}
}

func TestEngine_FailedInitUnwinds(t *testing.T) {
	window := &fakeWindow{}
	boom := errors.New("no gpu")
	e, err := New(testConfig(1), window, func() (Backend, error) { return nil, boom })
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := e.Init(); !errors.Is(err, boom) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if window.shutdowns != 1 {
		t.Fatalf("expected window shutdown after failed init, got %d", window.shutdowns)
	}
	if err := e.Cleanup(); err != nil {
		t.Fatalf("expected cleanup no-op, got %v", err)
	}
	if window.shutdowns != 1 {
		t.Fatalf("expected cleanup to leave the window alone, got %d shutdowns", window.shutdowns)
	}
	if err := e.Init(); !errors.Is(err, core.ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
}

func TestEngine_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(1)
	cfg.Renderer.FramesInFlight = 1
	_, err := New(cfg, &fakeWindow{}, func() (Backend, error) { return newFakeBackend(), nil })
	if !errors.Is(err, core.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func itoa(h renderer.Handle) string {
	return strconv.FormatUint(uint64(h), 10)
}
