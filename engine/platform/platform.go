package platform

import (
	"errors"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/lumen/engine/core"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

// Platform is the GLFW window. Window callbacks translate into core events
// that the frame loop drains once per iteration.
type Platform struct {
	Window *glfw.Window

	events *core.EventQueue
}

func New() (*Platform, error) {
	return &Platform{
		Window: nil,
		events: core.NewEventQueue(core.DEFAULT_EVENT_QUEUE_SIZE),
	}, nil
}

func (p *Platform) Startup(cfg core.WindowConfig) error {
	if err := glfw.Init(); err != nil {
		core.LogError("failed to initialize glfw: %s", err)
		return err
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return errors.New("glfw: vulkan is not supported on this system")
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(cfg.Width), int(cfg.Height), cfg.Title, nil, nil)
	if err != nil {
		core.LogError("failed to create window: %s", err)
		glfw.Terminate()
		return err
	}
	p.Window = window

	p.Window.SetKeyCallback(p.keyCallback)
	p.Window.SetFramebufferSizeCallback(p.framebufferSizeCallback)
	p.Window.SetIconifyCallback(p.iconifyCallback)
	p.Window.SetCloseCallback(p.closeCallback)
	p.Window.SetPos(int(cfg.X), int(cfg.Y))
	p.Window.Show()

	core.LogInfo("Window `%s` created (%dx%d).", cfg.Title, cfg.Width, cfg.Height)
	return nil
}

func (p *Platform) Shutdown() error {
	if p.Window != nil {
		p.Window.Destroy()
		p.Window = nil
	}
	glfw.Terminate()
	return nil
}

// PollEvents pumps the OS message queue and returns the events it produced.
func (p *Platform) PollEvents() []core.Event {
	glfw.PollEvents()
	return p.events.Drain()
}

func (p *Platform) FramebufferSize() (uint32, uint32) {
	if p.Window == nil {
		return 0, 0
	}
	w, h := p.Window.GetFramebufferSize()
	return uint32(w), uint32(h)
}

func (p *Platform) GetRequiredExtensionNames() []string {
	return p.Window.GetRequiredInstanceExtensions()
}

func (p *Platform) keyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	code := core.EVENT_CODE_KEY_PRESSED
	switch action {
	case glfw.Release:
		code = core.EVENT_CODE_KEY_RELEASED
	case glfw.Repeat:
		return
	}
	var k core.KeyCode
	switch key {
	case glfw.KeyEscape:
		k = core.KEY_ESCAPE
	case glfw.KeySpace:
		k = core.KEY_SPACE
	default:
		return
	}
	p.events.Push(core.Event{Code: code, Key: k})
	if k == core.KEY_ESCAPE && code == core.EVENT_CODE_KEY_PRESSED {
		p.events.Push(core.Event{Code: core.EVENT_CODE_APPLICATION_QUIT})
	}
}

func (p *Platform) framebufferSizeCallback(w *glfw.Window, width, height int) {
	p.events.Push(core.Event{Code: core.EVENT_CODE_RESIZED, Width: uint32(width), Height: uint32(height)})
}

func (p *Platform) iconifyCallback(w *glfw.Window, iconified bool) {
	if iconified {
		p.events.Push(core.Event{Code: core.EVENT_CODE_MINIMIZED})
		return
	}
	p.events.Push(core.Event{Code: core.EVENT_CODE_RESTORED})
}

func (p *Platform) closeCallback(w *glfw.Window) {
	p.events.Push(core.Event{Code: core.EVENT_CODE_APPLICATION_QUIT})
}
