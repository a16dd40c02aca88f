package renderertest

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/lumen/engine/renderer"
	"golang.org/x/image/math/f32"
)

// CommandBuffer is the fake renderer.CommandBuffer handed out by Device.
type CommandBuffer struct {
	dev       *Device
	handle    renderer.Handle
	pool      renderer.Handle
	fence     renderer.Handle
	recording bool
	touched   map[renderer.Handle]struct{}
	err       error

	Resets int
}

func (c *CommandBuffer) Handle() renderer.Handle {
	return c.handle
}

func (c *CommandBuffer) Reset() error {
	c.dev.logf("reset_commands %d", c.handle)
	if c.fence != renderer.NullHandle && c.dev.Pending(c.fence) {
		c.dev.violation("reset of command buffer %d while its submission is pending", c.handle)
	}
	c.Resets++
	c.recording = false
	c.touched = nil
	c.err = nil
	return nil
}

func (c *CommandBuffer) Begin() error {
	c.dev.logf("begin_commands %d", c.handle)
	if c.recording {
		return errors.New("command buffer already recording")
	}
	c.recording = true
	c.touched = make(map[renderer.Handle]struct{})
	return nil
}

func (c *CommandBuffer) End() error {
	c.dev.logf("end_commands %d", c.handle)
	if !c.recording {
		return errors.New("command buffer not recording")
	}
	c.recording = false
	if err := c.err; err != nil {
		c.err = nil
		return err
	}
	return nil
}

func (c *CommandBuffer) use(image renderer.Handle) {
	if !c.dev.knownImage(image) && c.err == nil {
		c.err = fmt.Errorf("command buffer %d: unknown image %d", c.handle, image)
	}
	if c.touched != nil {
		c.touched[image] = struct{}{}
	}
}

func (c *CommandBuffer) TransitionImage(image renderer.Handle, from, to renderer.ImageLayout) {
	c.dev.logf("transition %d %s->%s", image, from, to)
	if !c.recording {
		c.dev.violation("transition recorded outside Begin/End on %d", c.handle)
	}
	c.use(image)
	c.dev.Transitions = append(c.dev.Transitions, Transition{Commands: c.handle, Image: image, From: from, To: to})
}

func (c *CommandBuffer) ClearColorImage(image renderer.Handle, layout renderer.ImageLayout, color f32.Vec4) {
	c.dev.logf("clear %d", image)
	if !c.recording {
		c.dev.violation("clear recorded outside Begin/End on %d", c.handle)
	}
	c.use(image)
	c.dev.Clears = append(c.dev.Clears, Clear{Commands: c.handle, Image: image, Layout: layout, Color: color})
}
