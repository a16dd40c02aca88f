package renderer

import (
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"golang.org/x/image/math/f32"
)

const DefaultCycleLength uint32 = 200

// colorSegment is one linear piece of a channel over the cycle, expressed in
// fractions of the cycle length.
type colorSegment struct {
	from, to   float32
	start, end float32
}

var (
	redSegments = []colorSegment{
		{0, 1.0 / 6, 1, 1},
		{1.0 / 6, 1.0 / 3, 1, 0},
		{1.0 / 3, 2.0 / 3, 0, 0},
		{2.0 / 3, 5.0 / 6, 0, 1},
		{5.0 / 6, 1, 1, 1},
	}
	greenSegments = []colorSegment{
		{0, 1.0 / 6, 0, 1},
		{1.0 / 6, 1.0 / 2, 1, 1},
		{1.0 / 2, 2.0 / 3, 1, 0},
		{2.0 / 3, 1, 0, 0},
	}
	blueSegments = []colorSegment{
		{0, 1.0 / 3, 0, 0},
		{1.0 / 3, 1.0 / 2, 0, 1},
		{1.0 / 2, 5.0 / 6, 1, 1},
		{5.0 / 6, 1, 1, 0},
	}
)

// evalSegments evaluates the piecewise-linear channel at x, a position in
// [0, length).
func evalSegments(segments []colorSegment, length, x float32) float32 {
	for _, s := range segments {
		if x < s.to*length {
			return math.LineThrough(s.from*length, s.start, s.to*length, s.end, x)
		}
	}
	last := segments[len(segments)-1]
	return last.end
}

// ColorCycle is the default RenderPass: it clears the target to an RGB color
// cycling smoothly with the frame number.
type ColorCycle struct {
	length uint32
}

func NewColorCycle(length uint32) *ColorCycle {
	c := &ColorCycle{}
	c.SetLength(length)
	return c
}

// SetLength changes the cycle length in frames. Zero selects the default.
func (c *ColorCycle) SetLength(length uint32) {
	if length == 0 {
		length = DefaultCycleLength
	}
	if c.length != 0 && c.length != length {
		core.LogDebug("color cycle length changed from %d to %d", c.length, length)
	}
	c.length = length
}

func (c *ColorCycle) Length() uint32 {
	return c.length
}

// Color returns the clear color for the given frame, alpha always 1.
func (c *ColorCycle) Color(frame uint64) f32.Vec4 {
	length := float32(c.length)
	x := float32(frame % uint64(c.length))
	return f32.Vec4{
		evalSegments(redSegments, length, x),
		evalSegments(greenSegments, length, x),
		evalSegments(blueSegments, length, x),
		1,
	}
}

func (c *ColorCycle) Draw(ctx *FrameContext) error {
	ctx.Commands.ClearColorImage(ctx.Target, LayoutGeneral, c.Color(ctx.Frame))
	return nil
}
