package renderer

import (
	"math"
	"testing"
)

func TestColorCycle_SegmentsAreContinuous(t *testing.T) {
	const length = float32(200)
	channels := map[string][]colorSegment{
		"red":   redSegments,
		"green": greenSegments,
		"blue":  blueSegments,
	}
	for name, segments := range channels {
		for i := 0; i+1 < len(segments); i++ {
			left, right := segments[i], segments[i+1]
			if left.to != right.from {
				t.Fatalf("%s: segment %d ends at %f but %d starts at %f", name, i, left.to, i+1, right.from)
			}
			x := left.to * length
			l := evalLine(left, length, x)
			r := evalLine(right, length, x)
			if math.Abs(float64(l-r)) > 1e-5 {
				t.Fatalf("%s: discontinuity at x=%f: %f vs %f", name, x, l, r)
			}
		}
		first, last := segments[0], segments[len(segments)-1]
		if first.from != 0 || last.to != 1 {
			t.Fatalf("%s: segments must cover [0, 1], got [%f, %f]", name, first.from, last.to)
		}
		if first.start != last.end {
			t.Fatalf("%s: value at the end of the cycle %f differs from the start %f", name, last.end, first.start)
		}
	}
}

func evalLine(s colorSegment, length, x float32) float32 {
	return s.start + (s.end-s.start)*(x-s.from*length)/((s.to-s.from)*length)
}

func TestColorCycle_Periodic(t *testing.T) {
	c := NewColorCycle(200)
	for f := uint64(0); f < 400; f++ {
		if a, b := c.Color(f), c.Color(f+200); a != b {
			t.Fatalf("frame %d: expected %v, got %v", f, a, b)
		}
	}
}

func TestColorCycle_StepsAreSmall(t *testing.T) {
	c := NewColorCycle(200)
	// the steepest segment spans 1/6 of the cycle: ~0.03 per frame
	const maxStep = 6.0/200 + 1e-4
	for f := uint64(0); f < 200; f++ {
		a, b := c.Color(f), c.Color(f+1)
		for ch := 0; ch < 3; ch++ {
			if a[ch] < 0 || a[ch] > 1 {
				t.Fatalf("frame %d: channel %d out of range: %f", f, ch, a[ch])
			}
			if d := math.Abs(float64(a[ch] - b[ch])); d > maxStep {
				t.Fatalf("frame %d: channel %d jumps by %f", f, ch, d)
			}
		}
		if a[3] != 1 {
			t.Fatalf("frame %d: expected opaque alpha, got %f", f, a[3])
		}
	}
}

func TestColorCycle_KnownColors(t *testing.T) {
	c := NewColorCycle(200)
	tests := []struct {
		frame   uint64
		r, g, b float32
	}{
		{0, 1, 0, 0},
		{100, 0, 1, 1},
		{200, 1, 0, 0},
	}
	for _, tt := range tests {
		got := c.Color(tt.frame)
		if got[0] != tt.r || got[1] != tt.g || got[2] != tt.b {
			t.Fatalf("frame %d: expected (%f, %f, %f), got %v", tt.frame, tt.r, tt.g, tt.b, got)
		}
	}
}

func TestColorCycle_SetLength(t *testing.T) {
	c := NewColorCycle(0)
	if c.Length() != DefaultCycleLength {
		t.Fatalf("expected default length, got %d", c.Length())
	}
	c.SetLength(50)
	if a, b := c.Color(10), c.Color(60); a != b {
		t.Fatalf("expected period 50, got %v and %v", a, b)
	}
}
