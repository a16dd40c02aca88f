package math

import "golang.org/x/exp/constraints"

// Clamp returns the value `f` clamped to the range [low, high].
// It works for any numeric type (integers and floats).
func Clamp[T constraints.Ordered](f, low, high T) T {
	if f < low {
		return low
	}
	if f > high {
		return high
	}
	return f
}

// LineThrough evaluates at x the line passing through (x1, y1) and (x2, y2).
// A vertical line evaluates to y1.
func LineThrough(x1, y1, x2, y2, x float32) float32 {
	if x2 == x1 {
		return y1
	}
	return y1 + (y2-y1)*(x-x1)/(x2-x1)
}
