package math

import "testing"

func TestClamp(t *testing.T) {
	tests := []struct {
		v, low, high, want uint32
	}{
		{5, 1, 10, 5},
		{0, 1, 10, 1},
		{11, 1, 10, 10},
	}
	for _, tt := range tests {
		if got := Clamp(tt.v, tt.low, tt.high); got != tt.want {
			t.Fatalf("Clamp(%d, %d, %d): expected %d, got %d", tt.v, tt.low, tt.high, tt.want, got)
		}
	}
	if got := Clamp(1.5, 0.0, 1.0); got != 1.0 {
		t.Fatalf("expected 1.0, got %f", got)
	}
}

func TestLineThrough(t *testing.T) {
	tests := []struct {
		name              string
		x1, y1, x2, y2, x float32
		want              float32
	}{
		{"start", 0, 0, 1, 1, 0, 0},
		{"end", 0, 0, 1, 1, 1, 1},
		{"middle descending", 0, 1, 2, 0, 1, 0.5},
		{"flat", 0.25, 1, 0.5, 1, 0.3, 1},
		{"vertical", 1, 3, 1, 7, 1, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LineThrough(tt.x1, tt.y1, tt.x2, tt.y2, tt.x); got != tt.want {
				t.Fatalf("expected %f, got %f", tt.want, got)
			}
		})
	}
}
