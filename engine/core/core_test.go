package core

import (
	"math"
	"testing"
	"time"
)

func TestClock_ElapsedFollowsInjectedTime(t *testing.T) {
	base := time.Unix(1000, 0)
	now := base
	c := &Clock{now: func() time.Time { return now }}

	c.Update()
	if c.Elapsed() != 0 {
		t.Fatalf("expected unstarted clock to stay at 0, got %s", c.Elapsed())
	}

	c.Start()
	now = base.Add(1500 * time.Millisecond)
	c.Update()
	if c.Elapsed() != 1500*time.Millisecond {
		t.Fatalf("expected 1.5s, got %s", c.Elapsed())
	}

	c.Stop()
	now = base.Add(10 * time.Second)
	c.Update()
	if c.Elapsed() != 1500*time.Millisecond {
		t.Fatalf("expected stopped clock to keep 1.5s, got %s", c.Elapsed())
	}
}

func TestFrameMetrics_AverageAndFPS(t *testing.T) {
	m := NewFrameMetrics()
	// 16ms frames: the average is published after AVG_COUNT frames
	for i := 0; i < int(AVG_COUNT)-1; i++ {
		m.Update(0.016)
	}
	if m.FrameTime() != 0 {
		t.Fatalf("expected no average before %d frames, got %f", AVG_COUNT, m.FrameTime())
	}
	m.Update(0.016)
	if math.Abs(m.FrameTime()-16) > 1e-9 {
		t.Fatalf("expected 16ms average, got %f", m.FrameTime())
	}

	m = NewFrameMetrics()
	for i := 0; i < 10; i++ {
		m.Update(0.1)
	}
	if m.FPS() != 10 {
		t.Fatalf("expected 10 fps after one second of 100ms frames, got %f", m.FPS())
	}
}

func TestEventQueue_DrainInOrder(t *testing.T) {
	eq := NewEventQueue(4)
	if got := eq.Drain(); got != nil {
		t.Fatalf("expected nil from empty queue, got %v", got)
	}
	eq.Push(Event{Code: EVENT_CODE_MINIMIZED})
	eq.Push(Event{Code: EVENT_CODE_RESTORED})
	eq.Push(Event{Code: EVENT_CODE_APPLICATION_QUIT})

	got := eq.Drain()
	want := []SystemEventCode{EVENT_CODE_MINIMIZED, EVENT_CODE_RESTORED, EVENT_CODE_APPLICATION_QUIT}
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].Code != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], got[i].Code)
		}
	}
	if again := eq.Drain(); again != nil {
		t.Fatalf("expected drained queue, got %v", again)
	}
}

func TestEventQueue_OverflowDropsOldest(t *testing.T) {
	eq := NewEventQueue(2)
	eq.Push(Event{Code: EVENT_CODE_RESIZED, Width: 1})
	eq.Push(Event{Code: EVENT_CODE_RESIZED, Width: 2})
	eq.Push(Event{Code: EVENT_CODE_RESIZED, Width: 3})

	got := eq.Drain()
	if len(got) != 2 || got[0].Width != 2 || got[1].Width != 3 {
		t.Fatalf("expected widths [2 3], got %+v", got)
	}
}

func TestSetLogLevel(t *testing.T) {
	if err := SetLogLevel("info"); err != nil {
		t.Fatalf("expected info to parse, got %v", err)
	}
	if err := SetLogLevel("chatty"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
	_ = SetLogLevel("debug")
}
