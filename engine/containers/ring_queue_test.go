package containers

import (
	"errors"
	"testing"
)

func TestRingQueue_FIFOAcrossWrap(t *testing.T) {
	rq := NewRingQueue[int](3)
	for i := 1; i <= 3; i++ {
		if err := rq.Enqueue(i); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	if err := rq.Enqueue(4); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}

	v, err := rq.Dequeue()
	if err != nil || v != 1 {
		t.Fatalf("expected 1, got %d (%v)", v, err)
	}
	if err := rq.Enqueue(4); err != nil {
		t.Fatalf("enqueue after dequeue: %v", err)
	}

	for _, want := range []int{2, 3, 4} {
		got, err := rq.Dequeue()
		if err != nil {
			t.Fatalf("dequeue: %v", err)
		}
		if got != want {
			t.Fatalf("expected %d, got %d", want, got)
		}
	}
	if !rq.IsEmpty() {
		t.Fatalf("expected empty queue, got len %d", rq.Len())
	}
}

func TestRingQueue_EmptyErrors(t *testing.T) {
	rq := NewRingQueue[string](1)
	if _, err := rq.Dequeue(); !errors.Is(err, ErrQueueEmpty) {
		t.Fatalf("expected ErrQueueEmpty from Dequeue, got %v", err)
	}
	if _, err := rq.Peek(); !errors.Is(err, ErrQueueEmpty) {
		t.Fatalf("expected ErrQueueEmpty from Peek, got %v", err)
	}
	_ = rq.Enqueue("a")
	if v, _ := rq.Peek(); v != "a" {
		t.Fatalf("expected peek a, got %q", v)
	}
	if rq.Len() != 1 {
		t.Fatalf("peek must not consume, len %d", rq.Len())
	}
}
