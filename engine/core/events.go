package core

import (
	"sync"

	"github.com/spaghettifunk/lumen/engine/containers"
)

// System event codes produced by the platform layer.
type SystemEventCode int

const (
	// Shuts the application down on the next frame.
	EVENT_CODE_APPLICATION_QUIT SystemEventCode = 0x01

	// Keyboard key pressed. Key holds the key code.
	EVENT_CODE_KEY_PRESSED SystemEventCode = 0x02

	// Keyboard key released. Key holds the key code.
	EVENT_CODE_KEY_RELEASED SystemEventCode = 0x03

	// Resized/resolution changed from the OS. Width and Height hold the new
	// framebuffer size; 0x0 means the window has been minimized.
	EVENT_CODE_RESIZED SystemEventCode = 0x08

	// Window iconified.
	EVENT_CODE_MINIMIZED SystemEventCode = 0x09

	// Window restored from iconified state.
	EVENT_CODE_RESTORED SystemEventCode = 0x0A
)

func (c SystemEventCode) String() string {
	switch c {
	case EVENT_CODE_APPLICATION_QUIT:
		return "quit"
	case EVENT_CODE_KEY_PRESSED:
		return "key_pressed"
	case EVENT_CODE_KEY_RELEASED:
		return "key_released"
	case EVENT_CODE_RESIZED:
		return "resized"
	case EVENT_CODE_MINIMIZED:
		return "minimized"
	case EVENT_CODE_RESTORED:
		return "restored"
	default:
		return "unknown"
	}
}

// Key code definitions. Only the keys the host reacts to are listed.
type KeyCode uint16

const (
	KEY_ESCAPE KeyCode = 0x1B
	KEY_SPACE  KeyCode = 0x20
)

type Event struct {
	Code   SystemEventCode
	Key    KeyCode
	Width  uint32
	Height uint32
}

// EventQueue buffers events between the window callbacks and the frame loop,
// which drains it once per iteration.
type EventQueue struct {
	mu    sync.Mutex
	queue *containers.RingQueue[Event]
}

const DEFAULT_EVENT_QUEUE_SIZE = 256

func NewEventQueue(size int) *EventQueue {
	if size <= 0 {
		size = DEFAULT_EVENT_QUEUE_SIZE
	}
	return &EventQueue{
		queue: containers.NewRingQueue[Event](size),
	}
}

// Push appends an event. When the queue is full the oldest event is dropped so
// the most recent window state always survives.
func (eq *EventQueue) Push(e Event) {
	eq.mu.Lock()
	defer eq.mu.Unlock()

	if eq.queue.IsFull() {
		dropped, _ := eq.queue.Dequeue()
		LogWarn("event queue full, dropping `%s` event", dropped.Code)
	}
	_ = eq.queue.Enqueue(e)
}

// Drain removes and returns every pending event in arrival order. It never blocks.
func (eq *EventQueue) Drain() []Event {
	eq.mu.Lock()
	defer eq.mu.Unlock()

	if eq.queue.IsEmpty() {
		return nil
	}
	events := make([]Event, 0, eq.queue.Len())
	for !eq.queue.IsEmpty() {
		e, _ := eq.queue.Dequeue()
		events = append(events, e)
	}
	return events
}
