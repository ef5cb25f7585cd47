package client

import (
	"sync"
	"time"

	"retro-paint/internal/domain"
	"retro-paint/internal/dto"
)

// State is the connection state of a Manager.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// EventKind tags an Event.
type EventKind string

const (
	EventState     EventKind = "state"
	EventDrawing   EventKind = "drawing"
	EventChat      EventKind = "chat"
	EventPresence  EventKind = "presence"
	EventUserList  EventKind = "userList"
	EventUserCount EventKind = "userCount"
	EventCanvas    EventKind = "canvas"
	EventError     EventKind = "error"
)

// Event is published to subscribers. State events carry State, Err, and for
// Reconnecting the scheduled Attempt and Delay; message events carry the
// decoded Message; canvas events carry the reconciled Canvas.
type Event struct {
	Kind    EventKind
	State   State
	Err     error
	Attempt int
	Delay   time.Duration
	Message dto.Message
	Canvas  *domain.CanvasSnapshot
	Adopted bool
}

// bus fans events out to any number of subscribers. A subscriber whose
// buffer is full misses the event.
type bus struct {
	mu   sync.Mutex
	next int
	subs map[int]chan Event
}

func newBus() *bus {
	return &bus{subs: make(map[int]chan Event)}
}

func (b *bus) subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *bus) publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
