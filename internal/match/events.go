package match

import (
	"fmt"
	"sync"
	"time"

	"tableside/internal/logging"
)

// EventKind tags a notification.
type EventKind string

const (
	EventGameStarted        EventKind = "gameStarted"
	EventMoveMade           EventKind = "moveMade"
	EventGameEnded          EventKind = "gameEnded"
	EventPlayerJoined       EventKind = "playerJoined"
	EventPlayerLeft         EventKind = "playerLeft"
	EventPlayerReadyChanged EventKind = "playerReadyChanged"
)

// Event is delivered synchronously to subscribers after a successful mutation.
// State is a deep copy shared by all handlers of one emission.
type Event[D, M any] struct {
	Kind   EventKind
	GameID string
	At     time.Time
	Player *Player
	Move   *Move[M]
	Result *Result
	State  *State[D, M]
}

// Handler reacts to an event. A returned error is logged and dropped.
type Handler[D, M any] func(Event[D, M]) error

type subscription[D, M any] struct {
	id   uint64
	kind EventKind // empty means every kind
	fn   Handler[D, M]
}

// Bus dispatches events in registration order on the emitting goroutine.
type Bus[D, M any] struct {
	mu   sync.Mutex
	next uint64
	subs []subscription[D, M]
}

// On registers fn for one kind and returns a function that removes it.
func (b *Bus[D, M]) On(kind EventKind, fn Handler[D, M]) func() {
	return b.add(kind, fn)
}

// OnAny registers fn for every kind.
func (b *Bus[D, M]) OnAny(fn Handler[D, M]) func() {
	return b.add("", fn)
}

func (b *Bus[D, M]) add(kind EventKind, fn Handler[D, M]) func() {
	b.mu.Lock()
	b.next++
	id := b.next
	b.subs = append(b.subs, subscription[D, M]{id: id, kind: kind, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus[D, M]) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Count returns how many handlers would receive kind.
func (b *Bus[D, M]) Count(kind EventKind) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, s := range b.subs {
		if s.kind == "" || s.kind == kind {
			n++
		}
	}
	return n
}

// Emit delivers ev to every matching handler and reports how many ran.
// Handler errors and panics are logged; they never reach the emitter.
func (b *Bus[D, M]) Emit(ev Event[D, M]) int {
	b.mu.Lock()
	targets := make([]subscription[D, M], 0, len(b.subs))
	for _, s := range b.subs {
		if s.kind == "" || s.kind == ev.Kind {
			targets = append(targets, s)
		}
	}
	b.mu.Unlock()

	for _, s := range targets {
		if err := call(s.fn, ev); err != nil {
			logging.Errorf("match %s: %s handler: %v", ev.GameID, ev.Kind, err)
		}
	}
	return len(targets)
}

func call[D, M any](fn Handler[D, M], ev Event[D, M]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ev)
}
