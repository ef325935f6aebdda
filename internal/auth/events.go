package auth

import (
	"log/slog"
	"sync"
	"time"
)

// EventKind identifies an auth-state change.
type EventKind string

const (
	EventSignedIn  EventKind = "signed_in"
	EventSignedOut EventKind = "signed_out"
)

// Event describes one auth-state change.
type Event struct {
	Kind   EventKind
	UserID string
	Email  string
	Method string
	At     time.Time
}

// Events fans auth-state changes out to subscribers.
type Events struct {
	mu   sync.RWMutex
	next int
	subs map[int]func(Event)
}

// NewEvents creates an empty broker.
func NewEvents() *Events {
	return &Events{subs: make(map[int]func(Event))}
}

// Subscribe registers fn and returns a function that removes it.
func (e *Events) Subscribe(fn func(Event)) (unsubscribe func()) {
	e.mu.Lock()
	id := e.next
	e.next++
	e.subs[id] = fn
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.subs, id)
			e.mu.Unlock()
		})
	}
}

// Publish delivers ev to every subscriber in the caller's goroutine.
func (e *Events) Publish(ev Event) {
	e.mu.RLock()
	subs := make([]func(Event), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	e.mu.RUnlock()

	for _, fn := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("auth event subscriber panicked", "kind", ev.Kind, "panic", r)
				}
			}()
			fn(ev)
		}()
	}
}
