package engine

import (
	"sync"
)

// EventKind tags a SyncEvent.
type EventKind string

const (
	// EventUpdateAvailable fires when a remote update was applied.
	EventUpdateAvailable EventKind = "update-available"

	// EventUpdateSkipped fires when a remote update was deliberately not
	// applied; Detail carries the reason (e.g. "downgrade-rejected").
	EventUpdateSkipped EventKind = "update-skipped"

	// EventError fires when a sync cycle failed.
	EventError EventKind = "error"
)

// Event is one notification on a scope's event bus. Events have no
// persistent storage and are delivered at most once per emission to each
// subscriber.
type Event struct {
	Scope  string
	Kind   EventKind
	Detail string
}

// Bus fans events out to per-scope subscribers. Slow subscribers drop
// events rather than stalling the publisher.
type Bus struct {
	mu   sync.Mutex
	subs map[string][]chan Event
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: map[string][]chan Event{}}
}

// Subscribe returns a channel receiving events for the given scope.
func (b *Bus) Subscribe(scope string) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 16)
	b.subs[scope] = append(b.subs[scope], ch)
	return ch
}

// Publish delivers event to every subscriber of its scope without blocking.
func (b *Bus) Publish(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs[event.Scope] {
		select {
		case ch <- event:
		default:
		}
	}
}
