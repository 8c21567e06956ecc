package ledgerstream

import (
	"fmt"
	"sync"
)

var (
	// registry maps event names to their factory functions.
	// Each factory must return a new pointer instance of a concrete Event
	// type, so stored payloads can be unmarshalled into it.
	registry = map[string]func() Event{}

	// mu protects access to the registry for concurrent operations.
	mu sync.RWMutex
)

// RegisterEventByType registers a new Event type using its default type name.
//
// It provides a reusable pattern for dynamically creating new event instances
// by string name. Registration performs the following steps:
//  1. Calls the provided factory function to obtain an instance of the event.
//  2. Retrieves the type name using EventType().
//  3. Registers the factory in the registry keyed by the type name.
//
// Panics:
//   - If the factory function is nil.
//   - If the factory returns nil.
//   - If an event with the same type name is already registered.
//
// Example Usage:
//
//	RegisterEventByType(func() Event { return &DraftCreated{} })
func RegisterEventByType(fn func() Event) {
	registerEventName(fn().EventType(), fn)
}

// RegisterEventByName registers a new Event type under a custom name.
//
// This is similar to RegisterEventByType, but allows using a name that is
// independent of EventType(). The provided factory function must return a new
// instance of the event type each time it is called.
func RegisterEventByName(name string, fn func() Event) {
	registerEventName(name, fn)
}

// NewEventByName creates a new instance of a registered Event by its name.
//
// Returns ErrEventNotRegistered if the name has no factory, or an error if
// the factory returned nil.
func NewEventByName(name string) (Event, error) {
	mu.RLock()
	factory, ok := registry[name]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEventNotRegistered, name)
	}
	ev := factory()
	if ev == nil {
		return nil, fmt.Errorf("factory returned nil for event: %s", name)
	}
	return ev, nil
}

// EventRegistered reports whether an event name has a registered factory.
// The projection builder uses it to recognize event types it can decode.
func EventRegistered(name string) bool {
	mu.RLock()
	defer mu.RUnlock()
	_, ok := registry[name]
	return ok
}

func registerEventName(name string, fn func() Event) {
	if fn == nil {
		panic("cannot register nil factory")
	}

	mu.Lock()
	defer mu.Unlock()

	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("event already registered: %s", name))
	}

	ev := fn()
	if ev == nil {
		panic(fmt.Sprintf("factory returned nil for event: %s", name))
	}

	registry[name] = fn
}
