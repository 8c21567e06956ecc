package ledgerstream

import (
	"context"
	"fmt"
	"sort"
)

// EventHandler represents a generic event handler that can handle an Event.
type EventHandler interface {
	// Handle processes the given Event within the provided context.
	Handle(ctx context.Context, event Event) error
}

// NewEventHandlerFunc creates an EventHandler from a plain function.
//
// This is a helper for quickly creating an EventHandler without defining a
// separate struct. There is no type-checking or filtering: the handler
// receives every event it is invoked with. If you need type safety, use
// OnEvent[T] instead.
func NewEventHandlerFunc(fn func(ctx context.Context, event Event) error) EventHandler {
	return eventHandlerFunc(fn)
}

// eventHandlerFunc is a function type that implements EventHandler.
type eventHandlerFunc func(ctx context.Context, event Event) error

func (h eventHandlerFunc) Handle(ctx context.Context, event Event) error {
	return h(ctx, event)
}

// typedEventHandler is a strongly typed event handler for a specific Event type T.
type typedEventHandler[T Event] func(ctx context.Context, ev T) error

// EventName returns the registered name of the event type T.
// It is used internally by EventGroupProcessor for routing.
func (h typedEventHandler[T]) EventName() string {
	var zero T
	return zero.EventType()
}

// Handle processes the event if it matches the type T.
// Returns ErrSkippedEvent if the event is of the wrong type.
func (h typedEventHandler[T]) Handle(ctx context.Context, event Event) error {
	ev, ok := event.(T)
	if !ok {
		return &ErrSkippedEvent{Event: event}
	}
	return h(ctx, ev)
}

// OnEvent creates a strongly-typed EventHandler for a specific event type.
//
// When called via EventGroupProcessor.Handle, the handler only receives
// events of type T; any other type yields ErrSkippedEvent. EventName()
// derives the routing key from T's EventType().
//
// Example Usage:
//
//	handler := OnEvent(func(ctx context.Context, ev *Posted) error {
//	    fmt.Println("entry posted:", ev.AggregateID())
//	    return nil
//	})
//	group := NewEventGroupProcessor(handler)
func OnEvent[T Event](fn func(ctx context.Context, ev T) error) EventHandler {
	return typedEventHandler[T](fn)
}

// EventGroupProcessor is a collection of typed event handlers.
// It routes incoming events to the correct handler based on event type.
type EventGroupProcessor struct {
	handlers map[string]EventHandler // key = EventName()
}

// NewEventGroupProcessor creates a group of typed event handlers.
//
// It accepts a list of typed EventHandler instances (created via OnEvent),
// validates that each implements EventName(), and builds an internal map from
// event name to handler for routing. Panics if two handlers claim the same
// event type.
//
// Events without a matching handler yield ErrSkippedEvent from Handle, which
// callers treat as a forward-compatible no-op.
func NewEventGroupProcessor(handlers ...EventHandler) *EventGroupProcessor {
	m := make(map[string]EventHandler, len(handlers))
	for _, h := range handlers {
		u, ok := h.(interface{ EventName() string })
		if !ok {
			panic(fmt.Errorf("handler %T does not have a function `EventName()`", h))
		}

		name := u.EventName()
		if _, exists := m[name]; exists {
			panic(fmt.Errorf("duplicate handler for event %s: %w", name, ErrDuplicateHandler))
		}
		m[name] = h
	}

	return &EventGroupProcessor{
		handlers: m,
	}
}

// Handle routes the given event to the correct typed handler.
// Returns ErrSkippedEvent if no handler exists for the event type.
func (p *EventGroupProcessor) Handle(ctx context.Context, ev Event) error {
	h, ok := p.handlers[ev.EventType()]
	if !ok {
		return &ErrSkippedEvent{Event: ev}
	}
	return h.Handle(ctx, ev)
}

// StreamFilter returns a sorted list of all event names handled by this group.
// Useful for subscribing to streams or listing registered handlers.
func (p *EventGroupProcessor) StreamFilter() []string {
	out := make([]string, 0, len(p.handlers))
	for name := range p.handlers {
		out = append(out, name)
	}
	sort.Strings(out) // deterministic order
	return out
}
