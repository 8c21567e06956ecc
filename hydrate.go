package ledgerstream

import (
	"context"
)

// HydrateHandler applies one event type to in-memory aggregate state while
// replaying a stream.
type HydrateHandler interface {
	NewEvent() Event
	Apply(ctx context.Context, event Event)
}

type genericHydrateHandler[T Event] struct {
	handleFunc func(ctx context.Context, event T)
}

// NewHydrateHandler creates a HydrateHandler from the provided function,
// with the event type inferred from the function argument.
func NewHydrateHandler[T Event](
	handleFunc func(ctx context.Context, event T),
) HydrateHandler {
	return &genericHydrateHandler[T]{
		handleFunc: handleFunc,
	}
}

func (c genericHydrateHandler[T]) NewEvent() Event {
	tVar := new(T)
	return *tVar
}

func (c genericHydrateHandler[T]) Apply(ctx context.Context, e Event) {
	event, ok := e.(T)
	if !ok {
		return
	}
	c.handleFunc(ctx, event)
}

// Hydrate builds an apply function that routes each replayed event to the
// handler registered for its type. Events with no handler are ignored.
func Hydrate(handlers ...HydrateHandler) func(ctx context.Context, ev Event) {
	eventHandlers := make(map[string]HydrateHandler)

	for _, handler := range handlers {
		eventHandlers[handler.NewEvent().EventType()] = handler
	}

	return func(ctx context.Context, ev Event) {
		if handler, ok := eventHandlers[ev.EventType()]; ok {
			handler.Apply(ctx, ev)
		}
	}
}
