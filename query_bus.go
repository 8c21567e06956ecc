package ledgerstream

import (
	"fmt"

	"github.com/io-da/query"
)

// QueryBus acts as a central registry for query handlers. It stores handlers
// keyed by their query and result types, allowing multiple query types to be
// registered in a single bus.
//
// Handlers can later be executed via a typed GenericQueryGateway.
//
// Example Usage:
//
//	bus := NewQueryBus()
//	RegisterQueryHandler[EntryByID, *EntryView](bus, NewQueryHandlerFunc(func(ctx context.Context, q EntryByID) (*EntryView, error) {
//	    return &EntryView{}, nil
//	}))
type QueryBus struct {
	handlers map[string]any
}

// NewQueryBus creates a new, empty bus ready for handler registration.
func NewQueryBus() *QueryBus {
	return &QueryBus{
		handlers: make(map[string]any),
	}
}

// HandlerOption represents an optional configuration function that can
// modify handler behavior or metadata. Currently reserved for future
// extensions such as worker pools, timeouts, or rate limiting.
type HandlerOption func(*handlerSettings)

// handlerSettings stores internal configuration for a registered handler.
type handlerSettings struct {
}

// RegisterQueryHandler registers a QueryHandler for a specific query and
// result type on the provided QueryBus.
//
// The key for storage is generated from the types of T and R, so one bus can
// hold handlers for many query types without collision.
func RegisterQueryHandler[T query.Query, R any](bus *QueryBus, handler QueryHandler[T, R], opts ...HandlerOption) {
	key := fmt.Sprintf("%T|%T", *new(T), *new(R))

	meta := &handlerSettings{}
	for _, opt := range opts {
		opt(meta)
	}

	bus.handlers[key] = handler
}
