package ledgerstream

import (
	"context"
	"fmt"

	"github.com/io-da/query"
)

// GenericQueryGateway provides a typed interface for executing queries
// registered on a QueryBus. It implements QueryHandler[T,R], allowing it to
// be used wherever a QueryHandler is expected.
//
// Lookup of the handler is done at runtime using the query and result types;
// an error is returned if no handler is registered or a type mismatch occurs.
//
// Example Usage:
//
//	bus := NewQueryBus()
//	RegisterQueryHandler[EntryByID, *EntryView](bus, handler)
//
//	gateway := NewQueryGateway[EntryByID, *EntryView](bus)
//	view, err := gateway.HandleQuery(ctx, EntryByID{EntryID: "JE001"})
type GenericQueryGateway[T query.Query, R any] struct {
	bus *QueryBus
}

// NewQueryGateway creates a typed gateway for a specific query type backed by
// a QueryBus.
func NewQueryGateway[T query.Query, R any](bus *QueryBus) GenericQueryGateway[T, R] {
	return GenericQueryGateway[T, R]{bus: bus}
}

// HandleQuery executes the registered handler for a given query.
func (g GenericQueryGateway[T, R]) HandleQuery(ctx context.Context, qry T) (R, error) {
	key := fmt.Sprintf("%T|%T", qry, *new(R))

	h, ok := g.bus.handlers[key]
	if !ok {
		var zero R
		return zero, fmt.Errorf("no handler registered for query %T -> %T: %w", qry, *new(R), ErrHandlerNotFound)
	}

	handler, ok := h.(QueryHandler[T, R])
	if !ok {
		var zero R
		return zero, fmt.Errorf("handler type mismatch for query %T -> %T", qry, *new(R))
	}

	return handler.HandleQuery(ctx, qry)
}
