package ledgerstream

import (
	"context"

	"github.com/io-da/query"
)

// QueryHandler represents a handler for a specific query type T and produces
// a result of type R. This interface allows generic, type-safe registration
// and execution of query logic.
//
// Example Usage:
//
//	type EntryByID struct { ID string }
//	func (q EntryByID) ID() []byte { return []byte(q.ID) }
//
//	handler := NewQueryHandlerFunc(func(ctx context.Context, q EntryByID) (*EntryView, error) {
//	    return &EntryView{}, nil
//	})
//
//	var _ QueryHandler[EntryByID, *EntryView] = handler
type QueryHandler[T query.Query, R any] interface {
	HandleQuery(ctx context.Context, qry T) (R, error)
}

// queryHandlerFunc is a helper type to allow ordinary functions to
// implement QueryHandler[T,R].
type queryHandlerFunc[T query.Query, R any] func(ctx context.Context, qry T) (R, error)

// HandleQuery calls the underlying function.
func (f queryHandlerFunc[T, R]) HandleQuery(ctx context.Context, qry T) (R, error) {
	return f(ctx, qry)
}

// NewQueryHandlerFunc creates a QueryHandler from a function.
func NewQueryHandlerFunc[T query.Query, R any](fn func(ctx context.Context, qry T) (R, error)) QueryHandler[T, R] {
	return queryHandlerFunc[T, R](fn)
}
