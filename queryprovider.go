package ledgerstream

import (
	"context"
	"fmt"

	"github.com/io-da/query"
)

// GenericQueryHandler is a type-erased handler used by the query providers
// below, which bridge read models onto an io-da query bus.
type GenericQueryHandler[T query.Query, R ReadModel] interface {
	HandleQuery(ctx context.Context, qry T) (R, error)
}

// QueryProvider dispatches io-da queries to handlers registered by query
// type name, producing scalar results.
type QueryProvider interface {
	query.Handler
	RegisterHandler(name string, handler GenericQueryHandler[query.Query, ReadModel])
}

// QueryIteratorProvider is the iterator-result variant of QueryProvider.
type QueryIteratorProvider interface {
	query.IteratorHandler
	RegisterHandler(name string, handler GenericQueryHandler[query.Query, ReadModel])
}

type handler struct {
	handlers map[string]GenericQueryHandler[query.Query, ReadModel]
}

// NewQueryHandler creates a QueryProvider with no registered handlers.
func NewQueryHandler() QueryProvider {
	return &handler{
		handlers: make(map[string]GenericQueryHandler[query.Query, ReadModel]),
	}
}

func (t *handler) RegisterHandler(name string, h GenericQueryHandler[query.Query, ReadModel]) {
	if _, ok := t.handlers[name]; ok {
		panic("duplicate query handler " + name)
	}
	t.handlers[name] = h
}

func (t *handler) Handle(ctx context.Context, qry query.Query, res *query.Result) error {
	provider, exists := t.handlers[TypeName(qry)]
	if !exists {
		return fmt.Errorf("unknown query type: %s", TypeName(qry))
	}

	result, err := provider.HandleQuery(ctx, qry)
	if err != nil {
		return err
	}

	res.Add(result)
	res.Done()

	return nil
}

type iteratorHandler struct {
	handlers map[string]GenericQueryHandler[query.Query, ReadModel]
}

// NewQueryIteratorHandler creates a QueryIteratorProvider with no registered handlers.
func NewQueryIteratorHandler() QueryIteratorProvider {
	return &iteratorHandler{
		handlers: make(map[string]GenericQueryHandler[query.Query, ReadModel]),
	}
}

func (t *iteratorHandler) RegisterHandler(name string, h GenericQueryHandler[query.Query, ReadModel]) {
	if _, ok := t.handlers[name]; ok {
		panic("duplicate query handler " + name)
	}
	t.handlers[name] = h
}

func (t *iteratorHandler) Handle(ctx context.Context, qry query.Query, res *query.IteratorResult) error {
	provider, exists := t.handlers[TypeName(qry)]
	if !exists {
		return fmt.Errorf("unknown query type: %s", TypeName(qry))
	}

	result, err := provider.HandleQuery(ctx, qry)
	if err != nil {
		return err
	}

	res.Yield(result)
	res.Done()

	return nil
}
