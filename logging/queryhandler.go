package logging

import (
	"context"
	"log/slog"
	"reflect"

	"github.com/io-da/query"
	"github.com/kokimiza/ledgerstream"
)

type queryHandlerLogger[T query.Query, R any] struct {
	logger *slog.Logger
	next   ledgerstream.QueryHandler[T, R]
}

func (q *queryHandlerLogger[T, R]) HandleQuery(ctx context.Context, qry T) (R, error) {
	qryType := reflect.TypeOf(qry).String()
	q.logger.DebugContext(ctx, "handling query", "query", qryType)

	result, err := q.next.HandleQuery(ctx, qry)
	if err != nil {
		q.logger.ErrorContext(ctx, "query failed", "query", qryType, "error", err)
	}

	return result, err
}

// WithQueryLogging wraps a QueryHandler with logging functionality.
// It logs the query type before execution, and logs errors if the query fails.
func WithQueryLogging[T query.Query, R any](logger *slog.Logger, next ledgerstream.QueryHandler[T, R]) ledgerstream.QueryHandler[T, R] {
	return &queryHandlerLogger[T, R]{
		logger: logger,
		next:   next,
	}
}
