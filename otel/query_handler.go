package otel

import (
	"context"
	"fmt"
	"time"

	"github.com/io-da/query"
	es "github.com/kokimiza/ledgerstream"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// WithQueryTelemetry wraps a QueryHandler with OpenTelemetry tracing and
// metrics: one span per query, plus handled/failed counters and a duration
// histogram keyed by the query type.
func WithQueryTelemetry[T query.Query, R any](next es.QueryHandler[T, R]) es.QueryHandler[T, R] {
	var zero T
	queryType := fmt.Sprintf("%T", zero)

	return &telemetryQueryHandler[T, R]{
		next:      next,
		queryType: queryType,
	}
}

type telemetryQueryHandler[T query.Query, R any] struct {
	next      es.QueryHandler[T, R]
	queryType string
}

func (h *telemetryQueryHandler[T, R]) HandleQuery(ctx context.Context, qry T) (R, error) {
	ctx, span := tracer.Start(ctx, fmt.Sprintf("query.handle %s", h.queryType),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(AttrQueryType.String(h.queryType)),
	)
	defer span.End()

	start := time.Now()
	result, err := h.next.HandleQuery(ctx, qry)
	QueriesDuration.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(AttrQueryType.String(h.queryType)))

	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		QueriesFailed.Add(ctx, 1, metric.WithAttributes(AttrQueryType.String(h.queryType)))
		return result, err
	}

	span.SetStatus(codes.Ok, "")
	QueriesHandled.Add(ctx, 1, metric.WithAttributes(AttrQueryType.String(h.queryType)))
	return result, nil
}
