package otel

import (
	"context"
	"errors"
	"io"
	"time"

	es "github.com/kokimiza/ledgerstream"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var _ es.EventLog = (*TelemetryLog)(nil)

// TelemetryLog wraps an EventLog with OpenTelemetry tracing and metrics.
// Append operations get a span per call; streaming operations get a span
// covering the whole iteration, closed when the iterator is exhausted.
type TelemetryLog struct {
	next es.EventLog
	cfg  *config
}

// WithEventLogTelemetry wraps an EventLog with OpenTelemetry tracing and metrics.
func WithEventLogTelemetry(next es.EventLog, options ...Option) *TelemetryLog {
	cfg := &config{}
	for _, o := range options {
		o.apply(cfg)
	}
	return &TelemetryLog{next: next, cfg: cfg}
}

func (t *TelemetryLog) AppendBatch(ctx context.Context, aggregateID string, events []es.Event) (uint64, error) {
	ctx, span := tracer.Start(ctx, "EventLog.AppendBatch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			AttrOperation.String("append_batch"),
			AttrAggregateID.String(aggregateID),
			AttrEventCount.Int(len(events)),
		),
	)
	span.SetAttributes(t.cfg.Attributes...)
	if t.cfg.GetAttributes != nil {
		span.SetAttributes(t.cfg.GetAttributes(ctx)...)
	}
	defer span.End()

	start := time.Now()
	seq, err := t.next.AppendBatch(ctx, aggregateID, events)

	EventLogDuration.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(AttrOperation.String("append_batch")),
	)

	if err != nil {
		EventLogErrors.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return seq, err
	}

	EventsAppended.Add(ctx, int64(len(events)), metric.WithAttributes(AttrAggregateID.String(aggregateID)))
	span.SetAttributes(AttrSequence.Int64(int64(seq)))
	return seq, nil
}

func (t *TelemetryLog) AppendEvent(ctx context.Context, eventType, aggregateID string, version uint64, expected es.ExpectedVersion, payload []byte) (uint64, error) {
	ctx, span := tracer.Start(ctx, "EventLog.AppendEvent",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			AttrOperation.String("append_event"),
			AttrAggregateID.String(aggregateID),
			AttrEventType.String(eventType),
			AttrVersion.Int64(int64(version)),
		),
	)
	defer span.End()

	start := time.Now()
	seq, err := t.next.AppendEvent(ctx, eventType, aggregateID, version, expected, payload)

	EventLogDuration.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(AttrOperation.String("append_event")),
	)

	if err != nil {
		var conflict *es.ConcurrencyConflictError
		if errors.As(err, &conflict) {
			ConcurrencyConflicts.Add(ctx, 1, metric.WithAttributes(AttrAggregateID.String(aggregateID)))
		} else {
			EventLogErrors.Add(ctx, 1)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return seq, err
	}

	EventsAppended.Add(ctx, 1, metric.WithAttributes(AttrAggregateID.String(aggregateID)))
	span.SetAttributes(AttrSequence.Int64(int64(seq)))
	return seq, nil
}

// StreamEvents with inline tracing middleware
func (t *TelemetryLog) StreamEvents(ctx context.Context, from uint64) (*es.Iterator[*es.StoredEvent], error) {
	iter, err := t.next.StreamEvents(ctx, from)
	if err != nil {
		EventLogErrors.Add(ctx, 1)
		return iter, err
	}
	return t.instrumentIterator(iter, "EventLog.StreamEvents", ""), nil
}

// StreamAggregateEvents with inline tracing middleware
func (t *TelemetryLog) StreamAggregateEvents(ctx context.Context, aggregateID string, from uint64) (*es.Iterator[*es.StoredEvent], error) {
	iter, err := t.next.StreamAggregateEvents(ctx, aggregateID, from)
	if err != nil {
		EventLogErrors.Add(ctx, 1)
		return iter, err
	}
	return t.instrumentIterator(iter, "EventLog.StreamAggregateEvents", aggregateID), nil
}

func (t *TelemetryLog) Events(ctx context.Context, aggregateID string) ([]*es.StoredEvent, error) {
	iter, err := t.StreamAggregateEvents(ctx, aggregateID, 0)
	if err != nil {
		return nil, err
	}
	return iter.All(ctx)
}

func (t *TelemetryLog) AllEvents(ctx context.Context, from uint64) ([]*es.StoredEvent, error) {
	iter, err := t.StreamEvents(ctx, from)
	if err != nil {
		return nil, err
	}
	return iter.All(ctx)
}

// LatestSequence just forwards
func (t *TelemetryLog) LatestSequence(ctx context.Context) (uint64, error) {
	return t.next.LatestSequence(ctx)
}

// StorageMetrics just forwards
func (t *TelemetryLog) StorageMetrics(ctx context.Context) (es.StorageMetrics, error) {
	return t.next.StorageMetrics(ctx)
}

// Close just forwards
func (t *TelemetryLog) Close() error {
	return t.next.Close()
}

// instrumentIterator wraps a stream in a span started lazily on the first
// pull and ended when the stream is exhausted or fails.
func (t *TelemetryLog) instrumentIterator(iter *es.Iterator[*es.StoredEvent], operation, aggregateID string) *es.Iterator[*es.StoredEvent] {
	started := false
	var startedAt time.Time
	var span trace.Span
	var eventCount int64

	return es.NewIteratorFunc(func(ctx context.Context) (*es.StoredEvent, error) {
		if !started {
			started = true
			startedAt = time.Now()
			attrs := []trace.SpanStartOption{trace.WithSpanKind(trace.SpanKindClient)}
			if aggregateID != "" {
				attrs = append(attrs, trace.WithAttributes(AttrAggregateID.String(aggregateID)))
			}
			ctx, span = tracer.Start(ctx, operation, attrs...)
		}

		if !iter.Next(ctx) {
			span.SetAttributes(AttrEventCount.Int64(eventCount))

			err := iter.Err()
			if err == nil {
				EventLogDuration.Record(ctx, float64(time.Since(startedAt).Milliseconds()))
				span.End()
				return nil, io.EOF
			}

			EventLogErrors.Add(ctx, 1)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
			return nil, err
		}

		eventCount++
		EventsLoaded.Add(ctx, 1)
		return iter.Value(), nil
	})
}
