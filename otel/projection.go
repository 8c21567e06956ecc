package otel

import (
	"context"
	"time"

	es "github.com/kokimiza/ledgerstream"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var _ es.ProjectionProcessor = (*TelemetryProcessor)(nil)

// TelemetryProcessor wraps a ProjectionProcessor with OpenTelemetry tracing
// and metrics, covering incremental processing, rebuilds and retry drains.
type TelemetryProcessor struct {
	next es.ProjectionProcessor
	cfg  *config
}

// WithProjectionTelemetry wraps a ProjectionProcessor with OpenTelemetry
// tracing and metrics.
func WithProjectionTelemetry(next es.ProjectionProcessor, options ...Option) *TelemetryProcessor {
	cfg := &config{}
	for _, o := range options {
		o.apply(cfg)
	}
	return &TelemetryProcessor{next: next, cfg: cfg}
}

func (t *TelemetryProcessor) ProcessEvent(ctx context.Context, event *es.StoredEvent) error {
	ctx, span := tracer.Start(ctx, "Projection.ProcessEvent",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			AttrOperation.String("process_event"),
			AttrEventType.String(event.EventType),
			AttrAggregateID.String(event.AggregateID),
			AttrSequence.Int64(int64(event.GlobalSequence)),
		),
	)
	span.SetAttributes(t.cfg.Attributes...)
	defer span.End()

	start := time.Now()
	err := t.next.ProcessEvent(ctx, event)
	ProjectionDuration.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(AttrOperation.String("process_event")),
	)

	if err != nil {
		ProjectionErrors.Add(ctx, 1, metric.WithAttributes(AttrEventType.String(event.EventType)))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	ProjectionsProcessed.Add(ctx, 1, metric.WithAttributes(AttrEventType.String(event.EventType)))
	span.SetStatus(codes.Ok, "")
	return nil
}

func (t *TelemetryProcessor) RebuildAll(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Projection.RebuildAll",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(AttrOperation.String("rebuild_all")),
	)
	defer span.End()

	start := time.Now()
	err := t.next.RebuildAll(ctx)
	ProjectionDuration.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(AttrOperation.String("rebuild_all")),
	)

	if err != nil {
		ProjectionErrors.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	ProjectionRebuilds.Add(ctx, 1)
	span.SetStatus(codes.Ok, "")
	return nil
}

func (t *TelemetryProcessor) ProcessRetryQueue(ctx context.Context) error {
	before := t.next.RetryQueueSize()

	ctx, span := tracer.Start(ctx, "Projection.ProcessRetryQueue",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			AttrOperation.String("process_retry_queue"),
			AttrQueueDepth.Int(before),
		),
	)
	defer span.End()

	err := t.next.ProcessRetryQueue(ctx)
	RetryQueueDepth.Add(ctx, int64(t.next.RetryQueueSize()-before))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// RetryQueueSize just forwards
func (t *TelemetryProcessor) RetryQueueSize() int {
	return t.next.RetryQueueSize()
}
