package otel

import (
	"context"
	"fmt"
	"time"

	es "github.com/kokimiza/ledgerstream"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var _ es.NotificationHub = (*TelemetryHub)(nil)

// TelemetryHub wraps a NotificationHub with OpenTelemetry tracing and
// metrics. Each subscription is decorated so every delivered event gets a
// consumer span and handler duration/error metrics; Publish is counted but
// not traced, since the interesting work happens on the subscriber side.
type TelemetryHub struct {
	next es.NotificationHub
	cfg  *config
}

// WithHubTelemetry wraps a NotificationHub with OpenTelemetry tracing and metrics.
func WithHubTelemetry(next es.NotificationHub, options ...Option) *TelemetryHub {
	cfg := &config{}
	for _, o := range options {
		o.apply(cfg)
	}
	return &TelemetryHub{next: next, cfg: cfg}
}

// Subscribe registers the subscriber wrapped with telemetry instrumentation.
func (t *TelemetryHub) Subscribe(ctx context.Context, name string, sub es.Subscriber, options ...es.SubscriberOption) error {
	return t.next.Subscribe(ctx, name, es.SubscriberFunc(func(ctx context.Context, event *es.StoredEvent) error {
		attr := []attribute.KeyValue{
			AttrEventType.String(event.EventType),
			AttrEventID.String(event.EventID.String()),
			AttrSequence.Int64(int64(event.GlobalSequence)),
			AttrVersion.Int64(int64(event.Version)),
			AttrAggregateID.String(event.AggregateID),
			AttrSubscriberName.String(name),
		}
		attr = append(attr, t.cfg.Attributes...)
		if t.cfg.GetAttributes != nil {
			attr = append(attr, t.cfg.GetAttributes(ctx)...)
		}

		ctx, span := tracer.Start(ctx, fmt.Sprintf("subscription.receive %s", name),
			trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithAttributes(attr...),
		)
		defer span.End()

		HubHandled.Add(ctx, 1, metric.WithAttributes(AttrEventType.String(event.EventType)))

		start := time.Now()
		err := sub.HandleEvent(ctx, event)
		HubDuration.Record(ctx,
			float64(time.Since(start).Milliseconds()),
			metric.WithAttributes(AttrEventType.String(event.EventType)),
		)

		if err != nil {
			HubErrors.Add(ctx, 1, metric.WithAttributes(AttrEventType.String(event.EventType)))
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
			return err
		}
		span.SetStatus(codes.Ok, "")
		return nil
	}), options...)
}

func (t *TelemetryHub) Publish(ctx context.Context, event *es.StoredEvent) {
	HubPublished.Add(ctx, 1, metric.WithAttributes(AttrEventType.String(event.EventType)))
	t.next.Publish(ctx, event)
}

// Errors returns the error channel from the underlying hub.
func (t *TelemetryHub) Errors() <-chan error {
	return t.next.Errors()
}

// Close closes the underlying hub and waits for all workers to finish.
func (t *TelemetryHub) Close() error {
	return t.next.Close()
}
