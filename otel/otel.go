package otel

import (
	"github.com/kokimiza/ledgerstream"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/kokimiza/ledgerstream"
)

// Semantic attribute keys following OpenTelemetry conventions
const (
	// Aggregate and event attributes
	AttrAggregateID = attribute.Key("ledgerstream.aggregate.id")
	AttrEventType   = attribute.Key("ledgerstream.event.type")
	AttrEventID     = attribute.Key("ledgerstream.event.id")
	AttrEventCount  = attribute.Key("ledgerstream.events.count")
	AttrSequence    = attribute.Key("ledgerstream.event.sequence")
	AttrVersion     = attribute.Key("ledgerstream.aggregate.version")

	// Hub attributes
	AttrSubscriberName = attribute.Key("ledgerstream.subscriber.name")

	// Projection attributes
	AttrProjectionName = attribute.Key("ledgerstream.projection.name")
	AttrRetryCount     = attribute.Key("ledgerstream.retry.count")
	AttrQueueDepth     = attribute.Key("ledgerstream.queue.depth")

	// Query attributes
	AttrQueryType = attribute.Key("ledgerstream.query.type")

	// Operation attributes
	AttrOperation = attribute.Key("ledgerstream.operation")
)

var (
	meter  = otel.Meter(instrumentationName, metric.WithInstrumentationVersion(ledgerstream.InstrumentationVersion))
	tracer = otel.Tracer(instrumentationName, trace.WithInstrumentationVersion(ledgerstream.InstrumentationVersion))

	// Event log metrics
	EventsAppended, _ = meter.Int64Counter(
		"ledgerstream.events.appended",
		metric.WithDescription("Number of events appended to the log"),
		metric.WithUnit("{event}"),
	)

	EventsLoaded, _ = meter.Int64Counter(
		"ledgerstream.events.loaded",
		metric.WithDescription("Number of events loaded from the log"),
		metric.WithUnit("{event}"),
	)

	EventLogDuration, _ = meter.Float64Histogram(
		"ledgerstream.eventlog.duration",
		metric.WithDescription("Event log operation duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000),
	)

	EventLogErrors, _ = meter.Int64Counter(
		"ledgerstream.eventlog.errors",
		metric.WithDescription("Number of event log errors"),
		metric.WithUnit("{error}"),
	)

	ConcurrencyConflicts, _ = meter.Int64Counter(
		"ledgerstream.concurrency.conflicts",
		metric.WithDescription("Number of optimistic concurrency conflicts"),
		metric.WithUnit("{conflict}"),
	)

	// Hub metrics
	HubPublished, _ = meter.Int64Counter(
		"ledgerstream.hub.published",
		metric.WithDescription("Number of events published to the notification hub"),
		metric.WithUnit("{event}"),
	)

	HubHandled, _ = meter.Int64Counter(
		"ledgerstream.hub.handled",
		metric.WithDescription("Number of events handled by subscribers"),
		metric.WithUnit("{event}"),
	)

	HubErrors, _ = meter.Int64Counter(
		"ledgerstream.hub.errors",
		metric.WithDescription("Number of subscriber handler errors"),
		metric.WithUnit("{error}"),
	)

	HubDuration, _ = meter.Float64Histogram(
		"ledgerstream.hub.duration",
		metric.WithDescription("Subscriber handler duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000),
	)

	// Projection metrics
	ProjectionsProcessed, _ = meter.Int64Counter(
		"ledgerstream.projections.processed",
		metric.WithDescription("Number of events processed by the projection builder"),
		metric.WithUnit("{event}"),
	)

	ProjectionRebuilds, _ = meter.Int64Counter(
		"ledgerstream.projections.rebuilds",
		metric.WithDescription("Number of full projection rebuilds"),
		metric.WithUnit("{rebuild}"),
	)

	ProjectionDuration, _ = meter.Float64Histogram(
		"ledgerstream.projections.duration",
		metric.WithDescription("Projection update duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000),
	)

	ProjectionErrors, _ = meter.Int64Counter(
		"ledgerstream.projections.errors",
		metric.WithDescription("Number of projection update errors"),
		metric.WithUnit("{error}"),
	)

	RetryQueueDepth, _ = meter.Int64UpDownCounter(
		"ledgerstream.projections.retry_queue_depth",
		metric.WithDescription("Current depth of the projection retry queue"),
		metric.WithUnit("{event}"),
	)

	// Query metrics
	QueriesHandled, _ = meter.Int64Counter(
		"ledgerstream.queries.handled",
		metric.WithDescription("Total number of queries handled"),
		metric.WithUnit("{query}"),
	)

	QueriesDuration, _ = meter.Float64Histogram(
		"ledgerstream.queries.duration",
		metric.WithDescription("Query handling duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000),
	)

	QueriesFailed, _ = meter.Int64Counter(
		"ledgerstream.queries.failed",
		metric.WithDescription("Number of failed queries"),
		metric.WithUnit("{query}"),
	)
)
