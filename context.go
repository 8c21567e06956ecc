package ledgerstream

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ctxKey string

// Context keys for stored-event fields.
const (
	aggregateIDKey ctxKey = "aggregateID"
	eventIDKey     ctxKey = "eventID"
	eventTypeKey   ctxKey = "eventType"
	versionKey     ctxKey = "version"
	sequenceKey    ctxKey = "sequence"
	timestampKey   ctxKey = "timestamp"
)

// WithStoredEvent annotates the context with the identifying fields of a
// stored event, so handlers and middleware can report on the event they are
// processing without threading the record through every call.
func WithStoredEvent(ctx context.Context, event *StoredEvent) context.Context {
	ctx = context.WithValue(ctx, aggregateIDKey, event.AggregateID)
	ctx = context.WithValue(ctx, eventIDKey, event.EventID)
	ctx = context.WithValue(ctx, eventTypeKey, event.EventType)
	ctx = context.WithValue(ctx, versionKey, event.Version)
	ctx = context.WithValue(ctx, sequenceKey, event.GlobalSequence)
	ctx = context.WithValue(ctx, timestampKey, event.Timestamp)
	return ctx
}

// AggregateIDFromContext returns the aggregate ID or "" if not present.
func AggregateIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(aggregateIDKey).(string); ok {
		return s
	}
	return ""
}

// EventIDFromContext returns the event ID or uuid.Nil if not present.
func EventIDFromContext(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(eventIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

// EventTypeFromContext returns the event type name or "" if not present.
func EventTypeFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(eventTypeKey).(string); ok {
		return s
	}
	return ""
}

// VersionFromContext returns the aggregate version or 0 if not present.
func VersionFromContext(ctx context.Context) uint64 {
	if v, ok := ctx.Value(versionKey).(uint64); ok {
		return v
	}
	return 0
}

// SequenceFromContext returns the global sequence or 0 if not present.
func SequenceFromContext(ctx context.Context) uint64 {
	if v, ok := ctx.Value(sequenceKey).(uint64); ok {
		return v
	}
	return 0
}

// TimestampFromContext returns the event timestamp or the zero time if not present.
func TimestampFromContext(ctx context.Context) time.Time {
	if t, ok := ctx.Value(timestampKey).(time.Time); ok {
		return t
	}
	return time.Time{}
}
