package ledgerstream

import (
	"context"
)

// EventLog defines the contract for the durable append-only event log at the
// heart of an event-sourced system. Events are keyed by a global, strictly
// increasing sequence number; per-aggregate versions provide optimistic
// concurrency control.
//
// Implementations must guarantee:
//   - Sequence numbers start at 1, increase strictly, and are never reused.
//   - Appends are all-or-nothing: a batch either commits completely or leaves
//     the log (including the sequence counter) untouched.
//   - Iteration order from all Stream*/All* methods is ascending sequence order.
//
// The returned Iterator values are lazy; they should be consumed promptly and
// are not safe for concurrent use.
type EventLog interface {
	// AppendBatch serializes every event in the batch, allocates consecutive
	// sequence numbers and aggregate versions, and commits them in a single
	// transaction. It returns the sequence assigned to the last event.
	//
	// Errors:
	//   - ErrEmptyBatch if the batch contains no events.
	//   - ErrMixedAggregates if any event's AggregateID differs from aggregateID.
	//   - *SerializationError if any event fails to encode; nothing is persisted.
	//   - *StorageError on storage engine failure.
	AppendBatch(ctx context.Context, aggregateID string, events []Event) (uint64, error)

	// AppendEvent appends a single pre-serialized event with an explicit
	// optimistic-concurrency check. If expected is Exact(v) and the aggregate's
	// latest known version differs from v, it fails with
	// *ConcurrencyConflictError and performs no write. Any always proceeds.
	//
	// The caller supplies the aggregate version the event will carry; on
	// success it becomes the aggregate's latest known version.
	AppendEvent(ctx context.Context, eventType, aggregateID string, version uint64, expected ExpectedVersion, payload []byte) (uint64, error)

	// StreamEvents returns a lazy, restartable iterator over all stored events
	// with GlobalSequence >= from, in ascending sequence order.
	StreamEvents(ctx context.Context, from uint64) (*Iterator[*StoredEvent], error)

	// StreamAggregateEvents behaves like StreamEvents but yields only events
	// belonging to the given aggregate. Non-matching records are discarded
	// while scanning; there is no secondary index, so cost is proportional to
	// the total number of events.
	StreamAggregateEvents(ctx context.Context, aggregateID string, from uint64) (*Iterator[*StoredEvent], error)

	// Events eagerly loads all events for one aggregate, sorted by sequence.
	Events(ctx context.Context, aggregateID string) ([]*StoredEvent, error)

	// AllEvents eagerly loads every stored event with GlobalSequence >= from,
	// sorted by sequence. Projection rebuilds use it.
	AllEvents(ctx context.Context, from uint64) ([]*StoredEvent, error)

	// LatestSequence returns the sequence of the most recently committed
	// event, or 0 if the log is empty.
	LatestSequence(ctx context.Context) (uint64, error)

	// StorageMetrics reports operational storage figures for the log.
	StorageMetrics(ctx context.Context) (StorageMetrics, error)

	// Close releases resources held by the log. Implementations should make
	// Close idempotent.
	Close() error
}

// StorageMetrics describes the storage footprint of an event log.
type StorageMetrics struct {
	// MapSize is the size of the storage region in bytes.
	MapSize int64
	// UsedSize is the portion of the region currently holding data.
	UsedSize int64
	// UsagePercent is UsedSize relative to MapSize.
	UsagePercent float64
	// PageSize is the storage engine's page size in bytes.
	PageSize int
	// Entries is the number of stored events.
	Entries int
}
