package ledgerstream

import "context"

// ProjectionEntry is one key/value pair written by a projection update.
type ProjectionEntry struct {
	Key   string
	Value []byte
}

// ProjectionStore is a durable key/value store holding materialized read-model
// bytes under namespaced string keys, plus one checkpoint per named projection
// version.
//
// The store has no independent write path: the projection builder is its only
// writer. Checkpoints are monotonically non-decreasing; the checkpoint for
// (name, version) reflects the sequence through which every associated key has
// had all events applied exactly once.
type ProjectionStore interface {
	// Get returns the current bytes stored under key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Update writes a single key without touching any checkpoint. The
	// sequence is recorded alongside the value for operator visibility.
	Update(ctx context.Context, key string, value []byte, sequence uint64) error

	// UpdateBatch atomically writes all entries and advances the checkpoint
	// for (name, version) to sequence in the same transaction. An empty entry
	// list advances the checkpoint alone.
	UpdateBatch(ctx context.Context, name string, version uint32, entries []ProjectionEntry, sequence uint64) error

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Position returns the checkpoint for (name, version), or 0 if the
	// projection has never been written.
	Position(ctx context.Context, name string, version uint32) (uint64, error)

	// Close releases resources held by the store.
	Close() error
}

// ProjectionProcessor is the surface of the projection builder consumed by
// operators and decorators: incremental processing, full rebuild, and retry
// queue maintenance.
type ProjectionProcessor interface {
	// ProcessEvent applies one committed event to all projections. Returns
	// ErrRebuildInProgress while a rebuild holds the builder.
	ProcessEvent(ctx context.Context, event *StoredEvent) error

	// RebuildAll replays the whole log through the updaters and writes the
	// final checkpoints. Exclusive with incremental processing.
	RebuildAll(ctx context.Context) error

	// ProcessRetryQueue reattempts every queued failed update once.
	ProcessRetryQueue(ctx context.Context) error

	// RetryQueueSize reports how many failed updates await a retry.
	RetryQueueSize() int
}
