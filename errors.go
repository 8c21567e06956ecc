package ledgerstream

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyBatch is returned when an append is attempted with no events.
	// The batch is rejected before any I/O happens.
	ErrEmptyBatch = errors.New("event batch is empty")

	// ErrMixedAggregates is returned when a batch contains events belonging
	// to different aggregates.
	ErrMixedAggregates = errors.New("event batch spans multiple aggregates")

	// ErrEventNotRegistered is returned when decoding an event whose type
	// has no registered factory.
	ErrEventNotRegistered = errors.New("event type not registered")

	// ErrInvalidExpectedVersion is returned for an unsupported ExpectedVersion value.
	ErrInvalidExpectedVersion = errors.New("unsupported expected version")

	// ErrKeyNotFound is returned by a ProjectionStore when a key has no value.
	ErrKeyNotFound = errors.New("projection key not found")

	// ErrRebuildInProgress is returned when incremental processing is attempted
	// while a full rebuild holds the projection builder.
	ErrRebuildInProgress = errors.New("projection rebuild in progress")

	// ErrHubClosed is returned when publishing or subscribing on a closed hub.
	ErrHubClosed = errors.New("notification hub is closed")

	// ErrDuplicateHandler is returned when two handlers are registered for the
	// same event or query type.
	ErrDuplicateHandler = errors.New("duplicate handler")

	// ErrHandlerNotFound is returned when no handler is registered for a query type.
	ErrHandlerNotFound = errors.New("handler not found")
)

// ConcurrencyConflictError reports an optimistic-concurrency failure: the
// aggregate's latest version did not match the expected version. The caller
// should reload the aggregate and retry.
type ConcurrencyConflictError struct {
	AggregateID string
	Expected    uint64
	Actual      uint64
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("concurrency conflict on aggregate %q: expected version %d, actual %d",
		e.AggregateID, e.Expected, e.Actual)
}

// SerializationError reports a failure to encode a domain event. It is fatal
// for the affected append: nothing from the batch is persisted.
type SerializationError struct {
	EventType string
	Err       error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialize event %q: %v", e.EventType, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// DeserializationError reports a failure to decode a stored event's payload.
type DeserializationError struct {
	EventType string
	Err       error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("deserialize event %q: %v", e.EventType, e.Err)
}

func (e *DeserializationError) Unwrap() error { return e.Err }

// ErrSkippedEvent is returned when a handler cannot handle the event type.
type ErrSkippedEvent struct {
	Event Event
}

func (e *ErrSkippedEvent) Error() string {
	return fmt.Sprintf("skipped event of type %T", e.Event)
}

// StorageError wraps an error raised by the underlying storage engine.
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: %v", e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// WrapStorageError wraps err in a StorageError, passing nil through.
func WrapStorageError(err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Err: err}
}
