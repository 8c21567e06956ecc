package ledgerstream

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// Event is a domain event describing a change that has happened to an aggregate.
type Event interface {
	AggregateID() string
	EventType() string
}

// StoredEvent is the durable, immutable record of one committed domain event.
// It is created once at append time and never modified afterwards.
type StoredEvent struct {
	// EventID uniquely identifies the event record.
	EventID uuid.UUID
	// GlobalSequence is the strictly increasing commit position across all
	// aggregates. Sequences start at 1 and are never reused.
	GlobalSequence uint64
	// EventType is the registered name of the payload's event type.
	EventType string
	// AggregateID identifies the aggregate the event belongs to.
	AggregateID string
	// Version is the event's position within its aggregate, starting at 1.
	Version uint64
	// Timestamp is when the event was appended.
	Timestamp time.Time
	// Payload holds the serialized domain event. It is self-describing: the
	// EventType names the registered factory used to decode it.
	Payload []byte
}

// Decode reconstructs the domain event carried in the payload using the
// event registry. The event type must have been registered with a factory
// returning a pointer, so the payload can be unmarshalled in place.
func (e *StoredEvent) Decode() (Event, error) {
	ev, err := NewEventByName(e.EventType)
	if err != nil {
		return nil, &DeserializationError{EventType: e.EventType, Err: err}
	}
	if err := json.Unmarshal(e.Payload, ev); err != nil {
		return nil, &DeserializationError{EventType: e.EventType, Err: err}
	}
	return ev, nil
}

// EncodeEvent serializes a domain event into a payload suitable for storage.
func EncodeEvent(event Event) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, &SerializationError{EventType: event.EventType(), Err: err}
	}
	return data, nil
}

// TypeName returns the bare type name of v, dereferencing pointers.
// Queries and handlers are keyed by it.
func TypeName(v any) string {
	if v == nil {
		return ""
	}
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return fmt.Sprintf("%T", v)
	}
	return t.Name()
}
