// Package fixtures provides reusable test doubles: test events, stored-event
// builders, iterator helpers and spies for the hub and the stores.
package fixtures

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	es "github.com/kokimiza/ledgerstream"
)

// TestEvent is a configurable test event implementing the Event interface.
type TestEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data string `json:"data"`
}

func (e TestEvent) AggregateID() string { return e.ID }
func (e TestEvent) EventType() string   { return e.Type }

// TestEventBuilder provides a fluent API for constructing test events.
type TestEventBuilder struct {
	id   string
	typ  string
	data string
}

// NewTestEvent creates a new TestEventBuilder with sensible defaults.
func NewTestEvent() *TestEventBuilder {
	return &TestEventBuilder{
		id:  "aggregate-1",
		typ: "TestEvent",
	}
}

// WithID sets the aggregate ID.
func (b *TestEventBuilder) WithID(id string) *TestEventBuilder {
	b.id = id
	return b
}

// WithType sets the event type.
func (b *TestEventBuilder) WithType(typ string) *TestEventBuilder {
	b.typ = typ
	return b
}

// WithData sets custom data on the event.
func (b *TestEventBuilder) WithData(data string) *TestEventBuilder {
	b.data = data
	return b
}

// Build constructs the TestEvent.
func (b *TestEventBuilder) Build() TestEvent {
	return TestEvent{
		ID:   b.id,
		Type: b.typ,
		Data: b.data,
	}
}

// BuildN creates n events with sequential data.
func (b *TestEventBuilder) BuildN(n int) []es.Event {
	events := make([]es.Event, n)
	for i := 0; i < n; i++ {
		events[i] = TestEvent{
			ID:   b.id,
			Type: b.typ,
			Data: fmt.Sprintf("%s-%d", b.data, i+1),
		}
	}
	return events
}

// StoredEventOption is a functional option for configuring a StoredEvent.
type StoredEventOption func(*es.StoredEvent)

// NewStoredEvent creates a StoredEvent carrying the given event's JSON payload.
func NewStoredEvent(event es.Event, opts ...StoredEventOption) *es.StoredEvent {
	payload, _ := json.Marshal(event)
	stored := &es.StoredEvent{
		EventID:        uuid.New(),
		GlobalSequence: 1,
		EventType:      event.EventType(),
		AggregateID:    event.AggregateID(),
		Version:        1,
		Timestamp:      time.Now().UTC(),
		Payload:        payload,
	}
	for _, opt := range opts {
		opt(stored)
	}
	return stored
}

// WithSequence sets the global sequence.
func WithSequence(seq uint64) StoredEventOption {
	return func(e *es.StoredEvent) {
		e.GlobalSequence = seq
	}
}

// WithVersion sets the aggregate version.
func WithVersion(v uint64) StoredEventOption {
	return func(e *es.StoredEvent) {
		e.Version = v
	}
}

// WithEventID sets a specific event ID.
func WithEventID(id uuid.UUID) StoredEventOption {
	return func(e *es.StoredEvent) {
		e.EventID = id
	}
}

// WithTimestamp sets the append timestamp.
func WithTimestamp(t time.Time) StoredEventOption {
	return func(e *es.StoredEvent) {
		e.Timestamp = t
	}
}

// WithPayload overrides the serialized payload.
func WithPayload(payload []byte) StoredEventOption {
	return func(e *es.StoredEvent) {
		e.Payload = payload
	}
}

// StoredEventsFromEvents converts events into stored records with sequential
// sequences and versions starting at 1.
func StoredEventsFromEvents(events ...es.Event) []*es.StoredEvent {
	out := make([]*es.StoredEvent, len(events))
	for i, event := range events {
		out[i] = NewStoredEvent(event,
			WithSequence(uint64(i+1)),
			WithVersion(uint64(i+1)),
		)
	}
	return out
}
