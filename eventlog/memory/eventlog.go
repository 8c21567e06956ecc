// Package memory provides an in-memory EventLog, useful for tests and for
// wiring components together without touching disk. Semantics mirror the
// bbolt backend: sequences start at 1 and are gap-free, versions are
// per-aggregate, and appends are atomic under one mutex.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	es "github.com/kokimiza/ledgerstream"
)

var _ es.EventLog = (*Log)(nil)

// Log is a mutex-guarded in-memory event log.
type Log struct {
	mu       sync.RWMutex
	events   []*es.StoredEvent
	versions map[string]uint64
	hub      es.NotificationHub
	closed   bool
}

// New constructs an empty in-memory log. If hub is non-nil, every appended
// event is published to it after the append completes.
func New(hub es.NotificationHub) *Log {
	return &Log{
		versions: make(map[string]uint64),
		hub:      hub,
	}
}

func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *Log) AppendBatch(ctx context.Context, aggregateID string, events []es.Event) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, es.ErrEmptyBatch
	}
	if strings.TrimSpace(aggregateID) == "" {
		return 0, fmt.Errorf("aggregate id is required")
	}

	payloads := make([][]byte, len(events))
	for i, ev := range events {
		if ev.AggregateID() != aggregateID {
			return 0, fmt.Errorf("event %d has aggregate %q: %w", i, ev.AggregateID(), es.ErrMixedAggregates)
		}
		payload, err := es.EncodeEvent(ev)
		if err != nil {
			return 0, err
		}
		payloads[i] = payload
	}

	l.mu.Lock()
	version := l.versions[aggregateID]
	now := time.Now().UTC()
	stored := make([]*es.StoredEvent, 0, len(events))
	var lastSeq uint64
	for i, ev := range events {
		version++
		record := &es.StoredEvent{
			EventID:        uuid.New(),
			GlobalSequence: uint64(len(l.events)) + 1,
			EventType:      ev.EventType(),
			AggregateID:    aggregateID,
			Version:        version,
			Timestamp:      now,
			Payload:        payloads[i],
		}
		l.events = append(l.events, record)
		stored = append(stored, record)
		lastSeq = record.GlobalSequence
	}
	l.versions[aggregateID] = version
	l.mu.Unlock()

	l.publish(ctx, stored)
	return lastSeq, nil
}

func (l *Log) AppendEvent(ctx context.Context, eventType, aggregateID string, version uint64, expected es.ExpectedVersion, payload []byte) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if strings.TrimSpace(eventType) == "" {
		return 0, fmt.Errorf("event type is required")
	}
	if strings.TrimSpace(aggregateID) == "" {
		return 0, fmt.Errorf("aggregate id is required")
	}

	l.mu.Lock()
	actual := l.versions[aggregateID]
	switch exp := expected.(type) {
	case es.Any:
	case es.Exact:
		if actual != uint64(exp) {
			l.mu.Unlock()
			return 0, &es.ConcurrencyConflictError{
				AggregateID: aggregateID,
				Expected:    uint64(exp),
				Actual:      actual,
			}
		}
	default:
		l.mu.Unlock()
		return 0, fmt.Errorf("%w: %T", es.ErrInvalidExpectedVersion, expected)
	}

	record := &es.StoredEvent{
		EventID:        uuid.New(),
		GlobalSequence: uint64(len(l.events)) + 1,
		EventType:      eventType,
		AggregateID:    aggregateID,
		Version:        version,
		Timestamp:      time.Now().UTC(),
		Payload:        payload,
	}
	l.events = append(l.events, record)
	l.versions[aggregateID] = version
	l.mu.Unlock()

	l.publish(ctx, []*es.StoredEvent{record})
	return record.GlobalSequence, nil
}

func (l *Log) StreamEvents(ctx context.Context, from uint64) (*es.Iterator[*es.StoredEvent], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return es.NewSliceIterator(l.snapshot(from, "")), nil
}

func (l *Log) StreamAggregateEvents(ctx context.Context, aggregateID string, from uint64) (*es.Iterator[*es.StoredEvent], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(aggregateID) == "" {
		return nil, fmt.Errorf("aggregate id is required")
	}
	return es.NewSliceIterator(l.snapshot(from, aggregateID)), nil
}

func (l *Log) Events(ctx context.Context, aggregateID string) ([]*es.StoredEvent, error) {
	iter, err := l.StreamAggregateEvents(ctx, aggregateID, 0)
	if err != nil {
		return nil, err
	}
	return iter.All(ctx)
}

func (l *Log) AllEvents(ctx context.Context, from uint64) ([]*es.StoredEvent, error) {
	iter, err := l.StreamEvents(ctx, from)
	if err != nil {
		return nil, err
	}
	return iter.All(ctx)
}

func (l *Log) LatestSequence(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.events)), nil
}

// StorageMetrics reports entry counts; the size fields are zero because the
// log holds no memory map.
func (l *Log) StorageMetrics(ctx context.Context) (es.StorageMetrics, error) {
	if err := ctx.Err(); err != nil {
		return es.StorageMetrics{}, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return es.StorageMetrics{Entries: len(l.events)}, nil
}

func (l *Log) snapshot(from uint64, aggregateID string) []*es.StoredEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*es.StoredEvent
	for _, record := range l.events {
		if record.GlobalSequence < from {
			continue
		}
		if aggregateID != "" && record.AggregateID != aggregateID {
			continue
		}
		out = append(out, record)
	}
	return out
}

func (l *Log) publish(ctx context.Context, events []*es.StoredEvent) {
	if l.hub == nil {
		return
	}
	for _, event := range events {
		l.hub.Publish(ctx, event)
	}
}
