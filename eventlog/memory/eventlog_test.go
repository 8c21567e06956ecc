package memory

import (
	"context"
	"errors"
	"testing"

	es "github.com/kokimiza/ledgerstream"
)

type memTestEvent struct {
	ID string `json:"id"`
}

func (e *memTestEvent) AggregateID() string { return e.ID }
func (e *memTestEvent) EventType() string   { return "memory.test_event" }

func TestAppendBatch_SequencesAndVersions(t *testing.T) {
	log := New(nil)
	ctx := context.Background()

	seq, err := log.AppendBatch(ctx, "agg-1", []es.Event{
		&memTestEvent{ID: "agg-1"},
		&memTestEvent{ID: "agg-1"},
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if seq != 2 {
		t.Fatalf("expected last sequence 2, got %d", seq)
	}

	events, err := log.Events(ctx, "agg-1")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 2 || events[0].Version != 1 || events[1].Version != 2 {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestAppendBatch_EmptyRejected(t *testing.T) {
	log := New(nil)

	_, err := log.AppendBatch(context.Background(), "agg-1", nil)
	if !errors.Is(err, es.ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}
}

func TestAppendEvent_Conflict(t *testing.T) {
	log := New(nil)
	ctx := context.Background()

	if _, err := log.AppendEvent(ctx, "memory.test_event", "agg-1", 1, es.Exact(0), []byte(`{}`)); err != nil {
		t.Fatalf("first append: %v", err)
	}

	_, err := log.AppendEvent(ctx, "memory.test_event", "agg-1", 1, es.Exact(0), []byte(`{}`))
	var conflict *es.ConcurrencyConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if conflict.Actual != 1 {
		t.Fatalf("expected actual 1, got %d", conflict.Actual)
	}
}

func TestStreamAggregateEvents_Filters(t *testing.T) {
	log := New(nil)
	ctx := context.Background()

	log.AppendBatch(ctx, "agg-1", []es.Event{&memTestEvent{ID: "agg-1"}})
	log.AppendBatch(ctx, "agg-2", []es.Event{&memTestEvent{ID: "agg-2"}})
	log.AppendBatch(ctx, "agg-1", []es.Event{&memTestEvent{ID: "agg-1"}})

	iter, err := log.StreamAggregateEvents(ctx, "agg-1", 0)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	events, err := iter.All(ctx)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
}

func TestLatestSequence(t *testing.T) {
	log := New(nil)
	ctx := context.Background()

	if latest, _ := log.LatestSequence(ctx); latest != 0 {
		t.Fatalf("expected 0 on empty log, got %d", latest)
	}

	log.AppendBatch(ctx, "agg-1", []es.Event{&memTestEvent{ID: "agg-1"}})
	if latest, _ := log.LatestSequence(ctx); latest != 1 {
		t.Fatalf("expected 1, got %d", latest)
	}
}
