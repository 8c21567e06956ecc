package bbolt

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	es "github.com/kokimiza/ledgerstream"
)

// ---- Test Stubs ----

type logTestEvent struct {
	ID   string `json:"id"`
	Data string `json:"data"`
}

func (e *logTestEvent) AggregateID() string { return e.ID }
func (e *logTestEvent) EventType() string   { return "log.test_event" }

// badEvent cannot be serialized: json.Marshal fails on channels.
type badEvent struct {
	ID string
	Ch chan int
}

func (e *badEvent) AggregateID() string { return e.ID }
func (e *badEvent) EventType() string   { return "log.bad_event" }

func openTestLog(t *testing.T, hub es.NotificationHub) *Log {
	t.Helper()
	log, err := Open(Options{
		Path:           filepath.Join(t.TempDir(), "events.db"),
		Durability:     MaxPerformance,
		InitialMapSize: 1 << 20,
		OpenTimeout:    time.Second,
	}, hub)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	t.Cleanup(func() { _ = log.Close() })
	return log
}

func mustAppend(t *testing.T, log *Log, aggregateID string, n int) uint64 {
	t.Helper()
	events := make([]es.Event, n)
	for i := range events {
		events[i] = &logTestEvent{ID: aggregateID, Data: fmt.Sprintf("event-%d", i+1)}
	}
	seq, err := log.AppendBatch(context.Background(), aggregateID, events)
	if err != nil {
		t.Fatalf("append batch: %v", err)
	}
	return seq
}

// ---- Tests ----

func TestAppendBatch_SequencesAreGapFreeFromOne(t *testing.T) {
	log := openTestLog(t, nil)
	ctx := context.Background()

	var last uint64
	for i := 0; i < 5; i++ {
		seq, err := log.AppendBatch(ctx, "agg-1", []es.Event{&logTestEvent{ID: "agg-1"}})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if seq != last+1 {
			t.Fatalf("expected sequence %d, got %d", last+1, seq)
		}
		last = seq
	}

	events, err := log.AllEvents(ctx, 0)
	if err != nil {
		t.Fatalf("all events: %v", err)
	}
	for i, event := range events {
		if event.GlobalSequence != uint64(i+1) {
			t.Fatalf("event %d has sequence %d", i, event.GlobalSequence)
		}
	}
}

func TestAppendBatch_ConsecutiveSequencesAndVersions(t *testing.T) {
	log := openTestLog(t, nil)
	ctx := context.Background()

	seq := mustAppend(t, log, "agg-1", 3)
	if seq != 3 {
		t.Fatalf("expected last sequence 3, got %d", seq)
	}

	events, err := log.Events(ctx, "agg-1")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for i, event := range events {
		if event.Version != uint64(i+1) {
			t.Fatalf("event %d has version %d", i, event.Version)
		}
	}
}

func TestAppendBatch_EmptyRejected(t *testing.T) {
	log := openTestLog(t, nil)

	_, err := log.AppendBatch(context.Background(), "agg-1", nil)
	if !errors.Is(err, es.ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}
}

func TestAppendBatch_MixedAggregatesRejected(t *testing.T) {
	log := openTestLog(t, nil)

	_, err := log.AppendBatch(context.Background(), "agg-1", []es.Event{
		&logTestEvent{ID: "agg-1"},
		&logTestEvent{ID: "agg-2"},
	})
	if !errors.Is(err, es.ErrMixedAggregates) {
		t.Fatalf("expected ErrMixedAggregates, got %v", err)
	}
}

func TestAppendBatch_AtomicOnSerializationFailure(t *testing.T) {
	log := openTestLog(t, nil)
	ctx := context.Background()

	mustAppend(t, log, "agg-1", 2)

	_, err := log.AppendBatch(ctx, "agg-1", []es.Event{
		&logTestEvent{ID: "agg-1"},
		&badEvent{ID: "agg-1", Ch: make(chan int)},
	})
	var serr *es.SerializationError
	if !errors.As(err, &serr) {
		t.Fatalf("expected SerializationError, got %v", err)
	}

	latest, err := log.LatestSequence(ctx)
	if err != nil {
		t.Fatalf("latest sequence: %v", err)
	}
	if latest != 2 {
		t.Fatalf("expected counter unchanged at 2, got %d", latest)
	}
	events, err := log.Events(ctx, "agg-1")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected no partial writes, got %d events", len(events))
	}
}

func TestAppendEvent_OptimisticConcurrency(t *testing.T) {
	log := openTestLog(t, nil)
	ctx := context.Background()

	seq, err := log.AppendEvent(ctx, "log.test_event", "agg-1", 1, es.Exact(0), []byte(`{}`))
	if err != nil {
		t.Fatalf("first append: %v", err)
	}
	if seq != 1 {
		t.Fatalf("expected sequence 1, got %d", seq)
	}

	_, err = log.AppendEvent(ctx, "log.test_event", "agg-1", 1, es.Exact(0), []byte(`{}`))
	var conflict *es.ConcurrencyConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConcurrencyConflictError, got %v", err)
	}
	if conflict.Expected != 0 || conflict.Actual != 1 || conflict.AggregateID != "agg-1" {
		t.Fatalf("unexpected conflict fields: %+v", conflict)
	}

	// Any never fails on version grounds.
	if _, err := log.AppendEvent(ctx, "log.test_event", "agg-1", 2, es.Any{}, []byte(`{}`)); err != nil {
		t.Fatalf("Any append: %v", err)
	}
}

func TestAppendEvent_ConcurrentExactZero(t *testing.T) {
	log := openTestLog(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = log.AppendEvent(ctx, "log.test_event", "JE010", 1, es.Exact(0), []byte(`{}`))
		}(i)
	}
	wg.Wait()

	var conflicts, successes int
	for _, err := range results {
		if err == nil {
			successes++
			continue
		}
		var conflict *es.ConcurrencyConflictError
		if !errors.As(err, &conflict) {
			t.Fatalf("unexpected error: %v", err)
		}
		if conflict.Expected != 0 || conflict.Actual != 1 {
			t.Fatalf("unexpected conflict fields: %+v", conflict)
		}
		conflicts++
	}
	if successes != 1 || conflicts != 1 {
		t.Fatalf("expected exactly one success and one conflict, got %d/%d", successes, conflicts)
	}

	events, err := log.Events(ctx, "JE010")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 1 || events[0].Version != 1 {
		t.Fatalf("expected single event at version 1, got %+v", events)
	}
}

func TestAppendEvent_UnsupportedExpectedVersion(t *testing.T) {
	log := openTestLog(t, nil)

	_, err := log.AppendEvent(context.Background(), "log.test_event", "agg-1", 1, nil, []byte(`{}`))
	if !errors.Is(err, es.ErrInvalidExpectedVersion) {
		t.Fatalf("expected ErrInvalidExpectedVersion, got %v", err)
	}
}

func TestAllEvents_ThousandAcrossFiftyAggregates(t *testing.T) {
	log := openTestLog(t, nil)
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		aggregateID := fmt.Sprintf("agg-%02d", i%50)
		if _, err := log.AppendBatch(ctx, aggregateID, []es.Event{&logTestEvent{ID: aggregateID}}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	events, err := log.AllEvents(ctx, 0)
	if err != nil {
		t.Fatalf("all events: %v", err)
	}
	if len(events) != 1000 {
		t.Fatalf("expected 1000 events, got %d", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i].GlobalSequence <= events[i-1].GlobalSequence {
			t.Fatalf("events not sorted at index %d", i)
		}
	}
}

func TestStreamAggregateEvents_FiltersWhileScanning(t *testing.T) {
	log := openTestLog(t, nil)
	ctx := context.Background()

	mustAppend(t, log, "agg-1", 3)
	mustAppend(t, log, "agg-2", 2)
	mustAppend(t, log, "agg-1", 1)

	iter, err := log.StreamAggregateEvents(ctx, "agg-1", 0)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	events, err := iter.All(ctx)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("expected 4 events for agg-1, got %d", len(events))
	}
	for _, event := range events {
		if event.AggregateID != "agg-1" {
			t.Fatalf("leaked event for %q", event.AggregateID)
		}
	}
	if events[3].Version != 4 {
		t.Fatalf("expected version to continue at 4, got %d", events[3].Version)
	}
}

func TestStreamEvents_FromSequence(t *testing.T) {
	log := openTestLog(t, nil)
	ctx := context.Background()

	mustAppend(t, log, "agg-1", 10)

	iter, err := log.StreamEvents(ctx, 7)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	events, err := iter.All(ctx)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("expected events 7..10, got %d", len(events))
	}
	if events[0].GlobalSequence != 7 {
		t.Fatalf("expected first sequence 7, got %d", events[0].GlobalSequence)
	}
}

func TestLatestSequence_EmptyLog(t *testing.T) {
	log := openTestLog(t, nil)

	latest, err := log.LatestSequence(context.Background())
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest != 0 {
		t.Fatalf("expected 0 for empty log, got %d", latest)
	}
}

func TestSequencesSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	opts := Options{Path: path, Durability: MaxDurability, InitialMapSize: 1 << 20, OpenTimeout: time.Second}

	log, err := Open(opts, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx := context.Background()
	if _, err := log.AppendBatch(ctx, "agg-1", []es.Event{&logTestEvent{ID: "agg-1"}, &logTestEvent{ID: "agg-1"}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := log.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(opts, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	seq, err := reopened.AppendBatch(ctx, "agg-1", []es.Event{&logTestEvent{ID: "agg-1"}})
	if err != nil {
		t.Fatalf("append after reopen: %v", err)
	}
	if seq != 3 {
		t.Fatalf("expected sequence 3 after reopen, got %d", seq)
	}
	events, err := reopened.Events(ctx, "agg-1")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 3 || events[2].Version != 3 {
		t.Fatalf("expected version to continue at 3, got %+v", events)
	}
}

func TestStorageMetrics(t *testing.T) {
	log := openTestLog(t, nil)
	ctx := context.Background()

	mustAppend(t, log, "agg-1", 5)

	metrics, err := log.StorageMetrics(ctx)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if metrics.Entries != 5 {
		t.Fatalf("expected 5 entries, got %d", metrics.Entries)
	}
	if metrics.PageSize <= 0 {
		t.Fatalf("expected positive page size, got %d", metrics.PageSize)
	}
	if metrics.MapSize <= 0 {
		t.Fatalf("expected positive map size, got %d", metrics.MapSize)
	}
}

func TestAppendPublishesToHub(t *testing.T) {
	published := make(chan *es.StoredEvent, 4)
	hub := publishRecorder{events: published}

	log := openTestLog(t, hub)
	mustAppend(t, log, "agg-1", 2)

	for i := 1; i <= 2; i++ {
		select {
		case event := <-published:
			if event.AggregateID != "agg-1" {
				t.Fatalf("unexpected aggregate %q", event.AggregateID)
			}
		default:
			t.Fatalf("expected 2 published events, got %d", i-1)
		}
	}
}

type publishRecorder struct {
	events chan *es.StoredEvent
}

func (r publishRecorder) Subscribe(ctx context.Context, name string, sub es.Subscriber, options ...es.SubscriberOption) error {
	return nil
}

func (r publishRecorder) Publish(ctx context.Context, event *es.StoredEvent) {
	r.events <- event
}

func (r publishRecorder) Errors() <-chan error { return nil }
func (r publishRecorder) Close() error         { return nil }
