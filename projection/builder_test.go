package projection

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	es "github.com/kokimiza/ledgerstream"
	"github.com/kokimiza/ledgerstream/eventlog/memory"
	"github.com/kokimiza/ledgerstream/fixtures"
	"github.com/kokimiza/ledgerstream/journal"
)

// ---- Test Helpers ----

func appendEvents(t *testing.T, log es.EventLog, aggregateID string, events ...es.Event) {
	t.Helper()
	if _, err := log.AppendBatch(context.Background(), aggregateID, events); err != nil {
		t.Fatalf("append to %s: %v", aggregateID, err)
	}
}

func entryLifecycle(id string) []es.Event {
	return []es.Event{
		&journal.DraftCreated{
			EntryID:   id,
			EntryDate: "2025-04-01",
			Lines: []journal.Line{
				{AccountCode: "1000", Debit: 5000, Currency: "EUR"},
				{AccountCode: "4000", Credit: 5000, Currency: "EUR"},
			},
		},
		&journal.Posted{EntryID: id, PostedDate: "2025-04-02"},
		&journal.Reversed{EntryID: id, ReversedDate: "2025-05-01"},
	}
}

func getEntryView(t *testing.T, store es.ProjectionStore, entryID string) EntryView {
	t.Helper()
	raw, err := store.Get(context.Background(), EntryKey(entryID))
	if err != nil {
		t.Fatalf("get entry view %s: %v", entryID, err)
	}
	var view EntryView
	if err := json.Unmarshal(raw, &view); err != nil {
		t.Fatalf("decode entry view: %v", err)
	}
	return view
}

// ---- Tests ----

func TestRebuildAll_EntryStatusReversed(t *testing.T) {
	ctx := context.Background()
	log := memory.New(nil)
	store := fixtures.NewProjectionStoreSpy()
	builder := NewBuilder(log, store)

	appendEvents(t, log, "JE008", entryLifecycle("JE008")...)

	events, err := log.Events(ctx, "JE008")
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

	if err := builder.RebuildAll(ctx); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	view := getEntryView(t, store, "JE008")
	if view.Status != journal.StatusReversed {
		t.Fatalf("expected status Reversed, got %q", view.Status)
	}
	if view.TotalDebit != 5000 || view.TotalCredit != 5000 {
		t.Fatalf("unexpected totals: %+v", view)
	}

	position, err := store.Position(ctx, NameJournalEntry, Version)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if position != 3 {
		t.Fatalf("expected checkpoint 3, got %d", position)
	}
}

func TestProcessEvent_IncrementalMatchesRebuild(t *testing.T) {
	ctx := context.Background()
	log := memory.New(nil)

	appendEvents(t, log, "JE001", entryLifecycle("JE001")...)
	appendEvents(t, log, "JE002",
		&journal.DraftCreated{
			EntryID:   "JE002",
			EntryDate: "2025-04-03",
			Lines: []journal.Line{
				{AccountCode: "1000", Debit: 1200, Currency: "EUR"},
				{AccountCode: "2000", Credit: 1200, Currency: "EUR"},
			},
		},
		&journal.Posted{EntryID: "JE002", PostedDate: "2025-04-05"},
	)

	events, err := log.AllEvents(ctx, 0)
	if err != nil {
		t.Fatalf("all events: %v", err)
	}

	incremental := fixtures.NewProjectionStoreSpy()
	incBuilder := NewBuilder(log, incremental)
	for _, event := range events {
		if err := incBuilder.ProcessEvent(ctx, event); err != nil {
			t.Fatalf("process sequence %d: %v", event.GlobalSequence, err)
		}
	}

	rebuilt := fixtures.NewProjectionStoreSpy()
	if err := NewBuilder(log, rebuilt).RebuildAll(ctx); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	keys := incremental.Keys()
	if len(keys) == 0 {
		t.Fatalf("expected incremental store to hold state")
	}
	if len(keys) != len(rebuilt.Keys()) {
		t.Fatalf("key sets differ: %d vs %d", len(keys), len(rebuilt.Keys()))
	}
	for _, key := range keys {
		a, err := incremental.Get(ctx, key)
		if err != nil {
			t.Fatalf("incremental get %s: %v", key, err)
		}
		b, err := rebuilt.Get(ctx, key)
		if err != nil {
			t.Fatalf("rebuilt get %s: %v", key, err)
		}
		if string(a) != string(b) {
			t.Fatalf("state differs at %s:\nincremental: %s\nrebuilt:     %s", key, a, b)
		}
	}
}

func TestProcessEvent_LedgerAndTrialBalance(t *testing.T) {
	ctx := context.Background()
	log := memory.New(nil)
	store := fixtures.NewProjectionStoreSpy()
	builder := NewBuilder(log, store)

	appendEvents(t, log, "JE001", entryLifecycle("JE001")...)
	events, _ := log.AllEvents(ctx, 0)
	for _, event := range events {
		if err := builder.ProcessEvent(ctx, event); err != nil {
			t.Fatalf("process: %v", err)
		}
	}

	// Posting lands in April.
	raw, err := store.Get(ctx, LedgerKey("1000", 2025, 4))
	if err != nil {
		t.Fatalf("get april ledger: %v", err)
	}
	var april LedgerView
	if err := json.Unmarshal(raw, &april); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if april.Debit != 5000 || april.Credit != 0 {
		t.Fatalf("unexpected april ledger: %+v", april)
	}
	if len(april.Entries) != 1 || april.Entries[0] != "JE001" {
		t.Fatalf("unexpected april entries: %v", april.Entries)
	}

	// The reversal undoes the amounts as of May.
	raw, err = store.Get(ctx, LedgerKey("1000", 2025, 5))
	if err != nil {
		t.Fatalf("get may ledger: %v", err)
	}
	var may LedgerView
	if err := json.Unmarshal(raw, &may); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if may.Debit != -5000 {
		t.Fatalf("expected -5000 debit in may, got %d", may.Debit)
	}

	raw, err = store.Get(ctx, TrialBalanceKey(2025, 4))
	if err != nil {
		t.Fatalf("get trial balance: %v", err)
	}
	var tb TrialBalanceView
	if err := json.Unmarshal(raw, &tb); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(tb.Accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(tb.Accounts))
	}
	if tb.Accounts[0].AccountCode != "1000" || tb.Accounts[0].Debit != 5000 {
		t.Fatalf("unexpected first account: %+v", tb.Accounts[0])
	}
	if tb.Accounts[1].AccountCode != "4000" || tb.Accounts[1].Credit != 5000 {
		t.Fatalf("unexpected second account: %+v", tb.Accounts[1])
	}
}

func TestProcessEvent_UnknownTypeAdvancesCheckpointsOnly(t *testing.T) {
	ctx := context.Background()
	store := fixtures.NewProjectionStoreSpy()
	builder := NewBuilder(memory.New(nil), store)

	event := fixtures.NewStoredEvent(
		fixtures.NewTestEvent().WithID("agg-1").WithType("unknown.event").Build(),
		fixtures.WithSequence(9),
	)
	if err := builder.ProcessEvent(ctx, event); err != nil {
		t.Fatalf("process: %v", err)
	}

	if keys := store.Keys(); len(keys) != 0 {
		t.Fatalf("expected no values written, got %v", keys)
	}
	for _, name := range []string{NameJournalEntry, NameLedger, NameTrialBalance} {
		position, _ := store.Position(ctx, name, Version)
		if position != 9 {
			t.Fatalf("expected checkpoint 9 for %s, got %d", name, position)
		}
	}
}

func TestHandleEvent_FailureLandsOnRetryQueue(t *testing.T) {
	ctx := context.Background()
	store := fixtures.NewProjectionStoreSpy()
	builder := NewBuilder(memory.New(nil), store)

	boom := errors.New("storage hiccup")
	store.FailOnUpdate(boom)

	event := fixtures.NewStoredEvent(&journal.DraftCreated{EntryID: "JE001", EntryDate: "2025-04-01"})
	if err := builder.HandleEvent(ctx, event); !errors.Is(err, boom) {
		t.Fatalf("expected handler to surface error, got %v", err)
	}
	if size := builder.RetryQueueSize(); size != 1 {
		t.Fatalf("expected 1 queued entry, got %d", size)
	}

	// Once the store recovers, one retry pass drains the queue.
	store.FailOnUpdate(nil)
	if err := builder.ProcessRetryQueue(ctx); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if size := builder.RetryQueueSize(); size != 0 {
		t.Fatalf("expected empty queue, got %d", size)
	}
	if _, err := store.Get(ctx, EntryKey("JE001")); err != nil {
		t.Fatalf("expected view written on retry: %v", err)
	}
}

func TestProcessRetryQueue_DropsAfterThreeAttempts(t *testing.T) {
	ctx := context.Background()
	store := fixtures.NewProjectionStoreSpy()
	builder := NewBuilder(memory.New(nil), store)

	before := builder.RetryQueueSize()

	assertStoreUntouched := func() {
		t.Helper()
		if keys := store.Keys(); len(keys) != 0 {
			t.Fatalf("expected no writes from failed attempts, got %v", keys)
		}
		for _, name := range []string{NameJournalEntry, NameLedger, NameTrialBalance} {
			if position, _ := store.Position(ctx, name, Version); position != 0 {
				t.Fatalf("expected untouched checkpoint for %s, got %d", name, position)
			}
		}
	}

	// A posted event with an unparsable date never succeeds.
	stored := fixtures.NewStoredEvent(&journal.Posted{EntryID: "JE001", PostedDate: "not-a-date"})
	if err := builder.HandleEvent(ctx, stored); err == nil {
		t.Fatalf("expected failure on bad date")
	}
	if builder.RetryQueueSize() != before+1 {
		t.Fatalf("expected enqueued entry")
	}
	assertStoreUntouched()

	// Attempt 2 fails and requeues.
	if err := builder.ProcessRetryQueue(ctx); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if builder.RetryQueueSize() != before+1 {
		t.Fatalf("expected entry still queued after attempt 2")
	}
	assertStoreUntouched()

	// Attempt 3 fails and drops with a final report.
	if err := builder.ProcessRetryQueue(ctx); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if builder.RetryQueueSize() != before {
		t.Fatalf("expected entry dropped after 3 attempts, size %d", builder.RetryQueueSize())
	}
	assertStoreUntouched()

	var sawFinal bool
	for done := false; !done; {
		select {
		case err := <-builder.Errors():
			if err != nil && strings.Contains(err.Error(), "dropping event") {
				sawFinal = true
			}
		default:
			done = true
		}
	}
	if !sawFinal {
		t.Fatalf("expected final drop report on error channel")
	}
}

func TestProcessRetryQueue_PartialFailureAppliesOnce(t *testing.T) {
	ctx := context.Background()
	log := memory.New(nil)
	store := fixtures.NewProjectionStoreSpy()
	builder := NewBuilder(log, store)

	appendEvents(t, log, "JE100",
		&journal.DraftCreated{
			EntryID:   "JE100",
			EntryDate: "2025-04-01",
			Lines: []journal.Line{
				{AccountCode: "1000", Debit: 500, Currency: "EUR"},
				{AccountCode: "2000", Credit: 500, Currency: "EUR"},
			},
		},
		&journal.Posted{EntryID: "JE100", PostedDate: "2025-04-02"},
	)
	events, err := log.AllEvents(ctx, 0)
	if err != nil {
		t.Fatalf("all events: %v", err)
	}
	if err := builder.ProcessEvent(ctx, events[0]); err != nil {
		t.Fatalf("process draft: %v", err)
	}

	// The entry and ledger writes commit, then the trial balance write fails
	// and the whole event lands on the retry queue.
	store.FailNextUpdateFor(NameTrialBalance, errors.New("trial balance write failed"))
	if err := builder.HandleEvent(ctx, events[1]); err == nil {
		t.Fatalf("expected partial failure")
	}
	if builder.RetryQueueSize() != 1 {
		t.Fatalf("expected queued entry, got %d", builder.RetryQueueSize())
	}

	if err := builder.ProcessRetryQueue(ctx); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if builder.RetryQueueSize() != 0 {
		t.Fatalf("expected drained queue, got %d", builder.RetryQueueSize())
	}

	// The retry must not re-add deltas to the keys that already committed.
	raw, err := store.Get(ctx, LedgerKey("1000", 2025, 4))
	if err != nil {
		t.Fatalf("get ledger: %v", err)
	}
	var ledger LedgerView
	if err := json.Unmarshal(raw, &ledger); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ledger.Debit != 500 {
		t.Fatalf("ledger debit applied twice: got %d, want 500", ledger.Debit)
	}
	if len(ledger.Entries) != 1 || ledger.Entries[0] != "JE100" {
		t.Fatalf("unexpected ledger entries: %v", ledger.Entries)
	}

	raw, err = store.Get(ctx, TrialBalanceKey(2025, 4))
	if err != nil {
		t.Fatalf("get trial balance: %v", err)
	}
	var tb TrialBalanceView
	if err := json.Unmarshal(raw, &tb); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(tb.Accounts) != 2 || tb.Accounts[0].Debit != 500 || tb.Accounts[1].Credit != 500 {
		t.Fatalf("unexpected trial balance: %+v", tb.Accounts)
	}

	if view := getEntryView(t, store, "JE100"); view.Status != journal.StatusPosted {
		t.Fatalf("expected Posted, got %q", view.Status)
	}
}

func TestHandleEvent_OutOfOrderDeliveryKeepsLatestState(t *testing.T) {
	ctx := context.Background()
	store := fixtures.NewProjectionStoreSpy()
	builder := NewBuilder(memory.New(nil), store)

	draft := fixtures.NewStoredEvent(
		&journal.DraftCreated{
			EntryID:   "JE200",
			EntryDate: "2025-04-01",
			Lines:     []journal.Line{{AccountCode: "1000", Debit: 300, Currency: "EUR"}},
		},
		fixtures.WithSequence(1), fixtures.WithVersion(1),
	)
	posted := fixtures.NewStoredEvent(
		&journal.Posted{EntryID: "JE200", PostedDate: "2025-04-02"},
		fixtures.WithSequence(2), fixtures.WithVersion(2),
	)

	// Concurrent appends can deliver notifications out of sequence order.
	if err := builder.HandleEvent(ctx, posted); err != nil {
		t.Fatalf("posted: %v", err)
	}
	if err := builder.HandleEvent(ctx, draft); err != nil {
		t.Fatalf("draft: %v", err)
	}

	view := getEntryView(t, store, "JE200")
	if view.Status != journal.StatusPosted {
		t.Fatalf("status regressed to %q", view.Status)
	}
	if view.LastSequence != 2 {
		t.Fatalf("expected last sequence 2, got %d", view.LastSequence)
	}
}

// blockingLog lets a test hold a rebuild open at the replay stage.
type blockingLog struct {
	*memory.Log
	release chan struct{}
}

func (l *blockingLog) AllEvents(ctx context.Context, from uint64) ([]*es.StoredEvent, error) {
	<-l.release
	return l.Log.AllEvents(ctx, from)
}

func TestProcessEvent_RejectedDuringRebuild(t *testing.T) {
	ctx := context.Background()
	inner := memory.New(nil)
	appendEvents(t, inner, "JE001", &journal.DraftCreated{EntryID: "JE001", EntryDate: "2025-04-01"})

	log := &blockingLog{Log: inner, release: make(chan struct{})}
	store := fixtures.NewProjectionStoreSpy()
	builder := NewBuilder(log, store)

	rebuildDone := make(chan error, 1)
	go func() {
		rebuildDone <- builder.RebuildAll(ctx)
	}()

	// Wait until the rebuild holds the exclusive flag.
	deadline := time.After(2 * time.Second)
	for builderIdle(builder) {
		select {
		case <-deadline:
			t.Fatalf("rebuild never started")
		case <-time.After(time.Millisecond):
		}
	}

	event := fixtures.NewStoredEvent(&journal.DraftCreated{EntryID: "JE002", EntryDate: "2025-04-01"})
	if err := builder.ProcessEvent(ctx, event); !errors.Is(err, es.ErrRebuildInProgress) {
		t.Fatalf("expected ErrRebuildInProgress, got %v", err)
	}
	if err := builder.RebuildAll(ctx); !errors.Is(err, es.ErrRebuildInProgress) {
		t.Fatalf("expected concurrent rebuild rejection, got %v", err)
	}

	close(log.release)
	if err := <-rebuildDone; err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	// With the rebuild finished, incremental processing resumes.
	if err := builder.ProcessEvent(ctx, event); err != nil {
		t.Fatalf("process after rebuild: %v", err)
	}
}

func builderIdle(b *Builder) bool {
	return !b.rebuilding.Load()
}

func TestRebuildAll_EmptyLog(t *testing.T) {
	builder := NewBuilder(memory.New(nil), fixtures.NewProjectionStoreSpy())
	if err := builder.RebuildAll(context.Background()); err != nil {
		t.Fatalf("rebuild on empty log: %v", err)
	}
}

func TestProjectionKeys(t *testing.T) {
	if got := EntryKey("JE008"); got != "journal_entry:JE008" {
		t.Fatalf("entry key: %q", got)
	}
	if got := LedgerKey("1000", 2025, 4); got != "ledger:1000:2025:04" {
		t.Fatalf("ledger key: %q", got)
	}
	if got := TrialBalanceKey(2025, 12); got != "trial_balance:2025:12" {
		t.Fatalf("trial balance key: %q", got)
	}
}
