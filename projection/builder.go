package projection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	es "github.com/kokimiza/ledgerstream"
	"github.com/kokimiza/ledgerstream/journal"
)

// maxRetryAttempts bounds how often a failing projection update is attempted
// before the event is dropped from the retry queue. The event itself stays in
// the log and can be recovered by a rebuild.
const maxRetryAttempts = 3

// SubscriberName is the name under which the builder registers on a
// notification hub.
const SubscriberName = "projection-builder"

type retryEntry struct {
	event     *es.StoredEvent
	attempts  uint32
	lastError string
}

// Builder routes committed events to the projection updaters. It runs in two
// modes: incremental, fed by the notification hub, and rebuild, replaying the
// whole log. A rebuild holds an exclusive flag; incremental processing during
// a rebuild fails with ErrRebuildInProgress and lands on the retry queue.
type Builder struct {
	log   es.EventLog
	store es.ProjectionStore

	rebuilding atomic.Bool

	mu      sync.Mutex
	retries []*retryEntry

	errs chan error
}

// NewBuilder constructs a builder over the given log and store.
func NewBuilder(log es.EventLog, store es.ProjectionStore) *Builder {
	return &Builder{
		log:   log,
		store: store,
		errs:  make(chan error, 64),
	}
}

// Errors returns a channel carrying retry-queue reports: per-attempt failures
// and final drops after maxRetryAttempts.
func (b *Builder) Errors() <-chan error {
	return b.errs
}

// HandleEvent implements the hub Subscriber. A failed update lands on the
// retry queue; the error is returned so the hub surfaces it, but the
// originating append is already committed and unaffected.
func (b *Builder) HandleEvent(ctx context.Context, event *es.StoredEvent) error {
	if err := b.ProcessEvent(ctx, event); err != nil {
		b.enqueueRetry(event, err)
		return err
	}
	return nil
}

// ProcessEvent applies one committed event to all projections and advances
// their checkpoints. Event types with no updater advance checkpoints only.
// Returns ErrRebuildInProgress while a rebuild holds the builder.
func (b *Builder) ProcessEvent(ctx context.Context, event *es.StoredEvent) error {
	if b.rebuilding.Load() {
		return es.ErrRebuildInProgress
	}
	return b.apply(ctx, event, &storeAccess{store: b.store})
}

// RebuildAll replays the whole log from sequence 0 through the same updaters,
// accumulating state from scratch in memory, then writes every projection
// value and the final checkpoints in one batch per projection. Incremental
// processing is locked out for the duration.
func (b *Builder) RebuildAll(ctx context.Context) error {
	if !b.rebuilding.CompareAndSwap(false, true) {
		return es.ErrRebuildInProgress
	}
	defer b.rebuilding.Store(false)

	events, err := b.log.AllEvents(ctx, 0)
	if err != nil {
		return fmt.Errorf("read log for rebuild: %w", err)
	}
	if len(events) == 0 {
		return nil
	}

	staged := &stagedAccess{values: make(map[string][]byte)}
	for _, event := range events {
		if err := b.apply(ctx, event, staged); err != nil {
			return fmt.Errorf("rebuild at sequence %d: %w", event.GlobalSequence, err)
		}
	}

	final := events[len(events)-1].GlobalSequence
	for _, name := range []string{NameJournalEntry, NameLedger, NameTrialBalance} {
		entries := staged.entriesFor(name)
		if err := b.store.UpdateBatch(ctx, name, Version, entries, final); err != nil {
			return fmt.Errorf("write rebuilt %s projection: %w", name, err)
		}
	}
	return nil
}

// ProcessRetryQueue drains the retry queue, reattempting each entry once.
// Entries that succeed are discarded; entries that keep failing are requeued
// until their attempt count reaches maxRetryAttempts, then dropped with a
// final report.
func (b *Builder) ProcessRetryQueue(ctx context.Context) error {
	if b.rebuilding.Load() {
		return es.ErrRebuildInProgress
	}

	b.mu.Lock()
	pending := b.retries
	b.retries = nil
	b.mu.Unlock()

	for _, entry := range pending {
		err := b.apply(ctx, entry.event, &storeAccess{store: b.store})
		if err == nil {
			continue
		}

		entry.attempts++
		entry.lastError = err.Error()
		if entry.attempts >= maxRetryAttempts {
			b.report(fmt.Errorf("dropping event at sequence %d after %d attempts: %s",
				entry.event.GlobalSequence, entry.attempts, entry.lastError))
			continue
		}

		b.report(fmt.Errorf("retry %d for event at sequence %d: %w",
			entry.attempts, entry.event.GlobalSequence, err))
		b.mu.Lock()
		b.retries = append(b.retries, entry)
		b.mu.Unlock()
	}
	return nil
}

// RetryQueueSize reports how many entries are waiting for a retry.
func (b *Builder) RetryQueueSize() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.retries)
}

// apply routes one stored event through the updaters against the given state
// access, writing each projection's entries together with its checkpoint.
//
// Every view carries the sequence of the last event folded into it. A key
// whose stored sequence is at or past the incoming event is skipped, so a
// retry after a partial failure, or a notification arriving out of sequence
// order, only touches the keys that have not seen the event yet.
func (b *Builder) apply(ctx context.Context, event *es.StoredEvent, acc stateAccess) error {
	switch event.EventType {
	case journal.EventTypeDraftCreated, journal.EventTypeLineAdded,
		journal.EventTypePosted, journal.EventTypeReversed:
	default:
		// Forward-compatible no-op: unknown types only advance checkpoints.
		return b.advanceAll(ctx, acc, event.GlobalSequence)
	}

	ev, err := event.Decode()
	if err != nil {
		return err
	}

	// Resolve the accounting period first: an unparsable date fails the event
	// before anything is written, keeping failed attempts free of side effects.
	var (
		sign        int64
		date        string
		year, month int
	)
	switch e := ev.(type) {
	case *journal.Posted:
		sign, date = 1, e.PostedDate
	case *journal.Reversed:
		sign, date = -1, e.ReversedDate
	}
	if sign != 0 {
		if year, month, err = yearMonth(date); err != nil {
			return err
		}
	}

	seq := event.GlobalSequence
	entryKey := EntryKey(event.AggregateID)
	state, err := acc.get(ctx, entryKey)
	if err != nil {
		return err
	}

	newState := state
	var entryEntries []es.ProjectionEntry
	if !appliedAtOrAfter(state, seq) {
		if newState, err = applyEntry(state, ev, event.Version, seq); err != nil {
			return err
		}
		entryEntries = append(entryEntries, es.ProjectionEntry{Key: entryKey, Value: newState})
	}
	if err := acc.put(ctx, NameJournalEntry, entryEntries, seq); err != nil {
		return err
	}

	if sign == 0 {
		// Draft-stage events touch only the entry list.
		if err := acc.put(ctx, NameLedger, nil, seq); err != nil {
			return err
		}
		return acc.put(ctx, NameTrialBalance, nil, seq)
	}

	view, err := decodeEntryView(newState)
	if err != nil {
		return err
	}

	var ledgerEntries []es.ProjectionEntry
	for _, account := range accountCodes(view.Lines) {
		key := LedgerKey(account, year, month)
		state, err := acc.get(ctx, key)
		if err != nil {
			return err
		}
		if appliedAtOrAfter(state, seq) {
			continue
		}
		value, err := applyLedger(state, account, year, month, view.Lines, event.AggregateID, sign, seq)
		if err != nil {
			return err
		}
		ledgerEntries = append(ledgerEntries, es.ProjectionEntry{Key: key, Value: value})
	}
	if err := acc.put(ctx, NameLedger, ledgerEntries, seq); err != nil {
		return err
	}

	tbKey := TrialBalanceKey(year, month)
	state, err = acc.get(ctx, tbKey)
	if err != nil {
		return err
	}
	if appliedAtOrAfter(state, seq) {
		return acc.put(ctx, NameTrialBalance, nil, seq)
	}
	tbValue, err := applyTrialBalance(state, year, month, view.Lines, sign, seq)
	if err != nil {
		return err
	}
	return acc.put(ctx, NameTrialBalance, []es.ProjectionEntry{{Key: tbKey, Value: tbValue}}, seq)
}

// appliedAtOrAfter reports whether the stored view bytes already include the
// event at the given sequence.
func appliedAtOrAfter(state []byte, sequence uint64) bool {
	if state == nil {
		return false
	}
	var marker struct {
		LastSequence uint64 `json:"last_sequence"`
	}
	if err := json.Unmarshal(state, &marker); err != nil {
		return false
	}
	return marker.LastSequence >= sequence
}

func (b *Builder) advanceAll(ctx context.Context, acc stateAccess, sequence uint64) error {
	for _, name := range []string{NameJournalEntry, NameLedger, NameTrialBalance} {
		if err := acc.put(ctx, name, nil, sequence); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) enqueueRetry(event *es.StoredEvent, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.retries = append(b.retries, &retryEntry{
		event:     event,
		attempts:  1,
		lastError: err.Error(),
	})
}

func (b *Builder) report(err error) {
	select {
	case b.errs <- err:
	default:
		// Drop report if channel full
	}
}

func decodeEntryView(state []byte) (*EntryView, error) {
	var view EntryView
	if err := json.Unmarshal(state, &view); err != nil {
		return nil, fmt.Errorf("decode entry view: %w", err)
	}
	return &view, nil
}

// stateAccess abstracts where projection state is read from and written to.
// Incremental processing goes straight to the store; a rebuild accumulates in
// memory and flushes once at the end.
type stateAccess interface {
	// get returns the current bytes for key, nil when absent.
	get(ctx context.Context, key string) ([]byte, error)
	// put writes the entries and advances the checkpoint for name to sequence.
	put(ctx context.Context, name string, entries []es.ProjectionEntry, sequence uint64) error
}

type storeAccess struct {
	store es.ProjectionStore
}

func (a *storeAccess) get(ctx context.Context, key string) ([]byte, error) {
	value, err := a.store.Get(ctx, key)
	if errors.Is(err, es.ErrKeyNotFound) {
		return nil, nil
	}
	return value, err
}

func (a *storeAccess) put(ctx context.Context, name string, entries []es.ProjectionEntry, sequence uint64) error {
	return a.store.UpdateBatch(ctx, name, Version, entries, sequence)
}

// stagedAccess keeps rebuild state in memory. Reads see only what the rebuild
// itself has produced, so the replay always starts from scratch.
type stagedAccess struct {
	values map[string][]byte
	order  map[string][]string
}

func (a *stagedAccess) get(_ context.Context, key string) ([]byte, error) {
	return a.values[key], nil
}

func (a *stagedAccess) put(_ context.Context, name string, entries []es.ProjectionEntry, _ uint64) error {
	if a.order == nil {
		a.order = make(map[string][]string)
	}
	for _, entry := range entries {
		if _, seen := a.values[entry.Key]; !seen {
			a.order[name] = append(a.order[name], entry.Key)
		}
		a.values[entry.Key] = entry.Value
	}
	return nil
}

// entriesFor returns the final staged entries for one projection, in first-write order.
func (a *stagedAccess) entriesFor(name string) []es.ProjectionEntry {
	var out []es.ProjectionEntry
	for _, key := range a.order[name] {
		out = append(out, es.ProjectionEntry{Key: key, Value: a.values[key]})
	}
	return out
}
