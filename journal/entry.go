package journal

import (
	"context"
	"errors"
	"fmt"

	es "github.com/kokimiza/ledgerstream"
)

var (
	// ErrNotDraft is returned when an operation requires a draft entry.
	ErrNotDraft = errors.New("journal entry is not a draft")
	// ErrNotPosted is returned when a reversal is attempted on an unposted entry.
	ErrNotPosted = errors.New("journal entry is not posted")
	// ErrAlreadyExists is returned when a draft is created twice.
	ErrAlreadyExists = errors.New("journal entry already exists")
)

// Entry is the journal entry write model. It is hydrated from its event
// stream and records new events for the caller to append in one batch.
type Entry struct {
	*es.AggregateBase

	status      string
	description string
	entryDate   string
	lines       []Line

	apply func(ctx context.Context, ev es.Event)
}

// NewEntry constructs an empty, unhydrated entry for the given identifier.
func NewEntry(id string) *Entry {
	e := &Entry{AggregateBase: es.NewAggregateBase(id)}
	e.apply = es.Hydrate(
		es.NewHydrateHandler(e.onDraftCreated),
		es.NewHydrateHandler(e.onLineAdded),
		es.NewHydrateHandler(e.onPosted),
		es.NewHydrateHandler(e.onReversed),
	)
	return e
}

// Load hydrates an entry from its event stream in the log. An entry with no
// events hydrates to the zero state with version 0.
func Load(ctx context.Context, log es.EventLog, id string) (*Entry, error) {
	stored, err := log.Events(ctx, id)
	if err != nil {
		return nil, err
	}

	e := NewEntry(id)
	for _, record := range stored {
		ev, err := record.Decode()
		if err != nil {
			return nil, err
		}
		e.apply(ctx, ev)
		e.SetAggregateVersion(record.Version)
	}
	return e, nil
}

// Commit appends the entry's uncommitted events as one batch and clears them.
func (e *Entry) Commit(ctx context.Context, log es.EventLog) (uint64, error) {
	events := e.UncommittedEvents()
	if len(events) == 0 {
		return 0, es.ErrEmptyBatch
	}
	seq, err := log.AppendBatch(ctx, e.EntityID(), events)
	if err != nil {
		return 0, err
	}
	e.SetAggregateVersion(e.AggregateVersion() + uint64(len(events)))
	e.ClearUncommittedEvents()
	return seq, nil
}

// Status returns the entry's current lifecycle status, empty before creation.
func (e *Entry) Status() string { return e.status }

// Lines returns the entry's lines in the order they were added.
func (e *Entry) Lines() []Line { return e.lines }

// CreateDraft records the creation of the entry.
func (e *Entry) CreateDraft(ctx context.Context, description, entryDate string, lines []Line) error {
	if e.status != "" {
		return fmt.Errorf("entry %q: %w", e.EntityID(), ErrAlreadyExists)
	}
	e.raise(ctx, &DraftCreated{
		EntryID:     e.EntityID(),
		Description: description,
		EntryDate:   entryDate,
		Lines:       lines,
	})
	return nil
}

// AddLine records a line appended to the draft.
func (e *Entry) AddLine(ctx context.Context, line Line) error {
	if e.status != StatusDraft {
		return fmt.Errorf("entry %q: %w", e.EntityID(), ErrNotDraft)
	}
	e.raise(ctx, &LineAdded{EntryID: e.EntityID(), Line: line})
	return nil
}

// Post records the draft being posted as of postedDate.
func (e *Entry) Post(ctx context.Context, postedDate string) error {
	if e.status != StatusDraft {
		return fmt.Errorf("entry %q: %w", e.EntityID(), ErrNotDraft)
	}
	e.raise(ctx, &Posted{EntryID: e.EntityID(), PostedDate: postedDate})
	return nil
}

// Reverse records the posted entry being reversed as of reversedDate.
func (e *Entry) Reverse(ctx context.Context, reversedDate, reason string) error {
	if e.status != StatusPosted {
		return fmt.Errorf("entry %q: %w", e.EntityID(), ErrNotPosted)
	}
	e.raise(ctx, &Reversed{EntryID: e.EntityID(), ReversedDate: reversedDate, Reason: reason})
	return nil
}

// raise applies the event to in-memory state and records it for commit.
func (e *Entry) raise(ctx context.Context, ev es.Event) {
	e.apply(ctx, ev)
	e.Record(ev)
}

func (e *Entry) onDraftCreated(_ context.Context, ev *DraftCreated) {
	e.status = StatusDraft
	e.description = ev.Description
	e.entryDate = ev.EntryDate
	e.lines = append(e.lines, ev.Lines...)
}

func (e *Entry) onLineAdded(_ context.Context, ev *LineAdded) {
	e.lines = append(e.lines, ev.Line)
}

func (e *Entry) onPosted(_ context.Context, ev *Posted) {
	e.status = StatusPosted
}

func (e *Entry) onReversed(_ context.Context, ev *Reversed) {
	e.status = StatusReversed
}
