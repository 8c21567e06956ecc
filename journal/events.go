// Package journal defines the accounting domain events and the journal entry
// aggregate whose history they record. All events register themselves with
// the event registry so stored payloads can be decoded by name.
package journal

import (
	es "github.com/kokimiza/ledgerstream"
)

// Registered event type names.
const (
	EventTypeDraftCreated = "journal.draft_created"
	EventTypeLineAdded    = "journal.line_added"
	EventTypePosted       = "journal.posted"
	EventTypeReversed     = "journal.reversed"
)

// Journal entry statuses as they appear in read models.
const (
	StatusDraft    = "Draft"
	StatusPosted   = "Posted"
	StatusReversed = "Reversed"
)

func init() {
	es.RegisterEventByType(func() es.Event { return &DraftCreated{} })
	es.RegisterEventByType(func() es.Event { return &LineAdded{} })
	es.RegisterEventByType(func() es.Event { return &Posted{} })
	es.RegisterEventByType(func() es.Event { return &Reversed{} })
}

// Line is one debit or credit leg of a journal entry. Amounts are in minor
// units (e.g. cents); a line carries either a debit or a credit, never both.
type Line struct {
	AccountCode string `json:"account_code"`
	Debit       int64  `json:"debit"`
	Credit      int64  `json:"credit"`
	Currency    string `json:"currency"`
}

// DraftCreated records the creation of a journal entry draft, optionally with
// its initial lines.
type DraftCreated struct {
	EntryID     string `json:"entry_id"`
	Description string `json:"description"`
	EntryDate   string `json:"entry_date"`
	Lines       []Line `json:"lines,omitempty"`
}

func (e *DraftCreated) AggregateID() string { return e.EntryID }
func (e *DraftCreated) EventType() string   { return EventTypeDraftCreated }

// LineAdded records a line appended to a draft entry.
type LineAdded struct {
	EntryID string `json:"entry_id"`
	Line    Line   `json:"line"`
}

func (e *LineAdded) AggregateID() string { return e.EntryID }
func (e *LineAdded) EventType() string   { return EventTypeLineAdded }

// Posted records a draft entry being posted to the ledger. PostedDate is the
// accounting date the entry takes effect, formatted 2006-01-02.
type Posted struct {
	EntryID    string `json:"entry_id"`
	PostedDate string `json:"posted_date"`
}

func (e *Posted) AggregateID() string { return e.EntryID }
func (e *Posted) EventType() string   { return EventTypePosted }

// Reversed records a posted entry being reversed. The ledger effect of every
// line is undone as of ReversedDate.
type Reversed struct {
	EntryID      string `json:"entry_id"`
	ReversedDate string `json:"reversed_date"`
	Reason       string `json:"reason,omitempty"`
}

func (e *Reversed) AggregateID() string { return e.EntryID }
func (e *Reversed) EventType() string   { return EventTypeReversed }
