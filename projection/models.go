// Package projection materializes the accounting read models from the event
// log: the journal entry list, per-account monthly ledgers, and monthly trial
// balances. The Builder is the only writer of the projection store.
package projection

import (
	"fmt"

	"github.com/kokimiza/ledgerstream/journal"
)

// Projection names and the schema version under which their checkpoints are
// tracked. Bumping Version yields fresh checkpoint slots for a side-by-side
// rebuild.
const (
	NameJournalEntry = "journal_entry"
	NameLedger       = "ledger"
	NameTrialBalance = "trial_balance"

	Version uint32 = 1
)

// EntryView is the journal-entry list read model, one record per entry.
// LastSequence records the sequence of the last event folded into the view;
// the builder uses it to skip events it has already applied to this key.
type EntryView struct {
	EntryID      string         `json:"entry_id"`
	Status       string         `json:"status"`
	Description  string         `json:"description"`
	EntryDate    string         `json:"entry_date"`
	PostedDate   string         `json:"posted_date,omitempty"`
	ReversedDate string         `json:"reversed_date,omitempty"`
	Lines        []journal.Line `json:"lines,omitempty"`
	TotalDebit   int64          `json:"total_debit"`
	TotalCredit  int64          `json:"total_credit"`
	Version      uint64         `json:"version"`
	LastSequence uint64         `json:"last_sequence"`
}

// LedgerView is the per-account monthly ledger read model: running debit and
// credit totals plus the entries that contributed to them.
type LedgerView struct {
	AccountCode  string   `json:"account_code"`
	Year         int      `json:"year"`
	Month        int      `json:"month"`
	Debit        int64    `json:"debit"`
	Credit       int64    `json:"credit"`
	Entries      []string `json:"entries,omitempty"`
	LastSequence uint64   `json:"last_sequence"`
}

// AccountBalance is one account's totals within a trial balance.
type AccountBalance struct {
	AccountCode string `json:"account_code"`
	Debit       int64  `json:"debit"`
	Credit      int64  `json:"credit"`
}

// TrialBalanceView is the monthly trial balance read model. Accounts are kept
// sorted by account code so the encoded bytes are deterministic.
type TrialBalanceView struct {
	Year         int              `json:"year"`
	Month        int              `json:"month"`
	Accounts     []AccountBalance `json:"accounts,omitempty"`
	LastSequence uint64           `json:"last_sequence"`
}

// EntryKey returns the projection key for one journal entry.
func EntryKey(entryID string) string {
	return fmt.Sprintf("%s:%s", NameJournalEntry, entryID)
}

// LedgerKey returns the projection key for one account's monthly ledger.
func LedgerKey(accountCode string, year, month int) string {
	return fmt.Sprintf("%s:%s:%04d:%02d", NameLedger, accountCode, year, month)
}

// TrialBalanceKey returns the projection key for one month's trial balance.
func TrialBalanceKey(year, month int) string {
	return fmt.Sprintf("%s:%04d:%02d", NameTrialBalance, year, month)
}
