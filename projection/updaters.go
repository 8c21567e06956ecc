package projection

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	es "github.com/kokimiza/ledgerstream"
	"github.com/kokimiza/ledgerstream/journal"
)

// The updaters below are pure functions of (current projection bytes, event).
// They never consult mutable external state, so replaying the same events in
// the same order yields byte-identical projection values on both the
// incremental and the rebuild path.

// applyEntry folds one journal event into the entry's list view.
func applyEntry(state []byte, ev es.Event, version, sequence uint64) ([]byte, error) {
	var view EntryView
	if state != nil {
		if err := json.Unmarshal(state, &view); err != nil {
			return nil, fmt.Errorf("decode entry view: %w", err)
		}
	}

	switch e := ev.(type) {
	case *journal.DraftCreated:
		view.EntryID = e.EntryID
		view.Status = journal.StatusDraft
		view.Description = e.Description
		view.EntryDate = e.EntryDate
		view.Lines = append(view.Lines, e.Lines...)
	case *journal.LineAdded:
		view.Lines = append(view.Lines, e.Line)
	case *journal.Posted:
		view.Status = journal.StatusPosted
		view.PostedDate = e.PostedDate
	case *journal.Reversed:
		view.Status = journal.StatusReversed
		view.ReversedDate = e.ReversedDate
	default:
		return state, nil
	}

	view.TotalDebit, view.TotalCredit = 0, 0
	for _, line := range view.Lines {
		view.TotalDebit += line.Debit
		view.TotalCredit += line.Credit
	}
	view.Version = version
	view.LastSequence = sequence

	out, err := json.Marshal(view)
	if err != nil {
		return nil, fmt.Errorf("encode entry view: %w", err)
	}
	return out, nil
}

// applyLedger folds one entry's lines for a single account into that
// account's monthly ledger. sign is +1 for a posting, -1 for a reversal.
func applyLedger(state []byte, accountCode string, year, month int, lines []journal.Line, entryID string, sign int64, sequence uint64) ([]byte, error) {
	view := LedgerView{AccountCode: accountCode, Year: year, Month: month}
	if state != nil {
		if err := json.Unmarshal(state, &view); err != nil {
			return nil, fmt.Errorf("decode ledger view: %w", err)
		}
	}

	for _, line := range lines {
		if line.AccountCode != accountCode {
			continue
		}
		view.Debit += sign * line.Debit
		view.Credit += sign * line.Credit
	}
	view.Entries = append(view.Entries, entryID)
	view.LastSequence = sequence

	out, err := json.Marshal(view)
	if err != nil {
		return nil, fmt.Errorf("encode ledger view: %w", err)
	}
	return out, nil
}

// applyTrialBalance folds one entry's lines into the month's trial balance.
// sign is +1 for a posting, -1 for a reversal.
func applyTrialBalance(state []byte, year, month int, lines []journal.Line, sign int64, sequence uint64) ([]byte, error) {
	view := TrialBalanceView{Year: year, Month: month}
	if state != nil {
		if err := json.Unmarshal(state, &view); err != nil {
			return nil, fmt.Errorf("decode trial balance view: %w", err)
		}
	}

	totals := make(map[string]AccountBalance, len(view.Accounts))
	for _, balance := range view.Accounts {
		totals[balance.AccountCode] = balance
	}
	for _, line := range lines {
		balance := totals[line.AccountCode]
		balance.AccountCode = line.AccountCode
		balance.Debit += sign * line.Debit
		balance.Credit += sign * line.Credit
		totals[line.AccountCode] = balance
	}

	view.Accounts = view.Accounts[:0]
	for _, balance := range totals {
		view.Accounts = append(view.Accounts, balance)
	}
	sort.Slice(view.Accounts, func(i, j int) bool {
		return view.Accounts[i].AccountCode < view.Accounts[j].AccountCode
	})
	view.LastSequence = sequence

	out, err := json.Marshal(view)
	if err != nil {
		return nil, fmt.Errorf("encode trial balance view: %w", err)
	}
	return out, nil
}

// accountCodes returns the distinct account codes referenced by lines, in
// sorted order so dependent updates run deterministically.
func accountCodes(lines []journal.Line) []string {
	seen := make(map[string]struct{}, len(lines))
	var codes []string
	for _, line := range lines {
		if _, ok := seen[line.AccountCode]; ok {
			continue
		}
		seen[line.AccountCode] = struct{}{}
		codes = append(codes, line.AccountCode)
	}
	sort.Strings(codes)
	return codes
}

// yearMonth splits an ISO date (2006-01-02) into its year and month.
func yearMonth(date string) (int, int, error) {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return 0, 0, fmt.Errorf("parse date %q: %w", date, err)
	}
	return t.Year(), int(t.Month()), nil
}
