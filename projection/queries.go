package projection

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/io-da/query"
	es "github.com/kokimiza/ledgerstream"
)

// EntryByID asks for one journal entry's list view.
type EntryByID struct {
	EntryID string
}

func (q EntryByID) ID() []byte { return []byte(EntryKey(q.EntryID)) }

// LedgerByMonth asks for one account's ledger in a given month.
type LedgerByMonth struct {
	AccountCode string
	Year        int
	Month       int
}

func (q LedgerByMonth) ID() []byte { return []byte(LedgerKey(q.AccountCode, q.Year, q.Month)) }

// TrialBalanceByMonth asks for the trial balance of a given month.
type TrialBalanceByMonth struct {
	Year  int
	Month int
}

func (q TrialBalanceByMonth) ID() []byte { return []byte(TrialBalanceKey(q.Year, q.Month)) }

type readHandlerFunc func(ctx context.Context, qry query.Query) (es.ReadModel, error)

func (f readHandlerFunc) HandleQuery(ctx context.Context, qry query.Query) (es.ReadModel, error) {
	return f(ctx, qry)
}

// NewReadService returns a query provider answering read-model lookups
// straight from the projection store bytes.
func NewReadService(store es.ProjectionStore) es.QueryProvider {
	provider := es.NewQueryHandler()

	provider.RegisterHandler(es.TypeName(EntryByID{}), readHandlerFunc(
		func(ctx context.Context, qry query.Query) (es.ReadModel, error) {
			q, ok := qry.(EntryByID)
			if !ok {
				return nil, fmt.Errorf("unexpected query type %T", qry)
			}
			var view EntryView
			if err := loadView(ctx, store, EntryKey(q.EntryID), &view); err != nil {
				return nil, err
			}
			return &view, nil
		}))

	provider.RegisterHandler(es.TypeName(LedgerByMonth{}), readHandlerFunc(
		func(ctx context.Context, qry query.Query) (es.ReadModel, error) {
			q, ok := qry.(LedgerByMonth)
			if !ok {
				return nil, fmt.Errorf("unexpected query type %T", qry)
			}
			var view LedgerView
			if err := loadView(ctx, store, LedgerKey(q.AccountCode, q.Year, q.Month), &view); err != nil {
				return nil, err
			}
			return &view, nil
		}))

	provider.RegisterHandler(es.TypeName(TrialBalanceByMonth{}), readHandlerFunc(
		func(ctx context.Context, qry query.Query) (es.ReadModel, error) {
			q, ok := qry.(TrialBalanceByMonth)
			if !ok {
				return nil, fmt.Errorf("unexpected query type %T", qry)
			}
			var view TrialBalanceView
			if err := loadView(ctx, store, TrialBalanceKey(q.Year, q.Month), &view); err != nil {
				return nil, err
			}
			return &view, nil
		}))

	return provider
}

func loadView(ctx context.Context, store es.ProjectionStore, key string, out any) error {
	raw, err := store.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode view at %q: %w", key, err)
	}
	return nil
}
