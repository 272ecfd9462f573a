package testutil

import (
	"context"

	"github.com/flexprice/paypal-ipn/internal/domain/ledger"
	"github.com/samber/lo"
)

var _ ledger.Repository = (*InMemoryLedgerStore)(nil)

// InMemoryLedgerStore implements ledger.Repository. Appends fail as a whole
// when FailAppend is set.
type InMemoryLedgerStore struct {
	*InMemoryStore[string, *ledger.Entry]
	FailAppend error
}

func NewInMemoryLedgerStore() *InMemoryLedgerStore {
	return &InMemoryLedgerStore{
		InMemoryStore: NewInMemoryStore[string, *ledger.Entry](),
	}
}

type ledgerFilter struct {
	subscriptionID int64
	kind           ledger.Kind
	key            string
}

func ledgerFilterFn(ctx context.Context, e *ledger.Entry, filter interface{}) bool {
	f, ok := filter.(ledgerFilter)
	if !ok {
		return true
	}
	return CheckTenantFilter(ctx, e.TenantID) &&
		e.SubscriptionID == f.subscriptionID &&
		e.Kind == f.kind &&
		(f.key == "" || e.Key == f.key)
}

func ledgerSortFn(i, j *ledger.Entry) bool {
	return i.CreatedAt.Before(j.CreatedAt)
}

func (s *InMemoryLedgerStore) Exists(ctx context.Context, subscriptionID int64, kind ledger.Kind, key string) (bool, error) {
	count, err := s.Count(ctx, ledgerFilter{subscriptionID: subscriptionID, kind: kind, key: key}, ledgerFilterFn)
	return count > 0, err
}

func (s *InMemoryLedgerStore) Append(ctx context.Context, entries ...*ledger.Entry) error {
	if s.FailAppend != nil {
		return s.FailAppend
	}
	for _, e := range entries {
		exists, err := s.Exists(ctx, e.SubscriptionID, e.Kind, e.Key)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if err := s.Create(ctx, e.ID, e); err != nil {
			return err
		}
	}
	return nil
}

func (s *InMemoryLedgerStore) List(ctx context.Context, subscriptionID int64, kind ledger.Kind) ([]*ledger.Entry, error) {
	return s.InMemoryStore.List(ctx, ledgerFilter{subscriptionID: subscriptionID, kind: kind}, ledgerFilterFn, ledgerSortFn)
}

// Keys returns the recorded keys of one set
func (s *InMemoryLedgerStore) Keys(ctx context.Context, subscriptionID int64, kind ledger.Kind) []string {
	entries, _ := s.List(ctx, subscriptionID, kind)
	return lo.Map(entries, func(e *ledger.Entry, _ int) string { return e.Key })
}
