package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/flexprice/paypal-ipn/internal/domain/ledger"
	ierr "github.com/flexprice/paypal-ipn/internal/errors"
	"github.com/flexprice/paypal-ipn/internal/logger"
	"github.com/flexprice/paypal-ipn/internal/postgres"
	"github.com/flexprice/paypal-ipn/internal/types"
)

type ledgerRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewLedgerRepository(db *postgres.DB, logger *logger.Logger) ledger.Repository {
	return &ledgerRepository{db: db, logger: logger}
}

func (r *ledgerRepository) Exists(ctx context.Context, subscriptionID int64, kind ledger.Kind, key string) (bool, error) {
	query := `SELECT EXISTS (
		SELECT 1 FROM ipn_ledger
		WHERE tenant_id = $1 AND subscription_id = $2 AND kind = $3 AND entry_key = $4
	)`

	var exists bool
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &exists, query,
		types.GetTenantID(ctx), subscriptionID, kind, key); err != nil {
		return false, ierr.WithError(err).
			WithHint("Failed to read the notification ledger").
			Mark(ierr.ErrDatabase)
	}
	return exists, nil
}

// Append inserts every entry with one statement so the keys land together or not at all
func (r *ledgerRepository) Append(ctx context.Context, entries ...*ledger.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	values := make([]string, 0, len(entries))
	args := make([]interface{}, 0, len(entries)*6)
	for i, e := range entries {
		n := i * 6
		values = append(values, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4, n+5, n+6))
		args = append(args, e.ID, e.TenantID, e.SubscriptionID, e.Kind, e.Key, e.CreatedAt)
	}

	query := `INSERT INTO ipn_ledger (id, tenant_id, subscription_id, kind, entry_key, created_at)
		VALUES ` + strings.Join(values, ", ") + `
		ON CONFLICT (tenant_id, subscription_id, kind, entry_key) DO NOTHING`

	if _, err := r.db.GetQuerier(ctx).ExecContext(ctx, query, args...); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to record handled notification").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *ledgerRepository) List(ctx context.Context, subscriptionID int64, kind ledger.Kind) ([]*ledger.Entry, error) {
	query := `SELECT id, tenant_id, subscription_id, kind, entry_key, created_at FROM ipn_ledger
		WHERE tenant_id = $1 AND subscription_id = $2 AND kind = $3
		ORDER BY created_at ASC`

	var entries []*ledger.Entry
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &entries, query,
		types.GetTenantID(ctx), subscriptionID, kind); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list handled notifications").
			Mark(ierr.ErrDatabase)
	}
	return entries, nil
}
