package ipn

import (
	"context"

	"github.com/flexprice/paypal-ipn/internal/domain/ledger"
	ierr "github.com/flexprice/paypal-ipn/internal/errors"
	"github.com/flexprice/paypal-ipn/internal/logger"
	"github.com/flexprice/paypal-ipn/internal/types"
)

// Guard keeps a notification from being applied twice. Both checks run before
// any mutation and Record runs only after the handler succeeded. Two
// concurrent deliveries of the same message can both pass the checks.
type Guard struct {
	ledger ledger.Repository
	logger *logger.Logger
}

func NewGuard(repo ledger.Repository, logger *logger.Logger) *Guard {
	return &Guard{ledger: repo, logger: logger}
}

// AlreadyHandled reports whether the tracking id was recorded for the type
func (g *Guard) AlreadyHandled(ctx context.Context, subscriptionID int64, trackID string, txnType types.PayPalTransactionType) (bool, error) {
	if trackID == "" {
		return false, nil
	}
	return g.exists(ctx, subscriptionID, ledger.KindTrackingID, ledger.TrackingKey(txnType, trackID))
}

// AlreadyHandledTransaction reports whether the (txn_id, type, status) triple was recorded
func (g *Guard) AlreadyHandledTransaction(ctx context.Context, subscriptionID int64, txnID string, txnType types.PayPalTransactionType, paymentStatus string) (bool, error) {
	if txnID == "" {
		return false, nil
	}
	return g.exists(ctx, subscriptionID, ledger.KindTransaction, ledger.TransactionKey(txnID, txnType, paymentStatus))
}

// Check runs both checks and returns a duplicate error when either matched
func (g *Guard) Check(ctx context.Context, subscriptionID int64, n *Notification) error {
	handled, err := g.AlreadyHandled(ctx, subscriptionID, n.IPNTrackID, n.TxnType)
	if err != nil {
		return err
	}
	if !handled {
		handled, err = g.AlreadyHandledTransaction(ctx, subscriptionID, n.TxnID, n.TxnType, n.PaymentStatus)
		if err != nil {
			return err
		}
	}
	if handled {
		return ierr.NewError("notification already handled").
			WithHint("Duplicate notification").
			WithReportableDetails(map[string]any{
				"subscription_id": subscriptionID,
				"txn_type":        n.TxnType,
				"ipn_track_id":    n.IPNTrackID,
				"txn_id":          n.TxnID,
			}).
			Mark(ierr.ErrDuplicate)
	}
	return nil
}

// Record appends the keys present on the notification in one write
func (g *Guard) Record(ctx context.Context, subscriptionID int64, n *Notification) error {
	entries := make([]*ledger.Entry, 0, 2)
	if n.IPNTrackID != "" {
		entries = append(entries, ledger.NewEntry(ctx, subscriptionID, ledger.KindTrackingID,
			ledger.TrackingKey(n.TxnType, n.IPNTrackID)))
	}
	if n.TxnID != "" {
		entries = append(entries, ledger.NewEntry(ctx, subscriptionID, ledger.KindTransaction,
			ledger.TransactionKey(n.TxnID, n.TxnType, n.PaymentStatus)))
	}
	if len(entries) == 0 {
		return nil
	}

	return g.ledger.Append(ctx, entries...)
}

func (g *Guard) exists(ctx context.Context, subscriptionID int64, kind ledger.Kind, key string) (bool, error) {
	found, err := g.ledger.Exists(ctx, subscriptionID, kind, key)
	if err != nil {
		return false, err
	}
	if found {
		g.logger.Infow("notification already handled",
			"subscription_id", subscriptionID,
			"kind", kind,
			"key", key,
		)
	}
	return found, nil
}
