// Package ledger holds the per-subscription record of processor notifications
// that have already been applied. Both sets are append-only.
package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/flexprice/paypal-ipn/internal/types"
)

// Kind separates the two independent deduplication sets
type Kind string

const (
	// KindTrackingID entries are keyed by "<txn_type>_<ipn_track_id>"
	KindTrackingID Kind = "tracking_id"
	// KindTransaction entries are keyed by "<txn_id>_<txn_type>_<payment_status>"
	KindTransaction Kind = "transaction"
)

// Entry is one handled notification key
type Entry struct {
	ID             string    `db:"id" json:"id"`
	TenantID       string    `db:"tenant_id" json:"tenant_id"`
	SubscriptionID int64     `db:"subscription_id" json:"subscription_id"`
	Kind           Kind      `db:"kind" json:"kind"`
	Key            string    `db:"entry_key" json:"entry_key"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// NewEntry builds an entry for the current tenant
func NewEntry(ctx context.Context, subscriptionID int64, kind Kind, key string) *Entry {
	return &Entry{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_LEDGER),
		TenantID:       types.GetTenantID(ctx),
		SubscriptionID: subscriptionID,
		Kind:           kind,
		Key:            key,
		CreatedAt:      time.Now().UTC(),
	}
}

// TrackingKey builds the tracking-id key. ipn_track_id is shared between
// transaction types so the type is part of the key.
func TrackingKey(txnType types.PayPalTransactionType, trackID string) string {
	return string(txnType) + "_" + trackID
}

// TransactionKey builds the transaction key. The same txn_id is reused for each
// payment status callback, so every (type, status) pair is recorded on its own.
// Missing parts are left out like the processor payload leaves them out.
func TransactionKey(txnID string, txnType types.PayPalTransactionType, paymentStatus string) string {
	parts := []string{txnID}
	if txnType != "" {
		parts = append(parts, string(txnType))
	}
	if paymentStatus != "" {
		parts = append(parts, paymentStatus)
	}
	return strings.Join(parts, "_")
}

type Repository interface {
	// Exists reports whether the key was already recorded for the subscription
	Exists(ctx context.Context, subscriptionID int64, kind Kind, key string) (bool, error)

	// Append records all entries in a single write
	Append(ctx context.Context, entries ...*Entry) error

	List(ctx context.Context, subscriptionID int64, kind Kind) ([]*Entry, error)
}
