package types

import (
	ierr "github.com/flexprice/paypal-ipn/internal/errors"
	"github.com/samber/lo"
)

// SubscriptionStatus is the lifecycle status of a recurring subscription
type SubscriptionStatus string

const (
	SubscriptionStatusPending       SubscriptionStatus = "pending"
	SubscriptionStatusActive        SubscriptionStatus = "active"
	SubscriptionStatusOnHold        SubscriptionStatus = "on-hold"
	SubscriptionStatusCancelled     SubscriptionStatus = "cancelled"
	SubscriptionStatusExpired       SubscriptionStatus = "expired"
	SubscriptionStatusSwitched      SubscriptionStatus = "switched"
	SubscriptionStatusPendingCancel SubscriptionStatus = "pending-cancel"
	SubscriptionStatusTrash         SubscriptionStatus = "trash"
)

// SubscriptionStatusesClosed are the statuses in which a renewal payment is no longer applied
var SubscriptionStatusesClosed = []SubscriptionStatus{
	SubscriptionStatusCancelled,
	SubscriptionStatusExpired,
	SubscriptionStatusSwitched,
	SubscriptionStatusTrash,
}

func (s SubscriptionStatus) String() string {
	return string(s)
}

func (s SubscriptionStatus) Validate() error {
	allowed := []SubscriptionStatus{
		SubscriptionStatusPending,
		SubscriptionStatusActive,
		SubscriptionStatusOnHold,
		SubscriptionStatusCancelled,
		SubscriptionStatusExpired,
		SubscriptionStatusSwitched,
		SubscriptionStatusPendingCancel,
		SubscriptionStatusTrash,
	}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid subscription status").
			WithHint("Invalid subscription status").
			WithReportableDetails(map[string]any{
				"status":         s,
				"allowed_status": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// IsClosed reports whether renewal payments should no longer be applied
func (s SubscriptionStatus) IsClosed() bool {
	return lo.Contains(SubscriptionStatusesClosed, s)
}

// SubscriptionFilter narrows subscription listings
type SubscriptionFilter struct {
	ParentOrderID int64
	ProfileID     string
	OrderKey      string
	Statuses      []SubscriptionStatus
}
