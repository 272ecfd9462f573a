package types

import (
	ierr "github.com/flexprice/paypal-ipn/internal/errors"
	"github.com/samber/lo"
)

// OrderType distinguishes the checkout order from the per-cycle renewal orders
type OrderType string

const (
	OrderTypeParent  OrderType = "parent"
	OrderTypeRenewal OrderType = "renewal"
)

func (t OrderType) Validate() error {
	allowed := []OrderType{OrderTypeParent, OrderTypeRenewal}
	if !lo.Contains(allowed, t) {
		return ierr.NewError("invalid order type").
			WithHint("Invalid order type").
			WithReportableDetails(map[string]any{
				"order_type": t,
				"allowed":    allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// OrderPaymentStatus is the payment lifecycle of an order
type OrderPaymentStatus string

const (
	OrderPaymentStatusPending    OrderPaymentStatus = "pending"
	OrderPaymentStatusProcessing OrderPaymentStatus = "processing"
	OrderPaymentStatusCompleted  OrderPaymentStatus = "completed"
	OrderPaymentStatusFailed     OrderPaymentStatus = "failed"
)

func (s OrderPaymentStatus) String() string {
	return string(s)
}

// NeedsPayment reports whether the order can still be paid
func (s OrderPaymentStatus) NeedsPayment() bool {
	return s == OrderPaymentStatusPending || s == OrderPaymentStatusFailed
}

// IsPaid reports whether the order has been paid
func (s OrderPaymentStatus) IsPaid() bool {
	return s == OrderPaymentStatusProcessing || s == OrderPaymentStatusCompleted
}

// NoteEntityType is the kind of record an order note is attached to
type NoteEntityType string

const (
	NoteEntityTypeSubscription NoteEntityType = "subscription"
	NoteEntityTypeOrder        NoteEntityType = "order"
)
