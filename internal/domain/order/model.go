package order

import (
	"time"

	"github.com/flexprice/paypal-ipn/internal/types"
	"github.com/shopspring/decimal"
)

// Order is a payable record: the checkout (parent) order or one renewal cycle
type Order struct {
	ID       int64           `db:"id" json:"id"`
	OrderKey string          `db:"order_key" json:"order_key"`
	Type     types.OrderType `db:"order_type" json:"order_type"`

	// SubscriptionID links a renewal order to its subscription, 0 for parent orders
	SubscriptionID int64 `db:"subscription_id" json:"subscription_id"`

	CustomerID    string                   `db:"customer_id" json:"customer_id"`
	Total         decimal.Decimal          `db:"total" json:"total"`
	Currency      string                   `db:"currency" json:"currency"`
	PaymentStatus types.OrderPaymentStatus `db:"payment_status" json:"payment_status"`
	PaymentMethod string                   `db:"payment_method" json:"payment_method"`

	// TransactionID is the processor transaction that paid (or attempted to pay) the order
	TransactionID string `db:"transaction_id" json:"transaction_id"`

	// ProfileID is the processor recurring profile that collected the payment
	ProfileID string `db:"paypal_profile_id" json:"paypal_profile_id"`

	PaidAt         *time.Time     `db:"paid_at" json:"paid_at,omitempty"`
	FailedAttempts int            `db:"failed_attempts" json:"failed_attempts"`
	Metadata       types.Metadata `db:"metadata" json:"metadata"`

	types.BaseModel
}

// IsRenewal reports whether the order records a billing cycle of a subscription
func (o *Order) IsRenewal() bool {
	return o.Type == types.OrderTypeRenewal
}
