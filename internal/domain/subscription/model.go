package subscription

import (
	"github.com/flexprice/paypal-ipn/internal/types"
	"github.com/shopspring/decimal"
)

// Subscription is a recurring billing agreement paid through a payment processor.
// IDs share the numeric id space of orders.
type Subscription struct {
	// ID is the unique identifier for the subscription
	ID int64 `db:"id" json:"id"`

	// OrderKey is the opaque secret sent to the processor alongside the id
	OrderKey string `db:"order_key" json:"order_key"`

	// ParentOrderID is the checkout order that created the subscription, 0 when there is none
	ParentOrderID int64 `db:"parent_order_id" json:"parent_order_id"`

	// CustomerID is the identifier for the customer in our system
	CustomerID string `db:"customer_id" json:"customer_id"`

	SubscriptionStatus types.SubscriptionStatus `db:"subscription_status" json:"subscription_status"`

	// PaymentMethod identifies the gateway collecting renewals, e.g. "paypal"
	PaymentMethod string `db:"payment_method" json:"payment_method"`

	// CompletedPaymentCount only ever grows; it counts the paid parent and renewal orders
	CompletedPaymentCount int `db:"completed_payment_count" json:"completed_payment_count"`

	// RecurringTotal is charged for every renewal order
	RecurringTotal decimal.Decimal `db:"recurring_total" json:"recurring_total"`

	Currency string `db:"currency" json:"currency"`

	// Metadata holds processor supplied payer details
	Metadata types.Metadata `db:"metadata" json:"metadata"`

	IPNState

	types.BaseModel
}

// IPNState is the per-subscription state owned by the PayPal notification handler
type IPNState struct {
	// ProfileID is the PayPal recurring payments profile bound to the subscription
	ProfileID string `db:"paypal_profile_id" json:"paypal_profile_id"`

	// PreviousProfileID and PreviousPaymentMethod are captured when a notification
	// hands the subscription over to a new profile
	PreviousProfileID     string `db:"previous_profile_id" json:"previous_profile_id"`
	PreviousPaymentMethod string `db:"previous_payment_method" json:"previous_payment_method"`

	// FirstIPNSuperseded is set once the first payment was confirmed so the
	// next completed payment notification is never skipped
	FirstIPNSuperseded bool `db:"first_ipn_superseded" json:"first_ipn_superseded"`

	// RecoveryRenewalOrderID is the failed renewal order already recovered by a new sign up
	RecoveryRenewalOrderID int64 `db:"recovery_renewal_order_id" json:"recovery_renewal_order_id"`
}

// HasStatus reports whether the subscription is in any of the given statuses
func (s *Subscription) HasStatus(statuses ...types.SubscriptionStatus) bool {
	for _, status := range statuses {
		if s.SubscriptionStatus == status {
			return true
		}
	}
	return false
}

// IsFirstPayment reports whether no payment has been completed yet
func (s *Subscription) IsFirstPayment() bool {
	return s.CompletedPaymentCount < 1
}

// UsesPayPal reports whether PayPal collects the renewals
func (s *Subscription) UsesPayPal() bool {
	return s.PaymentMethod == types.PaymentMethodPayPal
}
