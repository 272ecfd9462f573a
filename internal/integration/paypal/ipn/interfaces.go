package ipn

import (
	"context"

	"github.com/flexprice/paypal-ipn/internal/domain/order"
	"github.com/flexprice/paypal-ipn/internal/domain/subscription"
	"github.com/flexprice/paypal-ipn/internal/types"
)

// SubscriptionLifecycle applies status and payment method changes to subscriptions
type SubscriptionLifecycle interface {
	// Save persists the subscription including its IPN state
	Save(ctx context.Context, sub *subscription.Subscription) error
	UpdateStatus(ctx context.Context, sub *subscription.Subscription, status types.SubscriptionStatus, note string) error
	Cancel(ctx context.Context, sub *subscription.Subscription, note string) error
	UpdatePaymentMethod(ctx context.Context, sub *subscription.Subscription, method string) error
	// PaymentFailed fails the given order, or the latest unpaid one when nil, and holds the subscription
	PaymentFailed(ctx context.Context, sub *subscription.Subscription, o *order.Order) error
	SaveProcessorMetadata(ctx context.Context, sub *subscription.Subscription, meta types.Metadata) error
	AddNote(ctx context.Context, sub *subscription.Subscription, note string) error
}

// OrderLifecycle applies payment changes to parent and renewal orders
type OrderLifecycle interface {
	Get(ctx context.Context, id int64) (*order.Order, error)
	// CompletePayment marks the order paid and records the payment on the subscription
	CompletePayment(ctx context.Context, sub *subscription.Subscription, o *order.Order, transactionID string) error
	SetTransactionID(ctx context.Context, o *order.Order, transactionID string) error
	SetPaymentMethod(ctx context.Context, o *order.Order, method string) error
	SetProfileID(ctx context.Context, o *order.Order, profileID string) error
	SaveProcessorMetadata(ctx context.Context, o *order.Order, meta types.Metadata) error
	AddNote(ctx context.Context, o *order.Order, note string) error
}

// RenewalOrderCreator creates the payable order of one billing cycle
type RenewalOrderCreator interface {
	CreateRenewalOrder(ctx context.Context, sub *subscription.Subscription) (*order.Order, error)
}

// ProfileCanceller cancels recurring payment profiles at PayPal
type ProfileCanceller interface {
	CancelProfile(ctx context.Context, profileID, note string) error
}

// EventPublisher publishes admin facing events
type EventPublisher interface {
	Publish(ctx context.Context, eventName string, payload interface{}) error
}
