package subscription

import (
	"context"

	"github.com/flexprice/paypal-ipn/internal/types"
)

type Repository interface {
	Create(ctx context.Context, subscription *Subscription) error
	Get(ctx context.Context, id int64) (*Subscription, error)
	Update(ctx context.Context, subscription *Subscription) error
	List(ctx context.Context, filter *types.SubscriptionFilter) ([]*Subscription, error)

	// GetByProfileID returns the oldest subscription bound to the processor profile
	GetByProfileID(ctx context.Context, profileID string) (*Subscription, error)

	// GetByOrderKey returns the subscription owning the order key
	GetByOrderKey(ctx context.Context, orderKey string) (*Subscription, error)

	// ListByParentOrder returns the subscriptions created by a checkout order, newest first
	ListByParentOrder(ctx context.Context, parentOrderID int64) ([]*Subscription, error)
}
