package order

import "context"

// Repository defines the interface for order persistence
type Repository interface {
	Create(ctx context.Context, order *Order) error
	Get(ctx context.Context, id int64) (*Order, error)
	Update(ctx context.Context, order *Order) error

	// GetByProfileID returns the oldest parent order bound to the processor profile
	GetByProfileID(ctx context.Context, profileID string) (*Order, error)

	// GetLatestRenewal returns the most recently created renewal order of a subscription
	GetLatestRenewal(ctx context.Context, subscriptionID int64) (*Order, error)

	// NextID reserves an id in the id space shared with subscriptions
	NextID(ctx context.Context) (int64, error)
}
