package testutil

import (
	"context"
	"sync/atomic"

	"github.com/flexprice/paypal-ipn/internal/domain/order"
	ierr "github.com/flexprice/paypal-ipn/internal/errors"
	"github.com/flexprice/paypal-ipn/internal/types"
)

var _ order.Repository = (*InMemoryOrderStore)(nil)

// firstGeneratedOrderID keeps generated ids clear of the ones fixtures pick by hand
const firstGeneratedOrderID = 10000

// InMemoryOrderStore implements order.Repository
type InMemoryOrderStore struct {
	*InMemoryStore[int64, *order.Order]
	nextID atomic.Int64
}

func NewInMemoryOrderStore() *InMemoryOrderStore {
	s := &InMemoryOrderStore{
		InMemoryStore: NewInMemoryStore[int64, *order.Order](),
	}
	s.nextID.Store(firstGeneratedOrderID)
	return s
}

func orderFilterFn(ctx context.Context, o *order.Order, filter interface{}) bool {
	if o == nil || !CheckTenantFilter(ctx, o.TenantID) || o.Status != types.StatusPublished {
		return false
	}
	match, ok := filter.(func(*order.Order) bool)
	return !ok || match(o)
}

func orderSortFn(i, j *order.Order) bool {
	if i.CreatedAt.Equal(j.CreatedAt) {
		return i.ID < j.ID
	}
	return i.CreatedAt.Before(j.CreatedAt)
}

func copyOrder(o *order.Order) *order.Order {
	c := *o
	c.Metadata = make(types.Metadata, len(o.Metadata))
	for k, v := range o.Metadata {
		c.Metadata[k] = v
	}
	return &c
}

func (s *InMemoryOrderStore) Create(ctx context.Context, o *order.Order) error {
	if o.TenantID == "" {
		o.TenantID = types.GetTenantID(ctx)
	}
	if o.Status == "" {
		o.Status = types.StatusPublished
	}
	return s.InMemoryStore.Create(ctx, o.ID, copyOrder(o))
}

func (s *InMemoryOrderStore) Get(ctx context.Context, id int64) (*order.Order, error) {
	o, err := s.InMemoryStore.Get(ctx, id)
	if err != nil || !CheckTenantFilter(ctx, o.TenantID) {
		return nil, order.NewNotFoundError(id)
	}
	return copyOrder(o), nil
}

func (s *InMemoryOrderStore) Update(ctx context.Context, o *order.Order) error {
	if err := s.InMemoryStore.Update(ctx, o.ID, copyOrder(o)); err != nil {
		return order.NewNotFoundError(o.ID)
	}
	return nil
}

func (s *InMemoryOrderStore) GetByProfileID(ctx context.Context, profileID string) (*order.Order, error) {
	orders, err := s.InMemoryStore.List(ctx, func(o *order.Order) bool {
		return profileID != "" && o.ProfileID == profileID && o.Type == types.OrderTypeParent
	}, orderFilterFn, orderSortFn)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, ierr.NewError("order not found").
			WithHintf("No order is bound to profile %s", profileID).
			Mark(ierr.ErrNotFound)
	}
	return copyOrder(orders[0]), nil
}

func (s *InMemoryOrderStore) GetLatestRenewal(ctx context.Context, subscriptionID int64) (*order.Order, error) {
	orders, err := s.InMemoryStore.List(ctx, func(o *order.Order) bool {
		return o.SubscriptionID == subscriptionID && o.IsRenewal()
	}, orderFilterFn, orderSortFn)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, ierr.NewError("order not found").
			WithHintf("Subscription %d has no renewal order", subscriptionID).
			Mark(ierr.ErrNotFound)
	}
	return copyOrder(orders[len(orders)-1]), nil
}

func (s *InMemoryOrderStore) NextID(ctx context.Context) (int64, error) {
	return s.nextID.Add(1), nil
}

// ListRenewals returns the renewal orders of a subscription, oldest first
func (s *InMemoryOrderStore) ListRenewals(ctx context.Context, subscriptionID int64) []*order.Order {
	orders, _ := s.InMemoryStore.List(ctx, func(o *order.Order) bool {
		return o.SubscriptionID == subscriptionID && o.IsRenewal()
	}, orderFilterFn, orderSortFn)
	return orders
}
