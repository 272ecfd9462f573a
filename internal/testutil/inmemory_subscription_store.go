package testutil

import (
	"context"

	"github.com/flexprice/paypal-ipn/internal/domain/subscription"
	ierr "github.com/flexprice/paypal-ipn/internal/errors"
	"github.com/flexprice/paypal-ipn/internal/types"
	"github.com/samber/lo"
)

var _ subscription.Repository = (*InMemorySubscriptionStore)(nil)

// InMemorySubscriptionStore implements subscription.Repository. Records are
// copied in and out so callers only see what was saved.
type InMemorySubscriptionStore struct {
	*InMemoryStore[int64, *subscription.Subscription]
}

func NewInMemorySubscriptionStore() *InMemorySubscriptionStore {
	return &InMemorySubscriptionStore{
		InMemoryStore: NewInMemoryStore[int64, *subscription.Subscription](),
	}
}

// subscriptionFilterFn implements filtering logic for subscriptions
func subscriptionFilterFn(ctx context.Context, sub *subscription.Subscription, filter interface{}) bool {
	if sub == nil || !CheckTenantFilter(ctx, sub.TenantID) || sub.Status != types.StatusPublished {
		return false
	}

	f, ok := filter.(*types.SubscriptionFilter)
	if !ok || f == nil {
		return true
	}

	if f.ParentOrderID != 0 && sub.ParentOrderID != f.ParentOrderID {
		return false
	}
	if f.ProfileID != "" && sub.ProfileID != f.ProfileID {
		return false
	}
	if f.OrderKey != "" && sub.OrderKey != f.OrderKey {
		return false
	}
	if len(f.Statuses) > 0 && !lo.Contains(f.Statuses, sub.SubscriptionStatus) {
		return false
	}
	return true
}

// oldest first, ids break ties
func subscriptionSortFn(i, j *subscription.Subscription) bool {
	if i.CreatedAt.Equal(j.CreatedAt) {
		return i.ID < j.ID
	}
	return i.CreatedAt.Before(j.CreatedAt)
}

func copySubscription(sub *subscription.Subscription) *subscription.Subscription {
	c := *sub
	c.Metadata = make(types.Metadata, len(sub.Metadata))
	for k, v := range sub.Metadata {
		c.Metadata[k] = v
	}
	return &c
}

func (s *InMemorySubscriptionStore) Create(ctx context.Context, sub *subscription.Subscription) error {
	if sub.TenantID == "" {
		sub.TenantID = types.GetTenantID(ctx)
	}
	if sub.Status == "" {
		sub.Status = types.StatusPublished
	}
	return s.InMemoryStore.Create(ctx, sub.ID, copySubscription(sub))
}

func (s *InMemorySubscriptionStore) Get(ctx context.Context, id int64) (*subscription.Subscription, error) {
	sub, err := s.InMemoryStore.Get(ctx, id)
	if err != nil || !CheckTenantFilter(ctx, sub.TenantID) {
		return nil, subscription.NewNotFoundError(id)
	}
	return copySubscription(sub), nil
}

func (s *InMemorySubscriptionStore) Update(ctx context.Context, sub *subscription.Subscription) error {
	if err := s.InMemoryStore.Update(ctx, sub.ID, copySubscription(sub)); err != nil {
		return subscription.NewNotFoundError(sub.ID)
	}
	return nil
}

func (s *InMemorySubscriptionStore) List(ctx context.Context, filter *types.SubscriptionFilter) ([]*subscription.Subscription, error) {
	subs, err := s.InMemoryStore.List(ctx, filter, subscriptionFilterFn, subscriptionSortFn)
	if err != nil {
		return nil, err
	}
	return lo.Map(subs, func(sub *subscription.Subscription, _ int) *subscription.Subscription {
		return copySubscription(sub)
	}), nil
}

func (s *InMemorySubscriptionStore) GetByProfileID(ctx context.Context, profileID string) (*subscription.Subscription, error) {
	subs, err := s.List(ctx, &types.SubscriptionFilter{ProfileID: profileID})
	if err != nil {
		return nil, err
	}
	if profileID == "" || len(subs) == 0 {
		return nil, ierr.NewError("subscription not found").
			WithHintf("No subscription is bound to profile %s", profileID).
			Mark(ierr.ErrNotFound)
	}
	return subs[0], nil
}

func (s *InMemorySubscriptionStore) GetByOrderKey(ctx context.Context, orderKey string) (*subscription.Subscription, error) {
	subs, err := s.List(ctx, &types.SubscriptionFilter{OrderKey: orderKey})
	if err != nil {
		return nil, err
	}
	if orderKey == "" || len(subs) == 0 {
		return nil, ierr.NewError("subscription not found").
			WithHintf("No subscription owns order key %s", orderKey).
			Mark(ierr.ErrNotFound)
	}
	return subs[0], nil
}

func (s *InMemorySubscriptionStore) ListByParentOrder(ctx context.Context, parentOrderID int64) ([]*subscription.Subscription, error) {
	subs, err := s.List(ctx, &types.SubscriptionFilter{ParentOrderID: parentOrderID})
	if err != nil {
		return nil, err
	}
	return lo.Reverse(subs), nil
}
