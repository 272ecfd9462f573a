package service

import (
	"context"

	"github.com/flexprice/paypal-ipn/internal/domain/order"
	"github.com/flexprice/paypal-ipn/internal/domain/subscription"
	"github.com/flexprice/paypal-ipn/internal/types"
)

// RenewalService creates the payable order of a billing cycle
type RenewalService interface {
	CreateRenewalOrder(ctx context.Context, sub *subscription.Subscription) (*order.Order, error)
}

type renewalService struct {
	ServiceParams
}

func NewRenewalService(params ServiceParams) RenewalService {
	return &renewalService{ServiceParams: params}
}

// CreateRenewalOrder creates a pending renewal order charging the subscription's recurring total
func (s *renewalService) CreateRenewalOrder(ctx context.Context, sub *subscription.Subscription) (*order.Order, error) {
	id, err := s.OrderRepo.NextID(ctx)
	if err != nil {
		return nil, err
	}

	o := &order.Order{
		ID:             id,
		OrderKey:       types.GenerateUUIDWithPrefix(types.UUID_PREFIX_ORDER_KEY),
		Type:           types.OrderTypeRenewal,
		SubscriptionID: sub.ID,
		CustomerID:     sub.CustomerID,
		Total:          sub.RecurringTotal,
		Currency:       sub.Currency,
		PaymentStatus:  types.OrderPaymentStatusPending,
		PaymentMethod:  sub.PaymentMethod,
		Metadata:       make(types.Metadata),
		BaseModel:      types.GetDefaultBaseModel(ctx),
	}

	if err := s.OrderRepo.Create(ctx, o); err != nil {
		return nil, err
	}

	s.Logger.Infow("renewal order created",
		"order_id", o.ID,
		"subscription_id", sub.ID,
		"total", o.Total.String(),
	)

	if err := s.EventPublisher.Publish(ctx, types.EventRenewalOrderCreated, map[string]interface{}{
		"order_id":        o.ID,
		"subscription_id": sub.ID,
		"total":           o.Total.String(),
		"currency":        o.Currency,
	}); err != nil {
		s.Logger.Errorw("failed to publish event",
			"event_name", types.EventRenewalOrderCreated,
			"error", err,
		)
	}
	return o, nil
}
