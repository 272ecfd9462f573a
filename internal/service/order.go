package service

import (
	"context"
	"time"

	"github.com/flexprice/paypal-ipn/internal/domain/note"
	"github.com/flexprice/paypal-ipn/internal/domain/order"
	"github.com/flexprice/paypal-ipn/internal/domain/subscription"
	"github.com/flexprice/paypal-ipn/internal/types"
)

type OrderService interface {
	Get(ctx context.Context, id int64) (*order.Order, error)
	CompletePayment(ctx context.Context, sub *subscription.Subscription, o *order.Order, transactionID string) error
	SetTransactionID(ctx context.Context, o *order.Order, transactionID string) error
	SetPaymentMethod(ctx context.Context, o *order.Order, method string) error
	SetProfileID(ctx context.Context, o *order.Order, profileID string) error
	SaveProcessorMetadata(ctx context.Context, o *order.Order, meta types.Metadata) error
	AddNote(ctx context.Context, o *order.Order, content string) error
}

type orderService struct {
	ServiceParams
	subscriptions SubscriptionService
}

func NewOrderService(params ServiceParams, subscriptions SubscriptionService) OrderService {
	return &orderService{
		ServiceParams: params,
		subscriptions: subscriptions,
	}
}

func (s *orderService) Get(ctx context.Context, id int64) (*order.Order, error) {
	return s.OrderRepo.Get(ctx, id)
}

// CompletePayment marks the order paid, counts the payment on the subscription
// and activates it. Paying an already paid order changes nothing.
func (s *orderService) CompletePayment(ctx context.Context, sub *subscription.Subscription, o *order.Order, transactionID string) error {
	if o.PaymentStatus.IsPaid() {
		s.Logger.Infow("order already paid",
			"order_id", o.ID,
			"transaction_id", transactionID,
		)
		return nil
	}

	err := s.DB.WithTx(ctx, func(txCtx context.Context) error {
		now := time.Now().UTC()
		o.PaymentStatus = types.OrderPaymentStatusCompleted
		o.PaidAt = &now
		if transactionID != "" {
			o.TransactionID = transactionID
		}
		o.Touch(txCtx)
		if err := s.OrderRepo.Update(txCtx, o); err != nil {
			return err
		}

		sub.CompletedPaymentCount++
		if sub.HasStatus(types.SubscriptionStatusPending, types.SubscriptionStatusOnHold) {
			return s.subscriptions.UpdateStatus(txCtx, sub, types.SubscriptionStatusActive, "")
		}
		return s.subscriptions.Save(txCtx, sub)
	})
	if err != nil {
		return err
	}

	s.Logger.Infow("order payment completed",
		"order_id", o.ID,
		"subscription_id", sub.ID,
		"completed_payment_count", sub.CompletedPaymentCount,
	)

	if err := s.EventPublisher.Publish(ctx, types.EventOrderPaymentCompleted, map[string]interface{}{
		"order_id":        o.ID,
		"subscription_id": sub.ID,
		"transaction_id":  o.TransactionID,
	}); err != nil {
		s.Logger.Errorw("failed to publish event",
			"event_name", types.EventOrderPaymentCompleted,
			"error", err,
		)
	}
	return nil
}

func (s *orderService) SetTransactionID(ctx context.Context, o *order.Order, transactionID string) error {
	o.TransactionID = transactionID
	return s.save(ctx, o)
}

func (s *orderService) SetPaymentMethod(ctx context.Context, o *order.Order, method string) error {
	o.PaymentMethod = method
	return s.save(ctx, o)
}

func (s *orderService) SetProfileID(ctx context.Context, o *order.Order, profileID string) error {
	o.ProfileID = profileID
	return s.save(ctx, o)
}

func (s *orderService) SaveProcessorMetadata(ctx context.Context, o *order.Order, meta types.Metadata) error {
	if o.Metadata == nil {
		o.Metadata = make(types.Metadata)
	}
	o.Metadata.Merge(meta)
	return s.save(ctx, o)
}

func (s *orderService) AddNote(ctx context.Context, o *order.Order, content string) error {
	return s.NoteRepo.Create(ctx, note.New(ctx, types.NoteEntityTypeOrder, o.ID, content))
}

func (s *orderService) save(ctx context.Context, o *order.Order) error {
	o.Touch(ctx)
	return s.OrderRepo.Update(ctx, o)
}
