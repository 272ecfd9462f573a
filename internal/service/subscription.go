package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/flexprice/paypal-ipn/internal/domain/note"
	"github.com/flexprice/paypal-ipn/internal/domain/order"
	"github.com/flexprice/paypal-ipn/internal/domain/subscription"
	ierr "github.com/flexprice/paypal-ipn/internal/errors"
	"github.com/flexprice/paypal-ipn/internal/notify"
	"github.com/flexprice/paypal-ipn/internal/types"
)

type SubscriptionService interface {
	Get(ctx context.Context, id int64) (*subscription.Subscription, error)
	Save(ctx context.Context, sub *subscription.Subscription) error
	UpdateStatus(ctx context.Context, sub *subscription.Subscription, status types.SubscriptionStatus, note string) error
	Cancel(ctx context.Context, sub *subscription.Subscription, note string) error
	UpdatePaymentMethod(ctx context.Context, sub *subscription.Subscription, method string) error
	PaymentFailed(ctx context.Context, sub *subscription.Subscription, o *order.Order) error
	SaveProcessorMetadata(ctx context.Context, sub *subscription.Subscription, meta types.Metadata) error
	AddNote(ctx context.Context, sub *subscription.Subscription, content string) error
}

type subscriptionService struct {
	ServiceParams
	retry RetryPolicy
}

func NewSubscriptionService(params ServiceParams, retry RetryPolicy) SubscriptionService {
	return &subscriptionService{
		ServiceParams: params,
		retry:         retry,
	}
}

func (s *subscriptionService) Get(ctx context.Context, id int64) (*subscription.Subscription, error) {
	return s.SubRepo.Get(ctx, id)
}

func (s *subscriptionService) Save(ctx context.Context, sub *subscription.Subscription) error {
	sub.Touch(ctx)
	return s.SubRepo.Update(ctx, sub)
}

// UpdateStatus moves the subscription to a new status, notes the transition
// and keeps the PayPal profile in step unless the change came from PayPal
func (s *subscriptionService) UpdateStatus(ctx context.Context, sub *subscription.Subscription, status types.SubscriptionStatus, content string) error {
	if err := status.Validate(); err != nil {
		return err
	}

	previous := sub.SubscriptionStatus
	if previous == status {
		if content == "" {
			return nil
		}
		return s.AddNote(ctx, sub, content)
	}

	sub.SubscriptionStatus = status
	if err := s.Save(ctx, sub); err != nil {
		sub.SubscriptionStatus = previous
		return err
	}

	transition := fmt.Sprintf("Status changed from %s to %s.", previous, status)
	if err := s.AddNote(ctx, sub, strings.TrimSpace(content+" "+transition)); err != nil {
		return err
	}

	s.Logger.Infow("subscription status updated",
		"subscription_id", sub.ID,
		"from", previous,
		"to", status,
	)

	s.syncProcessor(ctx, sub, previous, status)
	s.publishStatusEvent(ctx, sub, previous)
	return nil
}

func (s *subscriptionService) Cancel(ctx context.Context, sub *subscription.Subscription, content string) error {
	if sub.SubscriptionStatus.IsClosed() && !sub.HasStatus(types.SubscriptionStatusCancelled) {
		return ierr.NewError("subscription can not be cancelled").
			WithHintf("Subscription is already %s", sub.SubscriptionStatus).
			WithReportableDetails(map[string]any{
				"subscription_id": sub.ID,
				"status":          sub.SubscriptionStatus,
			}).
			Mark(ierr.ErrInvalidOperation)
	}
	return s.UpdateStatus(ctx, sub, types.SubscriptionStatusCancelled, content)
}

func (s *subscriptionService) UpdatePaymentMethod(ctx context.Context, sub *subscription.Subscription, method string) error {
	previous := sub.PaymentMethod
	if previous == method {
		return nil
	}

	sub.PaymentMethod = method
	if err := s.Save(ctx, sub); err != nil {
		sub.PaymentMethod = previous
		return err
	}

	if err := s.AddNote(ctx, sub, fmt.Sprintf("Payment method changed from %q to %q.", previous, method)); err != nil {
		return err
	}

	s.publish(ctx, types.EventSubscriptionMethodChanged, map[string]interface{}{
		"subscription_id": sub.ID,
		"from":            previous,
		"to":              method,
	})
	return nil
}

// PaymentFailed fails the order of the current cycle and puts the subscription
// on-hold. Failed order emails are held back while a retry rule applies.
func (s *subscriptionService) PaymentFailed(ctx context.Context, sub *subscription.Subscription, o *order.Order) error {
	if o == nil {
		var err error
		o, err = s.lastOrder(ctx, sub)
		if err != nil {
			return err
		}
	}

	if o != nil {
		o.PaymentStatus = types.OrderPaymentStatusFailed
		o.FailedAttempts++
		o.Touch(ctx)
		if err := s.OrderRepo.Update(ctx, o); err != nil {
			return err
		}

		if o.IsRenewal() && s.retry.HasRule(o.FailedAttempts-1) && notify.Suppress(ctx, o.ID) {
			defer notify.Release(ctx, o.ID)
		}
		s.sendFailedOrderEmails(ctx, sub, o)
	}

	if !sub.HasStatus(types.SubscriptionStatusOnHold) {
		if err := s.UpdateStatus(ctx, sub, types.SubscriptionStatusOnHold, ""); err != nil {
			return err
		}
	}

	payload := map[string]interface{}{"subscription_id": sub.ID}
	if o != nil {
		payload["order_id"] = o.ID
		payload["failed_attempts"] = o.FailedAttempts
		s.publish(ctx, types.EventOrderPaymentFailed, payload)
	}
	s.publish(ctx, types.EventSubscriptionPaymentFailed, payload)
	return nil
}

func (s *subscriptionService) SaveProcessorMetadata(ctx context.Context, sub *subscription.Subscription, meta types.Metadata) error {
	if sub.Metadata == nil {
		sub.Metadata = make(types.Metadata)
	}
	sub.Metadata.Merge(meta)
	return s.Save(ctx, sub)
}

func (s *subscriptionService) AddNote(ctx context.Context, sub *subscription.Subscription, content string) error {
	return s.NoteRepo.Create(ctx, note.New(ctx, types.NoteEntityTypeSubscription, sub.ID, content))
}

// lastOrder returns the latest renewal order, falling back to the parent order
func (s *subscriptionService) lastOrder(ctx context.Context, sub *subscription.Subscription) (*order.Order, error) {
	renewal, err := s.OrderRepo.GetLatestRenewal(ctx, sub.ID)
	if err == nil {
		return renewal, nil
	}
	if !ierr.IsNotFound(err) {
		return nil, err
	}

	if sub.ParentOrderID == 0 {
		return nil, nil
	}
	parent, err := s.OrderRepo.Get(ctx, sub.ParentOrderID)
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return parent, nil
}

func (s *subscriptionService) sendFailedOrderEmails(ctx context.Context, sub *subscription.Subscription, o *order.Order) {
	emails := []string{types.EmailAdminFailedOrder}
	if o.IsRenewal() {
		emails = append([]string{types.EmailCustomerRenewalInvoice}, emails...)
	}

	for _, email := range emails {
		err := s.Notifier.Send(ctx, notify.EmailTrigger{
			Email:          email,
			OrderID:        o.ID,
			SubscriptionID: sub.ID,
		})
		if err != nil {
			s.Logger.Errorw("failed to send email trigger",
				"email", email,
				"order_id", o.ID,
				"error", err,
			)
		}
	}
}

// syncProcessor mirrors a local status change on the PayPal profile
func (s *subscriptionService) syncProcessor(ctx context.Context, sub *subscription.Subscription, from, to types.SubscriptionStatus) {
	if types.ProcessorSyncDisabled(ctx) || !sub.UsesPayPal() || sub.ProfileID == "" {
		return
	}

	var err error
	switch {
	case to == types.SubscriptionStatusOnHold:
		err = s.PayPal.SuspendProfile(ctx, sub.ProfileID, "Subscription put on-hold.")
	case to == types.SubscriptionStatusActive && from == types.SubscriptionStatusOnHold:
		err = s.PayPal.ReactivateProfile(ctx, sub.ProfileID, "Subscription reactivated.")
	case to == types.SubscriptionStatusCancelled:
		err = s.PayPal.CancelProfile(ctx, sub.ProfileID, "Subscription cancelled.")
	default:
		return
	}

	if err != nil {
		s.Logger.Errorw("failed to update paypal profile status",
			"subscription_id", sub.ID,
			"profile_id", sub.ProfileID,
			"status", to,
			"error", err,
		)
		content := fmt.Sprintf("PayPal profile %s could not be updated: %v", sub.ProfileID, err)
		if noteErr := s.AddNote(ctx, sub, content); noteErr != nil {
			s.Logger.Errorw("failed to note paypal profile sync failure",
				"subscription_id", sub.ID,
				"profile_id", sub.ProfileID,
				"error", noteErr,
			)
		}
	}
}

func (s *subscriptionService) publishStatusEvent(ctx context.Context, sub *subscription.Subscription, previous types.SubscriptionStatus) {
	var eventName string
	switch sub.SubscriptionStatus {
	case types.SubscriptionStatusActive:
		eventName = types.EventSubscriptionActivated
	case types.SubscriptionStatusOnHold:
		eventName = types.EventSubscriptionOnHold
	case types.SubscriptionStatusCancelled:
		eventName = types.EventSubscriptionCancelled
	default:
		return
	}

	s.publish(ctx, eventName, map[string]interface{}{
		"subscription_id": sub.ID,
		"from":            previous,
		"to":              sub.SubscriptionStatus,
	})
}

func (s *subscriptionService) publish(ctx context.Context, eventName string, payload interface{}) {
	if err := s.EventPublisher.Publish(ctx, eventName, payload); err != nil {
		s.Logger.Errorw("failed to publish event",
			"event_name", eventName,
			"error", err,
		)
	}
}
