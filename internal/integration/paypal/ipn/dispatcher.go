package ipn

import (
	"context"
	"fmt"

	"github.com/flexprice/paypal-ipn/internal/config"
	"github.com/flexprice/paypal-ipn/internal/domain/order"
	"github.com/flexprice/paypal-ipn/internal/domain/subscription"
	ierr "github.com/flexprice/paypal-ipn/internal/errors"
	"github.com/flexprice/paypal-ipn/internal/logger"
	"github.com/flexprice/paypal-ipn/internal/types"
)

// order and subscription notes written by the handlers
const (
	noteSignupCompleted       = "IPN subscription sign up completed."
	noteMethodChanged         = "IPN subscription payment method changed to PayPal."
	notePaymentCompleted      = "IPN subscription payment completed."
	notePaymentStatus         = "IPN subscription payment %s."
	noteFailingMethodChanged  = "IPN subscription failing payment method changed."
	noteSubscriptionSuspended = "IPN subscription suspended."
	noteSubscriptionCancelled = "IPN subscription cancelled."
	notePaymentFailure        = "IPN subscription payment failure."
)

// Transaction is the resolved state a handler works on
type Transaction struct {
	Subscription *subscription.Subscription
	Notification *Notification
	HandOff      HandOff
	// IsFirstPayment is evaluated once before dispatch
	IsFirstPayment bool
}

type handlerFunc func(ctx context.Context, tx *Transaction) (Outcome, error)

// Dispatcher routes a notification to the handler of its transaction type
type Dispatcher struct {
	subscriptions SubscriptionLifecycle
	orders        OrderLifecycle
	renewals      RenewalOrderCreator
	profiles      ProfileCanceller
	identityToken string
	logger        *logger.Logger
	handlers      map[types.PayPalTransactionType]handlerFunc
}

func NewDispatcher(
	subscriptions SubscriptionLifecycle,
	orders OrderLifecycle,
	renewals RenewalOrderCreator,
	profiles ProfileCanceller,
	cfg *config.Configuration,
	logger *logger.Logger,
) (*Dispatcher, error) {
	d := &Dispatcher{
		subscriptions: subscriptions,
		orders:        orders,
		renewals:      renewals,
		profiles:      profiles,
		identityToken: cfg.PayPal.IdentityToken,
		logger:        logger,
	}

	d.handlers = map[types.PayPalTransactionType]handlerFunc{
		types.PayPalTxnSubscrSignup:                   d.handleSignup,
		types.PayPalTxnSubscrPayment:                  d.handlePayment,
		types.PayPalTxnRecurringPaymentSuspended:      d.handleSuspended,
		types.PayPalTxnSubscrCancel:                   d.handleCancel,
		types.PayPalTxnSubscrEOT:                      d.handleLogOnly,
		types.PayPalTxnSubscrModify:                   d.handleLogOnly,
		types.PayPalTxnRecurringPaymentSkipped:        d.handleLogOnly,
		types.PayPalTxnSubscrFailed:                   d.handleFailure,
		types.PayPalTxnRecurringPaymentSuspendedMaxed: d.handleFailure,
	}

	for _, txnType := range types.PayPalTransactionTypes {
		if _, ok := d.handlers[txnType]; !ok {
			return nil, ierr.NewError("missing transaction handler").
				WithHintf("No handler is registered for transaction type %s", txnType).
				Mark(ierr.ErrSystem)
		}
	}
	return d, nil
}

// Dispatch runs the handler of the notification's transaction type
func (d *Dispatcher) Dispatch(ctx context.Context, tx *Transaction) (Outcome, error) {
	handler, ok := d.handlers[tx.Notification.TxnType]
	if !ok {
		return OutcomeRejected, ierr.NewError("unsupported transaction type").
			WithHintf("Transaction type %s is not handled", tx.Notification.TxnType).
			Mark(ierr.ErrValidation)
	}
	return handler(ctx, tx)
}

func (d *Dispatcher) handleSignup(ctx context.Context, tx *Transaction) (Outcome, error) {
	sub, n := tx.Subscription, tx.Notification
	meta := n.Metadata()

	if err := d.subscriptions.SaveProcessorMetadata(ctx, sub, meta); err != nil {
		return OutcomeRejected, err
	}

	parent, err := d.parentOrder(ctx, sub)
	if err != nil {
		return OutcomeRejected, err
	}
	if parent != nil {
		if err := d.orders.SaveProcessorMetadata(ctx, parent, meta); err != nil {
			return OutcomeRejected, err
		}

		// free trials have nothing to collect at sign up
		if !tx.HandOff.Active() && parent.Total.IsZero() {
			if err := d.orders.CompletePayment(ctx, sub, parent, ""); err != nil {
				return OutcomeRejected, err
			}
			sub.FirstIPNSuperseded = true
			if err := d.subscriptions.Save(ctx, sub); err != nil {
				return OutcomeRejected, err
			}
		}
	}

	if tx.HandOff.PaymentMethodChange {
		if err := d.subscriptions.UpdatePaymentMethod(ctx, sub, types.PaymentMethodPayPal); err != nil {
			return OutcomeRejected, err
		}
		if sub.PreviousPaymentMethod == types.PaymentMethodPayPal {
			d.cancelPreviousProfile(ctx, sub, n)
		}
		if err := d.subscriptions.AddNote(ctx, sub, noteMethodChanged); err != nil {
			return OutcomeRejected, err
		}
		d.logger.Infow("IPN subscription payment method changed", "subscription_id", sub.ID)
		return OutcomeProcessed, nil
	}

	if err := d.subscriptions.AddNote(ctx, sub, noteSignupCompleted); err != nil {
		return OutcomeRejected, err
	}
	d.logger.Infow("IPN subscription sign up completed", "subscription_id", sub.ID)
	return OutcomeProcessed, nil
}

func (d *Dispatcher) handlePayment(ctx context.Context, tx *Transaction) (Outcome, error) {
	switch tx.Notification.NormalizedPaymentStatus() {
	case types.PayPalPaymentStatusCompleted:
		return d.handlePaymentCompleted(ctx, tx)
	case types.PayPalPaymentStatusPending, types.PayPalPaymentStatusFailed:
		return d.handlePaymentNotCompleted(ctx, tx)
	default:
		d.logger.Infow("IPN subscription payment notification received",
			"subscription_id", tx.Subscription.ID,
			"payment_status", tx.Notification.PaymentStatus,
		)
		return OutcomeProcessed, nil
	}
}

func (d *Dispatcher) handlePaymentCompleted(ctx context.Context, tx *Transaction) (Outcome, error) {
	sub, n := tx.Subscription, tx.Notification

	if err := d.subscriptions.SaveProcessorMetadata(ctx, sub, n.Metadata()); err != nil {
		return OutcomeRejected, err
	}
	if err := d.subscriptions.AddNote(ctx, sub, notePaymentCompleted); err != nil {
		return OutcomeRejected, err
	}

	switch {
	case tx.IsFirstPayment:
		parent, err := d.parentOrder(ctx, sub)
		if err != nil {
			return OutcomeRejected, err
		}
		if parent != nil {
			if err := d.orders.CompletePayment(ctx, sub, parent, n.TxnID); err != nil {
				return OutcomeRejected, err
			}
			if err := d.orders.SaveProcessorMetadata(ctx, parent, n.Metadata()); err != nil {
				return OutcomeRejected, err
			}
		}
		// the next completed payment must never be mistaken for one PDT confirmed
		sub.FirstIPNSuperseded = true
		if err := d.subscriptions.Save(ctx, sub); err != nil {
			return OutcomeRejected, err
		}

	case d.identityToken != "" && sub.CompletedPaymentCount == 1 && !sub.FirstIPNSuperseded && !tx.HandOff.IsRecovery():
		d.logger.Infow("IPN subscription payment ignored, already confirmed by PDT",
			"subscription_id", sub.ID,
		)
		sub.FirstIPNSuperseded = true
		if err := d.subscriptions.Save(ctx, sub); err != nil {
			return OutcomeRejected, err
		}

	case !sub.SubscriptionStatus.IsClosed():
		if err := d.completeRenewal(ctx, tx); err != nil {
			return OutcomeRejected, err
		}

	default:
		d.logger.Infow("IPN subscription payment not applied to a closed subscription",
			"subscription_id", sub.ID,
			"status", sub.SubscriptionStatus,
		)
	}

	d.logger.Infow("IPN subscription payment completed", "subscription_id", sub.ID)
	return OutcomeProcessed, nil
}

// completeRenewal records a renewal payment. PayPal keeps collecting on its
// own so the processor is never told to reactivate.
func (d *Dispatcher) completeRenewal(ctx context.Context, tx *Transaction) error {
	sub, n := tx.Subscription, tx.Notification
	ctx = types.WithoutProcessorSync(ctx)

	renewal, err := d.renewalOrder(ctx, tx)
	if err != nil {
		return err
	}

	if tx.HandOff.IsRecovery() {
		sub.RecoveryRenewalOrderID = renewal.ID
		if err := d.subscriptions.Save(ctx, sub); err != nil {
			return err
		}

		if sub.PreviousPaymentMethod == types.PaymentMethodPayPal {
			d.cancelPreviousProfile(ctx, sub, n)
			if err := d.subscriptions.AddNote(ctx, sub, noteFailingMethodChanged); err != nil {
				return err
			}
		}
	}

	if err := d.orders.CompletePayment(ctx, sub, renewal, n.TxnID); err != nil {
		return err
	}
	if err := d.orders.AddNote(ctx, renewal, notePaymentCompleted); err != nil {
		return err
	}
	return d.orders.SetProfileID(ctx, renewal, n.SubscrID)
}

func (d *Dispatcher) handlePaymentNotCompleted(ctx context.Context, tx *Transaction) (Outcome, error) {
	sub, n := tx.Subscription, tx.Notification
	note := fmt.Sprintf(notePaymentStatus, n.PaymentStatus)

	if err := d.subscriptions.AddNote(ctx, sub, note); err != nil {
		return OutcomeRejected, err
	}

	if !tx.IsFirstPayment {
		renewal, err := d.renewalOrder(ctx, tx)
		if err != nil {
			return OutcomeRejected, err
		}
		if err := d.orders.SetTransactionID(ctx, renewal, n.TxnID); err != nil {
			return OutcomeRejected, err
		}
		if err := d.orders.AddNote(ctx, renewal, note); err != nil {
			return OutcomeRejected, err
		}
		if err := d.subscriptions.PaymentFailed(ctx, sub, renewal); err != nil {
			return OutcomeRejected, err
		}
	}

	d.logger.Infow("IPN subscription payment failed",
		"subscription_id", sub.ID,
		"payment_status", n.PaymentStatus,
	)
	return OutcomeProcessed, nil
}

func (d *Dispatcher) handleSuspended(ctx context.Context, tx *Transaction) (Outcome, error) {
	sub := tx.Subscription
	if sub.HasStatus(types.SubscriptionStatusOnHold) {
		d.logger.Infow("IPN recurring_payment_suspended ignored, subscription already on-hold",
			"subscription_id", sub.ID,
		)
		return OutcomeIgnored, nil
	}

	// already suspended at PayPal
	ctx = types.WithoutProcessorSync(ctx)
	if err := d.subscriptions.UpdateStatus(ctx, sub, types.SubscriptionStatusOnHold, noteSubscriptionSuspended); err != nil {
		return OutcomeRejected, err
	}

	d.logger.Infow("IPN subscription suspended", "subscription_id", sub.ID)
	return OutcomeProcessed, nil
}

func (d *Dispatcher) handleCancel(ctx context.Context, tx *Transaction) (Outcome, error) {
	sub, n := tx.Subscription, tx.Notification
	if sub.ProfileID != n.SubscrID {
		d.logger.Infow("IPN subscription cancellation ignored, a new profile is linked",
			"subscription_id", sub.ID,
			"profile_id", sub.ProfileID,
			"subscr_id", n.SubscrID,
		)
		return OutcomeIgnored, nil
	}

	// the profile is already cancelled at PayPal
	ctx = types.WithoutProcessorSync(ctx)
	if err := d.subscriptions.Cancel(ctx, sub, noteSubscriptionCancelled); err != nil {
		return OutcomeRejected, err
	}

	d.logger.Infow("IPN subscription cancelled", "subscription_id", sub.ID)
	return OutcomeProcessed, nil
}

func (d *Dispatcher) handleLogOnly(_ context.Context, tx *Transaction) (Outcome, error) {
	d.logger.Infow("IPN request ignored",
		"subscription_id", tx.Subscription.ID,
		"txn_type", tx.Notification.TxnType,
	)
	return OutcomeIgnored, nil
}

func (d *Dispatcher) handleFailure(ctx context.Context, tx *Transaction) (Outcome, error) {
	sub := tx.Subscription
	d.logger.Infow("IPN subscription payment failure",
		"subscription_id", sub.ID,
		"txn_type", tx.Notification.TxnType,
	)

	if err := d.subscriptions.AddNote(ctx, sub, notePaymentFailure); err != nil {
		return OutcomeRejected, err
	}
	if err := d.subscriptions.PaymentFailed(ctx, sub, nil); err != nil {
		return OutcomeRejected, err
	}
	return OutcomeProcessed, nil
}

func (d *Dispatcher) parentOrder(ctx context.Context, sub *subscription.Subscription) (*order.Order, error) {
	if sub.ParentOrderID == 0 {
		return nil, nil
	}
	return d.orders.Get(ctx, sub.ParentOrderID)
}

// renewalOrder returns the order a renewal payment applies to: the recovered
// order for a recovery sign up, otherwise a new renewal order
func (d *Dispatcher) renewalOrder(ctx context.Context, tx *Transaction) (*order.Order, error) {
	if tx.HandOff.IsRecovery() {
		return tx.HandOff.RecoveryOrder, nil
	}

	renewal, err := d.renewals.CreateRenewalOrder(ctx, tx.Subscription)
	if err != nil {
		return nil, err
	}
	if err := d.orders.SetPaymentMethod(ctx, renewal, types.PaymentMethodPayPal); err != nil {
		return nil, err
	}
	return renewal, nil
}

// cancelPreviousProfile cancels the profile a hand-off replaced. It never
// cancels the profile of the current notification, and failures only get logged.
func (d *Dispatcher) cancelPreviousProfile(ctx context.Context, sub *subscription.Subscription, n *Notification) {
	previous := sub.PreviousProfileID
	if previous == "" || previous == n.SubscrID {
		return
	}

	if err := d.profiles.CancelProfile(ctx, previous, fmt.Sprintf("Subscription %d moved to profile %s", sub.ID, n.SubscrID)); err != nil {
		d.logger.Errorw("failed to cancel previous paypal profile",
			"subscription_id", sub.ID,
			"profile_id", previous,
			"error", err,
		)
	}
}
