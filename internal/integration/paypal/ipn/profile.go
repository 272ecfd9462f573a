package ipn

import (
	"context"
	"strings"

	"github.com/flexprice/paypal-ipn/internal/domain/order"
	"github.com/flexprice/paypal-ipn/internal/domain/subscription"
	ierr "github.com/flexprice/paypal-ipn/internal/errors"
	"github.com/flexprice/paypal-ipn/internal/logger"
	"github.com/flexprice/paypal-ipn/internal/types"
)

// HandOff describes a notification that moves a subscription onto a new PayPal profile
type HandOff struct {
	// RecoveryOrder is the failed renewal order paid by a new sign up, nil otherwise
	RecoveryOrder *order.Order
	// PaymentMethodChange is set for sign ups switching the subscription to PayPal
	PaymentMethodChange bool
}

// IsRecovery reports whether the notification pays a failed renewal order
func (h HandOff) IsRecovery() bool {
	return h.RecoveryOrder != nil
}

// Active reports whether the notification may act on a subscription not yet using PayPal
func (h HandOff) Active() bool {
	return h.IsRecovery() || h.PaymentMethodChange
}

// ProfileReconciler tracks which PayPal profile a subscription is bound to
type ProfileReconciler struct {
	subscriptions SubscriptionLifecycle
	orders        OrderLifecycle
	events        EventPublisher
	logger        *logger.Logger
}

func NewProfileReconciler(
	subscriptions SubscriptionLifecycle,
	orders OrderLifecycle,
	events EventPublisher,
	logger *logger.Logger,
) *ProfileReconciler {
	return &ProfileReconciler{
		subscriptions: subscriptions,
		orders:        orders,
		events:        events,
		logger:        logger,
	}
}

// GetProfileID returns the profile currently bound to the subscription
func (p *ProfileReconciler) GetProfileID(sub *subscription.Subscription) string {
	return sub.ProfileID
}

// SetProfileID binds the subscription to a profile and persists it
func (p *ProfileReconciler) SetProfileID(ctx context.Context, sub *subscription.Subscription, profileID string) error {
	sub.ProfileID = profileID
	if err := p.subscriptions.Save(ctx, sub); err != nil {
		return err
	}

	if IsOutOfDateProfileID(profileID) {
		p.logger.Warnw("subscription bound to an out of date paypal profile",
			"subscription_id", sub.ID,
			"profile_id", profileID,
		)
		payload := map[string]interface{}{
			"subscription_id": sub.ID,
			"profile_id":      profileID,
		}
		if err := p.events.Publish(ctx, types.EventPayPalOutOfDateProfileSeen, payload); err != nil {
			p.logger.Errorw("failed to publish out of date profile event",
				"subscription_id", sub.ID,
				"error", err,
			)
		}
	}
	return nil
}

// DetectHandOff inspects the invoice markers of a notification
func (p *ProfileReconciler) DetectHandOff(ctx context.Context, sub *subscription.Subscription, n *Notification) (HandOff, error) {
	recovery, err := p.IsRecoverySignup(ctx, sub, n)
	if err != nil {
		return HandOff{}, err
	}
	return HandOff{
		RecoveryOrder:       recovery,
		PaymentMethodChange: IsPaymentMethodChange(n),
	}, nil
}

// IsRecoverySignup returns the failed renewal order a sign up or payment is
// paying for, or nil when the notification is not such a recovery or the
// order was already recovered
func (p *ProfileReconciler) IsRecoverySignup(ctx context.Context, sub *subscription.Subscription, n *Notification) (*order.Order, error) {
	if n.TxnType != types.PayPalTxnSubscrSignup && n.TxnType != types.PayPalTxnSubscrPayment {
		return nil, nil
	}
	if !n.HasMarker(types.PayPalMarkerFailedRenewalRecovery) {
		return nil, nil
	}

	orderID := coerceID(n.Invoice[strings.LastIndex(n.Invoice, "-")+1:])
	renewal, err := p.orders.Get(ctx, orderID)
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil, ierr.WithError(err).
				WithHintf("Invoice %s references an unknown renewal order", n.Invoice).
				WithReportableDetails(map[string]any{
					"subscription_id": sub.ID,
					"invoice":         n.Invoice,
				}).
				Mark(ierr.ErrValidation)
		}
		return nil, err
	}

	if !renewal.IsRenewal() || renewal.SubscriptionID != sub.ID {
		return nil, ierr.NewError("recovery order does not belong to the subscription").
			WithHintf("Invoice %s references an order that is not a renewal of subscription %d", n.Invoice, sub.ID).
			WithReportableDetails(map[string]any{
				"subscription_id":       sub.ID,
				"order_id":              renewal.ID,
				"order_subscription_id": renewal.SubscriptionID,
				"invoice":               n.Invoice,
			}).
			Mark(ierr.ErrValidation)
	}

	if renewal.ID == sub.RecoveryRenewalOrderID {
		return nil, nil
	}
	return renewal, nil
}

// IsPaymentMethodChange reports sign ups created to switch a subscription to PayPal
func IsPaymentMethodChange(n *Notification) bool {
	return n.TxnType == types.PayPalTxnSubscrSignup && n.HasMarker(types.PayPalMarkerPaymentMethodChange)
}

// IsOutOfDateProfileID reports profiles created with the legacy subscription API
func IsOutOfDateProfileID(profileID string) bool {
	return strings.HasPrefix(profileID, types.PayPalOutOfDateProfilePrefix)
}

// IsForeign reports notifications for a subscription collected by another
// gateway that are not moving it onto PayPal
func (p *ProfileReconciler) IsForeign(sub *subscription.Subscription, handOff HandOff) bool {
	return !sub.UsesPayPal() && !handOff.Active()
}

// Reconcile snapshots the outgoing profile of a hand-off and binds the
// notification's profile. Cancellation and expiry never rebind.
func (p *ProfileReconciler) Reconcile(ctx context.Context, sub *subscription.Subscription, n *Notification, handOff HandOff) error {
	snapshot := handOff.Active() && (sub.ProfileID == "" || sub.ProfileID != n.SubscrID)
	if snapshot {
		sub.PreviousProfileID = sub.ProfileID
		sub.PreviousPaymentMethod = sub.PaymentMethod
	}

	if n.Has("subscr_id") && !n.TxnType.KeepsProfileBinding() {
		return p.SetProfileID(ctx, sub, n.SubscrID)
	}
	if snapshot {
		return p.subscriptions.Save(ctx, sub)
	}
	return nil
}
