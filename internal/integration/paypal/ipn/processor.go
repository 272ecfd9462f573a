package ipn

import (
	"context"
	"net/url"
	"strconv"

	"github.com/flexprice/paypal-ipn/internal/domain/subscription"
	ierr "github.com/flexprice/paypal-ipn/internal/errors"
	"github.com/flexprice/paypal-ipn/internal/logger"
	"github.com/flexprice/paypal-ipn/internal/notify"
	"github.com/flexprice/paypal-ipn/internal/sentry"
	"github.com/flexprice/paypal-ipn/internal/types"
)

// Outcome is how a notification ended
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeRejected  Outcome = "rejected"
)

// Processor applies one notification to its subscription
type Processor struct {
	resolver      *Resolver
	guard         *Guard
	profiles      *ProfileReconciler
	dispatcher    *Dispatcher
	subscriptions subscription.Repository
	sentry        *sentry.Service
	logger        *logger.Logger
}

func NewProcessor(
	resolver *Resolver,
	guard *Guard,
	profiles *ProfileReconciler,
	dispatcher *Dispatcher,
	subscriptions subscription.Repository,
	sentryService *sentry.Service,
	logger *logger.Logger,
) *Processor {
	return &Processor{
		resolver:      resolver,
		guard:         guard,
		profiles:      profiles,
		dispatcher:    dispatcher,
		subscriptions: subscriptions,
		sentry:        sentryService,
		logger:        logger,
	}
}

// Process applies a verified IPN form body. Ignored notifications return a
// nil error; duplicates and rejections return an error marked
// ErrDuplicate or ErrValidation, anything else is a collaborator failure.
func (p *Processor) Process(ctx context.Context, values url.Values) (Outcome, error) {
	n := ParseNotification(values)
	ctx = notify.WithSuppression(ctx)

	span, ctx := p.sentry.StartTransaction(ctx, "ipn.process")
	if span != nil {
		span.SetTag("txn_type", n.RawTxnType)
		defer span.Finish()
	}

	outcome, sub, err := p.process(ctx, n)

	fields := []interface{}{
		"outcome", outcome,
		"txn_type", n.RawTxnType,
		"ipn_track_id", n.IPNTrackID,
		"txn_id", n.TxnID,
	}
	breadcrumb := map[string]interface{}{
		"txn_type":     n.RawTxnType,
		"ipn_track_id": n.IPNTrackID,
	}
	if sub != nil {
		fields = append(fields, "subscription_id", sub.ID)
		breadcrumb["subscription_id"] = sub.ID
	}
	if span != nil {
		span.SetTag("outcome", string(outcome))
	}
	p.sentry.AddBreadcrumb("ipn", "notification "+string(outcome), breadcrumb)

	switch {
	case err == nil:
		p.logger.Infow("IPN handled", fields...)
	case ierr.IsDuplicate(err), ierr.IsValidation(err):
		p.logger.Warnw("IPN not applied", append(fields, "error", err)...)
	default:
		p.logger.Errorw("IPN failed", append(fields, "error", err)...)
		tags := map[string]string{"txn_type": n.RawTxnType}
		if sub != nil {
			tags["subscription_id"] = strconv.FormatInt(sub.ID, 10)
		}
		p.sentry.CaptureNotificationFailure(ctx, err, tags)
	}
	return outcome, err
}

func (p *Processor) process(ctx context.Context, n *Notification) (Outcome, *subscription.Subscription, error) {
	if err := types.ValidateTenantContext(ctx); err != nil {
		return OutcomeRejected, nil, ierr.WithError(err).
			WithHint("Notification was received without a tenant").
			Mark(ierr.ErrValidation)
	}

	if err := n.Validate(); err != nil {
		return OutcomeRejected, nil, err
	}

	if n.IsExpressCheckout() {
		p.logger.Infow("IPN ignored, recurring payment created with Express Checkout",
			"rp_invoice_id", n.RPInvoiceID,
		)
		return OutcomeIgnored, nil, nil
	}

	sub, err := p.locate(ctx, n)
	if err != nil {
		return OutcomeRejected, nil, err
	}

	handOff, err := p.profiles.DetectHandOff(ctx, sub, n)
	if err != nil {
		return OutcomeRejected, sub, err
	}

	if p.profiles.IsForeign(sub, handOff) {
		// also sent for Express Checkout profiles suspended by an admin
		if n.TxnType == types.PayPalTxnRecurringPaymentSuspended {
			p.logger.Infow("IPN recurring_payment_suspended ignored, payment method is not PayPal",
				"subscription_id", sub.ID,
				"payment_method", sub.PaymentMethod,
			)
			return OutcomeIgnored, sub, nil
		}
		return OutcomeRejected, sub, ierr.NewError("recurring payment method has changed").
			WithHint("Subscription is no longer paid with PayPal").
			WithReportableDetails(map[string]any{
				"subscription_id": sub.ID,
				"payment_method":  sub.PaymentMethod,
			}).
			Mark(ierr.ErrValidation)
	}

	if err := p.guard.Check(ctx, sub.ID, n); err != nil {
		if ierr.IsDuplicate(err) {
			return OutcomeDuplicate, sub, err
		}
		return OutcomeRejected, sub, err
	}

	if sub.HasStatus(types.SubscriptionStatusSwitched) {
		p.logger.Infow("IPN ignored, subscription has been switched", "subscription_id", sub.ID)
		return OutcomeIgnored, sub, nil
	}

	if err := p.profiles.Reconcile(ctx, sub, n, handOff); err != nil {
		return OutcomeRejected, sub, err
	}

	outcome, err := p.dispatcher.Dispatch(ctx, &Transaction{
		Subscription:   sub,
		Notification:   n,
		HandOff:        handOff,
		IsFirstPayment: sub.IsFirstPayment(),
	})
	if err != nil {
		return OutcomeRejected, sub, err
	}

	if err := p.guard.Record(ctx, sub.ID, n); err != nil {
		return OutcomeRejected, sub, err
	}
	return outcome, sub, nil
}

// locate finds the subscription the notification belongs to and checks its key
func (p *Processor) locate(ctx context.Context, n *Notification) (*subscription.Subscription, error) {
	token, err := p.resolver.Resolve(ctx, n, ScopeSubscription)
	if err != nil {
		return nil, err
	}

	sub, err := p.subscriptions.Get(ctx, token.ID)
	if err != nil && ierr.IsNotFound(err) && token.Key != "" {
		// the invoice prefix may have changed since checkout
		sub, err = p.subscriptions.GetByOrderKey(ctx, token.Key)
	}
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil, ierr.WithError(err).
				WithHint("No subscription matches the notification").
				WithReportableDetails(map[string]any{
					"subscription_id": token.ID,
					"invoice":         n.Invoice,
				}).
				Mark(ierr.ErrValidation)
		}
		return nil, err
	}

	if sub.OrderKey != token.Key {
		return nil, ierr.NewError("subscription key does not match invoice").
			WithHint("Subscription key does not match the notification").
			WithReportableDetails(map[string]any{
				"subscription_id": sub.ID,
			}).
			Mark(ierr.ErrValidation)
	}
	return sub, nil
}
