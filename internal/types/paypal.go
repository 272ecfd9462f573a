package types

import (
	"strings"

	ierr "github.com/flexprice/paypal-ipn/internal/errors"
	"github.com/samber/lo"
)

// PaymentMethodPayPal is the payment method identifier of PayPal Standard
const PaymentMethodPayPal = "paypal"

// PayPalTransactionType is the normalized (lower-cased) IPN txn_type
type PayPalTransactionType string

const (
	PayPalTxnSubscrSignup                   PayPalTransactionType = "subscr_signup"
	PayPalTxnSubscrPayment                  PayPalTransactionType = "subscr_payment"
	PayPalTxnSubscrCancel                   PayPalTransactionType = "subscr_cancel"
	PayPalTxnSubscrEOT                      PayPalTransactionType = "subscr_eot"
	PayPalTxnSubscrFailed                   PayPalTransactionType = "subscr_failed"
	PayPalTxnSubscrModify                   PayPalTransactionType = "subscr_modify"
	PayPalTxnRecurringPaymentSkipped        PayPalTransactionType = "recurring_payment_skipped"
	PayPalTxnRecurringPaymentSuspended      PayPalTransactionType = "recurring_payment_suspended"
	PayPalTxnRecurringPaymentSuspendedMaxed PayPalTransactionType = "recurring_payment_suspended_due_to_max_failed_payment"
)

// PayPalTransactionTypes is the allow-list of transaction types handled for PayPal Standard subscriptions
var PayPalTransactionTypes = []PayPalTransactionType{
	PayPalTxnSubscrSignup,
	PayPalTxnSubscrPayment,
	PayPalTxnSubscrCancel,
	PayPalTxnSubscrEOT,
	PayPalTxnSubscrFailed,
	PayPalTxnSubscrModify,
	PayPalTxnRecurringPaymentSkipped,
	PayPalTxnRecurringPaymentSuspended,
	PayPalTxnRecurringPaymentSuspendedMaxed,
}

// ParsePayPalTransactionType lower-cases and validates a raw txn_type
func ParsePayPalTransactionType(raw string) (PayPalTransactionType, error) {
	t := PayPalTransactionType(strings.ToLower(strings.TrimSpace(raw)))
	if err := t.Validate(); err != nil {
		return "", err
	}
	return t, nil
}

func (t PayPalTransactionType) String() string {
	return string(t)
}

func (t PayPalTransactionType) Validate() error {
	if !lo.Contains(PayPalTransactionTypes, t) {
		return ierr.NewError("unsupported transaction type").
			WithHintf("Transaction type %q is not handled for subscriptions", string(t)).
			WithReportableDetails(map[string]any{
				"txn_type": t,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// KeepsProfileBinding reports whether the notification must not rebind the stored profile id
func (t PayPalTransactionType) KeepsProfileBinding() bool {
	return t == PayPalTxnSubscrCancel || t == PayPalTxnSubscrEOT
}

// PayPalPaymentStatus is the lower-cased payment_status of a subscr_payment
type PayPalPaymentStatus string

const (
	PayPalPaymentStatusCompleted PayPalPaymentStatus = "completed"
	PayPalPaymentStatusPending   PayPalPaymentStatus = "pending"
	PayPalPaymentStatusFailed    PayPalPaymentStatus = "failed"
)

// NormalizePayPalPaymentStatus lower-cases a raw payment_status
func NormalizePayPalPaymentStatus(raw string) PayPalPaymentStatus {
	return PayPalPaymentStatus(strings.ToLower(strings.TrimSpace(raw)))
}

// PayPal invoice markers embedded by the checkout flows
const (
	// PayPalMarkerFailedRenewalRecovery tags a sign up created to pay a failed renewal order
	PayPalMarkerFailedRenewalRecovery = "-wcsfrp-"
	// PayPalMarkerPaymentMethodChange tags a sign up created to switch a subscription to PayPal
	PayPalMarkerPaymentMethodChange = "-wcscpm-"
	// PayPalOutOfDateProfilePrefix identifies profiles created with the legacy subscription API
	PayPalOutOfDateProfilePrefix = "S-"
)
