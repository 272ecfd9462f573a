// Package ipn reconciles PayPal Standard subscriptions from Instant Payment Notifications.
package ipn

import (
	"net/url"
	"strings"

	"github.com/flexprice/paypal-ipn/internal/types"
	"github.com/flexprice/paypal-ipn/internal/validator"
)

// Notification is an already verified IPN message
type Notification struct {
	RawTxnType         string `form:"txn_type" validate:"required"`
	SubscrID           string `form:"subscr_id"`
	RecurringPaymentID string `form:"recurring_payment_id"`
	Invoice            string `form:"invoice"`
	Custom             string `form:"custom"`
	TxnID              string `form:"txn_id"`
	PaymentStatus      string `form:"payment_status"`
	IPNTrackID         string `form:"ipn_track_id"`
	RPInvoiceID        string `form:"rp_invoice_id"`

	PayerEmail  string `form:"payer_email"`
	FirstName   string `form:"first_name"`
	LastName    string `form:"last_name"`
	PaymentType string `form:"payment_type"`

	// TxnType is the normalized transaction type, set by Validate
	TxnType types.PayPalTransactionType `form:"-"`

	// present tracks which optional fields were sent at all, empty values included
	present map[string]bool
}

// ParseNotification reads the IPN fields out of a form body
func ParseNotification(values url.Values) *Notification {
	n := &Notification{
		RawTxnType:         values.Get("txn_type"),
		SubscrID:           values.Get("subscr_id"),
		RecurringPaymentID: values.Get("recurring_payment_id"),
		Invoice:            values.Get("invoice"),
		Custom:             values.Get("custom"),
		TxnID:              values.Get("txn_id"),
		PaymentStatus:      values.Get("payment_status"),
		IPNTrackID:         values.Get("ipn_track_id"),
		RPInvoiceID:        values.Get("rp_invoice_id"),
		PayerEmail:         values.Get("payer_email"),
		FirstName:          values.Get("first_name"),
		LastName:           values.Get("last_name"),
		PaymentType:        values.Get("payment_type"),
		present:            make(map[string]bool, len(values)),
	}
	for key := range values {
		n.present[key] = true
	}
	return n
}

// Validate checks the payload and normalizes the transaction type
func (n *Notification) Validate() error {
	if err := validator.ValidateRequest(n); err != nil {
		return err
	}

	txnType, err := types.ParsePayPalTransactionType(n.RawTxnType)
	if err != nil {
		return err
	}
	n.TxnType = txnType
	return nil
}

// Has reports whether a field was sent, even when empty
func (n *Notification) Has(field string) bool {
	return n.present[field]
}

// ProfileID is the processor side profile the message belongs to
func (n *Notification) ProfileID() string {
	if n.SubscrID != "" {
		return n.SubscrID
	}
	return n.RecurringPaymentID
}

// IsExpressCheckout reports messages for subscriptions created with Express Checkout
func (n *Notification) IsExpressCheckout() bool {
	return n.TxnType == types.PayPalTxnRecurringPaymentSuspendedMaxed && n.Has("rp_invoice_id")
}

// NormalizedPaymentStatus returns the lower-cased payment_status
func (n *Notification) NormalizedPaymentStatus() types.PayPalPaymentStatus {
	return types.NormalizePayPalPaymentStatus(n.PaymentStatus)
}

// Metadata returns the payer details stored on the subscription and orders
func (n *Notification) Metadata() types.Metadata {
	return types.Metadata{
		"paypal_payer_email":  n.PayerEmail,
		"paypal_first_name":   n.FirstName,
		"paypal_last_name":    n.LastName,
		"paypal_payment_type": n.PaymentType,
	}
}

// HasMarker reports whether the invoice carries one of the checkout markers
func (n *Notification) HasMarker(marker string) bool {
	return strings.Contains(n.Invoice, marker)
}
