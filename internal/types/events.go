package types

import (
	"encoding/json"
	"time"
)

// DomainEvent is an event published after the IPN reconciler changes durable state
type DomainEvent struct {
	ID        string          `json:"id"`
	EventName string          `json:"event_name"`
	TenantID  string          `json:"tenant_id"`
	RequestID string          `json:"request_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// subscription event names
const (
	EventSubscriptionActivated      = "subscription.activated"
	EventSubscriptionOnHold         = "subscription.on_hold"
	EventSubscriptionCancelled      = "subscription.cancelled"
	EventSubscriptionPaymentFailed  = "subscription.payment_failed"
	EventSubscriptionMethodChanged  = "subscription.payment_method_changed"
	EventPayPalOutOfDateProfileSeen = "paypal.out_of_date_profile_id"
)

// order event names
const (
	EventOrderPaymentCompleted = "order.payment_completed"
	EventOrderPaymentFailed    = "order.payment_failed"
	EventRenewalOrderCreated   = "order.renewal_created"
)

// email trigger names, rendered by the mailer that consumes the email topic
const (
	EmailCustomerRenewalInvoice = "customer_renewal_invoice"
	EmailAdminFailedOrder       = "admin_failed_order"
)
