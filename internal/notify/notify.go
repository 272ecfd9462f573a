// Package notify hands email triggers to the mailer through the email topic.
package notify

import (
	"context"

	"github.com/flexprice/paypal-ipn/internal/config"
	"github.com/flexprice/paypal-ipn/internal/logger"
	"github.com/flexprice/paypal-ipn/internal/publisher"
)

// EmailTrigger is the payload consumed by the mailer
type EmailTrigger struct {
	Email          string `json:"email"`
	OrderID        int64  `json:"order_id"`
	SubscriptionID int64  `json:"subscription_id,omitempty"`
}

// Notifier sends email triggers unless they are suppressed for the order
type Notifier interface {
	Send(ctx context.Context, trigger EmailTrigger) error
}

type notifier struct {
	publisher publisher.EventPublisher
	topic     string
	logger    *logger.Logger
}

func NewNotifier(publisher publisher.EventPublisher, cfg *config.Configuration, logger *logger.Logger) Notifier {
	return &notifier{
		publisher: publisher,
		topic:     cfg.Events.EmailTopic,
		logger:    logger,
	}
}

func (n *notifier) Send(ctx context.Context, trigger EmailTrigger) error {
	if IsSuppressed(ctx, trigger.OrderID) {
		n.logger.Infow("email suppressed while a retry rule applies",
			"email", trigger.Email,
			"order_id", trigger.OrderID,
		)
		return nil
	}

	event, err := publisher.NewEvent(ctx, trigger.Email, trigger)
	if err != nil {
		return err
	}
	return n.publisher.PublishTo(ctx, n.topic, event)
}
