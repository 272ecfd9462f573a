package publisher

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/cenkalti/backoff/v4"
	"github.com/flexprice/paypal-ipn/internal/config"
	ierr "github.com/flexprice/paypal-ipn/internal/errors"
	"github.com/flexprice/paypal-ipn/internal/logger"
	"github.com/flexprice/paypal-ipn/internal/pubsub"
	"github.com/flexprice/paypal-ipn/internal/types"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const publishMaxRetries = 3

// EventPublisher publishes domain events after durable state changed
type EventPublisher interface {
	Publish(ctx context.Context, eventName string, payload interface{}) error
	// PublishTo publishes a raw event on an explicit topic
	PublishTo(ctx context.Context, topic string, event *types.DomainEvent) error
}

type eventPublisher struct {
	pubSub  pubsub.Publisher
	config  *config.EventsConfig
	logger  *logger.Logger
	backoff func() backoff.BackOff
}

// NewEventPublisher creates a new publisher over the configured pubsub
func NewEventPublisher(
	pubSub pubsub.PubSub,
	cfg *config.Configuration,
	logger *logger.Logger,
) EventPublisher {
	return &eventPublisher{
		pubSub: pubSub,
		config: &cfg.Events,
		logger: logger,
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxInterval = time.Second
			b.MaxElapsedTime = 5 * time.Second
			return backoff.WithMaxRetries(b, publishMaxRetries)
		},
	}
}

// NewEvent builds a domain event for the tenant and request in ctx
func NewEvent(ctx context.Context, eventName string, payload interface{}) (*types.DomainEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("Failed to encode %s payload", eventName).
			Mark(ierr.ErrSystem)
	}

	return &types.DomainEvent{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_EVENT),
		EventName: eventName,
		TenantID:  types.GetTenantID(ctx),
		RequestID: types.GetRequestID(ctx),
		Timestamp: time.Now().UTC(),
		Payload:   data,
	}, nil
}

func (p *eventPublisher) Publish(ctx context.Context, eventName string, payload interface{}) error {
	if !p.config.Enabled {
		return nil
	}

	event, err := NewEvent(ctx, eventName, payload)
	if err != nil {
		return err
	}
	return p.PublishTo(ctx, p.config.Topic, event)
}

func (p *eventPublisher) PublishTo(ctx context.Context, topic string, event *types.DomainEvent) error {
	if !p.config.Enabled {
		return nil
	}

	body, err := json.Marshal(event)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to encode event").
			Mark(ierr.ErrSystem)
	}

	attempt := 0
	operation := func() error {
		attempt++
		// a message can only be handed to the transport once
		msg := message.NewMessage(event.ID, body)
		msg.Metadata.Set("tenant_id", event.TenantID)
		msg.Metadata.Set("event_name", event.EventName)
		return p.pubSub.Publish(ctx, topic, msg)
	}

	if err := backoff.Retry(operation, backoff.WithContext(p.backoff(), ctx)); err != nil {
		p.logger.Errorw("failed to publish event",
			"error", err,
			"event_id", event.ID,
			"event_name", event.EventName,
			"topic", topic,
			"attempts", attempt,
		)
		return ierr.WithError(err).
			WithHintf("Failed to publish %s", event.EventName).
			Mark(ierr.ErrSystem)
	}

	p.logger.Debugw("published event",
		"event_id", event.ID,
		"event_name", event.EventName,
		"tenant_id", event.TenantID,
		"topic", topic,
	)
	return nil
}
