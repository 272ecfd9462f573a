package service

import (
	"github.com/flexprice/paypal-ipn/internal/config"
	"github.com/flexprice/paypal-ipn/internal/domain/note"
	"github.com/flexprice/paypal-ipn/internal/domain/order"
	"github.com/flexprice/paypal-ipn/internal/domain/subscription"
	"github.com/flexprice/paypal-ipn/internal/integration/paypal"
	"github.com/flexprice/paypal-ipn/internal/logger"
	"github.com/flexprice/paypal-ipn/internal/notify"
	"github.com/flexprice/paypal-ipn/internal/postgres"
	"github.com/flexprice/paypal-ipn/internal/publisher"
)

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration
	DB     postgres.IClient

	// Repositories
	SubRepo   subscription.Repository
	OrderRepo order.Repository
	NoteRepo  note.Repository

	// Publishers
	EventPublisher publisher.EventPublisher
	Notifier       notify.Notifier

	// PayPal profile management
	PayPal paypal.Client
}

// Common service params
func NewServiceParams(
	logger *logger.Logger,
	config *config.Configuration,
	db postgres.IClient,
	subRepo subscription.Repository,
	orderRepo order.Repository,
	noteRepo note.Repository,
	eventPublisher publisher.EventPublisher,
	notifier notify.Notifier,
	paypalClient paypal.Client,
) ServiceParams {
	return ServiceParams{
		Logger:         logger,
		Config:         config,
		DB:             db,
		SubRepo:        subRepo,
		OrderRepo:      orderRepo,
		NoteRepo:       noteRepo,
		EventPublisher: eventPublisher,
		Notifier:       notifier,
		PayPal:         paypalClient,
	}
}
