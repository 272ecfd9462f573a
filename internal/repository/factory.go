package repository

import (
	"github.com/flexprice/paypal-ipn/internal/cache"
	"github.com/flexprice/paypal-ipn/internal/domain/ledger"
	"github.com/flexprice/paypal-ipn/internal/domain/note"
	"github.com/flexprice/paypal-ipn/internal/domain/order"
	"github.com/flexprice/paypal-ipn/internal/domain/subscription"
	"github.com/flexprice/paypal-ipn/internal/logger"
	"github.com/flexprice/paypal-ipn/internal/postgres"
	postgresRepo "github.com/flexprice/paypal-ipn/internal/repository/postgres"
)

func NewSubscriptionRepository(db *postgres.DB, logger *logger.Logger, cache cache.Cache) subscription.Repository {
	return postgresRepo.NewSubscriptionRepository(db, logger, cache)
}

func NewOrderRepository(db *postgres.DB, logger *logger.Logger) order.Repository {
	return postgresRepo.NewOrderRepository(db, logger)
}

func NewLedgerRepository(db *postgres.DB, logger *logger.Logger) ledger.Repository {
	return postgresRepo.NewLedgerRepository(db, logger)
}

func NewNoteRepository(db *postgres.DB, logger *logger.Logger) note.Repository {
	return postgresRepo.NewNoteRepository(db, logger)
}
