package postgres

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
	"github.com/flexprice/paypal-ipn/internal/domain/order"
	ierr "github.com/flexprice/paypal-ipn/internal/errors"
	"github.com/flexprice/paypal-ipn/internal/logger"
	"github.com/flexprice/paypal-ipn/internal/postgres"
	"github.com/flexprice/paypal-ipn/internal/types"
)

const orderColumns = `
	id, order_key, order_type, subscription_id, customer_id, total, currency,
	payment_status, payment_method, transaction_id, paypal_profile_id, paid_at,
	failed_attempts, metadata,
	tenant_id, status, created_at, updated_at, created_by, updated_by`

type orderRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewOrderRepository(db *postgres.DB, logger *logger.Logger) order.Repository {
	return &orderRepository{db: db, logger: logger}
}

func (r *orderRepository) Create(ctx context.Context, o *order.Order) error {
	query := `
		INSERT INTO orders (` + orderColumns + `
		) VALUES (
			:id, :order_key, :order_type, :subscription_id, :customer_id, :total, :currency,
			:payment_status, :payment_method, :transaction_id, :paypal_profile_id, :paid_at,
			:failed_attempts, :metadata,
			:tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
		)`

	if _, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, o); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to create order").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *orderRepository) Get(ctx context.Context, id int64) (*order.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
		WHERE id = $1 AND tenant_id = $2 AND status = $3`

	var o order.Order
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &o, query, id, types.GetTenantID(ctx), types.StatusPublished); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, order.NewNotFoundError(id)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get order").
			Mark(ierr.ErrDatabase)
	}
	return &o, nil
}

func (r *orderRepository) Update(ctx context.Context, o *order.Order) error {
	query := `
		UPDATE orders SET
			payment_status = :payment_status,
			payment_method = :payment_method,
			transaction_id = :transaction_id,
			paypal_profile_id = :paypal_profile_id,
			paid_at = :paid_at,
			failed_attempts = :failed_attempts,
			metadata = :metadata,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE id = :id AND tenant_id = :tenant_id`

	result, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, o)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update order").
			Mark(ierr.ErrDatabase)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return order.NewNotFoundError(o.ID)
	}
	return nil
}

func (r *orderRepository) GetByProfileID(ctx context.Context, profileID string) (*order.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
		WHERE paypal_profile_id = $1 AND order_type = $2 AND tenant_id = $3 AND status = $4
		ORDER BY id ASC LIMIT 1`

	var o order.Order
	err := r.db.GetQuerier(ctx).GetContext(ctx, &o, query,
		profileID, types.OrderTypeParent, types.GetTenantID(ctx), types.StatusPublished)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.NewError("order not found").
				WithHintf("No order is bound to profile %s", profileID).
				WithReportableDetails(map[string]any{"profile_id": profileID}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get order").
			Mark(ierr.ErrDatabase)
	}
	return &o, nil
}

func (r *orderRepository) GetLatestRenewal(ctx context.Context, subscriptionID int64) (*order.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
		WHERE subscription_id = $1 AND order_type = $2 AND tenant_id = $3 AND status = $4
		ORDER BY created_at DESC, id DESC LIMIT 1`

	var o order.Order
	err := r.db.GetQuerier(ctx).GetContext(ctx, &o, query,
		subscriptionID, types.OrderTypeRenewal, types.GetTenantID(ctx), types.StatusPublished)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.NewError("renewal order not found").
				WithHint("The subscription has no renewal orders").
				WithReportableDetails(map[string]any{"subscription_id": subscriptionID}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get renewal order").
			Mark(ierr.ErrDatabase)
	}
	return &o, nil
}

// NextID draws from the sequence shared by orders and subscriptions
func (r *orderRepository) NextID(ctx context.Context) (int64, error) {
	var id int64
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &id, `SELECT nextval('object_id_seq')`); err != nil {
		return 0, ierr.WithError(err).
			WithHint("Failed to reserve an order id").
			Mark(ierr.ErrDatabase)
	}
	return id, nil
}
