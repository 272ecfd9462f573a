package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/flexprice/paypal-ipn/internal/cache"
	"github.com/flexprice/paypal-ipn/internal/domain/subscription"
	ierr "github.com/flexprice/paypal-ipn/internal/errors"
	"github.com/flexprice/paypal-ipn/internal/logger"
	"github.com/flexprice/paypal-ipn/internal/postgres"
	"github.com/flexprice/paypal-ipn/internal/types"
	"github.com/lib/pq"
)

const subscriptionColumns = `
	id, order_key, parent_order_id, customer_id, subscription_status, payment_method,
	completed_payment_count, recurring_total, currency, metadata,
	paypal_profile_id, previous_profile_id, previous_payment_method,
	first_ipn_superseded, recovery_renewal_order_id,
	tenant_id, status, created_at, updated_at, created_by, updated_by`

type subscriptionRepository struct {
	db     *postgres.DB
	logger *logger.Logger
	cache  cache.Cache
}

func NewSubscriptionRepository(db *postgres.DB, logger *logger.Logger, cache cache.Cache) subscription.Repository {
	return &subscriptionRepository{db: db, logger: logger, cache: cache}
}

func (r *subscriptionRepository) Create(ctx context.Context, sub *subscription.Subscription) error {
	query := `
		INSERT INTO subscriptions (` + subscriptionColumns + `
		) VALUES (
			:id, :order_key, :parent_order_id, :customer_id, :subscription_status, :payment_method,
			:completed_payment_count, :recurring_total, :currency, :metadata,
			:paypal_profile_id, :previous_profile_id, :previous_payment_method,
			:first_ipn_superseded, :recovery_renewal_order_id,
			:tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
		)`

	if _, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, sub); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to create subscription").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *subscriptionRepository) Get(ctx context.Context, id int64) (*subscription.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions
		WHERE id = $1 AND tenant_id = $2 AND status = $3`

	var sub subscription.Subscription
	err := r.db.GetQuerier(ctx).GetContext(ctx, &sub, query, id, types.GetTenantID(ctx), types.StatusPublished)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, subscription.NewNotFoundError(id)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get subscription").
			Mark(ierr.ErrDatabase)
	}
	return &sub, nil
}

func (r *subscriptionRepository) Update(ctx context.Context, sub *subscription.Subscription) error {
	query := `
		UPDATE subscriptions SET
			subscription_status = :subscription_status,
			payment_method = :payment_method,
			completed_payment_count = :completed_payment_count,
			recurring_total = :recurring_total,
			metadata = :metadata,
			paypal_profile_id = :paypal_profile_id,
			previous_profile_id = :previous_profile_id,
			previous_payment_method = :previous_payment_method,
			first_ipn_superseded = :first_ipn_superseded,
			recovery_renewal_order_id = :recovery_renewal_order_id,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE id = :id AND tenant_id = :tenant_id`

	result, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, sub)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update subscription").
			Mark(ierr.ErrDatabase)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return subscription.NewNotFoundError(sub.ID)
	}

	r.forgetProfiles(ctx, sub.ProfileID, sub.PreviousProfileID)
	return nil
}

func (r *subscriptionRepository) List(ctx context.Context, filter *types.SubscriptionFilter) ([]*subscription.Subscription, error) {
	conditions := []string{"tenant_id = $1", "status = $2"}
	args := []interface{}{types.GetTenantID(ctx), types.StatusPublished}

	if filter != nil {
		if filter.ParentOrderID != 0 {
			args = append(args, filter.ParentOrderID)
			conditions = append(conditions, fmt.Sprintf("parent_order_id = $%d", len(args)))
		}
		if filter.ProfileID != "" {
			args = append(args, filter.ProfileID)
			conditions = append(conditions, fmt.Sprintf("paypal_profile_id = $%d", len(args)))
		}
		if filter.OrderKey != "" {
			args = append(args, filter.OrderKey)
			conditions = append(conditions, fmt.Sprintf("order_key = $%d", len(args)))
		}
		if len(filter.Statuses) > 0 {
			statuses := make([]string, len(filter.Statuses))
			for i, s := range filter.Statuses {
				statuses[i] = string(s)
			}
			args = append(args, pq.Array(statuses))
			conditions = append(conditions, fmt.Sprintf("subscription_status = ANY($%d)", len(args)))
		}
	}

	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE ` +
		strings.Join(conditions, " AND ") + ` ORDER BY created_at ASC, id ASC`

	var subs []*subscription.Subscription
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &subs, query, args...); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list subscriptions").
			Mark(ierr.ErrDatabase)
	}
	return subs, nil
}

func (r *subscriptionRepository) GetByProfileID(ctx context.Context, profileID string) (*subscription.Subscription, error) {
	key := cache.GenerateKey(cache.PrefixSubscriptionByProfile, types.GetTenantID(ctx), profileID)

	span := cache.StartCacheSpan(ctx, "subscription", "get_by_profile", map[string]interface{}{
		"profile_id": profileID,
	})
	defer cache.FinishSpan(span)

	if cached, ok := r.cache.Get(ctx, key); ok {
		if id, ok := cached.(int64); ok {
			sub, err := r.Get(ctx, id)
			// the profile may have been rebound since the entry was written
			if err == nil && sub.ProfileID == profileID {
				cache.SetSpanSuccess(span)
				return sub, nil
			}
			r.cache.Delete(ctx, key)
		}
	}

	subs, err := r.List(ctx, &types.SubscriptionFilter{ProfileID: profileID})
	if err != nil {
		cache.SetSpanError(span, err)
		return nil, err
	}
	if len(subs) == 0 {
		return nil, ierr.NewError("subscription not found").
			WithHintf("No subscription is bound to profile %s", profileID).
			WithReportableDetails(map[string]any{"profile_id": profileID}).
			Mark(ierr.ErrNotFound)
	}

	// earliest created wins when a profile is shared
	r.cache.Set(ctx, key, subs[0].ID, 0)
	cache.SetSpanSuccess(span)
	return subs[0], nil
}

func (r *subscriptionRepository) GetByOrderKey(ctx context.Context, orderKey string) (*subscription.Subscription, error) {
	subs, err := r.List(ctx, &types.SubscriptionFilter{OrderKey: orderKey})
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, ierr.NewError("subscription not found").
			WithHint("No subscription owns the order key").
			Mark(ierr.ErrNotFound)
	}
	return subs[0], nil
}

func (r *subscriptionRepository) ListByParentOrder(ctx context.Context, parentOrderID int64) ([]*subscription.Subscription, error) {
	subs, err := r.List(ctx, &types.SubscriptionFilter{ParentOrderID: parentOrderID})
	if err != nil {
		return nil, err
	}
	// newest first
	for i, j := 0, len(subs)-1; i < j; i, j = i+1, j-1 {
		subs[i], subs[j] = subs[j], subs[i]
	}
	return subs, nil
}

func (r *subscriptionRepository) forgetProfiles(ctx context.Context, profileIDs ...string) {
	tenantID := types.GetTenantID(ctx)
	for _, profileID := range profileIDs {
		if profileID == "" {
			continue
		}
		r.cache.Delete(ctx, cache.GenerateKey(cache.PrefixSubscriptionByProfile, tenantID, profileID))
	}
}
