package ipn

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/flexprice/paypal-ipn/internal/config"
	"github.com/flexprice/paypal-ipn/internal/domain/subscription"
	"github.com/flexprice/paypal-ipn/internal/logger"
	"github.com/flexprice/paypal-ipn/internal/testutil"
	"github.com/flexprice/paypal-ipn/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type resolverFixture struct {
	ctx      context.Context
	subs     *testutil.InMemorySubscriptionStore
	orders   *testutil.InMemoryOrderStore
	resolver *Resolver
}

func newResolverFixture(t *testing.T, invoicePrefix string) *resolverFixture {
	t.Helper()

	cfg := config.GetDefaultConfig()
	cfg.PayPal.InvoicePrefix = invoicePrefix

	f := &resolverFixture{
		ctx:    testutil.SetupContext(),
		subs:   testutil.NewInMemorySubscriptionStore(),
		orders: testutil.NewInMemoryOrderStore(),
	}
	f.resolver = NewResolver(f.subs, f.orders, cfg, logger.NewNopLogger())
	return f
}

func (f *resolverFixture) addSubscription(t *testing.T, id, parentOrderID int64, key string, createdAt time.Time) {
	t.Helper()
	base := types.GetDefaultBaseModel(f.ctx)
	base.CreatedAt = createdAt
	require.NoError(t, f.subs.Create(f.ctx, &subscription.Subscription{
		ID:                 id,
		OrderKey:           key,
		ParentOrderID:      parentOrderID,
		SubscriptionStatus: types.SubscriptionStatusActive,
		PaymentMethod:      types.PaymentMethodPayPal,
		BaseModel:          base,
	}))
}

func notificationOf(fields map[string]string) *Notification {
	values := url.Values{}
	for k, v := range fields {
		values.Set(k, v)
	}
	n := ParseNotification(values)
	_ = n.Validate()
	return n
}

func TestResolveOrderScopeFormatsAgree(t *testing.T) {
	f := newResolverFixture(t, "WC-")
	want := Token{ID: 123, Key: "wc_order_abc"}

	tests := []struct {
		name    string
		custom  string
		invoice string
	}{
		{
			name:    "numeric custom",
			custom:  "123",
			invoice: "wc_order_abc",
		},
		{
			name:   "json custom",
			custom: `{"order_id":123,"order_key":"wc_order_abc"}`,
		},
		{
			name:   "serialized custom",
			custom: `a:2:{i:0;i:123;i:1;s:12:"wc_order_abc";}`,
		},
		{
			name:    "prefixed invoice",
			custom:  "wc_order_abc",
			invoice: "WC-123",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := notificationOf(map[string]string{
				"txn_type": "subscr_signup",
				"custom":   tt.custom,
				"invoice":  tt.invoice,
			})

			token, err := f.resolver.Resolve(f.ctx, n, ScopeOrder)
			require.NoError(t, err)
			assert.Equal(t, want, token)
		})
	}
}

func TestResolveSubscriptionScope(t *testing.T) {
	f := newResolverFixture(t, "WC-")
	now := time.Now().UTC()
	f.addSubscription(t, 200, 100, "wc_order_old", now.Add(-time.Hour))
	f.addSubscription(t, 201, 100, "wc_order_new", now)

	tests := []struct {
		name   string
		fields map[string]string
		want   Token
	}{
		{
			name: "json with subscription id",
			fields: map[string]string{
				"custom": `{"order_id":100,"order_key":"wc_order_parent","subscription_id":"200","subscription_key":"wc_order_old"}`,
			},
			want: Token{ID: 200, Key: "wc_order_old"},
		},
		{
			name: "json with order id only picks the latest subscription",
			fields: map[string]string{
				"custom": `{"order_id":100,"order_key":"wc_order_parent"}`,
			},
			want: Token{ID: 201, Key: "wc_order_new"},
		},
		{
			name: "serialized picks the latest subscription",
			fields: map[string]string{
				"custom": `a:2:{i:0;i:100;i:1;s:15:"wc_order_parent";}`,
			},
			want: Token{ID: 201, Key: "wc_order_new"},
		},
		{
			name: "json for an order without subscriptions",
			fields: map[string]string{
				"custom": `{"order_id":999,"order_key":"wc_order_none"}`,
			},
			want: Token{},
		},
		{
			name: "invoice fallback uses the custom value as key",
			fields: map[string]string{
				"custom":  "wc_order_old",
				"invoice": "WC-200",
			},
			want: Token{ID: 200, Key: "wc_order_old"},
		},
		{
			name: "numeric custom is only an order id",
			fields: map[string]string{
				"custom":  "100",
				"invoice": "WC-200",
			},
			want: Token{ID: 200, Key: "100"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fields["txn_type"] = "subscr_payment"
			token, err := f.resolver.Resolve(f.ctx, notificationOf(tt.fields), ScopeSubscription)
			require.NoError(t, err)
			assert.Equal(t, tt.want, token)
		})
	}
}

func TestResolvePrefersBoundProfile(t *testing.T) {
	f := newResolverFixture(t, "WC-")
	f.addSubscription(t, 300, 0, "wc_order_bound", time.Now().UTC())

	sub, err := f.subs.Get(f.ctx, 300)
	require.NoError(t, err)
	sub.ProfileID = "I-BOUND"
	require.NoError(t, f.subs.Update(f.ctx, sub))

	t.Run("subscr_id", func(t *testing.T) {
		n := notificationOf(map[string]string{
			"txn_type":  "subscr_payment",
			"subscr_id": "I-BOUND",
			"custom":    "garbage",
			"invoice":   "WC-1",
		})
		token, err := f.resolver.Resolve(f.ctx, n, ScopeSubscription)
		require.NoError(t, err)
		assert.Equal(t, Token{ID: 300, Key: "wc_order_bound"}, token)
	})

	t.Run("recurring_payment_id", func(t *testing.T) {
		n := notificationOf(map[string]string{
			"txn_type":             "recurring_payment_suspended",
			"recurring_payment_id": "I-BOUND",
		})
		token, err := f.resolver.Resolve(f.ctx, n, ScopeSubscription)
		require.NoError(t, err)
		assert.Equal(t, Token{ID: 300, Key: "wc_order_bound"}, token)
	})

	t.Run("unknown profile falls through to the payload", func(t *testing.T) {
		n := notificationOf(map[string]string{
			"txn_type":  "subscr_payment",
			"subscr_id": "I-UNKNOWN",
			"custom":    "wc_order_bound",
			"invoice":   "WC-300",
		})
		token, err := f.resolver.Resolve(f.ctx, n, ScopeSubscription)
		require.NoError(t, err)
		assert.Equal(t, Token{ID: 300, Key: "wc_order_bound"}, token)
	})
}

func TestResolveNeverDecodesSerializedObjects(t *testing.T) {
	f := newResolverFixture(t, "WC-")

	n := notificationOf(map[string]string{
		"txn_type": "subscr_signup",
		"custom":   `a:2:{i:0;O:8:"stdClass":0:{}i:1;s:3:"key";}`,
		"invoice":  "WC-77",
	})

	token, err := f.resolver.Resolve(f.ctx, n, ScopeOrder)
	require.NoError(t, err)
	// the invoice parser takes over with the raw custom value as key
	assert.Equal(t, int64(77), token.ID)
	assert.Equal(t, n.Custom, token.Key)
}

func TestResolveWithoutUsableID(t *testing.T) {
	f := newResolverFixture(t, "")

	token, err := f.resolver.Resolve(f.ctx, notificationOf(map[string]string{
		"txn_type": "subscr_signup",
	}), ScopeSubscription)
	require.NoError(t, err)
	assert.Equal(t, Token{}, token)

	token, err = f.resolver.Resolve(f.ctx, notificationOf(map[string]string{
		"txn_type": "subscr_signup",
		"invoice":  "55",
		"custom":   "wc_order_x",
	}), ScopeSubscription)
	require.NoError(t, err)
	assert.Equal(t, Token{ID: 55, Key: "wc_order_x"}, token)
}

func TestCoerceID(t *testing.T) {
	tests := []struct {
		name  string
		input interface{}
		want  int64
	}{
		{name: "nil", input: nil, want: 0},
		{name: "int64", input: int64(9), want: 9},
		{name: "float", input: float64(12.7), want: 12},
		{name: "true", input: true, want: 1},
		{name: "false", input: false, want: 0},
		{name: "numeric string", input: "42", want: 42},
		{name: "padded string", input: "  42 ", want: 42},
		{name: "exponent", input: "1e3", want: 1000},
		{name: "decimal string", input: "3.9", want: 3},
		{name: "negative", input: "-5", want: -5},
		{name: "leading digits", input: "12abc", want: 12},
		{name: "no digits", input: "abc", want: 0},
		{name: "empty", input: "", want: 0},
		{name: "unsupported", input: []string{"1"}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, coerceID(tt.input))
		})
	}
}
