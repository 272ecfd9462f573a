package ipn

import (
	"errors"
	"testing"

	"github.com/flexprice/paypal-ipn/internal/domain/ledger"
	ierr "github.com/flexprice/paypal-ipn/internal/errors"
	"github.com/flexprice/paypal-ipn/internal/logger"
	"github.com/flexprice/paypal-ipn/internal/testutil"
	"github.com/flexprice/paypal-ipn/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardRecordsPresentKeys(t *testing.T) {
	ctx := testutil.SetupContext()
	store := testutil.NewInMemoryLedgerStore()
	guard := NewGuard(store, logger.NewNopLogger())

	tests := []struct {
		name         string
		fields       map[string]string
		trackingKeys []string
		txnKeys      []string
	}{
		{
			name: "both identifiers",
			fields: map[string]string{
				"txn_type":       "subscr_payment",
				"ipn_track_id":   "trk1",
				"txn_id":         "TX1",
				"payment_status": "Completed",
			},
			trackingKeys: []string{"subscr_payment_trk1"},
			txnKeys:      []string{"TX1_subscr_payment_Completed"},
		},
		{
			name: "tracking id only",
			fields: map[string]string{
				"txn_type":     "subscr_signup",
				"ipn_track_id": "trk2",
			},
			trackingKeys: []string{"subscr_signup_trk2"},
		},
		{
			name: "empty identifiers are absent",
			fields: map[string]string{
				"txn_type":     "subscr_cancel",
				"ipn_track_id": "",
				"txn_id":       "",
			},
		},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subID := int64(500 + i)
			n := notificationOf(tt.fields)

			require.NoError(t, guard.Check(ctx, subID, n))
			require.NoError(t, guard.Record(ctx, subID, n))

			assert.ElementsMatch(t, tt.trackingKeys, store.Keys(ctx, subID, ledger.KindTrackingID))
			assert.ElementsMatch(t, tt.txnKeys, store.Keys(ctx, subID, ledger.KindTransaction))

			err := guard.Check(ctx, subID, n)
			if len(tt.trackingKeys)+len(tt.txnKeys) == 0 {
				assert.NoError(t, err)
				return
			}
			assert.True(t, ierr.IsDuplicate(err))
		})
	}
}

func TestGuardKeysAreScoped(t *testing.T) {
	ctx := testutil.SetupContext()
	store := testutil.NewInMemoryLedgerStore()
	guard := NewGuard(store, logger.NewNopLogger())

	payment := notificationOf(map[string]string{
		"txn_type":       "subscr_payment",
		"ipn_track_id":   "shared",
		"txn_id":         "TX9",
		"payment_status": "Pending",
	})
	require.NoError(t, guard.Record(ctx, 1, payment))

	// another subscription never sees the keys
	handled, err := guard.AlreadyHandled(ctx, 2, "shared", types.PayPalTxnSubscrPayment)
	require.NoError(t, err)
	assert.False(t, handled)

	// the tracking id is shared between transaction types
	handled, err = guard.AlreadyHandled(ctx, 1, "shared", types.PayPalTxnSubscrSignup)
	require.NoError(t, err)
	assert.False(t, handled)

	// a later status of the same transaction is a new message
	handled, err = guard.AlreadyHandledTransaction(ctx, 1, "TX9", types.PayPalTxnSubscrPayment, "Completed")
	require.NoError(t, err)
	assert.False(t, handled)

	handled, err = guard.AlreadyHandledTransaction(ctx, 1, "TX9", types.PayPalTxnSubscrPayment, "Pending")
	require.NoError(t, err)
	assert.True(t, handled)

	handled, err = guard.AlreadyHandledTransaction(ctx, 1, "", types.PayPalTxnSubscrPayment, "Pending")
	require.NoError(t, err)
	assert.False(t, handled)
}

// Both deliveries pass the checks before either records; the ledger does not
// serialize concurrent handling of the same message.
func TestGuardConcurrentDeliveriesBothPass(t *testing.T) {
	ctx := testutil.SetupContext()
	store := testutil.NewInMemoryLedgerStore()
	guard := NewGuard(store, logger.NewNopLogger())

	n := notificationOf(map[string]string{
		"txn_type":     "subscr_signup",
		"ipn_track_id": "race",
	})

	require.NoError(t, guard.Check(ctx, 7, n))
	require.NoError(t, guard.Check(ctx, 7, n))

	require.NoError(t, guard.Record(ctx, 7, n))
	require.NoError(t, guard.Record(ctx, 7, n))
	assert.Equal(t, []string{"subscr_signup_race"}, store.Keys(ctx, 7, ledger.KindTrackingID))
}

func TestGuardPassesRepositoryErrors(t *testing.T) {
	ctx := testutil.SetupContext()
	store := testutil.NewInMemoryLedgerStore()
	store.FailAppend = errors.New("connection reset")
	guard := NewGuard(store, logger.NewNopLogger())

	err := guard.Record(ctx, 1, notificationOf(map[string]string{
		"txn_type": "subscr_eot",
		"txn_id":   "TX1",
	}))
	require.Error(t, err)
	assert.Equal(t, "connection reset", err.Error())
}
