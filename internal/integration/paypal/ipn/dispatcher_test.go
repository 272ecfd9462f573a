package ipn

import (
	"github.com/flexprice/paypal-ipn/internal/types"
)

func (s *IPNSuite) TestDispatcherHandlesEveryTransactionType() {
	s.Len(s.dispatcher.handlers, len(types.PayPalTransactionTypes))
	for _, txnType := range types.PayPalTransactionTypes {
		_, ok := s.dispatcher.handlers[txnType]
		s.True(ok, "no handler for %s", txnType)
	}
}

func (s *IPNSuite) TestDispatchRejectsUnknownType() {
	sub := s.activeFixture(nil)
	n := notificationOf(map[string]string{"txn_type": "subscr_payment"})
	n.TxnType = "web_accept"

	outcome, err := s.dispatcher.Dispatch(s.GetContext(), &Transaction{Subscription: sub, Notification: n})
	s.Equal(OutcomeRejected, outcome)
	s.Error(err)
}

func (s *IPNSuite) TestUnknownPaymentStatusOnlyNotes() {
	sub := s.activeFixture(nil)
	n := notificationOf(map[string]string{
		"txn_type":       "subscr_payment",
		"payment_status": "Refunded",
		"txn_id":         "TX3",
	})

	outcome, err := s.dispatcher.Dispatch(s.GetContext(), &Transaction{Subscription: sub, Notification: n})
	s.Require().NoError(err)
	s.Equal(OutcomeProcessed, outcome)
	s.Empty(s.renewals())
	s.Equal(types.SubscriptionStatusActive, s.ReloadSubscription(subscriptionID).SubscriptionStatus)
}
