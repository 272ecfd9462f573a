package ipn

import (
	"context"
	"errors"
	"net/url"

	"github.com/flexprice/paypal-ipn/internal/domain/ledger"
	"github.com/flexprice/paypal-ipn/internal/domain/subscription"
	ierr "github.com/flexprice/paypal-ipn/internal/errors"
	"github.com/flexprice/paypal-ipn/internal/testutil"
	"github.com/flexprice/paypal-ipn/internal/types"
	"github.com/stretchr/testify/mock"
)

func (s *IPNSuite) TestSignupFreeTrialCompletesParentOrder() {
	s.fixture(0, nil)

	outcome, err := s.post(map[string]string{
		"txn_type":     "subscr_signup",
		"subscr_id":    "I-1",
		"ipn_track_id": "trk-signup",
		"payer_email":  "payer@example.com",
	})
	s.Require().NoError(err)
	s.Equal(OutcomeProcessed, outcome)

	sub := s.ReloadSubscription(subscriptionID)
	s.Equal("I-1", sub.ProfileID)
	s.Equal(types.SubscriptionStatusActive, sub.SubscriptionStatus)
	s.Equal(1, sub.CompletedPaymentCount)
	s.True(sub.FirstIPNSuperseded)
	s.Equal("payer@example.com", sub.Metadata["paypal_payer_email"])

	parent := s.ReloadOrder(parentOrderID)
	s.Equal(types.OrderPaymentStatusCompleted, parent.PaymentStatus)
	s.NotNil(parent.PaidAt)
	s.Equal("payer@example.com", parent.Metadata["paypal_payer_email"])

	s.Contains(s.subscriptionNotes(), noteSignupCompleted)
	s.Equal([]string{"subscr_signup_trk-signup"},
		s.GetStores().LedgerRepo.Keys(s.GetContext(), subscriptionID, ledger.KindTrackingID))
	s.Contains(s.events(), types.EventSubscriptionActivated)
}

func (s *IPNSuite) TestSignupWithInitialPaymentWaitsForPayment() {
	s.fixture(10, nil)

	outcome, err := s.post(map[string]string{
		"txn_type":  "subscr_signup",
		"subscr_id": "I-1",
	})
	s.Require().NoError(err)
	s.Equal(OutcomeProcessed, outcome)

	sub := s.ReloadSubscription(subscriptionID)
	s.Equal("I-1", sub.ProfileID)
	s.Equal(types.SubscriptionStatusPending, sub.SubscriptionStatus)
	s.Zero(sub.CompletedPaymentCount)
	s.Equal(types.OrderPaymentStatusPending, s.ReloadOrder(parentOrderID).PaymentStatus)
	s.Equal([]string{noteSignupCompleted}, s.subscriptionNotes())
}

func (s *IPNSuite) TestFirstPaymentCompletesParentOrder() {
	s.fixture(10, nil)

	outcome, err := s.post(map[string]string{
		"txn_type":       "subscr_payment",
		"payment_status": "Completed",
		"txn_id":         "TX1",
		"subscr_id":      "I-1",
	})
	s.Require().NoError(err)
	s.Equal(OutcomeProcessed, outcome)

	parent := s.ReloadOrder(parentOrderID)
	s.Equal(types.OrderPaymentStatusCompleted, parent.PaymentStatus)
	s.Equal("TX1", parent.TransactionID)

	sub := s.ReloadSubscription(subscriptionID)
	s.Equal(types.SubscriptionStatusActive, sub.SubscriptionStatus)
	s.Equal(1, sub.CompletedPaymentCount)
	s.True(sub.FirstIPNSuperseded)
	s.Empty(s.renewals())

	s.Contains(s.subscriptionNotes(), notePaymentCompleted)
	s.Equal([]string{"TX1_subscr_payment_Completed"},
		s.GetStores().LedgerRepo.Keys(s.GetContext(), subscriptionID, ledger.KindTransaction))
	s.Contains(s.events(), types.EventOrderPaymentCompleted)
}

func (s *IPNSuite) TestRenewalPaymentCreatesPaidRenewalOrder() {
	s.activeFixture(func(sub *subscription.Subscription) {
		sub.SubscriptionStatus = types.SubscriptionStatusOnHold
	})

	outcome, err := s.post(map[string]string{
		"txn_type":       "subscr_payment",
		"payment_status": "Completed",
		"txn_id":         "TX2",
		"subscr_id":      "I-1",
	})
	s.Require().NoError(err)
	s.Equal(OutcomeProcessed, outcome)

	renewals := s.renewals()
	s.Require().Len(renewals, 1)
	renewal := renewals[0]
	s.Equal(types.OrderPaymentStatusCompleted, renewal.PaymentStatus)
	s.Equal("TX2", renewal.TransactionID)
	s.Equal("I-1", renewal.ProfileID)
	s.Equal(types.PaymentMethodPayPal, renewal.PaymentMethod)
	s.Contains(s.orderNotes(renewal.ID), notePaymentCompleted)

	sub := s.ReloadSubscription(subscriptionID)
	s.Equal(types.SubscriptionStatusActive, sub.SubscriptionStatus)
	s.Equal(2, sub.CompletedPaymentCount)

	// PayPal is still collecting, so the profile is never reactivated from here
	s.Empty(s.GetPayPal().ProfileCalls("ReactivateProfile"))
	s.Contains(s.events(), types.EventRenewalOrderCreated)
}

func (s *IPNSuite) TestRenewalPaymentOnClosedSubscriptionIsNotApplied() {
	s.activeFixture(func(sub *subscription.Subscription) {
		sub.SubscriptionStatus = types.SubscriptionStatusCancelled
	})

	outcome, err := s.post(map[string]string{
		"txn_type":       "subscr_payment",
		"payment_status": "Completed",
		"txn_id":         "TX2",
		"subscr_id":      "I-1",
	})
	s.Require().NoError(err)
	s.Equal(OutcomeProcessed, outcome)
	s.Empty(s.renewals())
	s.Equal(1, s.ReloadSubscription(subscriptionID).CompletedPaymentCount)
}

func (s *IPNSuite) TestPaymentConfirmedByPDTIsSkippedOnce() {
	cfg := *s.GetConfig()
	cfg.PayPal.IdentityToken = "pdt-token"
	s.build(&cfg)

	s.activeFixture(func(sub *subscription.Subscription) {
		sub.FirstIPNSuperseded = false
	})

	outcome, err := s.post(map[string]string{
		"txn_type":       "subscr_payment",
		"payment_status": "Completed",
		"txn_id":         "TX1",
		"subscr_id":      "I-1",
	})
	s.Require().NoError(err)
	s.Equal(OutcomeProcessed, outcome)
	s.Empty(s.renewals())
	s.True(s.ReloadSubscription(subscriptionID).FirstIPNSuperseded)

	_, err = s.post(map[string]string{
		"txn_type":       "subscr_payment",
		"payment_status": "Completed",
		"txn_id":         "TX2",
		"subscr_id":      "I-1",
	})
	s.Require().NoError(err)
	s.Len(s.renewals(), 1)
	s.Equal(2, s.ReloadSubscription(subscriptionID).CompletedPaymentCount)
}

func (s *IPNSuite) TestFailedRenewalPaymentHoldsSubscription() {
	s.activeFixture(nil)

	outcome, err := s.post(map[string]string{
		"txn_type":       "subscr_payment",
		"payment_status": "Failed",
		"txn_id":         "TX5",
		"subscr_id":      "I-1",
	})
	s.Require().NoError(err)
	s.Equal(OutcomeProcessed, outcome)

	renewals := s.renewals()
	s.Require().Len(renewals, 1)
	s.Equal(types.OrderPaymentStatusFailed, renewals[0].PaymentStatus)
	s.Equal("TX5", renewals[0].TransactionID)
	s.Equal(1, renewals[0].FailedAttempts)
	s.Contains(s.orderNotes(renewals[0].ID), "IPN subscription payment Failed.")

	sub := s.ReloadSubscription(subscriptionID)
	s.Equal(types.SubscriptionStatusOnHold, sub.SubscriptionStatus)
	s.Contains(s.subscriptionNotes(), "IPN subscription payment Failed.")
	s.Equal([]string{"I-1"}, s.GetPayPal().ProfileCalls("SuspendProfile"))

	// a retry rule applies to the first failure, so the emails are held back
	s.Empty(s.emails())
	s.Contains(s.events(), types.EventOrderPaymentFailed)
}

func (s *IPNSuite) TestPendingFirstPaymentOnlyNotes() {
	s.fixture(10, nil)

	outcome, err := s.post(map[string]string{
		"txn_type":       "subscr_payment",
		"payment_status": "Pending",
		"txn_id":         "TX1",
		"subscr_id":      "I-1",
	})
	s.Require().NoError(err)
	s.Equal(OutcomeProcessed, outcome)
	s.Empty(s.renewals())
	s.Equal(types.SubscriptionStatusPending, s.ReloadSubscription(subscriptionID).SubscriptionStatus)
	s.Contains(s.subscriptionNotes(), "IPN subscription payment Pending.")
}

func (s *IPNSuite) TestSubscriptionFailureFailsLatestRenewal() {
	s.activeFixture(nil)
	renewal := s.CreateRenewalOrder(150, subscriptionID, types.OrderPaymentStatusFailed)
	renewal.FailedAttempts = 3
	s.Require().NoError(s.GetStores().OrderRepo.Update(s.GetContext(), renewal))

	outcome, err := s.post(map[string]string{
		"txn_type":     "subscr_failed",
		"subscr_id":    "I-1",
		"ipn_track_id": "trk-failed",
	})
	s.Require().NoError(err)
	s.Equal(OutcomeProcessed, outcome)

	s.Equal(4, s.ReloadOrder(150).FailedAttempts)
	s.Equal(types.SubscriptionStatusOnHold, s.ReloadSubscription(subscriptionID).SubscriptionStatus)
	s.Contains(s.subscriptionNotes(), notePaymentFailure)

	// no retry rule is left, so the customer and the admin are told
	s.ElementsMatch([]string{types.EmailCustomerRenewalInvoice, types.EmailAdminFailedOrder}, s.emails())
}

func (s *IPNSuite) TestSuspendedHoldsWithoutCallingPayPal() {
	s.activeFixture(nil)

	outcome, err := s.post(map[string]string{
		"txn_type":             "recurring_payment_suspended",
		"recurring_payment_id": "I-1",
		"ipn_track_id":         "trk-suspend",
	})
	s.Require().NoError(err)
	s.Equal(OutcomeProcessed, outcome)

	s.Equal(types.SubscriptionStatusOnHold, s.ReloadSubscription(subscriptionID).SubscriptionStatus)
	s.Contains(s.subscriptionNotes(), "IPN subscription suspended. Status changed from active to on-hold.")
	s.Empty(s.GetPayPal().ProfileCalls("SuspendProfile"))

	outcome, err = s.post(map[string]string{
		"txn_type":             "recurring_payment_suspended",
		"recurring_payment_id": "I-1",
		"ipn_track_id":         "trk-suspend-again",
	})
	s.Require().NoError(err)
	s.Equal(OutcomeIgnored, outcome)
	s.Contains(s.GetStores().LedgerRepo.Keys(s.GetContext(), subscriptionID, ledger.KindTrackingID),
		"recurring_payment_suspended_trk-suspend-again")
}

func (s *IPNSuite) TestCancelOfCurrentProfile() {
	s.activeFixture(nil)

	outcome, err := s.post(map[string]string{
		"txn_type":  "subscr_cancel",
		"subscr_id": "I-1",
	})
	s.Require().NoError(err)
	s.Equal(OutcomeProcessed, outcome)

	sub := s.ReloadSubscription(subscriptionID)
	s.Equal(types.SubscriptionStatusCancelled, sub.SubscriptionStatus)
	s.Equal("I-1", sub.ProfileID)
	s.Contains(s.subscriptionNotes(), "IPN subscription cancelled. Status changed from active to cancelled.")
	s.Empty(s.GetPayPal().ProfileCalls("CancelProfile"))
	s.Contains(s.events(), types.EventSubscriptionCancelled)
}

func (s *IPNSuite) TestCancelOfReplacedProfileIsIgnored() {
	s.activeFixture(func(sub *subscription.Subscription) {
		sub.ProfileID = "I-2"
	})

	outcome, err := s.post(map[string]string{
		"txn_type":     "subscr_cancel",
		"subscr_id":    "I-1",
		"ipn_track_id": "trk-cancel",
	})
	s.Require().NoError(err)
	s.Equal(OutcomeIgnored, outcome)

	sub := s.ReloadSubscription(subscriptionID)
	s.Equal(types.SubscriptionStatusActive, sub.SubscriptionStatus)
	s.Equal("I-2", sub.ProfileID)
}

func (s *IPNSuite) TestLogOnlyTypesAreRecorded() {
	s.activeFixture(nil)

	tests := []struct {
		txnType   string
		subscrID  string
		profileID string
	}{
		{txnType: "subscr_eot", subscrID: "I-9", profileID: "I-1"},
		{txnType: "recurring_payment_skipped", profileID: "I-1"},
		{txnType: "subscr_modify", subscrID: "I-9", profileID: "I-9"},
	}

	for _, tt := range tests {
		s.Run(tt.txnType, func() {
			fields := map[string]string{
				"txn_type":     tt.txnType,
				"ipn_track_id": "trk-" + tt.txnType,
			}
			if tt.subscrID != "" {
				fields["subscr_id"] = tt.subscrID
			}

			outcome, err := s.post(fields)
			s.Require().NoError(err)
			s.Equal(OutcomeIgnored, outcome)

			sub := s.ReloadSubscription(subscriptionID)
			s.Equal(tt.profileID, sub.ProfileID)
			s.Equal(types.SubscriptionStatusActive, sub.SubscriptionStatus)
			s.Contains(s.GetStores().LedgerRepo.Keys(s.GetContext(), subscriptionID, ledger.KindTrackingID),
				tt.txnType+"_trk-"+tt.txnType)
		})
	}
}

func (s *IPNSuite) TestDuplicateNotificationChangesNothing() {
	s.activeFixture(nil)
	fields := map[string]string{
		"txn_type":       "subscr_payment",
		"payment_status": "Completed",
		"txn_id":         "TX2",
		"subscr_id":      "I-1",
	}

	_, err := s.post(fields)
	s.Require().NoError(err)
	notes := s.subscriptionNotes()

	outcome, err := s.post(fields)
	s.Equal(OutcomeDuplicate, outcome)
	s.True(ierr.IsDuplicate(err))
	s.Len(s.renewals(), 1)
	s.Equal(notes, s.subscriptionNotes())
	s.Equal(2, s.ReloadSubscription(subscriptionID).CompletedPaymentCount)
}

func (s *IPNSuite) TestRejectedNotifications() {
	s.fixture(10, nil)
	s.CreateRenewalOrder(150, 999, types.OrderPaymentStatusFailed)

	tests := []struct {
		name   string
		fields map[string]string
	}{
		{
			name:   "missing transaction type",
			fields: map[string]string{"subscr_id": "I-1"},
		},
		{
			name:   "unsupported transaction type",
			fields: map[string]string{"txn_type": "web_accept"},
		},
		{
			name: "unknown subscription",
			fields: map[string]string{
				"txn_type": "subscr_signup",
				"invoice":  "WC-999",
				"custom":   "wc_order_missing",
			},
		},
		{
			name: "key mismatch",
			fields: map[string]string{
				"txn_type": "subscr_signup",
				"custom":   "wc_order_forged",
			},
		},
		{
			name: "recovery of an unknown order",
			fields: map[string]string{
				"txn_type": "subscr_signup",
				"invoice":  "WC-101-wcsfrp-404",
			},
		},
		{
			name: "recovery of another subscription's renewal",
			fields: map[string]string{
				"txn_type":       "subscr_payment",
				"payment_status": "Completed",
				"txn_id":         "TX7",
				"subscr_id":      "I-1",
				"invoice":        "WC-101-wcsfrp-150",
			},
		},
		{
			name: "recovery of the parent order",
			fields: map[string]string{
				"txn_type":  "subscr_signup",
				"subscr_id": "I-1",
				"invoice":   "WC-101-wcsfrp-100",
			},
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			outcome, err := s.post(tt.fields)
			s.Equal(OutcomeRejected, outcome)
			s.True(ierr.IsValidation(err), "expected a validation error, got %v", err)
		})
	}

	sub := s.ReloadSubscription(subscriptionID)
	s.Empty(sub.ProfileID)
	s.Zero(sub.CompletedPaymentCount)
	s.Empty(s.subscriptionNotes())

	foreign := s.ReloadOrder(150)
	s.Equal(int64(999), foreign.SubscriptionID)
	s.Equal(types.OrderPaymentStatusFailed, foreign.PaymentStatus)
	s.Empty(foreign.TransactionID)
}

func (s *IPNSuite) TestNotificationWithoutTenantIsRejected() {
	s.fixture(10, nil)

	values := url.Values{}
	values.Set("txn_type", "subscr_signup")
	values.Set("subscr_id", "I-1")
	values.Set("invoice", "WC-101")
	values.Set("custom", subscriptionKey)

	outcome, err := s.processor.Process(context.Background(), values)
	s.Equal(OutcomeRejected, outcome)
	s.True(ierr.IsValidation(err), "expected a validation error, got %v", err)
	s.Empty(s.ReloadSubscription(subscriptionID).ProfileID)
}

func (s *IPNSuite) TestOrderKeyFallbackAfterPrefixChange() {
	s.fixture(10, nil)

	outcome, err := s.post(map[string]string{
		"txn_type":  "subscr_signup",
		"subscr_id": "I-1",
		"invoice":   "OLD-101",
	})
	s.Require().NoError(err)
	s.Equal(OutcomeProcessed, outcome)
	s.Equal("I-1", s.ReloadSubscription(subscriptionID).ProfileID)
}

func (s *IPNSuite) TestForeignSubscription() {
	s.activeFixture(func(sub *subscription.Subscription) {
		sub.PaymentMethod = "stripe"
	})

	outcome, err := s.post(map[string]string{
		"txn_type":  "subscr_signup",
		"subscr_id": "I-1",
	})
	s.Equal(OutcomeRejected, outcome)
	s.True(ierr.IsValidation(err))

	outcome, err = s.post(map[string]string{
		"txn_type":             "recurring_payment_suspended",
		"recurring_payment_id": "I-1",
	})
	s.Require().NoError(err)
	s.Equal(OutcomeIgnored, outcome)
	s.Equal(types.SubscriptionStatusActive, s.ReloadSubscription(subscriptionID).SubscriptionStatus)
}

func (s *IPNSuite) TestFailedRenewalRecoveredByNewProfile() {
	s.activeFixture(func(sub *subscription.Subscription) {
		sub.SubscriptionStatus = types.SubscriptionStatusOnHold
		sub.ProfileID = "I-OLD"
	})
	s.CreateRenewalOrder(150, subscriptionID, types.OrderPaymentStatusFailed)

	outcome, err := s.post(map[string]string{
		"txn_type":  "subscr_signup",
		"subscr_id": "I-NEW",
		"invoice":   "WC-101-wcsfrp-150",
	})
	s.Require().NoError(err)
	s.Equal(OutcomeProcessed, outcome)

	sub := s.ReloadSubscription(subscriptionID)
	s.Equal("I-NEW", sub.ProfileID)
	s.Equal("I-OLD", sub.PreviousProfileID)
	s.Equal(types.PaymentMethodPayPal, sub.PreviousPaymentMethod)

	outcome, err = s.post(map[string]string{
		"txn_type":       "subscr_payment",
		"payment_status": "Completed",
		"txn_id":         "TX7",
		"subscr_id":      "I-NEW",
		"invoice":        "WC-101-wcsfrp-150",
	})
	s.Require().NoError(err)
	s.Equal(OutcomeProcessed, outcome)

	recovered := s.ReloadOrder(150)
	s.Equal(types.OrderPaymentStatusCompleted, recovered.PaymentStatus)
	s.Equal("TX7", recovered.TransactionID)
	s.Equal("I-NEW", recovered.ProfileID)
	s.Len(s.renewals(), 1)

	sub = s.ReloadSubscription(subscriptionID)
	s.Equal(types.SubscriptionStatusActive, sub.SubscriptionStatus)
	s.Equal(int64(150), sub.RecoveryRenewalOrderID)
	s.Contains(s.subscriptionNotes(), noteFailingMethodChanged)

	s.Equal([]string{"I-OLD"}, s.GetPayPal().ProfileCalls("CancelProfile"))
	s.Empty(s.GetPayPal().ProfileCalls("ReactivateProfile"))
}

func (s *IPNSuite) TestPaymentMethodChangeToPayPal() {
	s.activeFixture(func(sub *subscription.Subscription) {
		sub.PaymentMethod = "stripe"
		sub.ProfileID = ""
	})

	outcome, err := s.post(map[string]string{
		"txn_type":  "subscr_signup",
		"subscr_id": "I-NEW",
		"invoice":   "WC-101-wcscpm-101",
	})
	s.Require().NoError(err)
	s.Equal(OutcomeProcessed, outcome)

	sub := s.ReloadSubscription(subscriptionID)
	s.Equal(types.PaymentMethodPayPal, sub.PaymentMethod)
	s.Equal("I-NEW", sub.ProfileID)
	s.Equal("stripe", sub.PreviousPaymentMethod)
	s.Contains(s.subscriptionNotes(), noteMethodChanged)
	s.NotContains(s.subscriptionNotes(), noteSignupCompleted)
	s.Empty(s.GetPayPal().ProfileCalls("CancelProfile"))
	s.Contains(s.events(), types.EventSubscriptionMethodChanged)

	// a sign up moving the subscription never completes the parent order
	s.Equal(types.OrderPaymentStatusPending, s.ReloadOrder(parentOrderID).PaymentStatus)
}

func (s *IPNSuite) TestPaymentMethodChangeCancelsOldProfile() {
	client := testutil.NewMockPayPalClient()
	client.On("CancelProfile", mock.Anything, "I-OLD", mock.Anything).Return(errors.New("profile not found")).Once()
	s.withPayPal(client)

	s.activeFixture(func(sub *subscription.Subscription) {
		sub.ProfileID = "I-OLD"
	})

	outcome, err := s.post(map[string]string{
		"txn_type":  "subscr_signup",
		"subscr_id": "I-NEW",
		"invoice":   "WC-101-wcscpm-101",
	})
	// a failed cancel of the old profile never fails the notification
	s.Require().NoError(err)
	s.Equal(OutcomeProcessed, outcome)

	s.Equal([]string{"I-OLD"}, client.ProfileCalls("CancelProfile"))
	s.Equal("I-NEW", s.ReloadSubscription(subscriptionID).ProfileID)
	s.Contains(s.subscriptionNotes(), noteMethodChanged)
}

func (s *IPNSuite) TestSwitchedSubscriptionIsIgnored() {
	s.activeFixture(func(sub *subscription.Subscription) {
		sub.SubscriptionStatus = types.SubscriptionStatusSwitched
	})

	outcome, err := s.post(map[string]string{
		"txn_type":       "subscr_payment",
		"payment_status": "Completed",
		"txn_id":         "TX2",
		"subscr_id":      "I-1",
	})
	s.Require().NoError(err)
	s.Equal(OutcomeIgnored, outcome)
	s.Empty(s.renewals())
	s.Empty(s.GetStores().LedgerRepo.Keys(s.GetContext(), subscriptionID, ledger.KindTransaction))
}

func (s *IPNSuite) TestExpressCheckoutProfilesAreIgnored() {
	outcome, err := s.post(map[string]string{
		"txn_type":             "recurring_payment_suspended_due_to_max_failed_payment",
		"recurring_payment_id": "I-EC",
		"rp_invoice_id":        "EC-1",
	})
	s.Require().NoError(err)
	s.Equal(OutcomeIgnored, outcome)
}

func (s *IPNSuite) TestOutOfDateProfileIsReported() {
	s.fixture(10, nil)

	_, err := s.post(map[string]string{
		"txn_type":  "subscr_signup",
		"subscr_id": "S-LEGACY",
	})
	s.Require().NoError(err)
	s.Equal("S-LEGACY", s.ReloadSubscription(subscriptionID).ProfileID)
	s.Contains(s.events(), types.EventPayPalOutOfDateProfileSeen)
}

func (s *IPNSuite) TestLedgerFailureFailsNotification() {
	s.activeFixture(nil)
	s.GetStores().LedgerRepo.FailAppend = errors.New("ledger unavailable")

	outcome, err := s.post(map[string]string{
		"txn_type":     "subscr_modify",
		"ipn_track_id": "trk-modify",
	})
	s.Equal(OutcomeRejected, outcome)
	s.Error(err)
	s.False(ierr.IsValidation(err))
}
