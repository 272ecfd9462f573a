package service

import (
	"errors"
	"strings"
	"testing"

	"github.com/flexprice/paypal-ipn/internal/domain/note"
	"github.com/flexprice/paypal-ipn/internal/domain/subscription"
	ierr "github.com/flexprice/paypal-ipn/internal/errors"
	"github.com/flexprice/paypal-ipn/internal/logger"
	"github.com/flexprice/paypal-ipn/internal/notify"
	"github.com/flexprice/paypal-ipn/internal/testutil"
	"github.com/flexprice/paypal-ipn/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type SubscriptionServiceSuite struct {
	testutil.BaseServiceTestSuite
	service  SubscriptionService
	orders   OrderService
	renewals RenewalService
}

func TestSubscriptionService(t *testing.T) {
	suite.Run(t, new(SubscriptionServiceSuite))
}

func (s *SubscriptionServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.setupService()
}

func (s *SubscriptionServiceSuite) setupService() {
	stores := s.GetStores()
	params := NewServiceParams(
		s.GetLogger(),
		s.GetConfig(),
		s.GetDB(),
		stores.SubscriptionRepo,
		stores.OrderRepo,
		stores.NoteRepo,
		s.GetPublisher(),
		s.GetNotifier(),
		s.GetPayPal(),
	)
	s.service = NewSubscriptionService(params, NewRetryPolicy(s.GetConfig()))
	s.orders = NewOrderService(params, s.service)
	s.renewals = NewRenewalService(params)
}

func (s *SubscriptionServiceSuite) paypalSubscription(status types.SubscriptionStatus) *subscription.Subscription {
	s.CreateParentOrder(1, "wc_order_parent", decimal.NewFromInt(10))
	return s.CreateSubscription(2, "wc_order_sub", 1, func(sub *subscription.Subscription) {
		sub.SubscriptionStatus = status
		sub.ProfileID = "I-1"
		sub.CompletedPaymentCount = 1
	})
}

func (s *SubscriptionServiceSuite) emails() []string {
	return s.GetPubSub().EventNames(s.GetConfig().Events.EmailTopic)
}

func (s *SubscriptionServiceSuite) TestUpdateStatusSyncsProfile() {
	tests := []struct {
		name   string
		from   types.SubscriptionStatus
		to     types.SubscriptionStatus
		method string
	}{
		{name: "on-hold suspends", from: types.SubscriptionStatusActive, to: types.SubscriptionStatusOnHold, method: "SuspendProfile"},
		{name: "reactivation", from: types.SubscriptionStatusOnHold, to: types.SubscriptionStatusActive, method: "ReactivateProfile"},
		{name: "cancellation", from: types.SubscriptionStatusActive, to: types.SubscriptionStatusCancelled, method: "CancelProfile"},
		{name: "first activation", from: types.SubscriptionStatusPending, to: types.SubscriptionStatusActive},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.SetupTest()
			sub := s.paypalSubscription(tt.from)

			s.Require().NoError(s.service.UpdateStatus(s.GetContext(), sub, tt.to, ""))
			s.Equal(tt.to, s.ReloadSubscription(sub.ID).SubscriptionStatus)

			for _, method := range []string{"SuspendProfile", "ReactivateProfile", "CancelProfile"} {
				if method == tt.method {
					s.Equal([]string{"I-1"}, s.GetPayPal().ProfileCalls(method))
					continue
				}
				s.Empty(s.GetPayPal().ProfileCalls(method))
			}
		})
	}
}

func (s *SubscriptionServiceSuite) TestUpdateStatusSkipsSync() {
	s.Run("changes applied at the processor", func() {
		s.SetupTest()
		sub := s.paypalSubscription(types.SubscriptionStatusActive)

		ctx := types.WithoutProcessorSync(s.GetContext())
		s.Require().NoError(s.service.UpdateStatus(ctx, sub, types.SubscriptionStatusOnHold, ""))
		s.Empty(s.GetPayPal().Calls)
	})

	s.Run("other gateways", func() {
		s.SetupTest()
		sub := s.paypalSubscription(types.SubscriptionStatusActive)
		sub.PaymentMethod = "stripe"

		s.Require().NoError(s.service.UpdateStatus(s.GetContext(), sub, types.SubscriptionStatusOnHold, ""))
		s.Empty(s.GetPayPal().Calls)
	})
}

func (s *SubscriptionServiceSuite) TestUpdateStatusNotesSyncFailure() {
	client := testutil.NewMockPayPalClient()
	client.On("SuspendProfile", mock.Anything, "I-1", mock.Anything).Return(errors.New("timeout")).Once()
	s.SetPayPal(client.WithDefaults())
	s.setupService()

	sub := s.paypalSubscription(types.SubscriptionStatusActive)
	s.Require().NoError(s.service.UpdateStatus(s.GetContext(), sub, types.SubscriptionStatusOnHold, "Held."))

	notes := s.GetStores().NoteRepo.Contents(s.GetContext(), types.NoteEntityTypeSubscription, sub.ID)
	s.Require().Len(notes, 2)
	s.Equal("Held. Status changed from active to on-hold.", notes[0])
	s.Contains(notes[1], "could not be updated")
}

func (s *SubscriptionServiceSuite) TestUpdateStatusLogsUnwritableSyncNote() {
	client := testutil.NewMockPayPalClient()
	client.On("SuspendProfile", mock.Anything, "I-1", mock.Anything).Return(errors.New("timeout")).Once()
	s.SetPayPal(client.WithDefaults())

	core, logs := observer.New(zap.ErrorLevel)
	stores := s.GetStores()
	params := NewServiceParams(
		&logger.Logger{SugaredLogger: zap.New(core).Sugar()},
		s.GetConfig(),
		s.GetDB(),
		stores.SubscriptionRepo,
		stores.OrderRepo,
		stores.NoteRepo,
		s.GetPublisher(),
		s.GetNotifier(),
		s.GetPayPal(),
	)
	svc := NewSubscriptionService(params, NewRetryPolicy(s.GetConfig()))

	sub := s.paypalSubscription(types.SubscriptionStatusActive)
	stores.NoteRepo.FailCreate = func(n *note.Note) error {
		if strings.Contains(n.Content, "could not be updated") {
			return errors.New("notes table unavailable")
		}
		return nil
	}

	s.Require().NoError(svc.UpdateStatus(s.GetContext(), sub, types.SubscriptionStatusOnHold, ""))
	s.Equal(types.SubscriptionStatusOnHold, s.ReloadSubscription(sub.ID).SubscriptionStatus)

	failures := logs.FilterMessage("failed to note paypal profile sync failure").All()
	s.Require().Len(failures, 1)
	s.Equal(sub.ID, failures[0].ContextMap()["subscription_id"])
}

func (s *SubscriptionServiceSuite) TestUpdateStatusToSameStatusOnlyNotes() {
	sub := s.paypalSubscription(types.SubscriptionStatusOnHold)

	s.Require().NoError(s.service.UpdateStatus(s.GetContext(), sub, types.SubscriptionStatusOnHold, "Still held."))
	s.Equal([]string{"Still held."},
		s.GetStores().NoteRepo.Contents(s.GetContext(), types.NoteEntityTypeSubscription, sub.ID))
	s.Empty(s.GetPayPal().Calls)

	err := s.service.UpdateStatus(s.GetContext(), sub, types.SubscriptionStatus("paused"), "")
	s.True(ierr.IsValidation(err))
}

func (s *SubscriptionServiceSuite) TestCancel() {
	sub := s.paypalSubscription(types.SubscriptionStatusExpired)
	err := s.service.Cancel(s.GetContext(), sub, "")
	s.True(ierr.IsInvalidOperation(err))

	sub.SubscriptionStatus = types.SubscriptionStatusCancelled
	s.NoError(s.service.Cancel(s.GetContext(), sub, "Cancelled again."))
}

func (s *SubscriptionServiceSuite) TestPaymentFailedSuppressesEmailsWhileRetrying() {
	sub := s.paypalSubscription(types.SubscriptionStatusActive)
	renewal := s.CreateRenewalOrder(3, sub.ID, types.OrderPaymentStatusPending)
	ctx := notify.WithSuppression(s.GetContext())

	s.Require().NoError(s.service.PaymentFailed(ctx, sub, renewal))

	stored := s.ReloadOrder(renewal.ID)
	s.Equal(types.OrderPaymentStatusFailed, stored.PaymentStatus)
	s.Equal(1, stored.FailedAttempts)
	s.Equal(types.SubscriptionStatusOnHold, s.ReloadSubscription(sub.ID).SubscriptionStatus)
	s.Empty(s.emails())
	s.False(notify.IsSuppressed(ctx, renewal.ID))
}

func (s *SubscriptionServiceSuite) TestPaymentFailedSendsEmailsWithoutRetryRule() {
	sub := s.paypalSubscription(types.SubscriptionStatusActive)
	renewal := s.CreateRenewalOrder(3, sub.ID, types.OrderPaymentStatusFailed)
	renewal.FailedAttempts = 3

	s.Require().NoError(s.service.PaymentFailed(notify.WithSuppression(s.GetContext()), sub, renewal))
	s.Equal([]string{types.EmailCustomerRenewalInvoice, types.EmailAdminFailedOrder}, s.emails())
}

func (s *SubscriptionServiceSuite) TestPaymentFailedOnParentOrder() {
	sub := s.paypalSubscription(types.SubscriptionStatusPending)

	s.Require().NoError(s.service.PaymentFailed(notify.WithSuppression(s.GetContext()), sub, nil))

	s.Equal(types.OrderPaymentStatusFailed, s.ReloadOrder(1).PaymentStatus)
	s.Equal([]string{types.EmailAdminFailedOrder}, s.emails())
	s.Equal(types.SubscriptionStatusOnHold, s.ReloadSubscription(sub.ID).SubscriptionStatus)
}

func (s *SubscriptionServiceSuite) TestCompletePaymentIsIdempotent() {
	sub := s.paypalSubscription(types.SubscriptionStatusOnHold)
	renewal := s.CreateRenewalOrder(3, sub.ID, types.OrderPaymentStatusFailed)

	s.Require().NoError(s.orders.CompletePayment(s.GetContext(), sub, renewal, "TX1"))
	s.Require().NoError(s.orders.CompletePayment(s.GetContext(), sub, renewal, "TX1"))

	stored := s.ReloadSubscription(sub.ID)
	s.Equal(2, stored.CompletedPaymentCount)
	s.Equal(types.SubscriptionStatusActive, stored.SubscriptionStatus)
	s.Equal("TX1", s.ReloadOrder(renewal.ID).TransactionID)
	s.Equal([]string{"I-1"}, s.GetPayPal().ProfileCalls("ReactivateProfile"))
}

func (s *SubscriptionServiceSuite) TestCreateRenewalOrder() {
	sub := s.paypalSubscription(types.SubscriptionStatusActive)
	sub.RecurringTotal = decimal.RequireFromString("19.99")

	renewal, err := s.renewals.CreateRenewalOrder(s.GetContext(), sub)
	s.Require().NoError(err)

	s.Greater(renewal.ID, int64(10000))
	s.True(renewal.IsRenewal())
	s.Equal(sub.ID, renewal.SubscriptionID)
	s.Equal(types.OrderPaymentStatusPending, renewal.PaymentStatus)
	s.True(decimal.RequireFromString("19.99").Equal(renewal.Total))
	s.Contains(renewal.OrderKey, types.UUID_PREFIX_ORDER_KEY)

	latest, err := s.GetStores().OrderRepo.GetLatestRenewal(s.GetContext(), sub.ID)
	s.Require().NoError(err)
	s.Equal(renewal.ID, latest.ID)
	s.Contains(s.GetPubSub().EventNames(s.GetConfig().Events.Topic), types.EventRenewalOrderCreated)
}
