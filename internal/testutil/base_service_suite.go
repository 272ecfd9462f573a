package testutil

import (
	"context"
	"time"

	"github.com/flexprice/paypal-ipn/internal/config"
	"github.com/flexprice/paypal-ipn/internal/domain/order"
	"github.com/flexprice/paypal-ipn/internal/domain/subscription"
	"github.com/flexprice/paypal-ipn/internal/logger"
	"github.com/flexprice/paypal-ipn/internal/notify"
	"github.com/flexprice/paypal-ipn/internal/postgres"
	"github.com/flexprice/paypal-ipn/internal/publisher"
	"github.com/flexprice/paypal-ipn/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

// Stores holds all the repositories for testing
type Stores struct {
	SubscriptionRepo *InMemorySubscriptionStore
	OrderRepo        *InMemoryOrderStore
	LedgerRepo       *InMemoryLedgerStore
	NoteRepo         *InMemoryNoteStore
}

// BaseServiceTestSuite provides common functionality for all service test suites
type BaseServiceTestSuite struct {
	suite.Suite
	ctx       context.Context
	stores    Stores
	pubsub    *InMemoryPubSub
	publisher publisher.EventPublisher
	notifier  notify.Notifier
	paypal    *MockPayPalClient
	db        postgres.IClient
	logger    *logger.Logger
	config    *config.Configuration
	now       time.Time
}

// SetupSuite is called once before running the tests in the suite
func (s *BaseServiceTestSuite) SetupSuite() {
	s.config = config.GetDefaultConfig()
	s.config.Logging.Level = types.LogLevelInfo
	s.config.PayPal.InvoicePrefix = "WC-"
	s.config.Retry = config.RetryConfig{Enabled: true, Rules: 3}
	s.logger = logger.NewNopLogger()
}

// SetupTest is called before each test
func (s *BaseServiceTestSuite) SetupTest() {
	s.ctx = SetupContext()
	s.now = time.Now().UTC()
	s.setupStores()
}

// TearDownTest is called after each test
func (s *BaseServiceTestSuite) TearDownTest() {
	s.clearStores()
}

func (s *BaseServiceTestSuite) setupStores() {
	s.stores = Stores{
		SubscriptionRepo: NewInMemorySubscriptionStore(),
		OrderRepo:        NewInMemoryOrderStore(),
		LedgerRepo:       NewInMemoryLedgerStore(),
		NoteRepo:         NewInMemoryNoteStore(),
	}

	s.db = NewMockPostgresClient(s.logger)
	s.pubsub = NewInMemoryPubSub()
	s.publisher = publisher.NewEventPublisher(s.pubsub, s.config, s.logger)
	s.notifier = notify.NewNotifier(s.publisher, s.config, s.logger)
	s.paypal = NewMockPayPalClient().WithDefaults()
}

func (s *BaseServiceTestSuite) clearStores() {
	s.stores.SubscriptionRepo.Clear()
	s.stores.OrderRepo.Clear()
	s.stores.LedgerRepo.Clear()
	s.stores.NoteRepo.Clear()
	s.pubsub.ClearMessages()
}

// GetContext returns the test context
func (s *BaseServiceTestSuite) GetContext() context.Context {
	return s.ctx
}

// GetConfig returns the test configuration
func (s *BaseServiceTestSuite) GetConfig() *config.Configuration {
	return s.config
}

// GetStores returns all test repositories
func (s *BaseServiceTestSuite) GetStores() Stores {
	return s.stores
}

// GetPubSub returns the pubsub events and email triggers are published on
func (s *BaseServiceTestSuite) GetPubSub() *InMemoryPubSub {
	return s.pubsub
}

// GetPublisher returns the test event publisher
func (s *BaseServiceTestSuite) GetPublisher() publisher.EventPublisher {
	return s.publisher
}

// GetNotifier returns the email notifier
func (s *BaseServiceTestSuite) GetNotifier() notify.Notifier {
	return s.notifier
}

// GetPayPal returns the mocked PayPal profile client
func (s *BaseServiceTestSuite) GetPayPal() *MockPayPalClient {
	return s.paypal
}

// SetPayPal replaces the PayPal client, used to inject failures
func (s *BaseServiceTestSuite) SetPayPal(client *MockPayPalClient) {
	s.paypal = client
}

// GetDB returns the test database client
func (s *BaseServiceTestSuite) GetDB() postgres.IClient {
	return s.db
}

// GetLogger returns the test logger
func (s *BaseServiceTestSuite) GetLogger() *logger.Logger {
	return s.logger
}

// GetNow returns the current test time
func (s *BaseServiceTestSuite) GetNow() time.Time {
	return s.now.UTC()
}

// CreateParentOrder stores a checkout order
func (s *BaseServiceTestSuite) CreateParentOrder(id int64, key string, total decimal.Decimal) *order.Order {
	o := &order.Order{
		ID:            id,
		OrderKey:      key,
		Type:          types.OrderTypeParent,
		CustomerID:    "cust_1",
		Total:         total,
		Currency:      "USD",
		PaymentStatus: types.OrderPaymentStatusPending,
		PaymentMethod: types.PaymentMethodPayPal,
		Metadata:      types.Metadata{},
		BaseModel:     types.GetDefaultBaseModel(s.ctx),
	}
	s.Require().NoError(s.stores.OrderRepo.Create(s.ctx, o))
	return o
}

// CreateSubscription stores a subscription; mutate lets a test adjust it before saving
func (s *BaseServiceTestSuite) CreateSubscription(id int64, key string, parentOrderID int64, mutate func(*subscription.Subscription)) *subscription.Subscription {
	sub := &subscription.Subscription{
		ID:                 id,
		OrderKey:           key,
		ParentOrderID:      parentOrderID,
		CustomerID:         "cust_1",
		SubscriptionStatus: types.SubscriptionStatusPending,
		PaymentMethod:      types.PaymentMethodPayPal,
		RecurringTotal:     decimal.NewFromInt(10),
		Currency:           "USD",
		Metadata:           types.Metadata{},
		BaseModel:          types.GetDefaultBaseModel(s.ctx),
	}
	if mutate != nil {
		mutate(sub)
	}
	s.Require().NoError(s.stores.SubscriptionRepo.Create(s.ctx, sub))
	return sub
}

// CreateRenewalOrder stores a renewal order of a subscription
func (s *BaseServiceTestSuite) CreateRenewalOrder(id, subscriptionID int64, status types.OrderPaymentStatus) *order.Order {
	o := &order.Order{
		ID:             id,
		OrderKey:       types.GenerateUUIDWithPrefix(types.UUID_PREFIX_ORDER_KEY),
		Type:           types.OrderTypeRenewal,
		SubscriptionID: subscriptionID,
		CustomerID:     "cust_1",
		Total:          decimal.NewFromInt(10),
		Currency:       "USD",
		PaymentStatus:  status,
		Metadata:       types.Metadata{},
		BaseModel:      types.GetDefaultBaseModel(s.ctx),
	}
	s.Require().NoError(s.stores.OrderRepo.Create(s.ctx, o))
	return o
}

// ReloadSubscription reads the stored state of a subscription
func (s *BaseServiceTestSuite) ReloadSubscription(id int64) *subscription.Subscription {
	sub, err := s.stores.SubscriptionRepo.Get(s.ctx, id)
	s.Require().NoError(err)
	return sub
}

// ReloadOrder reads the stored state of an order
func (s *BaseServiceTestSuite) ReloadOrder(id int64) *order.Order {
	o, err := s.stores.OrderRepo.Get(s.ctx, id)
	s.Require().NoError(err)
	return o
}
