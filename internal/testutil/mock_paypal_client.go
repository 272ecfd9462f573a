package testutil

import (
	"context"

	"github.com/flexprice/paypal-ipn/internal/integration/paypal"
	"github.com/stretchr/testify/mock"
)

var _ paypal.Client = (*MockPayPalClient)(nil)

// MockPayPalClient records profile management calls. Every call succeeds
// unless a test registers its own expectation first.
type MockPayPalClient struct {
	mock.Mock
}

func NewMockPayPalClient() *MockPayPalClient {
	return &MockPayPalClient{}
}

// WithDefaults accepts any call. Register failing expectations before calling it.
func (m *MockPayPalClient) WithDefaults() *MockPayPalClient {
	for _, method := range []string{"CancelProfile", "SuspendProfile", "ReactivateProfile"} {
		m.On(method, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	}
	return m
}

func (m *MockPayPalClient) CancelProfile(ctx context.Context, profileID, note string) error {
	return m.Called(ctx, profileID, note).Error(0)
}

func (m *MockPayPalClient) SuspendProfile(ctx context.Context, profileID, note string) error {
	return m.Called(ctx, profileID, note).Error(0)
}

func (m *MockPayPalClient) ReactivateProfile(ctx context.Context, profileID, note string) error {
	return m.Called(ctx, profileID, note).Error(0)
}

// ProfileCalls returns the profile ids passed to a method, in call order
func (m *MockPayPalClient) ProfileCalls(method string) []string {
	var ids []string
	for _, call := range m.Calls {
		if call.Method == method {
			ids = append(ids, call.Arguments.String(1))
		}
	}
	return ids
}
