package notify

import (
	"context"
	"sync"
)

type suppressionKey struct{}

// suppression is the set of orders whose failed order emails are held back for
// the lifetime of one request
type suppression struct {
	mu     sync.Mutex
	orders map[int64]struct{}
}

// WithSuppression returns a context able to carry email suppression for the request
func WithSuppression(ctx context.Context) context.Context {
	if _, ok := ctx.Value(suppressionKey{}).(*suppression); ok {
		return ctx
	}
	return context.WithValue(ctx, suppressionKey{}, &suppression{orders: make(map[int64]struct{})})
}

// Suppress holds back the failed order emails of an order. It reports false when
// the context was not prepared with WithSuppression.
func Suppress(ctx context.Context, orderID int64) bool {
	s, ok := ctx.Value(suppressionKey{}).(*suppression)
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[orderID] = struct{}{}
	return true
}

// Release re-enables the emails of an order
func Release(ctx context.Context, orderID int64) {
	s, ok := ctx.Value(suppressionKey{}).(*suppression)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.orders, orderID)
}

func IsSuppressed(ctx context.Context, orderID int64) bool {
	s, ok := ctx.Value(suppressionKey{}).(*suppression)
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, found := s.orders[orderID]
	return found
}
