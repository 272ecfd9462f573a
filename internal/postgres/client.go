package postgres

import "context"

// IClient is the transaction surface services depend on
type IClient interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

var _ IClient = (*DB)(nil)
