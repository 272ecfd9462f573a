package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSuppressionIsRequestScoped(t *testing.T) {
	ctx := WithSuppression(context.Background())

	assert.True(t, Suppress(ctx, 101))
	assert.True(t, IsSuppressed(ctx, 101))
	assert.False(t, IsSuppressed(ctx, 102))

	// a second request never sees the first one's state
	other := WithSuppression(context.Background())
	assert.False(t, IsSuppressed(other, 101))

	Release(ctx, 101)
	assert.False(t, IsSuppressed(ctx, 101))
}

func TestSuppressWithoutScope(t *testing.T) {
	ctx := context.Background()
	assert.False(t, Suppress(ctx, 1))
	assert.False(t, IsSuppressed(ctx, 1))
	Release(ctx, 1)
}

func TestWithSuppressionKeepsExistingScope(t *testing.T) {
	ctx := WithSuppression(context.Background())
	Suppress(ctx, 7)

	nested := WithSuppression(ctx)
	assert.True(t, IsSuppressed(nested, 7))
}
