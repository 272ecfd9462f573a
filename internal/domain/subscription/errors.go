package subscription

import (
	"strconv"

	ierr "github.com/flexprice/paypal-ipn/internal/errors"
)

// NewNotFoundError creates a new not found error with additional context
func NewNotFoundError(id int64) error {
	return ierr.NewError("subscription not found").
		WithHintf("Subscription %s was not found", strconv.FormatInt(id, 10)).
		WithReportableDetails(map[string]any{"subscription_id": id}).
		Mark(ierr.ErrNotFound)
}
