package validator

import (
	"testing"

	ierr "github.com/flexprice/paypal-ipn/internal/errors"
	"github.com/stretchr/testify/assert"
)

type sample struct {
	Name  string `validate:"required"`
	Email string `validate:"omitempty,email"`
}

func TestValidateRequest(t *testing.T) {
	assert.NoError(t, ValidateRequest(&sample{Name: "a"}))

	err := ValidateRequest(&sample{Email: "not-an-email"})
	assert.Error(t, err)
	assert.True(t, ierr.IsValidation(err))
}
