package httpclient

import (
	"fmt"

	"github.com/cockroachdb/errors"
	ierr "github.com/flexprice/paypal-ipn/internal/errors"
)

// Error represents an HTTP client error
type Error struct {
	err        error
	StatusCode int
	Response   []byte
}

func (e *Error) Unwrap() error {
	return e.err
}

func (e *Error) Error() string {
	return e.err.Error()
}

// NewError creates a new HTTP client error
func NewError(statusCode int, response []byte) *Error {
	return &Error{
		err: ierr.NewError(fmt.Sprintf("http client error: status %d", statusCode)).
			WithHint("The remote service rejected the request").
			Mark(ierr.ErrHTTPClient),
		StatusCode: statusCode,
		Response:   response,
	}
}

// IsHTTPError checks if an error is an HTTP client error
func IsHTTPError(err error) (*Error, bool) {
	var httpErr *Error
	if errors.As(err, &httpErr) {
		return httpErr, true
	}
	return nil, false
}
