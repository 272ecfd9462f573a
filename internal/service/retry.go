package service

import "github.com/flexprice/paypal-ipn/internal/config"

// RetryPolicy answers whether a failed renewal will be retried. The retry
// schedule itself is owned by the billing side.
type RetryPolicy interface {
	// HasRule reports whether a rule exists for the given zero based retry number
	HasRule(retryNumber int) bool
}

type retryPolicy struct {
	cfg config.RetryConfig
}

func NewRetryPolicy(cfg *config.Configuration) RetryPolicy {
	return &retryPolicy{cfg: cfg.Retry}
}

func (p *retryPolicy) HasRule(retryNumber int) bool {
	return p.cfg.Enabled && retryNumber >= 0 && retryNumber < p.cfg.Rules
}
