package paypal

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/flexprice/paypal-ipn/internal/config"
	ierr "github.com/flexprice/paypal-ipn/internal/errors"
	"github.com/flexprice/paypal-ipn/internal/httpclient"
	"github.com/flexprice/paypal-ipn/internal/logger"
	"github.com/flexprice/paypal-ipn/internal/types"
)

const nvpVersion = "124.0"

// ProfileAction is an ACTION value of ManageRecurringPaymentsProfileStatus
type ProfileAction string

const (
	ProfileActionCancel     ProfileAction = "Cancel"
	ProfileActionSuspend    ProfileAction = "Suspend"
	ProfileActionReactivate ProfileAction = "Reactivate"
)

// Client manages recurring payment profiles at PayPal
type Client interface {
	CancelProfile(ctx context.Context, profileID, note string) error
	SuspendProfile(ctx context.Context, profileID, note string) error
	ReactivateProfile(ctx context.Context, profileID, note string) error
}

type client struct {
	cfg        config.PayPalConfig
	httpClient httpclient.Client
	logger     *logger.Logger
}

// NewClient creates a PayPal NVP API client
func NewClient(cfg *config.Configuration, logger *logger.Logger) Client {
	return &client{
		cfg: cfg.PayPal,
		httpClient: httpclient.NewDefaultClient(httpclient.ClientConfig{
			Timeout:  cfg.PayPal.HTTPTimeout,
			RetryMax: cfg.PayPal.RetryMax,
		}, logger),
		logger: logger,
	}
}

func (c *client) CancelProfile(ctx context.Context, profileID, note string) error {
	return c.manageProfile(ctx, profileID, ProfileActionCancel, note)
}

func (c *client) SuspendProfile(ctx context.Context, profileID, note string) error {
	return c.manageProfile(ctx, profileID, ProfileActionSuspend, note)
}

func (c *client) ReactivateProfile(ctx context.Context, profileID, note string) error {
	return c.manageProfile(ctx, profileID, ProfileActionReactivate, note)
}

func (c *client) manageProfile(ctx context.Context, profileID string, action ProfileAction, note string) error {
	if profileID == "" {
		return nil
	}

	if !c.cfg.HasAPICredentials() {
		c.logger.Warnw("paypal api credentials missing, profile left unchanged",
			"profile_id", profileID,
			"action", action,
		)
		return nil
	}

	// legacy subscription ids can't be managed through the recurring payments api
	if strings.HasPrefix(profileID, types.PayPalOutOfDateProfilePrefix) {
		c.logger.Warnw("out of date paypal profile id cannot be managed",
			"profile_id", profileID,
			"action", action,
		)
		return nil
	}

	form := url.Values{}
	form.Set("USER", c.cfg.APIUsername)
	form.Set("PWD", c.cfg.APIPassword)
	form.Set("SIGNATURE", c.cfg.APISignature)
	form.Set("VERSION", nvpVersion)
	form.Set("METHOD", "ManageRecurringPaymentsProfileStatus")
	form.Set("PROFILEID", profileID)
	form.Set("ACTION", string(action))
	if note != "" {
		form.Set("NOTE", note)
	}

	resp, err := c.httpClient.Send(ctx, &httpclient.Request{
		Method:  http.MethodPost,
		URL:     c.cfg.NVPEndpoint(),
		Headers: map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
		Body:    []byte(form.Encode()),
	})
	if err != nil {
		details := map[string]any{"profile_id": profileID, "action": action}
		if httpErr, ok := httpclient.IsHTTPError(err); ok {
			details["status_code"] = httpErr.StatusCode
		}
		return ierr.WithError(err).
			WithHintf("PayPal rejected the %s request for profile %s", action, profileID).
			WithReportableDetails(details).
			Mark(ierr.ErrHTTPClient)
	}

	return c.checkAck(resp.Body, profileID, action)
}

func (c *client) checkAck(body []byte, profileID string, action ProfileAction) error {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return ierr.WithError(err).
			WithHint("PayPal returned an unreadable response").
			Mark(ierr.ErrHTTPClient)
	}

	ack := strings.ToLower(values.Get("ACK"))
	if ack == "success" || ack == "successwithwarning" {
		c.logger.Infow("paypal profile status updated",
			"profile_id", profileID,
			"action", action,
			"correlation_id", values.Get("CORRELATIONID"),
		)
		return nil
	}

	return ierr.NewError("paypal profile status update failed").
		WithHintf("PayPal: %s", values.Get("L_LONGMESSAGE0")).
		WithReportableDetails(map[string]any{
			"profile_id":     profileID,
			"action":         action,
			"error_code":     values.Get("L_ERRORCODE0"),
			"correlation_id": values.Get("CORRELATIONID"),
		}).
		Mark(ierr.ErrHTTPClient)
}
