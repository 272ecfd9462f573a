package v1

import (
	"context"
	"net/http"
	"net/url"

	ierr "github.com/flexprice/paypal-ipn/internal/errors"
	"github.com/flexprice/paypal-ipn/internal/integration/paypal/ipn"
	"github.com/flexprice/paypal-ipn/internal/logger"
	"github.com/flexprice/paypal-ipn/internal/types"
	"github.com/gin-gonic/gin"
)

// NotificationProcessor applies a verified PayPal IPN form body
type NotificationProcessor interface {
	Process(ctx context.Context, values url.Values) (ipn.Outcome, error)
}

// WebhookHandler handles processor callbacks
type WebhookHandler struct {
	processor NotificationProcessor
	logger    *logger.Logger
}

func NewWebhookHandler(processor NotificationProcessor, logger *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		processor: processor,
		logger:    logger,
	}
}

// HandlePayPalIPN handles the POST /webhooks/paypal/:tenant_id endpoint
func (h *WebhookHandler) HandlePayPalIPN(c *gin.Context) {
	tenantID := c.Param("tenant_id")
	if tenantID == "" {
		h.logger.Errorw("missing tenant_id in webhook URL")
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "tenant_id is required",
		})
		return
	}

	if err := c.Request.ParseForm(); err != nil {
		h.logger.Errorw("failed to parse IPN form body",
			"tenant_id", tenantID,
			"error", err,
		)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Failed to parse request body",
		})
		return
	}

	ctx := types.SetTenantID(c.Request.Context(), tenantID)
	ctx = types.SetUserID(ctx, types.SystemUserID)
	c.Request = c.Request.WithContext(ctx)

	outcome, err := h.processor.Process(ctx, c.Request.PostForm)

	// PayPal redelivers on anything but 2xx, so only collaborator failures
	// may answer with an error status
	if err != nil && !ierr.IsValidation(err) && !ierr.IsDuplicate(err) {
		status := ierr.HTTPStatusFromErr(err)
		if status < http.StatusInternalServerError {
			status = http.StatusInternalServerError
		}
		h.logger.Errorw("IPN processing failed, awaiting redelivery",
			"tenant_id", tenantID,
			"outcome", outcome,
			"status", status,
			"error", err,
		)
		c.JSON(status, gin.H{
			"error": "IPN could not be processed",
		})
		return
	}

	h.logger.Debugw("IPN processed",
		"tenant_id", tenantID,
		"outcome", outcome,
	)
	c.JSON(http.StatusOK, gin.H{
		"message": "IPN received",
	})
}
