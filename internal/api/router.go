package api

import (
	v1 "github.com/flexprice/paypal-ipn/internal/api/v1"
	"github.com/flexprice/paypal-ipn/internal/config"
	"github.com/flexprice/paypal-ipn/internal/logger"
	"github.com/flexprice/paypal-ipn/internal/rest/middleware"
	"github.com/flexprice/paypal-ipn/internal/types"
	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Health  *v1.HealthHandler
	Webhook *v1.WebhookHandler
}

func NewRouter(handlers Handlers, cfg *config.Configuration, logger *logger.Logger) *gin.Engine {
	if cfg.Deployment.Mode != types.ModeLocal {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestIDMiddleware,
		middleware.SentryMiddleware(cfg),
		middleware.ErrorHandler(),
	)

	router.GET("/health", handlers.Health.Health)
	router.POST("/health", handlers.Health.Health)

	// v1 routes
	v1Router := router.Group("/v1")

	// Webhook routes, authenticated by the IPN verification in front of this service
	webhooks := v1Router.Group("/webhooks")
	{
		webhooks.POST("/paypal/:tenant_id", handlers.Webhook.HandlePayPalIPN)
	}

	logger.Infow("router initialized", "mode", cfg.Deployment.Mode)
	return router
}
