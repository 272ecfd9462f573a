package main

import (
	"context"
	"time"

	"github.com/flexprice/paypal-ipn/internal/api"
	v1 "github.com/flexprice/paypal-ipn/internal/api/v1"
	"github.com/flexprice/paypal-ipn/internal/cache"
	"github.com/flexprice/paypal-ipn/internal/config"
	"github.com/flexprice/paypal-ipn/internal/integration/paypal"
	"github.com/flexprice/paypal-ipn/internal/integration/paypal/ipn"
	"github.com/flexprice/paypal-ipn/internal/logger"
	"github.com/flexprice/paypal-ipn/internal/notify"
	"github.com/flexprice/paypal-ipn/internal/postgres"
	"github.com/flexprice/paypal-ipn/internal/publisher"
	"github.com/flexprice/paypal-ipn/internal/pubsub"
	"github.com/flexprice/paypal-ipn/internal/pubsub/kafka"
	"github.com/flexprice/paypal-ipn/internal/pubsub/memory"
	"github.com/flexprice/paypal-ipn/internal/repository"
	"github.com/flexprice/paypal-ipn/internal/sentry"
	"github.com/flexprice/paypal-ipn/internal/service"
	"github.com/flexprice/paypal-ipn/internal/types"
	"github.com/flexprice/paypal-ipn/internal/validator"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

func init() {
	// Set UTC timezone for the entire application
	time.Local = time.UTC
}

func main() {
	// Initialize Fx application
	var opts []fx.Option

	// Core dependencies
	opts = append(opts,
		fx.Provide(
			// Validator
			validator.NewValidator,

			// Config
			config.NewConfig,

			// Logger
			logger.NewLogger,

			// Cache
			cache.NewInMemoryCache,

			// Postgres
			postgres.NewDB,
			fx.Annotate(
				func(db *postgres.DB) *postgres.DB { return db },
				fx.As(new(postgres.IClient)),
			),

			// Event transport and publishers
			providePubSub,
			publisher.NewEventPublisher,
			notify.NewNotifier,

			// Repositories
			repository.NewSubscriptionRepository,
			repository.NewOrderRepository,
			repository.NewLedgerRepository,
			repository.NewNoteRepository,

			// PayPal profile management
			paypal.NewClient,
		),
	)

	// Monitoring
	opts = append(opts, sentry.Module())

	// Service layer
	opts = append(opts,
		fx.Provide(
			service.NewServiceParams,
			service.NewRetryPolicy,
			service.NewSubscriptionService,
			service.NewOrderService,
			service.NewRenewalService,
		),
	)

	// IPN processing
	opts = append(opts,
		fx.Provide(
			ipn.NewResolver,
			ipn.NewGuard,
			provideProfileReconciler,
			provideDispatcher,
			ipn.NewProcessor,
		),
	)

	// API
	opts = append(opts,
		fx.Provide(
			provideHandlers,
			api.NewRouter,
		),
		fx.Invoke(
			startServer,
		),
	)

	app := fx.New(opts...)
	app.Run()
}

func providePubSub(lc fx.Lifecycle, cfg *config.Configuration, log *logger.Logger) (pubsub.PubSub, error) {
	var (
		ps  pubsub.PubSub
		err error
	)

	switch cfg.Events.PubSub {
	case types.KafkaPubSub:
		ps, err = kafka.NewPubSub(cfg, log)
		if err != nil {
			return nil, err
		}
	default:
		ps = memory.NewPubSub(log)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info("closing event transport")
			return ps.Close()
		},
	})
	return ps, nil
}

func provideProfileReconciler(
	subscriptions service.SubscriptionService,
	orders service.OrderService,
	events publisher.EventPublisher,
	log *logger.Logger,
) *ipn.ProfileReconciler {
	return ipn.NewProfileReconciler(subscriptions, orders, events, log)
}

func provideDispatcher(
	subscriptions service.SubscriptionService,
	orders service.OrderService,
	renewals service.RenewalService,
	client paypal.Client,
	cfg *config.Configuration,
	log *logger.Logger,
) (*ipn.Dispatcher, error) {
	return ipn.NewDispatcher(subscriptions, orders, renewals, client, cfg, log)
}

func provideHandlers(processor *ipn.Processor, log *logger.Logger) api.Handlers {
	return api.Handlers{
		Health:  v1.NewHealthHandler(log),
		Webhook: v1.NewWebhookHandler(processor, log),
	}
}

func startServer(
	lc fx.Lifecycle,
	cfg *config.Configuration,
	r *gin.Engine,
	db *postgres.DB,
	log *logger.Logger,
) {
	mode := cfg.Deployment.Mode
	if mode == "" {
		mode = types.ModeLocal
	}

	switch mode {
	case types.ModeLocal, types.ModeAPI:
		startAPIServer(lc, r, cfg, db, log)
	default:
		log.Fatalf("Unknown deployment mode: %s", mode)
	}
}

func startAPIServer(
	lc fx.Lifecycle,
	r *gin.Engine,
	cfg *config.Configuration,
	db *postgres.DB,
	log *logger.Logger,
) {
	log.Info("Registering API server start hook")
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("Starting API server...")
			go func() {
				if err := r.Run(cfg.Server.Address); err != nil {
					log.Fatalf("Failed to start server: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Shutting down server...")
			db.Close()
			return nil
		},
	})
}
