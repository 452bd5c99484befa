package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/brickapparel/storefront-backend/internal/cart"
	"github.com/brickapparel/storefront-backend/internal/cron"
	"github.com/brickapparel/storefront-backend/internal/fulfillment"
	"github.com/brickapparel/storefront-backend/internal/guests"
	"github.com/brickapparel/storefront-backend/internal/inventory"
	"github.com/brickapparel/storefront-backend/internal/notifications"
	"github.com/brickapparel/storefront-backend/internal/orders"
	"github.com/brickapparel/storefront-backend/internal/payments"
	"github.com/brickapparel/storefront-backend/internal/transactions"
	"github.com/brickapparel/storefront-backend/pkg/config"
	"github.com/brickapparel/storefront-backend/pkg/db"
	"github.com/brickapparel/storefront-backend/pkg/enums"
	"github.com/brickapparel/storefront-backend/pkg/instance"
	"github.com/brickapparel/storefront-backend/pkg/logger"
	"github.com/brickapparel/storefront-backend/pkg/metrics"
	"github.com/brickapparel/storefront-backend/pkg/migrate"
	"github.com/brickapparel/storefront-backend/pkg/outbox"
	"github.com/brickapparel/storefront-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	jobs, err := buildJobs(cfg, logg, dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to build cron jobs", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(cron.LeaderLockName), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   cron.NewRegistry(jobs...),
		Lock:       lock,
		Metrics:    metricsCollector,
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"jobs":        len(jobs),
		"instance":    instance.GetID(),
	})
	go func() {
		if err := metrics.Serve(ctx, cfg.Service.MetricsAddr, prometheus.DefaultGatherer, logg); err != nil {
			logg.Error(ctx, "metrics listener stopped", err)
		}
	}()
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

// buildJobs wires the maintenance sweeps. Expiring pending orders never calls
// a provider, so the fulfillment service runs with an empty gateway registry.
func buildJobs(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) ([]cron.Job, error) {
	gormDB := dbClient.DB()

	inventoryService, err := inventory.NewService(inventory.NewRepository(gormDB))
	if err != nil {
		return nil, err
	}
	cartService, err := cart.NewService(cart.NewRepository(gormDB), dbClient, inventoryService, cfg.Checkout.CartRetention)
	if err != nil {
		return nil, err
	}
	orderRepo := orders.NewRepository(gormDB)
	ordersService, err := orders.NewService(orderRepo)
	if err != nil {
		return nil, err
	}
	pricing, err := orders.NewPricing(cfg.Checkout)
	if err != nil {
		return nil, err
	}
	notificationsService, err := notifications.NewService(notifications.NewRepository(gormDB), logg)
	if err != nil {
		return nil, err
	}
	gateways, err := payments.NewRegistry()
	if err != nil {
		return nil, err
	}
	currency, err := enums.ParseCurrency(cfg.Checkout.Currency)
	if err != nil {
		return nil, err
	}
	outboxRepo := outbox.NewRepository(gormDB)
	fulfillmentService, err := fulfillment.NewService(fulfillment.Deps{
		Tx:            dbClient,
		Carts:         cartService,
		Guests:        guests.NewRepository(gormDB),
		Inventory:     inventoryService,
		Orders:        ordersService,
		OrderRepo:     orderRepo,
		Transactions:  transactions.NewRepository(gormDB),
		Pricing:       pricing,
		Gateways:      gateways,
		Notifications: notificationsService,
		Outbox:        outbox.NewService(outboxRepo, logg),
		Logger:        logg,
		Currency:      currency,
	})
	if err != nil {
		return nil, err
	}

	cartExpiry, err := cron.NewCartExpiryJob(cron.CartExpiryJobParams{Logger: logg, Carts: cartService})
	if err != nil {
		return nil, err
	}
	pendingExpiry, err := cron.NewPendingPaymentExpiryJob(cron.PendingPaymentExpiryJobParams{
		Logger:      logg,
		Fulfillment: fulfillmentService,
		TTL:         cfg.Checkout.PendingPaymentTTL,
	})
	if err != nil {
		return nil, err
	}
	notificationCleanup, err := cron.NewNotificationCleanupJob(cron.NotificationCleanupJobParams{
		Logger:        logg,
		Notifications: notificationsService,
		Retention:     cfg.Cron.NotificationRetention,
	})
	if err != nil {
		return nil, err
	}
	outboxRetention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:      logg,
		DB:          dbClient,
		Repository:  outboxRepo,
		Retention:   cfg.Cron.OutboxRetention,
		MinAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}
	return []cron.Job{cartExpiry, pendingExpiry, notificationCleanup, outboxRetention}, nil
}
