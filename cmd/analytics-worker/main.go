package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/brickapparel/storefront-backend/internal/analytics/router"
	"github.com/brickapparel/storefront-backend/internal/analytics/worker"
	"github.com/brickapparel/storefront-backend/internal/analytics/writer"
	"github.com/brickapparel/storefront-backend/pkg/bigquery"
	"github.com/brickapparel/storefront-backend/pkg/config"
	"github.com/brickapparel/storefront-backend/pkg/instance"
	"github.com/brickapparel/storefront-backend/pkg/logger"
	"github.com/brickapparel/storefront-backend/pkg/metrics"
	"github.com/brickapparel/storefront-backend/pkg/outbox/idempotency"
	"github.com/brickapparel/storefront-backend/pkg/pubsub"
	"github.com/brickapparel/storefront-backend/pkg/redis"
)

const serviceName = "analytics-worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceName
	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":          cfg.App.Env,
		"instance":     instance.GetID(),
		"serviceKind":  cfg.Service.Kind,
		"subscription": cfg.PubSub.AnalyticsSubscription,
	})

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "analytics worker failed", err)
		os.Exit(1)
	}
	logg.Info(ctx, "analytics worker stopped")
}

// run wires the subscription to the BigQuery fact writer and blocks until
// ctx is cancelled. Buffered rows are flushed on the way out.
func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer closeWith(ctx, logg, "redis client", redisClient.Close)

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}
	defer closeWith(ctx, logg, "pubsub client", pubsubClient.Close)

	subscription := pubsubClient.AnalyticsSubscription()
	if subscription == nil {
		return errors.New("analytics subscription not configured")
	}

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	if err != nil {
		return fmt.Errorf("bigquery: %w", err)
	}
	defer closeWith(ctx, logg, "bigquery client", bqClient.Close)

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		return fmt.Errorf("idempotency manager: %w", err)
	}
	factWriter, err := writer.New(bqClient, writer.ConfigFromEnv(cfg.BigQuery))
	if err != nil {
		return fmt.Errorf("fact writer: %w", err)
	}
	defer func() {
		if flushErr := factWriter.Flush(context.WithoutCancel(ctx)); flushErr != nil {
			logg.Error(ctx, "failed to flush buffered fact rows", flushErr)
		}
	}()

	handler, err := router.NewRouter(factWriter, logg, nil)
	if err != nil {
		return fmt.Errorf("analytics router: %w", err)
	}
	service, err := worker.NewService(worker.Params{
		Subscription: subscription,
		Handler:      handler,
		Idempotency:  manager,
		Logger:       logg,
		Metrics:      metrics.NewConsumerMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		return fmt.Errorf("analytics worker: %w", err)
	}

	go func() {
		if err := metrics.Serve(ctx, cfg.Service.MetricsAddr, prometheus.DefaultGatherer, logg); err != nil {
			logg.Error(ctx, "metrics listener stopped", err)
		}
	}()
	logg.Info(ctx, "analytics worker ready")
	return service.Run(ctx)
}

func closeWith(ctx context.Context, logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(ctx, "failed to close "+name, err)
	}
}
