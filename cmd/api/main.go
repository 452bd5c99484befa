package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/brickapparel/storefront-backend/api/controllers"
	"github.com/brickapparel/storefront-backend/api/routes"
	"github.com/brickapparel/storefront-backend/internal/cart"
	"github.com/brickapparel/storefront-backend/internal/fulfillment"
	"github.com/brickapparel/storefront-backend/internal/guests"
	"github.com/brickapparel/storefront-backend/internal/inventory"
	"github.com/brickapparel/storefront-backend/internal/notifications"
	"github.com/brickapparel/storefront-backend/internal/orders"
	"github.com/brickapparel/storefront-backend/internal/payments"
	"github.com/brickapparel/storefront-backend/internal/transactions"
	"github.com/brickapparel/storefront-backend/internal/webhooks"
	"github.com/brickapparel/storefront-backend/pkg/config"
	"github.com/brickapparel/storefront-backend/pkg/db"
	"github.com/brickapparel/storefront-backend/pkg/enums"
	"github.com/brickapparel/storefront-backend/pkg/instance"
	"github.com/brickapparel/storefront-backend/pkg/logger"
	"github.com/brickapparel/storefront-backend/pkg/metrics"
	"github.com/brickapparel/storefront-backend/pkg/migrate"
	"github.com/brickapparel/storefront-backend/pkg/outbox"
	pkgpaypal "github.com/brickapparel/storefront-backend/pkg/paypal"
	"github.com/brickapparel/storefront-backend/pkg/redis"
	pkgstripe "github.com/brickapparel/storefront-backend/pkg/stripe"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	fulfillmentMetrics := metrics.NewFulfillmentMetrics(registry)

	gateways, err := buildGateways(context.Background(), cfg, logg, fulfillmentMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to configure payment gateways", err)
		os.Exit(1)
	}

	currency, err := enums.ParseCurrency(cfg.Checkout.Currency)
	if err != nil {
		logg.Error(context.Background(), "invalid checkout currency", err)
		os.Exit(1)
	}

	gormDB := dbClient.DB()
	inventoryService, err := inventory.NewService(inventory.NewRepository(gormDB))
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory service", err)
		os.Exit(1)
	}
	cartService, err := cart.NewService(cart.NewRepository(gormDB), dbClient, inventoryService, cfg.Checkout.CartRetention)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart service", err)
		os.Exit(1)
	}
	orderRepo := orders.NewRepository(gormDB)
	ordersService, err := orders.NewService(orderRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}
	pricing, err := orders.NewPricing(cfg.Checkout)
	if err != nil {
		logg.Error(context.Background(), "failed to create pricing", err)
		os.Exit(1)
	}
	notificationsService, err := notifications.NewService(notifications.NewRepository(gormDB), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

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
		Outbox:        outbox.NewService(outbox.NewRepository(gormDB), logg),
		Metrics:       fulfillmentMetrics,
		Logger:        logg,
		Currency:      currency,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create fulfillment service", err)
		os.Exit(1)
	}

	guard, err := webhooks.NewGuard(redisClient, cfg.Eventing.WebhookIdempotencyTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}
	processor, err := webhooks.NewProcessor(gateways, fulfillmentService, guard, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook processor", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":       cfg.App.Env,
		"addr":      addr,
		"instance":  instance.GetID(),
		"providers": gateways.Providers(),
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Dependencies{
			Config:      cfg,
			Logger:      logg,
			Gatherer:    registry,
			HTTPMetrics: metrics.NewHTTPMetrics(registry),
			Ready: map[string]controllers.Pinger{
				"db":    dbClient,
				"redis": redisClient,
			},
			Redis:         redisClient,
			Carts:         cartService,
			Fulfillment:   fulfillmentService,
			Orders:        ordersService,
			Inventory:     inventoryService,
			Notifications: notificationsService,
			DLQ:           outbox.NewDLQRepository(gormDB),
			Webhooks:      processor,
		}),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
		logg.Info(ctx, "api server shut down gracefully")
	}
}

// buildGateways registers every provider that has credentials configured.
func buildGateways(ctx context.Context, cfg *config.Config, logg *logger.Logger, m *metrics.FulfillmentMetrics) (*payments.Registry, error) {
	policy := payments.NewPolicy(cfg.Payments, m, logg)
	var gateways []payments.Gateway

	if cfg.Stripe.Enabled() {
		client, err := pkgstripe.NewClient(ctx, cfg.Stripe, logg)
		if err != nil {
			return nil, err
		}
		gw, err := payments.NewStripeGateway(payments.NewStripeAPI(client), client, policy)
		if err != nil {
			return nil, err
		}
		gateways = append(gateways, gw)
	} else {
		logg.Warn(ctx, "stripe not configured; provider disabled")
	}

	if cfg.PayPal.Enabled() {
		client, err := pkgpaypal.NewClient(ctx, cfg.PayPal, logg)
		if err != nil {
			return nil, err
		}
		gw, err := payments.NewPayPalGateway(client.API(), payments.SettingsFromClient(client), policy)
		if err != nil {
			return nil, err
		}
		gateways = append(gateways, gw)
	} else {
		logg.Warn(ctx, "paypal not configured; provider disabled")
	}

	if len(gateways) == 0 {
		return nil, errors.New("no payment provider configured")
	}
	return payments.NewRegistry(gateways...)
}
