package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brickapparel/storefront-backend/api/controllers"
	"github.com/brickapparel/storefront-backend/api/middleware"
	"github.com/brickapparel/storefront-backend/internal/cart"
	"github.com/brickapparel/storefront-backend/internal/fulfillment"
	"github.com/brickapparel/storefront-backend/internal/inventory"
	"github.com/brickapparel/storefront-backend/internal/notifications"
	"github.com/brickapparel/storefront-backend/internal/orders"
	"github.com/brickapparel/storefront-backend/pkg/config"
	"github.com/brickapparel/storefront-backend/pkg/enums"
	"github.com/brickapparel/storefront-backend/pkg/logger"
	"github.com/brickapparel/storefront-backend/pkg/metrics"
	"github.com/brickapparel/storefront-backend/pkg/redis"
)

// rateLimiter is what the checkout limiter needs from redis.
type rateLimiter interface {
	redis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Dependencies collects everything the HTTP surface is wired against.
type Dependencies struct {
	Config        *config.Config
	Logger        *logger.Logger
	Gatherer      prometheus.Gatherer
	HTTPMetrics   *metrics.HTTPMetrics
	Ready         map[string]controllers.Pinger
	Redis         rateLimiter
	Carts         cart.Service
	Fulfillment   fulfillment.Service
	Orders        orders.Service
	Inventory     inventory.Service
	Notifications notifications.Service
	DLQ           controllers.DLQLister
	Webhooks      controllers.WebhookProcessor
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, deps.HTTPMetrics),
		middleware.CORS(cfg.HTTP.AllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, deps.Ready, logg))
	})
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	checkoutPolicy := middleware.RateLimitPolicy{
		Name:   "checkout",
		Limit:  cfg.HTTP.CheckoutRateLimit,
		Window: cfg.HTTP.CheckoutRateWindow,
	}
	idempotency := middleware.Idempotency(deps.Redis, cfg.Eventing.CheckoutIdempotencyTTL, logg)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/cart", func(r chi.Router) {
			r.Use(middleware.CartSession(true, logg))
			r.Get("/", controllers.CartFetch(deps.Carts, logg))
			r.Delete("/", controllers.CartClear(deps.Carts, logg))
			r.Post("/items", controllers.CartAddItem(deps.Carts, logg))
			r.Patch("/items/{line}", controllers.CartUpdateItem(deps.Carts, logg))
			r.Delete("/items/{line}", controllers.CartRemoveItem(deps.Carts, logg))
		})

		r.With(
			middleware.CartSession(false, logg),
			middleware.RateLimit(checkoutPolicy, deps.Redis, logg),
			idempotency,
		).Post("/checkout", controllers.Checkout(deps.Fulfillment, logg))

		r.Route("/webhooks", func(r chi.Router) {
			r.Post("/stripe", controllers.PaymentWebhook(enums.PaymentProviderStripe, deps.Webhooks, logg))
			r.Post("/paypal", controllers.PaymentWebhook(enums.PaymentProviderPayPal, deps.Webhooks, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.AdminAuth(cfg.JWT, logg))

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", controllers.AdminOrderList(deps.Orders, logg))
				r.Get("/{orderID}", controllers.AdminOrderDetail(deps.Orders, logg))
				r.Patch("/{orderID}/status", controllers.AdminOrderStatus(deps.Fulfillment, logg))
				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireMoneyRole(logg))
					r.With(idempotency).Post("/{orderID}/capture", controllers.AdminOrderCapture(deps.Fulfillment, logg))
					r.With(idempotency).Post("/{orderID}/refund", controllers.AdminOrderRefund(deps.Fulfillment, logg))
				})
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", controllers.ListNotifications(deps.Notifications, logg))
				r.Post("/read-all", controllers.MarkAllNotificationsRead(deps.Notifications, logg))
				r.Post("/{notificationID}/read", controllers.MarkNotificationRead(deps.Notifications, logg))
			})

			r.Get("/inventory/low-stock", controllers.AdminLowStock(deps.Inventory, logg))
			r.Get("/outbox/dlq", controllers.AdminOutboxDLQ(deps.DLQ, logg))
		})
	})

	return r
}
