package fulfillment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/brickapparel/storefront-backend/internal/cart"
	"github.com/brickapparel/storefront-backend/internal/guests"
	"github.com/brickapparel/storefront-backend/internal/inventory"
	"github.com/brickapparel/storefront-backend/internal/notifications"
	"github.com/brickapparel/storefront-backend/internal/orders"
	"github.com/brickapparel/storefront-backend/internal/payments"
	"github.com/brickapparel/storefront-backend/internal/transactions"
	"github.com/brickapparel/storefront-backend/pkg/enums"
	"github.com/brickapparel/storefront-backend/pkg/logger"
	"github.com/brickapparel/storefront-backend/pkg/metrics"
	"github.com/brickapparel/storefront-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type gatewayResolver interface {
	Get(provider enums.PaymentProvider) (payments.Gateway, error)
}

// Service orchestrates order creation, checkout, and payment reconciliation.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*CreatedOrder, error)
	Checkout(ctx context.Context, input CheckoutInput) (*CheckoutResult, error)
	Reconcile(ctx context.Context, event *payments.NormalizedEvent) (*ReconcileResult, error)
	CapturePayment(ctx context.Context, orderID uuid.UUID) (*orders.OrderDetail, error)
	RefundPayment(ctx context.Context, orderID uuid.UUID, amountCents *int64) (*orders.OrderDetail, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, input UpdateStatusInput) (*orders.OrderDetail, error)
	ExpirePending(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

// Deps lists every collaborator of the orchestrator.
type Deps struct {
	Tx            txRunner
	Carts         cart.Service
	Guests        *guests.Repository
	Inventory     inventory.Service
	Orders        orders.Service
	OrderRepo     orders.Repository
	Transactions  transactions.Repository
	Pricing       *orders.Pricing
	Gateways      gatewayResolver
	Notifications notifications.Sink
	Outbox        outbox.Emitter
	Metrics       *metrics.FulfillmentMetrics
	Logger        *logger.Logger
	Currency      enums.Currency
}

type service struct {
	tx        txRunner
	carts     cart.Service
	guests    *guests.Repository
	inventory inventory.Service
	orders    orders.Service
	orderRepo orders.Repository
	txns      transactions.Repository
	pricing   *orders.Pricing
	gateways  gatewayResolver
	notify    notifications.Sink
	outbox    outbox.Emitter
	metrics   *metrics.FulfillmentMetrics
	logg      *logger.Logger
	currency  enums.Currency
	now       func() time.Time
}

func NewService(deps Deps) (Service, error) {
	switch {
	case deps.Tx == nil:
		return nil, fmt.Errorf("tx runner required")
	case deps.Carts == nil:
		return nil, fmt.Errorf("cart service required")
	case deps.Guests == nil:
		return nil, fmt.Errorf("guest repository required")
	case deps.Inventory == nil:
		return nil, fmt.Errorf("inventory service required")
	case deps.Orders == nil || deps.OrderRepo == nil:
		return nil, fmt.Errorf("orders service and repository required")
	case deps.Transactions == nil:
		return nil, fmt.Errorf("transactions repository required")
	case deps.Pricing == nil:
		return nil, fmt.Errorf("pricing required")
	case deps.Gateways == nil:
		return nil, fmt.Errorf("gateway registry required")
	case deps.Notifications == nil:
		return nil, fmt.Errorf("notification sink required")
	case deps.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	currency := deps.Currency
	if currency == "" {
		currency = enums.CurrencyUSD
	}
	return &service{
		tx:        deps.Tx,
		carts:     deps.Carts,
		guests:    deps.Guests,
		inventory: deps.Inventory,
		orders:    deps.Orders,
		orderRepo: deps.OrderRepo,
		txns:      deps.Transactions,
		pricing:   deps.Pricing,
		gateways:  deps.Gateways,
		notify:    deps.Notifications,
		outbox:    deps.Outbox,
		metrics:   deps.Metrics,
		logg:      deps.Logger,
		currency:  currency,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}
