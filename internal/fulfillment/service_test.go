package fulfillment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brickapparel/storefront-backend/internal/cart"
	"github.com/brickapparel/storefront-backend/internal/guests"
	"github.com/brickapparel/storefront-backend/internal/inventory"
	"github.com/brickapparel/storefront-backend/internal/notifications"
	"github.com/brickapparel/storefront-backend/internal/orders"
	"github.com/brickapparel/storefront-backend/internal/payments"
	"github.com/brickapparel/storefront-backend/internal/transactions"
	"github.com/brickapparel/storefront-backend/pkg/config"
	"github.com/brickapparel/storefront-backend/pkg/db"
	"github.com/brickapparel/storefront-backend/pkg/db/dbtest"
	"github.com/brickapparel/storefront-backend/pkg/db/models"
	"github.com/brickapparel/storefront-backend/pkg/enums"
	pkgerrors "github.com/brickapparel/storefront-backend/pkg/errors"
	"github.com/brickapparel/storefront-backend/pkg/logger"
	"github.com/brickapparel/storefront-backend/pkg/outbox"
	"github.com/brickapparel/storefront-backend/pkg/types"
)

type stubGateway struct {
	provider enums.PaymentProvider
	intentFn func(ctx context.Context, req payments.IntentRequest) (*payments.Intent, error)
	refundFn func(ctx context.Context, req payments.RefundRequest) (*payments.RefundResult, error)
}

func (g *stubGateway) Provider() enums.PaymentProvider { return g.provider }

func (g *stubGateway) CreateIntent(ctx context.Context, req payments.IntentRequest) (*payments.Intent, error) {
	if g.intentFn != nil {
		return g.intentFn(ctx, req)
	}
	return &payments.Intent{Provider: g.provider, ProviderRef: "ref_" + req.OrderID.String(), ClientSecret: "secret"}, nil
}

func (g *stubGateway) Capture(context.Context, string) (*payments.CaptureResult, error) {
	return &payments.CaptureResult{Status: "COMPLETED", CaptureRef: "CAP-1"}, nil
}

func (g *stubGateway) Refund(ctx context.Context, req payments.RefundRequest) (*payments.RefundResult, error) {
	if g.refundFn != nil {
		return g.refundFn(ctx, req)
	}
	return &payments.RefundResult{RefundRef: "RF-1", Status: "COMPLETED"}, nil
}

func (g *stubGateway) ParseWebhook(context.Context, payments.WebhookRequest) (*payments.NormalizedEvent, error) {
	return nil, pkgerrors.New(pkgerrors.CodeInvalidSignature, "not used")
}

type fixture struct {
	client  *db.Client
	svc     *service
	carts   cart.Service
	stripe  *stubGateway
	paypal  *stubGateway
	product models.Product
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := dbtest.New(t)
	conn := client.DB()
	logg := logger.Nop()

	inv, err := inventory.NewService(inventory.NewRepository(conn))
	require.NoError(t, err)
	carts, err := cart.NewService(cart.NewRepository(conn), client, inv, time.Hour)
	require.NoError(t, err)
	orderRepo := orders.NewRepository(conn)
	orderSvc, err := orders.NewService(orderRepo)
	require.NoError(t, err)
	pricing, err := orders.NewPricing(config.CheckoutConfig{
		Currency:                   "USD",
		ShippingFlatCents:          1000,
		FreeShippingThresholdCents: 10000,
		TaxRates:                   map[string]string{"CA": "0.08", "NY": "0.06"},
		DefaultTaxRate:             "0.05",
	})
	require.NoError(t, err)
	notify, err := notifications.NewService(notifications.NewRepository(conn), logg)
	require.NoError(t, err)

	stripeGW := &stubGateway{provider: enums.PaymentProviderStripe}
	paypalGW := &stubGateway{provider: enums.PaymentProviderPayPal}
	registry, err := payments.NewRegistry(stripeGW, paypalGW)
	require.NoError(t, err)

	svc, err := NewService(Deps{
		Tx:            client,
		Carts:         carts,
		Guests:        guests.NewRepository(conn),
		Inventory:     inv,
		Orders:        orderSvc,
		OrderRepo:     orderRepo,
		Transactions:  transactions.NewRepository(conn),
		Pricing:       pricing,
		Gateways:      registry,
		Notifications: notify,
		Outbox:        outbox.NewService(outbox.NewRepository(conn), logg),
		Logger:        logg,
	})
	require.NoError(t, err)

	product := models.Product{Name: "Logo Tee", Slug: "logo-tee", Active: true}
	require.NoError(t, conn.Create(&product).Error)
	for _, v := range []models.ProductVariant{
		{ProductID: product.ID, SKU: "ABC-S-RED", Size: "S", Color: "red", PriceCents: 2000, Quantity: 5, LowStockThreshold: 2},
		{ProductID: product.ID, SKU: "ABC-M-RED", Size: "M", Color: "red", PriceCents: 2500, Quantity: 1, LowStockThreshold: 2},
		{ProductID: product.ID, SKU: "X", Size: "L", Color: "blue", PriceCents: 3000, Quantity: 10, LowStockThreshold: 1},
	} {
		v := v
		require.NoError(t, conn.Create(&v).Error)
	}
	return &fixture{client: client, svc: svc.(*service), carts: carts, stripe: stripeGW, paypal: paypalGW, product: product}
}

func nyAddress() types.Address {
	return types.Address{
		FirstName:    "Jane",
		LastName:     "Doe",
		AddressLine1: "1 Main St",
		City:         "Albany",
		State:        "ny",
		ZipCode:      "12207",
	}
}

func (f *fixture) lines(sku string, qty int, price int64) []models.CartItem {
	return []models.CartItem{{ProductID: f.product.ID, ProductName: f.product.Name, SKU: sku, Quantity: qty, UnitPriceCents: price}}
}

func (f *fixture) quantity(t *testing.T, sku string) int {
	t.Helper()
	var v models.ProductVariant
	require.NoError(t, f.client.DB().Where("sku = ?", sku).First(&v).Error)
	return v.Quantity
}

func (f *fixture) count(t *testing.T, model any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	q := f.client.DB().Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

func (f *fixture) order(t *testing.T, id uuid.UUID) models.Order {
	t.Helper()
	var o models.Order
	require.NoError(t, f.client.DB().Where("id = ?", id).First(&o).Error)
	return o
}

// placeWithTransaction creates an order and attaches a transaction in the
// given payment state, as checkout plus earlier webhooks would have.
func (f *fixture) placeWithTransaction(t *testing.T, sku string, qty int, provider enums.PaymentProvider, ref string, status enums.PaymentStatus) (*models.Order, *models.Transaction) {
	t.Helper()
	created, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{
		Items:           f.lines(sku, qty, 3000),
		Email:           "buyer@example.com",
		ShippingAddress: nyAddress(),
		Provider:        provider,
	})
	require.NoError(t, err)
	txn := &models.Transaction{
		OrderID:     created.Order.ID,
		Provider:    provider,
		ProviderRef: ref,
		AmountCents: created.Order.TotalCents,
		Currency:    created.Order.Currency,
		Status:      status,
	}
	require.NoError(t, f.client.DB().Create(txn).Error)
	if status != enums.PaymentStatusPending {
		orderStatus, _ := orders.DeriveOrderStatus(enums.OrderStatusPending, status)
		require.NoError(t, f.client.DB().Model(&models.Order{}).Where("id = ?", created.Order.ID).
			Updates(map[string]any{"status": orderStatus, "payment_status": status}).Error)
	}
	return created.Order, txn
}

func TestCreateOrderHappyPath(t *testing.T) {
	f := newFixture(t)

	created, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{
		Items:           f.lines("ABC-S-RED", 2, 2000),
		Email:           "Jane@Example.com",
		ShippingAddress: nyAddress(),
		Provider:        enums.PaymentProviderStripe,
	})
	require.NoError(t, err)

	order := created.Order
	assert.Equal(t, int64(4000), order.SubtotalCents)
	assert.Equal(t, int64(1000), order.ShippingCents)
	assert.Equal(t, int64(300), order.TaxCents)
	assert.Equal(t, int64(5300), order.TotalCents)
	assert.Equal(t, order.SubtotalCents+order.ShippingCents+order.TaxCents, order.TotalCents)
	assert.Equal(t, "jane@example.com", order.Email)
	assert.Regexp(t, `^ORD-[0-9A-Z]+-[0-9A-Z]{4}$`, order.OrderNumber)
	require.NotNil(t, order.GuestID)
	assert.Equal(t, "NY", order.BillingAddress.State)

	assert.Equal(t, 3, f.quantity(t, "ABC-S-RED"))
	stored := f.order(t, order.ID)
	assert.NotNil(t, stored.InventoryAppliedAt)
	assert.Nil(t, stored.InventoryReleasedAt)

	assert.EqualValues(t, 1, f.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventOrderCreated))
	assert.EqualValues(t, 1, f.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventInventoryAdjusted))
	assert.EqualValues(t, 1, f.count(t, &models.Notification{}, "type = ?", enums.NotificationTypeNewOrder))
	assert.EqualValues(t, 0, f.count(t, &models.Notification{}, "type = ?", enums.NotificationTypeLowStock))
}

func TestCreateOrderInsufficientStock(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{
		Items:           f.lines("ABC-M-RED", 2, 2500),
		Email:           "jane@example.com",
		ShippingAddress: nyAddress(),
	})
	require.Error(t, err)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeInsufficientInventory))
	details, ok := pkgerrors.As(err).Details().(inventory.InsufficientDetails)
	require.True(t, ok)
	assert.Equal(t, inventory.InsufficientDetails{SKU: "ABC-M-RED", Available: 1, Requested: 2}, details)

	assert.EqualValues(t, 0, f.count(t, &models.Order{}, ""))
	assert.Equal(t, 1, f.quantity(t, "ABC-M-RED"))
}

func TestCreateOrderEmitsStockNotices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateOrder(ctx, CreateOrderInput{
		Items: []models.CartItem{
			{ProductID: f.product.ID, ProductName: "Logo Tee", SKU: "ABC-S-RED", Quantity: 3, UnitPriceCents: 2000},
			{ProductID: f.product.ID, ProductName: "Logo Tee", SKU: "ABC-M-RED", Quantity: 1, UnitPriceCents: 2500},
		},
		Email:           "jane@example.com",
		ShippingAddress: nyAddress(),
	})
	require.NoError(t, err)

	assert.EqualValues(t, 1, f.count(t, &models.Notification{}, "type = ?", enums.NotificationTypeLowStock))
	assert.EqualValues(t, 1, f.count(t, &models.Notification{}, "type = ?", enums.NotificationTypeOutOfStock))
}

func TestCreateOrderRejectsIncompleteAddress(t *testing.T) {
	f := newFixture(t)
	addr := nyAddress()
	addr.City = " "

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{
		Items:           f.lines("ABC-S-RED", 1, 2000),
		Email:           "jane@example.com",
		ShippingAddress: addr,
	})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
	assert.Equal(t, 5, f.quantity(t, "ABC-S-RED"))
}

func TestConcurrentOrdersNeverOversell(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		short     int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CreateOrder(ctx, CreateOrderInput{
				Items:           f.lines("ABC-S-RED", 2, 2000),
				Email:           "racer@example.com",
				ShippingAddress: nyAddress(),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case pkgerrors.Is(err, pkgerrors.CodeInsufficientInventory):
				short++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, succeeded)
	assert.Equal(t, 6, short)
	assert.Equal(t, 1, f.quantity(t, "ABC-S-RED"))
	assert.EqualValues(t, 2, f.count(t, &models.Order{}, ""))
}

func TestCheckoutStripe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := cart.Owner{SessionToken: "sess-1"}
	_, err := f.carts.AddItem(ctx, owner, cart.AddItemInput{ProductID: f.product.ID, SKU: "ABC-S-RED", Quantity: 2})
	require.NoError(t, err)

	res, err := f.svc.Checkout(ctx, CheckoutInput{
		Owner:           owner,
		Email:           "jane@example.com",
		ShippingAddress: nyAddress(),
		Provider:        enums.PaymentProviderStripe,
	})
	require.NoError(t, err)
	assert.Equal(t, "secret", res.RedirectInfo.ClientSecret)
	assert.Equal(t, "/order-success/"+res.OrderID.String(), res.RedirectInfo.SuccessURL)
	assert.Empty(t, res.RedirectInfo.ApprovalURL)

	var txn models.Transaction
	require.NoError(t, f.client.DB().Where("order_id = ?", res.OrderID).First(&txn).Error)
	assert.Equal(t, enums.PaymentStatusPending, txn.Status)
	assert.Equal(t, int64(5300), txn.AmountCents)
	assert.Equal(t, "ref_"+res.OrderID.String(), txn.ProviderRef)

	assert.EqualValues(t, 1, f.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventOrderConfirmation))
	current, err := f.carts.Get(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, current.Items)
}

func TestCheckoutPayPalReturnsApprovalURL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.paypal.intentFn = func(_ context.Context, req payments.IntentRequest) (*payments.Intent, error) {
		return &payments.Intent{Provider: enums.PaymentProviderPayPal, ProviderRef: "PP-1", ApprovalURL: "https://paypal.test/approve"}, nil
	}
	customer := uuid.New()
	owner := cart.Owner{CustomerID: &customer}
	_, err := f.carts.AddItem(ctx, owner, cart.AddItemInput{ProductID: f.product.ID, SKU: "X", Quantity: 1})
	require.NoError(t, err)

	res, err := f.svc.Checkout(ctx, CheckoutInput{
		Owner:           owner,
		Email:           "member@example.com",
		ShippingAddress: nyAddress(),
		Provider:        enums.PaymentProviderPayPal,
	})
	require.NoError(t, err)
	assert.Equal(t, "https://paypal.test/approve", res.RedirectInfo.ApprovalURL)
	assert.Empty(t, res.RedirectInfo.ClientSecret)

	order := f.order(t, res.OrderID)
	require.NotNil(t, order.CustomerID)
	assert.Equal(t, customer, *order.CustomerID)
	assert.Nil(t, order.GuestID)
}

func TestCheckoutProviderUnavailableKeepsOrderPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.stripe.intentFn = func(context.Context, payments.IntentRequest) (*payments.Intent, error) {
		return nil, pkgerrors.New(pkgerrors.CodeProviderUnavailable, "stripe unavailable")
	}
	owner := cart.Owner{SessionToken: "sess-2"}
	_, err := f.carts.AddItem(ctx, owner, cart.AddItemInput{ProductID: f.product.ID, SKU: "ABC-S-RED", Quantity: 1})
	require.NoError(t, err)

	_, err = f.svc.Checkout(ctx, CheckoutInput{Owner: owner, Email: "jane@example.com", ShippingAddress: nyAddress(), Provider: enums.PaymentProviderStripe})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsRetryable(err))

	var order models.Order
	require.NoError(t, f.client.DB().First(&order).Error)
	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.Equal(t, enums.PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, 4, f.quantity(t, "ABC-S-RED"))

	current, err := f.carts.Get(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, current.Items, 1)
}

func TestCheckoutDeclinedCancelsAndReleases(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.stripe.intentFn = func(context.Context, payments.IntentRequest) (*payments.Intent, error) {
		return nil, pkgerrors.New(pkgerrors.CodePaymentDeclined, "card declined")
	}
	owner := cart.Owner{SessionToken: "sess-3"}
	_, err := f.carts.AddItem(ctx, owner, cart.AddItemInput{ProductID: f.product.ID, SKU: "ABC-S-RED", Quantity: 2})
	require.NoError(t, err)

	_, err = f.svc.Checkout(ctx, CheckoutInput{Owner: owner, Email: "jane@example.com", ShippingAddress: nyAddress(), Provider: enums.PaymentProviderStripe})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodePaymentDeclined))

	var order models.Order
	require.NoError(t, f.client.DB().First(&order).Error)
	assert.Equal(t, enums.OrderStatusCancelled, order.Status)
	assert.Equal(t, enums.PaymentStatusFailed, order.PaymentStatus)
	assert.NotNil(t, order.InventoryReleasedAt)
	assert.Equal(t, 5, f.quantity(t, "ABC-S-RED"))
}

func TestCheckoutRejectsUnknownProviderBeforeOrdering(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Checkout(context.Background(), CheckoutInput{Owner: cart.Owner{SessionToken: "s"}, Provider: "square"})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
	assert.EqualValues(t, 0, f.count(t, &models.Order{}, ""))
}
