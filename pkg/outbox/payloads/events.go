package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/brickapparel/storefront-backend/pkg/enums"
)

// OrderLine is the per-line snapshot carried by order events.
type OrderLine struct {
	SKU            string `json:"sku"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

// OrderCreatedEvent is emitted in the same transaction that persists an order.
type OrderCreatedEvent struct {
	OrderID         uuid.UUID             `json:"order_id"`
	OrderNumber     string                `json:"order_number"`
	Email           string                `json:"email"`
	PaymentProvider enums.PaymentProvider `json:"payment_provider"`
	Currency        enums.Currency        `json:"currency"`
	SubtotalCents   int64                 `json:"subtotal_cents"`
	ShippingCents   int64                 `json:"shipping_cents"`
	TaxCents        int64                 `json:"tax_cents"`
	TotalCents      int64                 `json:"total_cents"`
	ShippingState   string                `json:"shipping_state"`
	Lines           []OrderLine           `json:"lines"`
	CreatedAt       time.Time             `json:"created_at"`
}

// OrderStatusChangedEvent records any order status transition.
type OrderStatusChangedEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	From        enums.OrderStatus `json:"from"`
	To          enums.OrderStatus `json:"to"`
	Reason      string            `json:"reason,omitempty"`
	ChangedAt   time.Time         `json:"changed_at"`
}

// PaymentStatusChangedEvent is emitted by reconciliation and admin payment actions.
type PaymentStatusChangedEvent struct {
	OrderID       uuid.UUID             `json:"order_id"`
	TransactionID uuid.UUID             `json:"transaction_id"`
	Provider      enums.PaymentProvider `json:"provider"`
	ProviderRef   string                `json:"provider_ref"`
	EventID       string                `json:"event_id,omitempty"`
	From          enums.PaymentStatus   `json:"from"`
	To            enums.PaymentStatus   `json:"to"`
	OrderStatus   enums.OrderStatus     `json:"order_status"`
	AmountCents   int64                 `json:"amount_cents"`
	Currency      enums.Currency        `json:"currency"`
	ChangedAt     time.Time             `json:"changed_at"`
}

// InventoryAdjustment is one SKU delta.
type InventoryAdjustment struct {
	SKU         string `json:"sku"`
	Delta       int    `json:"delta"`
	NewQuantity int    `json:"new_quantity"`
}

// InventoryAdjustedEvent groups every SKU delta applied for one cause.
type InventoryAdjustedEvent struct {
	OrderID     *uuid.UUID            `json:"order_id,omitempty"`
	Reason      string                `json:"reason"`
	Adjustments []InventoryAdjustment `json:"adjustments"`
	AdjustedAt  time.Time             `json:"adjusted_at"`
}

// OrderConfirmationRequestedEvent asks the mailer to send the customer receipt.
type OrderConfirmationRequestedEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	Email       string    `json:"email"`
	TotalCents  int64     `json:"total_cents"`
	Currency    string    `json:"currency"`
}
