package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/brickapparel/storefront-backend/pkg/enums"
	"github.com/brickapparel/storefront-backend/pkg/types"
)

// Order freezes the cart snapshot and totals at creation; only the status
// fields, tracking number, notes and inventory markers change afterwards.
type Order struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber     string                `gorm:"column:order_number;not null;uniqueIndex"`
	CustomerID      *uuid.UUID            `gorm:"column:customer_id;type:uuid;index"`
	GuestID         *uuid.UUID            `gorm:"column:guest_id;type:uuid;index"`
	Email           string                `gorm:"column:email;not null"`
	Status          enums.OrderStatus     `gorm:"column:status;type:text;not null;index"`
	PaymentStatus   enums.PaymentStatus   `gorm:"column:payment_status;type:text;not null"`
	PaymentProvider enums.PaymentProvider `gorm:"column:payment_provider;type:text"`
	Currency        enums.Currency        `gorm:"column:currency;type:text;not null"`
	SubtotalCents   int64                 `gorm:"column:subtotal_cents;not null"`
	ShippingCents   int64                 `gorm:"column:shipping_cents;not null"`
	TaxCents        int64                 `gorm:"column:tax_cents;not null"`
	TotalCents      int64                 `gorm:"column:total_cents;not null"`
	ShippingAddress types.Address         `gorm:"column:shipping_address;type:jsonb;not null"`
	BillingAddress  types.Address         `gorm:"column:billing_address;type:jsonb;not null"`
	TrackingNumber  *string               `gorm:"column:tracking_number"`
	Notes           *string               `gorm:"column:notes"`

	InventoryAppliedAt  *time.Time `gorm:"column:inventory_applied_at"`
	InventoryReleasedAt *time.Time `gorm:"column:inventory_released_at"`

	Items        []OrderLineItem `gorm:"foreignKey:OrderID"`
	Transactions []Transaction   `gorm:"foreignKey:OrderID"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// OrderLineItem is an immutable copy of a cart line.
type OrderLineItem struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID      uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	ProductName    string    `gorm:"column:product_name;not null"`
	SKU            string    `gorm:"column:sku;not null"`
	Size           string    `gorm:"column:size"`
	Color          string    `gorm:"column:color"`
	Quantity       int       `gorm:"column:quantity;not null"`
	UnitPriceCents int64     `gorm:"column:unit_price_cents;not null"`
	LineTotalCents int64     `gorm:"column:line_total_cents;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (i *OrderLineItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
