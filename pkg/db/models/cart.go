package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Cart is owned by exactly one of a session token or a customer id.
type Cart struct {
	ID           uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	SessionToken *string    `gorm:"column:session_token;uniqueIndex"`
	CustomerID   *uuid.UUID `gorm:"column:customer_id;type:uuid;uniqueIndex"`
	ExpiresAt    time.Time  `gorm:"column:expires_at;not null;index"`
	Items        []CartItem `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Cart) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

// CartItem snapshots the unit price at add time.
type CartItem struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	CartID         uuid.UUID `gorm:"column:cart_id;type:uuid;not null;index"`
	ProductID      uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	ProductName    string    `gorm:"column:product_name;not null"`
	SKU            string    `gorm:"column:sku;not null"`
	Size           string    `gorm:"column:size"`
	Color          string    `gorm:"column:color"`
	Quantity       int       `gorm:"column:quantity;not null"`
	UnitPriceCents int64     `gorm:"column:unit_price_cents;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *CartItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
