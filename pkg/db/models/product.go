package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Product is the catalog entry that owns purchasable variants.
type Product struct {
	ID        uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	Name      string           `gorm:"column:name;not null"`
	Slug      string           `gorm:"column:slug;not null;uniqueIndex"`
	Active    bool             `gorm:"column:active;not null;default:true"`
	Variants  []ProductVariant `gorm:"foreignKey:ProductID"`
	CreatedAt time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// ProductVariant carries the per-SKU price and the inventory ledger counter.
type ProductVariant struct {
	ID                uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ProductID         uuid.UUID `gorm:"column:product_id;type:uuid;not null;index"`
	SKU               string    `gorm:"column:sku;not null;uniqueIndex"`
	Size              string    `gorm:"column:size"`
	Color             string    `gorm:"column:color"`
	PriceCents        int64     `gorm:"column:price_cents;not null"`
	Quantity          int       `gorm:"column:quantity;not null;default:0;check:chk_product_variants_quantity,quantity >= 0"`
	LowStockThreshold int       `gorm:"column:low_stock_threshold;not null;default:5"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (v *ProductVariant) BeforeCreate(*gorm.DB) error {
	ensureID(&v.ID)
	return nil
}
