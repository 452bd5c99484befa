package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/brickapparel/storefront-backend/pkg/enums"
)

// Notification is an admin-facing record of a business event.
type Notification struct {
	ID            uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	Type          enums.NotificationType `gorm:"column:type;type:text;not null;index"`
	Title         string                 `gorm:"column:title;not null"`
	Message       string                 `gorm:"column:message;not null"`
	OrderID       *uuid.UUID             `gorm:"column:order_id;type:uuid"`
	TransactionID *uuid.UUID             `gorm:"column:transaction_id;type:uuid"`
	VariantID     *uuid.UUID             `gorm:"column:variant_id;type:uuid"`
	Payload       json.RawMessage        `gorm:"column:payload;type:jsonb"`
	DedupeKey     *string                `gorm:"column:dedupe_key;index"`
	IsRead        bool                   `gorm:"column:is_read;not null;default:false"`
	ReadAt        *time.Time             `gorm:"column:read_at"`
	CreatedAt     time.Time              `gorm:"column:created_at;autoCreateTime;index"`
}

func (n *Notification) BeforeCreate(*gorm.DB) error {
	ensureID(&n.ID)
	return nil
}
