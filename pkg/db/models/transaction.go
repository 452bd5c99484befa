package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/brickapparel/storefront-backend/pkg/enums"
)

// Transaction records one provider payment attempt for an order.
type Transaction struct {
	ID          uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID             `gorm:"column:order_id;type:uuid;not null;index"`
	Provider    enums.PaymentProvider `gorm:"column:provider;type:text;not null;uniqueIndex:ux_transactions_provider_ref,priority:1"`
	ProviderRef string                `gorm:"column:provider_ref;not null;uniqueIndex:ux_transactions_provider_ref,priority:2"`
	CaptureRef  *string               `gorm:"column:capture_ref;index:idx_transactions_capture_ref"`
	AmountCents int64                 `gorm:"column:amount_cents;not null"`
	Currency    enums.Currency        `gorm:"column:currency;type:text;not null"`
	Status      enums.PaymentStatus   `gorm:"column:status;type:text;not null"`
	Events      []WebhookEvent        `gorm:"foreignKey:TransactionID"`
	CreatedAt   time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (t *Transaction) BeforeCreate(*gorm.DB) error {
	ensureID(&t.ID)
	return nil
}

// WebhookEvent is the append-only log of provider events. The unique
// (provider, event_id) index is the reconciliation idempotency key.
type WebhookEvent struct {
	ID            uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	Provider      enums.PaymentProvider `gorm:"column:provider;type:text;not null;uniqueIndex:ux_webhook_events_provider_event,priority:1"`
	EventID       string                `gorm:"column:event_id;not null;uniqueIndex:ux_webhook_events_provider_event,priority:2"`
	EventType     string                `gorm:"column:event_type;not null"`
	TransactionID *uuid.UUID            `gorm:"column:transaction_id;type:uuid;index"`
	Payload       json.RawMessage       `gorm:"column:payload;type:jsonb;not null"`
	ReceivedAt    time.Time             `gorm:"column:received_at;not null"`
}

func (e *WebhookEvent) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}
