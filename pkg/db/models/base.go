package models

import "github.com/google/uuid"

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

// All lists every persisted model; used by AutoMigrate in sqlite mode and tests.
func All() []any {
	return []any{
		&Product{},
		&ProductVariant{},
		&Cart{},
		&CartItem{},
		&Guest{},
		&Order{},
		&OrderLineItem{},
		&Transaction{},
		&WebhookEvent{},
		&Notification{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
