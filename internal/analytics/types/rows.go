package types

import (
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// OrderFactRow mirrors the order_facts table. One row per order_created or
// order_status_changed event.
type OrderFactRow struct {
	EventID         string             `bigquery:"event_id"`
	EventType       string             `bigquery:"event_type"`
	OccurredAt      time.Time          `bigquery:"occurred_at"`
	OrderID         string             `bigquery:"order_id"`
	OrderNumber     string             `bigquery:"order_number"`
	Status          string             `bigquery:"status"`
	PreviousStatus  *string            `bigquery:"previous_status"`
	Reason          *string            `bigquery:"reason"`
	PaymentProvider *string            `bigquery:"payment_provider"`
	Currency        *string            `bigquery:"currency"`
	ShippingState   *string            `bigquery:"shipping_state"`
	SubtotalCents   *int64             `bigquery:"subtotal_cents"`
	ShippingCents   *int64             `bigquery:"shipping_cents"`
	TaxCents        *int64             `bigquery:"tax_cents"`
	TotalCents      *int64             `bigquery:"total_cents"`
	ItemCount       *int64             `bigquery:"item_count"`
	ActorKind       *string            `bigquery:"actor_kind"`
	Lines           cbigquery.NullJSON `bigquery:"lines"`
	Payload         cbigquery.NullJSON `bigquery:"payload"`
}

// PaymentFactRow mirrors the payment_facts table.
type PaymentFactRow struct {
	EventID         string             `bigquery:"event_id"`
	OccurredAt      time.Time          `bigquery:"occurred_at"`
	OrderID         string             `bigquery:"order_id"`
	TransactionID   string             `bigquery:"transaction_id"`
	Provider        string             `bigquery:"provider"`
	ProviderRef     string             `bigquery:"provider_ref"`
	ProviderEventID *string            `bigquery:"provider_event_id"`
	FromStatus      string             `bigquery:"from_status"`
	ToStatus        string             `bigquery:"to_status"`
	OrderStatus     string             `bigquery:"order_status"`
	AmountCents     int64              `bigquery:"amount_cents"`
	Currency        string             `bigquery:"currency"`
	Payload         cbigquery.NullJSON `bigquery:"payload"`
}

// InventoryFactRow mirrors the inventory_facts table. One row per SKU delta.
type InventoryFactRow struct {
	EventID     string    `bigquery:"event_id"`
	OccurredAt  time.Time `bigquery:"occurred_at"`
	OrderID     *string   `bigquery:"order_id"`
	Reason      string    `bigquery:"reason"`
	SKU         string    `bigquery:"sku"`
	Delta       int64     `bigquery:"delta"`
	NewQuantity int64     `bigquery:"new_quantity"`
}

func (r OrderFactRow) InsertKey() string { return r.EventID }

func (r PaymentFactRow) InsertKey() string { return r.EventID }

// InsertKey is per SKU since one inventory event fans out to several rows.
func (r InventoryFactRow) InsertKey() string {
	if r.EventID == "" {
		return ""
	}
	return r.EventID + ":" + r.SKU
}
