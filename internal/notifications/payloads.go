package notifications

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/brickapparel/storefront-backend/pkg/enums"
)

// Payload is the closed set of notification bodies. Each variant reports the
// notification type it belongs to; Decode switches on that kind.
type Payload interface {
	Kind() enums.NotificationType
	isPayload()
}

// NewOrderPayload accompanies new_order.
type NewOrderPayload struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	Email       string    `json:"email"`
	TotalCents  int64     `json:"total_cents"`
	Currency    string    `json:"currency"`
	ItemCount   int       `json:"item_count"`
}

// PaymentPayload accompanies the four payment_<status> types.
type PaymentPayload struct {
	Type          enums.NotificationType `json:"-"`
	OrderID       uuid.UUID              `json:"order_id"`
	OrderNumber   string                 `json:"order_number"`
	TransactionID uuid.UUID              `json:"transaction_id"`
	Provider      enums.PaymentProvider  `json:"provider"`
	EventID       string                 `json:"event_id,omitempty"`
	Status        enums.PaymentStatus    `json:"status"`
	AmountCents   int64                  `json:"amount_cents"`
}

// StockPayload accompanies low_stock and out_of_stock.
type StockPayload struct {
	OutOfStock bool      `json:"-"`
	VariantID  uuid.UUID `json:"variant_id"`
	SKU        string    `json:"sku"`
	Quantity   int       `json:"quantity"`
	Threshold  int       `json:"threshold"`
}

// OrderStatusChangePayload accompanies order_status_change.
type OrderStatusChangePayload struct {
	OrderID        uuid.UUID         `json:"order_id"`
	OrderNumber    string            `json:"order_number"`
	From           enums.OrderStatus `json:"from"`
	To             enums.OrderStatus `json:"to"`
	TrackingNumber *string           `json:"tracking_number,omitempty"`
}

// ReconciliationFailedPayload accompanies reconciliation_failed.
type ReconciliationFailedPayload struct {
	Provider    enums.PaymentProvider `json:"provider"`
	EventID     string                `json:"event_id"`
	EventType   string                `json:"event_type"`
	ProviderRef string                `json:"provider_ref,omitempty"`
	OrderRef    string                `json:"order_ref,omitempty"`
	Reason      string                `json:"reason"`
}

func (NewOrderPayload) Kind() enums.NotificationType { return enums.NotificationTypeNewOrder }

func (p PaymentPayload) Kind() enums.NotificationType { return p.Type }

func (p StockPayload) Kind() enums.NotificationType {
	if p.OutOfStock {
		return enums.NotificationTypeOutOfStock
	}
	return enums.NotificationTypeLowStock
}

func (OrderStatusChangePayload) Kind() enums.NotificationType {
	return enums.NotificationTypeOrderStatusChange
}

func (ReconciliationFailedPayload) Kind() enums.NotificationType {
	return enums.NotificationTypeReconciliationFailed
}

func (NewOrderPayload) isPayload()             {}
func (PaymentPayload) isPayload()              {}
func (StockPayload) isPayload()                {}
func (OrderStatusChangePayload) isPayload()    {}
func (ReconciliationFailedPayload) isPayload() {}

type envelope struct {
	Kind enums.NotificationType `json:"kind"`
	Data json.RawMessage        `json:"data"`
}

// Encode stores a payload together with its kind discriminator.
func Encode(p Payload) (json.RawMessage, error) {
	if p == nil {
		return nil, fmt.Errorf("notification payload required")
	}
	if !p.Kind().IsValid() {
		return nil, fmt.Errorf("invalid notification kind %q", p.Kind())
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Kind: p.Kind(), Data: data})
}

// Decode rebuilds the typed payload from its stored form.
func Decode(raw json.RawMessage) (Payload, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode notification envelope: %w", err)
	}
	switch env.Kind {
	case enums.NotificationTypeNewOrder:
		p := NewOrderPayload{}
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case enums.NotificationTypePaymentAuthorized,
		enums.NotificationTypePaymentCaptured,
		enums.NotificationTypePaymentFailed,
		enums.NotificationTypePaymentRefunded:
		p := PaymentPayload{}
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, err
		}
		p.Type = env.Kind
		return p, nil
	case enums.NotificationTypeLowStock, enums.NotificationTypeOutOfStock:
		p := StockPayload{}
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, err
		}
		p.OutOfStock = env.Kind == enums.NotificationTypeOutOfStock
		return p, nil
	case enums.NotificationTypeOrderStatusChange:
		p := OrderStatusChangePayload{}
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case enums.NotificationTypeReconciliationFailed:
		p := ReconciliationFailedPayload{}
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown notification kind %q", env.Kind)
	}
}
