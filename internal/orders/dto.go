package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/brickapparel/storefront-backend/pkg/db/models"
	"github.com/brickapparel/storefront-backend/pkg/enums"
	"github.com/brickapparel/storefront-backend/pkg/types"
)

// LineItemDTO is the frozen line snapshot returned to admins.
type LineItemDTO struct {
	ProductID      uuid.UUID `json:"product_id"`
	ProductName    string    `json:"product_name"`
	SKU            string    `json:"sku"`
	Size           string    `json:"size,omitempty"`
	Color          string    `json:"color,omitempty"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	LineTotalCents int64     `json:"line_total_cents"`
}

// TransactionDTO summarizes one payment attempt.
type TransactionDTO struct {
	ID          uuid.UUID             `json:"id"`
	Provider    enums.PaymentProvider `json:"provider"`
	ProviderRef string                `json:"provider_ref"`
	Status      enums.PaymentStatus   `json:"status"`
	AmountCents int64                 `json:"amount_cents"`
	Currency    enums.Currency        `json:"currency"`
	CreatedAt   time.Time             `json:"created_at"`
}

// OrderDetail is the admin view of an order.
type OrderDetail struct {
	ID              uuid.UUID             `json:"id"`
	OrderNumber     string                `json:"order_number"`
	Email           string                `json:"email"`
	CustomerID      *uuid.UUID            `json:"customer_id,omitempty"`
	GuestID         *uuid.UUID            `json:"guest_id,omitempty"`
	Status          enums.OrderStatus     `json:"status"`
	PaymentStatus   enums.PaymentStatus   `json:"payment_status"`
	PaymentProvider enums.PaymentProvider `json:"payment_provider,omitempty"`
	Currency        enums.Currency        `json:"currency"`
	Totals          Quote                 `json:"totals"`
	ShippingAddress types.Address         `json:"shipping_address"`
	BillingAddress  types.Address         `json:"billing_address"`
	TrackingNumber  *string               `json:"tracking_number,omitempty"`
	Notes           *string               `json:"notes,omitempty"`
	Items           []LineItemDTO         `json:"items"`
	Transactions    []TransactionDTO      `json:"transactions"`
	AllowedNext     []enums.OrderStatus   `json:"allowed_next_statuses"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

// OrderSummary is one row of the admin order list.
type OrderSummary struct {
	ID            uuid.UUID           `json:"id"`
	OrderNumber   string              `json:"order_number"`
	Email         string              `json:"email"`
	Status        enums.OrderStatus   `json:"status"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	TotalCents    int64               `json:"total_cents"`
	Currency      enums.Currency      `json:"currency"`
	CreatedAt     time.Time           `json:"created_at"`
}

// OrderList wraps a page of summaries plus the next page cursor.
type OrderList struct {
	Orders     []OrderSummary `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// ToDetail maps a loaded order to its admin view.
func ToDetail(order *models.Order) *OrderDetail {
	if order == nil {
		return nil
	}
	items := make([]LineItemDTO, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, LineItemDTO{
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			SKU:            item.SKU,
			Size:           item.Size,
			Color:          item.Color,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			LineTotalCents: item.LineTotalCents,
		})
	}
	txns := make([]TransactionDTO, 0, len(order.Transactions))
	for _, txn := range order.Transactions {
		txns = append(txns, TransactionDTO{
			ID:          txn.ID,
			Provider:    txn.Provider,
			ProviderRef: txn.ProviderRef,
			Status:      txn.Status,
			AmountCents: txn.AmountCents,
			Currency:    txn.Currency,
			CreatedAt:   txn.CreatedAt,
		})
	}
	return &OrderDetail{
		ID:              order.ID,
		OrderNumber:     order.OrderNumber,
		Email:           order.Email,
		CustomerID:      order.CustomerID,
		GuestID:         order.GuestID,
		Status:          order.Status,
		PaymentStatus:   order.PaymentStatus,
		PaymentProvider: order.PaymentProvider,
		Currency:        order.Currency,
		Totals: Quote{
			SubtotalCents: order.SubtotalCents,
			ShippingCents: order.ShippingCents,
			TaxCents:      order.TaxCents,
			TotalCents:    order.TotalCents,
		},
		ShippingAddress: order.ShippingAddress,
		BillingAddress:  order.BillingAddress,
		TrackingNumber:  order.TrackingNumber,
		Notes:           order.Notes,
		Items:           items,
		Transactions:    txns,
		AllowedNext:     AllowedTransitions(order.Status),
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
}

func toSummary(order models.Order) OrderSummary {
	return OrderSummary{
		ID:            order.ID,
		OrderNumber:   order.OrderNumber,
		Email:         order.Email,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		TotalCents:    order.TotalCents,
		Currency:      order.Currency,
		CreatedAt:     order.CreatedAt,
	}
}
