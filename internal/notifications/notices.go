package notifications

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/brickapparel/storefront-backend/pkg/db/models"
	"github.com/brickapparel/storefront-backend/pkg/enums"
)

func NewOrderNotice(order *models.Order) Notice {
	items := 0
	for _, line := range order.Items {
		items += line.Quantity
	}
	id := order.ID
	return Notice{
		Title:   fmt.Sprintf("New order %s", order.OrderNumber),
		Message: fmt.Sprintf("%s placed an order for %s (%d items)", order.Email, formatCents(order.TotalCents, order.Currency), items),
		OrderID: &id,
		Payload: NewOrderPayload{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			Email:       order.Email,
			TotalCents:  order.TotalCents,
			Currency:    string(order.Currency),
			ItemCount:   items,
		},
	}
}

// PaymentNotice builds the payment_<status> notice. ok is false for statuses
// with no notification (pending).
func PaymentNotice(order *models.Order, txn *models.Transaction, status enums.PaymentStatus, eventID string) (Notice, bool) {
	kind, ok := enums.PaymentNotificationType(status)
	if !ok {
		return Notice{}, false
	}
	orderID, txnID := order.ID, txn.ID
	return Notice{
		Title:         fmt.Sprintf("Payment %s for %s", status, order.OrderNumber),
		Message:       fmt.Sprintf("%s reported %s for %s", txn.Provider, status, formatCents(txn.AmountCents, txn.Currency)),
		OrderID:       &orderID,
		TransactionID: &txnID,
		Payload: PaymentPayload{
			Type:          kind,
			OrderID:       order.ID,
			OrderNumber:   order.OrderNumber,
			TransactionID: txn.ID,
			Provider:      txn.Provider,
			EventID:       eventID,
			Status:        status,
			AmountCents:   txn.AmountCents,
		},
	}, true
}

// LowStockNotice is deduplicated per SKU while an unread one exists.
func LowStockNotice(variantID uuid.UUID, sku string, quantity, threshold int) Notice {
	id := variantID
	return Notice{
		Title:     fmt.Sprintf("Low stock: %s", sku),
		Message:   fmt.Sprintf("%s has %d left (threshold %d)", sku, quantity, threshold),
		VariantID: &id,
		DedupeKey: "low_stock:" + sku,
		Payload:   StockPayload{VariantID: variantID, SKU: sku, Quantity: quantity, Threshold: threshold},
	}
}

func OutOfStockNotice(variantID uuid.UUID, sku string, threshold int) Notice {
	id := variantID
	return Notice{
		Title:     fmt.Sprintf("Out of stock: %s", sku),
		Message:   fmt.Sprintf("%s sold out", sku),
		VariantID: &id,
		DedupeKey: "out_of_stock:" + sku,
		Payload:   StockPayload{OutOfStock: true, VariantID: variantID, SKU: sku, Threshold: threshold},
	}
}

func OrderStatusChangeNotice(order *models.Order, from, to enums.OrderStatus) Notice {
	id := order.ID
	return Notice{
		Title:   fmt.Sprintf("Order %s is %s", order.OrderNumber, to),
		Message: fmt.Sprintf("Order %s moved from %s to %s", order.OrderNumber, from, to),
		OrderID: &id,
		Payload: OrderStatusChangePayload{
			OrderID:        order.ID,
			OrderNumber:    order.OrderNumber,
			From:           from,
			To:             to,
			TrackingNumber: order.TrackingNumber,
		},
	}
}

// ReconciliationFailedNotice asks a human to match an event by hand.
func ReconciliationFailedNotice(payload ReconciliationFailedPayload) Notice {
	return Notice{
		Title:     fmt.Sprintf("Unmatched %s webhook", payload.Provider),
		Message:   fmt.Sprintf("%s event %s (%s): %s", payload.Provider, payload.EventID, payload.EventType, payload.Reason),
		DedupeKey: fmt.Sprintf("txn_not_found:%s:%s", payload.Provider, payload.EventID),
		Payload:   payload,
	}
}

func formatCents(cents int64, currency enums.Currency) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, cents/100, cents%100, strings.ToUpper(string(currency)))
}

// ClosedOrderPaymentNotice flags funds held or charged against an order that
// is already cancelled or refunded. Someone has to void or refund it at the
// provider.
func ClosedOrderPaymentNotice(order *models.Order, txn *models.Transaction, status enums.PaymentStatus, eventID, eventType string) Notice {
	orderID, txnID := order.ID, txn.ID
	amount := formatCents(txn.AmountCents, txn.Currency)
	return Notice{
		Title:         fmt.Sprintf("Payment %s on %s order %s", status, order.Status, order.OrderNumber),
		Message:       fmt.Sprintf("%s reported %s for %s after the order was %s; refund it manually", txn.Provider, status, amount, order.Status),
		OrderID:       &orderID,
		TransactionID: &txnID,
		DedupeKey:     fmt.Sprintf("closed_order_payment:%s:%s", txn.Provider, eventID),
		Payload: ReconciliationFailedPayload{
			Provider:    txn.Provider,
			EventID:     eventID,
			EventType:   eventType,
			ProviderRef: txn.ProviderRef,
			OrderRef:    order.OrderNumber,
			Reason:      fmt.Sprintf("%s on %s order; manual refund required", status, order.Status),
		},
	}
}
