package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/brickapparel/storefront-backend/internal/analytics/types"
	analyticswriter "github.com/brickapparel/storefront-backend/internal/analytics/writer"
	"github.com/brickapparel/storefront-backend/pkg/logger"
	"github.com/brickapparel/storefront-backend/pkg/outbox/payloads"
)

type factHandlers struct {
	writer Writer
	logg   *logger.Logger
}

func (h *factHandlers) orderCreated(ctx context.Context, envelope types.Envelope, payload any) error {
	event, ok := payload.(*payloads.OrderCreatedEvent)
	if !ok {
		return fmt.Errorf("invalid payload for %s", envelope.EventType)
	}
	logCtx := h.logg.WithOrderID(ctx, event.OrderID.String())

	row, err := buildOrderCreatedRow(envelope, event)
	if err != nil {
		return err
	}
	if err := h.writer.InsertOrderFact(logCtx, row); err != nil {
		h.logg.Error(logCtx, "failed to insert order fact", err)
		return err
	}
	h.logg.Info(logCtx, "order fact inserted")
	return nil
}

func buildOrderCreatedRow(envelope types.Envelope, event *payloads.OrderCreatedEvent) (types.OrderFactRow, error) {
	lines, err := analyticswriter.EncodeJSON(event.Lines)
	if err != nil {
		return types.OrderFactRow{}, fmt.Errorf("encode lines json: %w", err)
	}
	body, err := analyticswriter.EncodeJSON(envelope.Payload)
	if err != nil {
		return types.OrderFactRow{}, fmt.Errorf("encode payload json: %w", err)
	}
	var items int64
	for _, line := range event.Lines {
		items += int64(line.Quantity)
	}
	return types.OrderFactRow{
		EventID:         envelope.EventID,
		EventType:       string(envelope.EventType),
		OccurredAt:      envelope.OccurredAt,
		OrderID:         event.OrderID.String(),
		OrderNumber:     event.OrderNumber,
		Status:          "pending",
		PaymentProvider: nullableString(string(event.PaymentProvider)),
		Currency:        nullableString(string(event.Currency)),
		ShippingState:   nullableString(event.ShippingState),
		SubtotalCents:   int64Ref(event.SubtotalCents),
		ShippingCents:   int64Ref(event.ShippingCents),
		TaxCents:        int64Ref(event.TaxCents),
		TotalCents:      int64Ref(event.TotalCents),
		ItemCount:       int64Ref(items),
		ActorKind:       nullableString(envelope.ActorKind()),
		Lines:           lines,
		Payload:         body,
	}, nil
}

func (h *factHandlers) orderStatusChanged(ctx context.Context, envelope types.Envelope, payload any) error {
	event, ok := payload.(*payloads.OrderStatusChangedEvent)
	if !ok {
		return fmt.Errorf("invalid payload for %s", envelope.EventType)
	}
	body, err := analyticswriter.EncodeJSON(envelope.Payload)
	if err != nil {
		return fmt.Errorf("encode payload json: %w", err)
	}
	logCtx := h.logg.WithOrderID(ctx, event.OrderID.String())
	row := types.OrderFactRow{
		EventID:        envelope.EventID,
		EventType:      string(envelope.EventType),
		OccurredAt:     envelope.OccurredAt,
		OrderID:        event.OrderID.String(),
		OrderNumber:    event.OrderNumber,
		Status:         string(event.To),
		PreviousStatus: nullableString(string(event.From)),
		Reason:         nullableString(event.Reason),
		ActorKind:      nullableString(envelope.ActorKind()),
		Payload:        body,
	}
	if err := h.writer.InsertOrderFact(logCtx, row); err != nil {
		h.logg.Error(logCtx, "failed to insert order status fact", err)
		return err
	}
	return nil
}

func (h *factHandlers) paymentStatusChanged(ctx context.Context, envelope types.Envelope, payload any) error {
	event, ok := payload.(*payloads.PaymentStatusChangedEvent)
	if !ok {
		return fmt.Errorf("invalid payload for %s", envelope.EventType)
	}
	body, err := analyticswriter.EncodeJSON(envelope.Payload)
	if err != nil {
		return fmt.Errorf("encode payload json: %w", err)
	}
	logCtx := h.logg.WithFields(h.logg.WithOrderID(ctx, event.OrderID.String()), map[string]any{
		"provider":       event.Provider,
		"transaction_id": event.TransactionID,
	})
	row := types.PaymentFactRow{
		EventID:         envelope.EventID,
		OccurredAt:      envelope.OccurredAt,
		OrderID:         event.OrderID.String(),
		TransactionID:   event.TransactionID.String(),
		Provider:        string(event.Provider),
		ProviderRef:     event.ProviderRef,
		ProviderEventID: nullableString(event.EventID),
		FromStatus:      string(event.From),
		ToStatus:        string(event.To),
		OrderStatus:     string(event.OrderStatus),
		AmountCents:     event.AmountCents,
		Currency:        string(event.Currency),
		Payload:         body,
	}
	if err := h.writer.InsertPaymentFact(logCtx, row); err != nil {
		h.logg.Error(logCtx, "failed to insert payment fact", err)
		return err
	}
	h.logg.Info(logCtx, "payment fact inserted")
	return nil
}

func (h *factHandlers) inventoryAdjusted(ctx context.Context, envelope types.Envelope, payload any) error {
	event, ok := payload.(*payloads.InventoryAdjustedEvent)
	if !ok {
		return fmt.Errorf("invalid payload for %s", envelope.EventType)
	}
	if len(event.Adjustments) == 0 {
		return nil
	}
	var orderID *string
	if event.OrderID != nil {
		orderID = nullableString(event.OrderID.String())
	}
	rows := make([]types.InventoryFactRow, 0, len(event.Adjustments))
	for _, adj := range event.Adjustments {
		rows = append(rows, types.InventoryFactRow{
			EventID:     envelope.EventID,
			OccurredAt:  envelope.OccurredAt,
			OrderID:     orderID,
			Reason:      event.Reason,
			SKU:         adj.SKU,
			Delta:       int64(adj.Delta),
			NewQuantity: int64(adj.NewQuantity),
		})
	}
	if err := h.writer.InsertInventoryFacts(ctx, rows); err != nil {
		h.logg.Error(ctx, "failed to insert inventory facts", err)
		return err
	}
	return nil
}

// nullableString maps blank values to NULL columns.
func nullableString(value string) *string {
	if value = strings.TrimSpace(value); value == "" {
		return nil
	}
	return &value
}

func int64Ref(value int64) *int64 { return &value }
