package fulfillment

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/brickapparel/storefront-backend/internal/guests"
	"github.com/brickapparel/storefront-backend/internal/inventory"
	"github.com/brickapparel/storefront-backend/internal/notifications"
	"github.com/brickapparel/storefront-backend/internal/orders"
	"github.com/brickapparel/storefront-backend/pkg/db/models"
	"github.com/brickapparel/storefront-backend/pkg/enums"
	pkgerrors "github.com/brickapparel/storefront-backend/pkg/errors"
	"github.com/brickapparel/storefront-backend/pkg/outbox"
	"github.com/brickapparel/storefront-backend/pkg/outbox/payloads"
	"github.com/brickapparel/storefront-backend/pkg/types"
)

const (
	reasonOrderPlaced    = "order_placed"
	reasonPaymentRefund  = "payment_refunded"
	reasonOrderCancelled = "order_cancelled"
)

// CreateOrderInput is a cart snapshot plus the buyer's identity and
// addresses. Exactly one of CustomerID or a guest Email identifies the
// buyer; Email is always stored on the order.
type CreateOrderInput struct {
	Items           []models.CartItem
	CustomerID      *uuid.UUID
	Email           string
	Phone           string
	ShippingAddress types.Address
	BillingAddress  *types.Address
	Provider        enums.PaymentProvider
	Notes           string
}

type CreatedOrder struct {
	Order       *models.Order
	Adjustments []payloads.InventoryAdjustment
}

// CreateOrder prices the cart, persists the order, and decrements inventory
// in one transaction. A conditional decrement that loses a race rolls the
// whole order back with INSUFFICIENT_INVENTORY.
func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*CreatedOrder, error) {
	lines, err := s.validateCreate(&input)
	if err != nil {
		return nil, err
	}

	// Fail fast with the current counts; the decrement below is authoritative.
	for _, line := range lines {
		if _, err := s.inventory.CheckAvailability(ctx, line.SKU, line.Quantity); err != nil {
			return nil, err
		}
	}

	priced := make([]orders.PricedLine, 0, len(input.Items))
	for _, item := range input.Items {
		priced = append(priced, orders.PricedLine{UnitPriceCents: item.UnitPriceCents, Quantity: item.Quantity})
	}
	quote := s.pricing.Quote(priced, input.ShippingAddress.State)

	order := &models.Order{
		CustomerID:      input.CustomerID,
		Email:           guests.NormalizeEmail(input.Email),
		Status:          enums.OrderStatusPending,
		PaymentStatus:   enums.PaymentStatusPending,
		PaymentProvider: input.Provider,
		Currency:        s.currency,
		SubtotalCents:   quote.SubtotalCents,
		ShippingCents:   quote.ShippingCents,
		TaxCents:        quote.TaxCents,
		TotalCents:      quote.TotalCents,
		ShippingAddress: input.ShippingAddress,
		BillingAddress:  *input.BillingAddress,
		Items:           snapshotLines(input.Items),
	}
	if notes := strings.TrimSpace(input.Notes); notes != "" {
		order.Notes = &notes
	}

	var adjustments []payloads.InventoryAdjustment
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if order.CustomerID == nil {
			guest, err := s.guests.WithTx(tx).FindOrCreate(ctx, guests.Input{
				Email:     order.Email,
				FirstName: input.ShippingAddress.FirstName,
				LastName:  input.ShippingAddress.LastName,
				Phone:     firstNonEmpty(input.Phone, input.ShippingAddress.Phone),
			})
			if err != nil {
				return err
			}
			order.GuestID = &guest.ID
		}

		if err := s.orders.Insert(ctx, tx, order); err != nil {
			return err
		}

		adjustments, err = s.inventory.Reserve(ctx, tx, lines)
		if err != nil {
			return err
		}
		if err := s.orderRepo.WithTx(tx).MarkInventoryApplied(ctx, order.ID, s.now()); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark inventory applied")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         buyerActor(order),
			Data:          orderCreatedPayload(order),
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order created")
		}
		return s.emitInventoryAdjusted(ctx, tx, order.ID, reasonOrderPlaced, adjustments)
	})
	if err != nil {
		s.metrics.IncCheckoutFailure(string(pkgerrors.CodeOf(err)))
		return nil, err
	}

	s.metrics.IncOrderCreated(string(order.PaymentProvider))
	s.notify.Emit(ctx, notifications.NewOrderNotice(order))
	s.emitStockNotices(ctx, lines)

	return &CreatedOrder{Order: order, Adjustments: adjustments}, nil
}

func (s *service) validateCreate(input *CreateOrderInput) ([]inventory.Line, error) {
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	if strings.TrimSpace(input.Email) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	if input.CustomerID != nil && *input.CustomerID == uuid.Nil {
		input.CustomerID = nil
	}
	if input.Provider != "" && !input.Provider.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment provider")
	}

	input.ShippingAddress = input.ShippingAddress.Normalize()
	if missing := input.ShippingAddress.MissingFields(); len(missing) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping address incomplete").
			WithDetails(map[string]any{"missing": missing})
	}
	if input.BillingAddress == nil {
		billing := input.ShippingAddress
		input.BillingAddress = &billing
	} else {
		billing := input.BillingAddress.Normalize()
		if missing := billing.MissingFields(); len(missing) > 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "billing address incomplete").
				WithDetails(map[string]any{"missing": missing})
		}
		input.BillingAddress = &billing
	}

	lines := make([]inventory.Line, 0, len(input.Items))
	for _, item := range input.Items {
		if strings.TrimSpace(item.SKU) == "" || item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "every line needs a sku and a positive quantity")
		}
		if item.UnitPriceCents < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "line price cannot be negative")
		}
		lines = append(lines, inventory.Line{SKU: item.SKU, Quantity: item.Quantity})
	}
	return foldLines(lines), nil
}

// emitStockNotices reports low and out-of-stock SKUs after a decrement. It
// runs after commit and only logs failures.
func (s *service) emitStockNotices(ctx context.Context, lines []inventory.Line) {
	skus := make([]string, 0, len(lines))
	for _, line := range lines {
		skus = append(skus, line.SKU)
	}
	levels, err := s.inventory.Levels(ctx, nil, skus)
	if err != nil {
		s.logg.Error(ctx, "load stock levels for notifications", err)
		return
	}
	for _, level := range levels {
		switch {
		case level.IsOut():
			s.notify.Emit(ctx, notifications.OutOfStockNotice(level.VariantID, level.SKU, level.Threshold))
		case level.IsLow():
			s.notify.Emit(ctx, notifications.LowStockNotice(level.VariantID, level.SKU, level.Quantity, level.Threshold))
		}
	}
}

func (s *service) emitInventoryAdjusted(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string, adjustments []payloads.InventoryAdjustment) error {
	if len(adjustments) == 0 {
		return nil
	}
	id := orderID
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventInventoryAdjusted,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Actor:         &outbox.ActorRef{Kind: outbox.ActorSystem},
		Data: payloads.InventoryAdjustedEvent{
			OrderID:     &id,
			Reason:      reason,
			Adjustments: adjustments,
			AdjustedAt:  s.now(),
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit inventory adjusted")
	}
	return nil
}

func snapshotLines(items []models.CartItem) []models.OrderLineItem {
	out := make([]models.OrderLineItem, 0, len(items))
	for _, item := range items {
		out = append(out, models.OrderLineItem{
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			SKU:            strings.TrimSpace(item.SKU),
			Size:           item.Size,
			Color:          item.Color,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			LineTotalCents: item.UnitPriceCents * int64(item.Quantity),
		})
	}
	return out
}

func orderLines(order *models.Order) []inventory.Line {
	lines := make([]inventory.Line, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, inventory.Line{SKU: item.SKU, Quantity: item.Quantity})
	}
	return foldLines(lines)
}

// foldLines merges repeated SKUs, keeping first-seen order.
func foldLines(lines []inventory.Line) []inventory.Line {
	index := make(map[string]int, len(lines))
	out := make([]inventory.Line, 0, len(lines))
	for _, line := range lines {
		sku := strings.TrimSpace(line.SKU)
		if i, ok := index[sku]; ok {
			out[i].Quantity += line.Quantity
			continue
		}
		index[sku] = len(out)
		out = append(out, inventory.Line{SKU: sku, Quantity: line.Quantity})
	}
	return out
}

func orderCreatedPayload(order *models.Order) payloads.OrderCreatedEvent {
	lines := make([]payloads.OrderLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, payloads.OrderLine{
			SKU:            item.SKU,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		})
	}
	return payloads.OrderCreatedEvent{
		OrderID:         order.ID,
		OrderNumber:     order.OrderNumber,
		Email:           order.Email,
		PaymentProvider: order.PaymentProvider,
		Currency:        order.Currency,
		SubtotalCents:   order.SubtotalCents,
		ShippingCents:   order.ShippingCents,
		TaxCents:        order.TaxCents,
		TotalCents:      order.TotalCents,
		ShippingState:   order.ShippingAddress.State,
		Lines:           lines,
		CreatedAt:       order.CreatedAt,
	}
}

func buyerActor(order *models.Order) *outbox.ActorRef {
	if order.CustomerID != nil {
		return &outbox.ActorRef{Kind: outbox.ActorCustomer, ID: order.CustomerID.String()}
	}
	if order.GuestID != nil {
		return &outbox.ActorRef{Kind: outbox.ActorCustomer, ID: order.GuestID.String()}
	}
	return &outbox.ActorRef{Kind: outbox.ActorCustomer}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
