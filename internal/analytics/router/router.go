package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/brickapparel/storefront-backend/internal/analytics/types"
	"github.com/brickapparel/storefront-backend/pkg/enums"
	"github.com/brickapparel/storefront-backend/pkg/logger"
	"github.com/brickapparel/storefront-backend/pkg/outbox/payloads"
	"github.com/brickapparel/storefront-backend/pkg/outbox/registry"
)

const currentVersion = 1

var ErrUnsupportedEventType = errors.New("unsupported analytics event type")

// Writer delivers BigQuery rows produced by analytics handlers.
type Writer interface {
	InsertOrderFact(ctx context.Context, row types.OrderFactRow) error
	InsertPaymentFact(ctx context.Context, row types.PaymentFactRow) error
	InsertInventoryFacts(ctx context.Context, rows []types.InventoryFactRow) error
}

// Handler receives an envelope plus its decoded payload.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope, payload any) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, envelope types.Envelope, payload any) error

func (fn HandlerFunc) Handle(ctx context.Context, envelope types.Envelope, payload any) error {
	return fn(ctx, envelope, payload)
}

// Router decodes envelopes through the versioned decoder registry and hands
// them to the handler registered for the event type.
type Router struct {
	decoders *registry.DecoderRegistry
	handlers map[enums.OutboxEventType]Handler
	skipped  map[enums.OutboxEventType]struct{}
	logg     *logger.Logger
}

// NewRouter wires the fact handlers. overrides replaces the handler of an
// already supported event type.
func NewRouter(writer Writer, logg *logger.Logger, overrides map[enums.OutboxEventType]Handler) (*Router, error) {
	if writer == nil {
		return nil, errors.New("writer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}

	decoders := registry.NewDecoderRegistry()
	registry.RegisterJSON[payloads.OrderCreatedEvent](decoders, enums.EventOrderCreated, currentVersion)
	registry.RegisterJSON[payloads.OrderStatusChangedEvent](decoders, enums.EventOrderStatusChanged, currentVersion)
	registry.RegisterJSON[payloads.PaymentStatusChangedEvent](decoders, enums.EventPaymentStatusChanged, currentVersion)
	registry.RegisterJSON[payloads.InventoryAdjustedEvent](decoders, enums.EventInventoryAdjusted, currentVersion)

	facts := &factHandlers{writer: writer, logg: logg}
	handlers := map[enums.OutboxEventType]Handler{
		enums.EventOrderCreated:         HandlerFunc(facts.orderCreated),
		enums.EventOrderStatusChanged:   HandlerFunc(facts.orderStatusChanged),
		enums.EventPaymentStatusChanged: HandlerFunc(facts.paymentStatusChanged),
		enums.EventInventoryAdjusted:    HandlerFunc(facts.inventoryAdjusted),
	}
	for event, custom := range overrides {
		if _, ok := handlers[event]; !ok || custom == nil {
			continue
		}
		handlers[event] = custom
	}

	return &Router{
		decoders: decoders,
		handlers: handlers,
		// The mailer consumes confirmation requests; they carry no facts.
		skipped: map[enums.OutboxEventType]struct{}{enums.EventOrderConfirmation: {}},
		logg:    logg,
	}, nil
}

// Handle dispatches one envelope. Skipped event types return nil.
func (r *Router) Handle(ctx context.Context, envelope types.Envelope) error {
	if _, skip := r.skipped[envelope.EventType]; skip {
		r.logg.Info(ctx, "analytics event skipped")
		return nil
	}
	handler, ok := r.handlers[envelope.EventType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedEventType, envelope.EventType)
	}
	if len(envelope.Payload) == 0 {
		return fmt.Errorf("empty payload for %s", envelope.EventType)
	}
	version := envelope.Version
	if version == 0 {
		version = currentVersion
	}
	payload, err := r.decoders.Decode(envelope.EventType, version, envelope.Payload)
	if err != nil {
		return err
	}
	return handler.Handle(ctx, envelope, payload)
}
