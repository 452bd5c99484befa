package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/brickapparel/storefront-backend/pkg/config"
	"github.com/brickapparel/storefront-backend/pkg/db/models"
	"github.com/brickapparel/storefront-backend/pkg/enums"
	"github.com/brickapparel/storefront-backend/pkg/outbox"
	"github.com/brickapparel/storefront-backend/pkg/outbox/payloads"
)

// EventDescriptor says where one event type is published and how its data
// decodes.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

// ResolvedEvent is an outbox row that passed validation.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// EventRegistry routes outbox rows to topics.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

func route[T any](eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, topic string) EventDescriptor {
	return EventDescriptor{
		EventType:      eventType,
		AggregateType:  aggregate,
		Topic:          topic,
		PayloadFactory: func() any { return new(T) },
	}
}

// NewEventRegistry routes order lifecycle and confirmation requests to the
// orders topic, payment changes to payments, and stock movements to
// inventory.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	for _, topic := range []struct{ name, value string }{
		{"orders", cfg.OrdersTopic},
		{"payments", cfg.PaymentsTopic},
		{"inventory", cfg.InventoryTopic},
	} {
		if topic.value == "" {
			return nil, fmt.Errorf("%s topic is required", topic.name)
		}
	}

	routes := []EventDescriptor{
		route[payloads.OrderCreatedEvent](enums.EventOrderCreated, enums.AggregateOrder, cfg.OrdersTopic),
		route[payloads.OrderStatusChangedEvent](enums.EventOrderStatusChanged, enums.AggregateOrder, cfg.OrdersTopic),
		route[payloads.OrderConfirmationRequestedEvent](enums.EventOrderConfirmation, enums.AggregateOrder, cfg.OrdersTopic),
		route[payloads.PaymentStatusChangedEvent](enums.EventPaymentStatusChanged, enums.AggregateTransaction, cfg.PaymentsTopic),
		route[payloads.InventoryAdjustedEvent](enums.EventInventoryAdjusted, enums.AggregateOrder, cfg.InventoryTopic),
	}
	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(routes))}
	for _, desc := range routes {
		reg.entries[desc.EventType] = desc
	}
	return reg, nil
}

// Topics returns the distinct topics routed to, sorted.
func (r *EventRegistry) Topics() []string {
	var topics []string
	for _, desc := range r.entries {
		if !slices.Contains(topics, desc.Topic) {
			topics = append(topics, desc.Topic)
		}
	}
	slices.Sort(topics)
	return topics
}

// Resolve checks the row against its route and decodes the typed payload.
// Every failure is non-retryable since republishing the same bytes cannot
// fix it.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	case desc.AggregateType != event.AggregateType:
		return nil, NewNonRetryableError(fmt.Errorf("%s expects aggregate %s, row has %s", event.EventType, desc.AggregateType, event.AggregateType))
	case event.AggregateID == uuid.Nil:
		return nil, NewNonRetryableError(fmt.Errorf("%s row has no aggregate_id", event.EventType))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}
	if data := bytes.TrimSpace(envelope.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, NewNonRetryableError(fmt.Errorf("%s envelope has no data", event.EventType))
	}

	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
