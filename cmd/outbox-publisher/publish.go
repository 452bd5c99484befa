package main

import (
	"context"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/brickapparel/storefront-backend/pkg/db/models"
	"github.com/brickapparel/storefront-backend/pkg/enums"
	"github.com/brickapparel/storefront-backend/pkg/outbox/registry"
)

const defaultPublishTimeout = 15 * time.Second

// mirroredEvents go to the analytics topic after the domain publish.
// Confirmation requests are mail work and stay off it.
var mirroredEvents = map[enums.OutboxEventType]bool{
	enums.EventOrderCreated:         true,
	enums.EventOrderStatusChanged:   true,
	enums.EventPaymentStatusChanged: true,
	enums.EventInventoryAdjusted:    true,
}

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// topicsFor lists the domain topic, then the analytics mirror when it is
// configured, distinct, and wants this event type.
func (s *Service) topicsFor(event models.OutboxEvent, resolved *registry.ResolvedEvent) []string {
	domain := resolved.Descriptor.Topic
	mirror := s.cfg.PubSub.AnalyticsTopic
	if mirror == "" || mirror == domain || !mirroredEvents[event.EventType] {
		return []string{domain}
	}
	return []string{domain, mirror}
}

func messageFor(event models.OutboxEvent, resolved *registry.ResolvedEvent) *gcppubsub.Message {
	return &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		},
	}
}

// publishAll stops at the first failing topic. A retry republishes every
// topic, so consumers dedupe on the event_id attribute.
func (s *Service) publishAll(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	msg := messageFor(event, resolved)
	for _, topic := range s.topicsFor(event, resolved) {
		if err := s.publishOne(ctx, topic, msg); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) publishOne(ctx context.Context, topic string, msg *gcppubsub.Message) error {
	pub := s.publisherFactory(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %s", topic))
	}
	ctx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()

	result := pub.Publish(ctx, msg)
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher for %s returned no result", topic))
	}
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// gcpPublisher narrows *pubsub.Publisher so tests can swap it out.
type gcpPublisher struct {
	p *gcppubsub.Publisher
}

func newGCPPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	return gcpPublisher{p: p}
}

func (g gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return g.p.Publish(ctx, msg)
}
