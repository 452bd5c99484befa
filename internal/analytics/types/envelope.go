package types

import (
	"encoding/json"
	"time"

	"github.com/brickapparel/storefront-backend/pkg/enums"
	"github.com/brickapparel/storefront-backend/pkg/outbox"
)

// Envelope is one outbox event as delivered over Pub/Sub.
type Envelope struct {
	EventID       string                    `json:"event_id"`
	EventType     enums.OutboxEventType     `json:"event_type"`
	AggregateType enums.OutboxAggregateType `json:"aggregate_type"`
	AggregateID   string                    `json:"aggregate_id"`
	Version       int                       `json:"version"`
	OccurredAt    time.Time                 `json:"occurred_at"`
	Actor         *outbox.ActorRef          `json:"actor,omitempty"`
	Payload       json.RawMessage           `json:"payload"`
}

// ActorKind returns the actor kind or an empty string.
func (e Envelope) ActorKind() string {
	if e.Actor == nil {
		return ""
	}
	return string(e.Actor.Kind)
}
