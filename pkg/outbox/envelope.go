package outbox

import (
	"encoding/json"
	"time"
)

// ActorKind names who caused an event.
type ActorKind string

const (
	ActorSystem   ActorKind = "system"
	ActorCustomer ActorKind = "customer"
	ActorAdmin    ActorKind = "admin"
	ActorWebhook  ActorKind = "webhook"
)

// ActorRef identifies who produced the event.
type ActorRef struct {
	Kind ActorKind `json:"kind"`
	ID   string    `json:"id,omitempty"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
