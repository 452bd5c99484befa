package worker

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/brickapparel/storefront-backend/internal/analytics/types"
	"github.com/brickapparel/storefront-backend/pkg/enums"
	"github.com/brickapparel/storefront-backend/pkg/outbox"
)

// buildEnvelope merges the stored payload envelope with the routing
// attributes the outbox publisher sets. Payload fields win; attributes fill
// gaps left by older rows.
func buildEnvelope(msg *gcppubsub.Message) (*types.Envelope, error) {
	var stored outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &stored); err != nil {
		return nil, fmt.Errorf("decode payload envelope: %w", err)
	}
	attr := func(key string) string { return strings.TrimSpace(msg.Attributes[key]) }

	eventType, err := enums.ParseOutboxEventType(attr("event_type"))
	if err != nil {
		return nil, fmt.Errorf("event_type: %w", err)
	}
	aggregateType, err := enums.ParseOutboxAggregateType(attr("aggregate_type"))
	if err != nil {
		return nil, fmt.Errorf("aggregate_type: %w", err)
	}

	env := &types.Envelope{
		EventID:       firstNonEmpty(strings.TrimSpace(stored.EventID), attr("event_id")),
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   attr("aggregate_id"),
		Version:       stored.Version,
		OccurredAt:    stored.OccurredAt,
		Actor:         stored.Actor,
		Payload:       stored.Data,
	}
	switch {
	case env.EventID == "":
		return nil, errors.New("event_id missing")
	case env.AggregateID == "":
		return nil, errors.New("aggregate_id missing")
	}
	if env.OccurredAt.IsZero() {
		if created, err := time.Parse(time.RFC3339Nano, attr("created_at")); err == nil {
			env.OccurredAt = created
		}
	}
	env.OccurredAt = env.OccurredAt.UTC()
	return env, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
