package webhooks

import (
	"context"
	"fmt"
	"time"

	"github.com/brickapparel/storefront-backend/pkg/enums"
	"github.com/brickapparel/storefront-backend/pkg/outbox/idempotency"
	"github.com/brickapparel/storefront-backend/pkg/redis"
)

const defaultGuardTTL = 24 * time.Hour

// Guard marks provider event ids in redis so concurrent or repeated
// deliveries skip reconciliation. The webhook_events unique index remains
// the durable dedupe; the guard only saves the database round trip.
type Guard struct {
	processed *idempotency.Manager
}

func NewGuard(store redis.IdempotencyStore, ttl time.Duration) (*Guard, error) {
	if ttl == 0 {
		ttl = defaultGuardTTL
	}
	manager, err := idempotency.NewManager(store, ttl)
	if err != nil {
		return nil, err
	}
	return &Guard{processed: manager}, nil
}

// CheckAndMark reports whether the event was already marked and marks it
// otherwise.
func (g *Guard) CheckAndMark(ctx context.Context, provider enums.PaymentProvider, eventID string) (bool, error) {
	consumer, err := consumerFor(provider)
	if err != nil {
		return false, err
	}
	return g.processed.CheckAndMarkProcessed(ctx, consumer, eventID)
}

// Delete clears a mark so the provider's retry is processed again.
func (g *Guard) Delete(ctx context.Context, provider enums.PaymentProvider, eventID string) error {
	consumer, err := consumerFor(provider)
	if err != nil {
		return err
	}
	return g.processed.Delete(ctx, consumer, eventID)
}

func consumerFor(provider enums.PaymentProvider) (string, error) {
	if !provider.IsValid() {
		return "", fmt.Errorf("unknown payment provider %q", provider)
	}
	return "webhook:" + string(provider), nil
}
