// Package idempotency remembers which event ids a consumer has already
// handled. Ids are opaque strings, so outbox UUIDs and provider ids such as
// evt_... or WH-... share the same guard.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/brickapparel/storefront-backend/pkg/redis"
)

// DefaultTTL applies when NewManager is given a zero ttl.
const DefaultTTL = 30 * 24 * time.Hour

var (
	errConsumerRequired = errors.New("consumer name is required")
	errEventIDRequired  = errors.New("event id is required")
)

// Manager marks processed ids with SETNX under
// <prefix>:idempotency:processed:<consumer>:<event_id>. The stored value is
// the time the mark was taken.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	now   func() time.Time
}

func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case ttl < 0:
		return nil, errors.New("ttl must be non-negative")
	case ttl == 0:
		ttl = DefaultTTL
	}
	return &Manager{store: store, ttl: ttl, now: time.Now}, nil
}

// CheckAndMarkProcessed reports whether eventID was already marked for
// consumer, marking it when it was not.
func (m *Manager) CheckAndMarkProcessed(ctx context.Context, consumer, eventID string) (bool, error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return false, err
	}
	claimed, err := m.store.SetNX(ctx, key, m.now().UTC().Format(time.RFC3339), m.ttl)
	if err != nil {
		return false, fmt.Errorf("mark %s processed: %w", key, err)
	}
	return !claimed, nil
}

// Delete drops the mark so a redelivery is handled again.
func (m *Manager) Delete(ctx context.Context, consumer, eventID string) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) key(consumer, eventID string) (string, error) {
	consumer = strings.TrimSpace(consumer)
	eventID = strings.TrimSpace(eventID)
	switch {
	case consumer == "":
		return "", errConsumerRequired
	case eventID == "":
		return "", errEventIDRequired
	}
	return m.store.IdempotencyKey("processed:"+consumer, eventID), nil
}
