package cron

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type memoryLockStore struct {
	values map[string]string
	ttls   map[string]time.Duration
}

func newMemoryLockStore() *memoryLockStore {
	return &memoryLockStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryLockStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryLockStore) Get(_ context.Context, key string) (string, error) {
	value, ok := m.values[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func (m *memoryLockStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

func TestRedisLockExcludesSecondWorker(t *testing.T) {
	store := newMemoryLockStore()
	ctx := context.Background()
	first, err := NewRedisLock(store, "storefront:lock:cron-leader", 0)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}
	second, _ := NewRedisLock(store, "storefront:lock:cron-leader", 0)

	if ok, err := first.Acquire(ctx); err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if store.ttls["storefront:lock:cron-leader"] != defaultLockTTL {
		t.Fatalf("expected default ttl, got %s", store.ttls["storefront:lock:cron-leader"])
	}
	if ok, _ := second.Acquire(ctx); ok {
		t.Fatal("second worker acquired a held lock")
	}
	if err := second.Release(ctx); err != nil {
		t.Fatalf("release by non-owner: %v", err)
	}
	if _, held := store.values["storefront:lock:cron-leader"]; !held {
		t.Fatal("non-owner release dropped the lock")
	}
	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := second.Acquire(ctx); !ok {
		t.Fatal("expected lock free after release")
	}
}

func TestRedisLockLeavesTakenOverLock(t *testing.T) {
	store := newMemoryLockStore()
	ctx := context.Background()
	lock, _ := NewRedisLock(store, "k", time.Minute)
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatal("acquire failed")
	}
	store.values["k"] = "someone-else"

	if err := lock.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if store.values["k"] != "someone-else" {
		t.Fatal("released a lock owned by another worker")
	}
}

func TestRedisLockValueNamesHolder(t *testing.T) {
	t.Setenv("DYNO", "")
	t.Setenv("STOREFRONT_INSTANCE_ID", "cron-a")
	store := newMemoryLockStore()
	lock, _ := NewRedisLock(store, "k", time.Minute)
	if ok, _ := lock.Acquire(context.Background()); !ok {
		t.Fatal("acquire failed")
	}
	if value := store.values["k"]; !strings.HasPrefix(value, "cron-a:") {
		t.Fatalf("expected holder prefix, got %q", value)
	}
}
