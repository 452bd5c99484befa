package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/brickapparel/storefront-backend/pkg/config"
	"github.com/brickapparel/storefront-backend/pkg/db/models"
	"github.com/brickapparel/storefront-backend/pkg/enums"
	"github.com/brickapparel/storefront-backend/pkg/logger"
	"github.com/brickapparel/storefront-backend/pkg/metrics"
	"github.com/brickapparel/storefront-backend/pkg/outbox"
	"github.com/brickapparel/storefront-backend/pkg/outbox/registry"
)

type harness struct {
	svc    *Service
	repo   *fakeRepo
	dlq    *fakeDLQRepo
	pub    *fakePublisher
	topics []string
	reg    *prometheus.Registry
}

func newHarness(t *testing.T, events []models.OutboxEvent, resolveErr error, results ...error) *harness {
	t.Helper()
	h := &harness{
		repo: &fakeRepo{events: events},
		dlq:  &fakeDLQRepo{},
		pub:  &fakePublisher{results: results},
		reg:  prometheus.NewRegistry(),
	}
	cfg := &config.Config{
		Outbox: config.OutboxConfig{BatchSize: 2, PollIntervalMS: 100, MaxAttempts: 5},
		PubSub: config.PubSubConfig{AnalyticsTopic: "analytics"},
	}
	svc, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard}),
		DB:            fakeDB{},
		PubSub:        fakePubSub{},
		Repository:    h.repo,
		Registry:      fakeRegistry{err: resolveErr},
		DLQRepository: h.dlq,
		Metrics:       metrics.NewOutboxMetrics(h.reg),
		PublisherFactory: func(topic string) publisher {
			h.topics = append(h.topics, topic)
			return h.pub
		},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	h.svc = svc
	return h
}

func (h *harness) run(t *testing.T) {
	t.Helper()
	processed, err := h.svc.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if !processed && len(h.repo.events) > 0 {
		t.Fatal("expected batch to report processed")
	}
}

func (h *harness) outcome(t *testing.T, eventType enums.OutboxEventType, outcome string) float64 {
	t.Helper()
	mfs, err := h.reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != "storefront_outbox_events_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["event_type"] == string(eventType) && labels["outcome"] == outcome {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func newEvent(t *testing.T, eventType enums.OutboxEventType) models.OutboxEvent {
	t.Helper()
	id := uuid.New()
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    id.String(),
		OccurredAt: time.Now().UTC(),
		Data:       json.RawMessage(`{}`),
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return models.OutboxEvent{
		ID:            id,
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       payload,
		CreatedAt:     time.Now().UTC(),
	}
}

func TestFailedRowDoesNotBlockBatch(t *testing.T) {
	first := newEvent(t, enums.EventOrderConfirmation)
	second := newEvent(t, enums.EventOrderConfirmation)
	h := newHarness(t, []models.OutboxEvent{first, second}, nil, errors.New("transient"), nil)

	h.run(t)

	if len(h.repo.failed) != 1 || h.repo.failed[0] != first.ID {
		t.Fatalf("expected first row marked failed, got %v", h.repo.failed)
	}
	if len(h.repo.published) != 1 || h.repo.published[0] != second.ID {
		t.Fatalf("expected second row published, got %v", h.repo.published)
	}
	if got := h.outcome(t, enums.EventOrderConfirmation, metrics.OutboxRetry); got != 1 {
		t.Fatalf("expected one retry counted, got %v", got)
	}
}

func TestDomainEventsAreMirroredToAnalytics(t *testing.T) {
	event := newEvent(t, enums.EventOrderCreated)
	h := newHarness(t, []models.OutboxEvent{event}, nil, nil, nil)

	h.run(t)

	if len(h.topics) != 2 || h.topics[0] != "orders" || h.topics[1] != "analytics" {
		t.Fatalf("unexpected topics %v", h.topics)
	}
	if len(h.repo.published) != 1 {
		t.Fatalf("expected one published row, got %d", len(h.repo.published))
	}
	attrs := h.pub.messages[0].Attributes
	if attrs["event_id"] != event.ID.String() || attrs["event_type"] != string(enums.EventOrderCreated) {
		t.Fatalf("unexpected attributes %v", attrs)
	}
	if !bytes.Equal(h.pub.messages[1].Data, event.Payload) {
		t.Fatal("analytics copy should carry the same payload")
	}
	if got := h.outcome(t, enums.EventOrderCreated, metrics.OutboxPublished); got != 1 {
		t.Fatalf("expected one publish counted, got %v", got)
	}
}

func TestConfirmationRequestsStayOffAnalytics(t *testing.T) {
	h := newHarness(t, []models.OutboxEvent{newEvent(t, enums.EventOrderConfirmation)}, nil, nil)

	h.run(t)

	if len(h.topics) != 1 || h.topics[0] != "orders" {
		t.Fatalf("expected only the orders topic, got %v", h.topics)
	}
}

func TestMirrorFailureRetriesWholeRow(t *testing.T) {
	h := newHarness(t, []models.OutboxEvent{newEvent(t, enums.EventOrderStatusChanged)}, nil, nil, errors.New("analytics down"))

	h.run(t)

	if len(h.repo.published) != 0 || len(h.repo.failed) != 1 {
		t.Fatalf("expected row marked failed, published=%d failed=%d", len(h.repo.published), len(h.repo.failed))
	}
}

func TestUnresolvableRowIsDeadLettered(t *testing.T) {
	event := newEvent(t, enums.EventOrderCreated)
	h := newHarness(t, []models.OutboxEvent{event}, registry.NewNonRetryableError(errors.New("invalid payload")))

	h.run(t)

	if len(h.dlq.entries) != 1 {
		t.Fatalf("expected one dlq entry, got %d", len(h.dlq.entries))
	}
	entry := h.dlq.entries[0]
	if entry.EventID != event.ID || !bytes.Equal(entry.Payload, event.Payload) {
		t.Fatalf("dlq entry does not match source row: %+v", entry)
	}
	if entry.ErrorReason != enums.OutboxDLQReasonNonRetryable {
		t.Fatalf("unexpected reason %s", entry.ErrorReason)
	}
	if entry.ErrorMessage == nil || *entry.ErrorMessage != "invalid payload" {
		t.Fatalf("unexpected message %v", entry.ErrorMessage)
	}
	if len(h.repo.terminal) != 1 || len(h.pub.messages) != 0 {
		t.Fatalf("expected terminal mark without publishing, terminal=%d published=%d", len(h.repo.terminal), len(h.pub.messages))
	}
	if got := h.outcome(t, enums.EventOrderCreated, metrics.OutboxDeadLettered); got != 1 {
		t.Fatalf("expected one dead letter counted, got %v", got)
	}
}

func TestLastAttemptIsDeadLettered(t *testing.T) {
	event := newEvent(t, enums.EventOrderCreated)
	event.AttemptCount = 4
	h := newHarness(t, []models.OutboxEvent{event}, nil, errors.New("transient"))

	h.run(t)

	if len(h.dlq.entries) != 1 || h.dlq.entries[0].ErrorReason != enums.OutboxDLQReasonMaxAttempts {
		t.Fatalf("expected max_attempts dlq entry, got %+v", h.dlq.entries)
	}
	if len(h.repo.failed) != 0 {
		t.Fatal("dead-lettered row should not also be marked failed")
	}
}

func TestMissingPublisherIsNotRetried(t *testing.T) {
	h := newHarness(t, []models.OutboxEvent{newEvent(t, enums.EventOrderConfirmation)}, nil)
	h.svc.publisherFactory = func(string) publisher { return nil }

	h.run(t)

	if len(h.dlq.entries) != 1 || h.dlq.entries[0].ErrorReason != enums.OutboxDLQReasonNonRetryable {
		t.Fatalf("expected non_retryable dlq entry, got %+v", h.dlq.entries)
	}
}

func TestBookkeepingFailureAbortsBatch(t *testing.T) {
	h := newHarness(t, []models.OutboxEvent{newEvent(t, enums.EventOrderConfirmation)}, nil, nil)
	h.repo.publishErr = errors.New("db gone")

	if _, err := h.svc.processBatch(context.Background()); err == nil {
		t.Fatal("expected batch error")
	}
}

func TestNextBackoffCaps(t *testing.T) {
	cases := []struct {
		current time.Duration
		want    time.Duration
	}{
		{0, 2 * time.Second},
		{2 * time.Second, 4 * time.Second},
		{8 * time.Second, 10 * time.Second},
	}
	for _, c := range cases {
		if got := nextBackoff(c.current, time.Second, 10*time.Second); got != c.want {
			t.Fatalf("nextBackoff(%s): expected %s, got %s", c.current, c.want, got)
		}
	}
}

func TestNewServiceAppliesDefaults(t *testing.T) {
	svc, err := NewService(ServiceParams{
		Config:        &config.Config{},
		Logger:        logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		DB:            fakeDB{},
		PubSub:        fakePubSub{},
		Repository:    &fakeRepo{},
		Registry:      fakeRegistry{},
		DLQRepository: &fakeDLQRepo{},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if svc.batchSize != defaultBatchSize || svc.maxAttempts != defaultMaxAttempts {
		t.Fatalf("unexpected defaults batch=%d attempts=%d", svc.batchSize, svc.maxAttempts)
	}
	if svc.pollInterval != defaultPollMs*time.Millisecond {
		t.Fatalf("unexpected poll interval %s", svc.pollInterval)
	}

	if _, err := NewService(ServiceParams{Config: &config.Config{}}); err == nil {
		t.Fatal("expected missing logger to fail")
	}
}

type fakeRepo struct {
	events     []models.OutboxEvent
	published  []uuid.UUID
	failed     []uuid.UUID
	terminal   []uuid.UUID
	publishErr error
}

func (f *fakeRepo) FetchUnpublishedForPublish(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDLQRepo struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQRepo) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}

type fakeDB struct{}

func (fakeDB) Ping(context.Context) error { return nil }

func (fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type fakePubSub struct{}

func (fakePubSub) Ping(context.Context) error { return nil }

func (fakePubSub) Publisher(string) *gcppubsub.Publisher { return nil }

// fakeRegistry resolves every row onto the orders topic.
type fakeRegistry struct {
	err error
}

func (f fakeRegistry) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{Topic: "orders", AggregateType: event.AggregateType},
		Envelope:   outbox.PayloadEnvelope{EventID: event.ID.String(), OccurredAt: event.CreatedAt},
	}, nil
}

type fakePublisher struct {
	results  []error
	messages []*gcppubsub.Message
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.messages = append(f.messages, msg)
	var err error
	if len(f.results) > 0 {
		err = f.results[0]
		f.results = f.results[1:]
	}
	return fakeResult{err: err}
}

type fakeResult struct {
	err error
}

func (f fakeResult) Get(context.Context) (string, error) { return "", f.err }
