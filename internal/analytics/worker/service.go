package worker

import (
	"context"
	"errors"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/brickapparel/storefront-backend/internal/analytics/router"
	"github.com/brickapparel/storefront-backend/internal/analytics/types"
	"github.com/brickapparel/storefront-backend/pkg/logger"
	"github.com/brickapparel/storefront-backend/pkg/metrics"
)

const consumerName = "analytics"

// Handler processes one analytics envelope.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope) error
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer, eventID string) (bool, error)
	Delete(ctx context.Context, consumer, eventID string) error
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

// outcome is what happened to one message. Only retry nacks.
type outcome string

const (
	outcomeHandled     outcome = "handled"
	outcomeDuplicate   outcome = "duplicate"
	outcomeInvalid     outcome = "invalid"
	outcomeUnsupported outcome = "unsupported"
	outcomeRetry       outcome = "retry"
)

func (o outcome) ack() bool { return o != outcomeRetry }

type Params struct {
	Subscription *gcppubsub.Subscriber
	Handler      Handler
	Idempotency  idempotencyChecker
	Logger       *logger.Logger
	Metrics      *metrics.ConsumerMetrics
}

// Service feeds mirrored outbox events into the analytics handler. Each event
// id is handled once; a failed handler clears its mark and nacks so Pub/Sub
// redelivers.
type Service struct {
	subscription receiver
	handler      Handler
	manager      idempotencyChecker
	logg         *logger.Logger
	metrics      *metrics.ConsumerMetrics
}

func NewService(params Params) (*Service, error) {
	switch {
	case params.Subscription == nil:
		return nil, errors.New("analytics subscription is required")
	case params.Handler == nil:
		return nil, errors.New("analytics handler is required")
	case params.Idempotency == nil:
		return nil, errors.New("idempotency manager is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	}
	return &Service{
		subscription: params.Subscription,
		handler:      params.Handler,
		manager:      params.Idempotency,
		logg:         params.Logger,
		metrics:      params.Metrics,
	}, nil
}

// Run consumes messages until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	return s.subscription.Receive(ctx, func(msgCtx context.Context, msg *gcppubsub.Message) {
		started := time.Now()
		result := s.process(msgCtx, msg)
		s.metrics.Observe(consumerName, string(result), time.Since(started))
		if result.ack() {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

func (s *Service) process(ctx context.Context, msg *gcppubsub.Message) outcome {
	ctx = s.logg.WithField(ctx, "message_id", msg.ID)

	envelope, err := buildEnvelope(msg)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "dropping malformed analytics message")
		return outcomeInvalid
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"event_id":     envelope.EventID,
		"event_type":   envelope.EventType,
		"aggregate_id": envelope.AggregateID,
	})

	seen, err := s.manager.CheckAndMarkProcessed(ctx, consumerName, envelope.EventID)
	switch {
	case err != nil:
		s.logg.Error(ctx, "idempotency check failed", err)
		return outcomeRetry
	case seen:
		s.logg.Debug(ctx, "analytics event already handled")
		return outcomeDuplicate
	}

	err = s.handler.Handle(ctx, *envelope)
	switch {
	case err == nil:
		s.logg.Info(ctx, "analytics event handled")
		return outcomeHandled
	case errors.Is(err, router.ErrUnsupportedEventType):
		s.logg.Warn(ctx, "no analytics fact for event type")
		return outcomeUnsupported
	}

	s.logg.Error(ctx, "analytics handler failed", err)
	if err := s.manager.Delete(ctx, consumerName, envelope.EventID); err != nil {
		s.logg.Error(ctx, "failed to clear idempotency mark", err)
	}
	return outcomeRetry
}
