package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/brickapparel/storefront-backend/pkg/logger"
)

const (
	defaultPendingPaymentTTL = 72 * time.Hour
	defaultExpiryBatch       = 100
)

type pendingExpirer interface {
	ExpirePending(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

type PendingPaymentExpiryJobParams struct {
	Logger      *logger.Logger
	Fulfillment pendingExpirer
	TTL         time.Duration
	BatchSize   int
}

// NewPendingPaymentExpiryJob cancels orders whose payment never left pending
// within the TTL. Cancelling credits the reserved stock back.
func NewPendingPaymentExpiryJob(params PendingPaymentExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Fulfillment == nil {
		return nil, fmt.Errorf("fulfillment service required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultPendingPaymentTTL
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultExpiryBatch
	}
	return &pendingPaymentExpiryJob{
		logg:  params.Logger,
		svc:   params.Fulfillment,
		ttl:   ttl,
		batch: batch,
		now:   time.Now,
	}, nil
}

type pendingPaymentExpiryJob struct {
	logg  *logger.Logger
	svc   pendingExpirer
	ttl   time.Duration
	batch int
	now   func() time.Time
}

func (j *pendingPaymentExpiryJob) Name() string { return "pending-payment-expiry" }

// Run drains stale orders in batches. A short batch means the backlog is
// empty; a batch where nothing could be cancelled stops the loop too.
func (j *pendingPaymentExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	total := 0
	for {
		cancelled, err := j.svc.ExpirePending(ctx, cutoff, j.batch)
		total += cancelled
		if err != nil {
			return fmt.Errorf("expire pending orders: %w", err)
		}
		if cancelled < j.batch {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":           cutoff,
		"orders_cancelled": total,
	}), "pending payment expiry complete")
	return nil
}
