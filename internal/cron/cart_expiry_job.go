package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/brickapparel/storefront-backend/pkg/logger"
)

type cartSweeper interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type CartExpiryJobParams struct {
	Logger *logger.Logger
	Carts  cartSweeper
}

// NewCartExpiryJob deletes carts whose expires_at has passed. Expiry is
// refreshed on every cart write, so only abandoned carts are removed.
func NewCartExpiryJob(params CartExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart service required")
	}
	return &cartExpiryJob{logg: params.Logger, carts: params.Carts, now: time.Now}, nil
}

type cartExpiryJob struct {
	logg  *logger.Logger
	carts cartSweeper
	now   func() time.Time
}

func (j *cartExpiryJob) Name() string { return "cart-expiry" }

func (j *cartExpiryJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	deleted, err := j.carts.DeleteExpired(ctx, now)
	if err != nil {
		return fmt.Errorf("delete expired carts: %w", err)
	}
	j.logg.Info(j.logg.WithField(ctx, "carts_deleted", deleted), "cart expiry complete")
	return nil
}
