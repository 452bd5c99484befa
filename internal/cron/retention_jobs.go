package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/brickapparel/storefront-backend/pkg/logger"
)

const (
	notificationRetention = 30 * 24 * time.Hour
	outboxRetention       = 14 * 24 * time.Hour
	outboxMinAttempts     = 10
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type readNotificationPurger interface {
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type outboxRetentionRepo interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

// retentionJob deletes rows older than a cutoff through purge.
type retentionJob struct {
	name      string
	logg      *logger.Logger
	retention time.Duration
	purge     func(ctx context.Context, cutoff time.Time) (int64, error)
	now       func() time.Time
}

func (j *retentionJob) Name() string { return j.name }

func (j *retentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	deleted, err := j.purge(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"retention":    j.retention.String(),
		"rows_deleted": deleted,
	}), "retention sweep complete")
	return nil
}

type NotificationCleanupJobParams struct {
	Logger        *logger.Logger
	Notifications readNotificationPurger
	// Retention defaults to 30 days.
	Retention time.Duration
}

// NewNotificationCleanupJob purges read admin notifications past the
// retention window. Unread rows are kept so low-stock dedupe keys stay live.
func NewNotificationCleanupJob(params NotificationCleanupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Notifications == nil {
		return nil, fmt.Errorf("notifications service required")
	}
	return &retentionJob{
		name:      "notification-cleanup",
		logg:      params.Logger,
		retention: orDefault(params.Retention, notificationRetention),
		purge:     params.Notifications.DeleteReadBefore,
		now:       time.Now,
	}, nil
}

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository outboxRetentionRepo
	// Retention defaults to 14 days.
	Retention time.Duration
	// MinAttempts marks unpublished rows as abandoned. The publisher has
	// already copied those to the DLQ.
	MinAttempts int
}

// NewOutboxRetentionJob deletes published outbox rows past the retention
// window together with rows that exhausted MinAttempts.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	minAttempts := params.MinAttempts
	if minAttempts <= 0 {
		minAttempts = outboxMinAttempts
	}
	purge := func(ctx context.Context, cutoff time.Time) (int64, error) {
		var deleted int64
		err := params.DB.WithTx(ctx, func(tx *gorm.DB) error {
			rows, err := params.Repository.DeletePublishedBefore(ctx, tx, cutoff, minAttempts)
			deleted = rows
			return err
		})
		return deleted, err
	}
	return &retentionJob{
		name:      "outbox-retention",
		logg:      params.Logger,
		retention: orDefault(params.Retention, outboxRetention),
		purge:     purge,
		now:       time.Now,
	}, nil
}

func orDefault(value, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return value
}
