package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/brickapparel/storefront-backend/pkg/db/models"
	"github.com/brickapparel/storefront-backend/pkg/enums"
	pkgerrors "github.com/brickapparel/storefront-backend/pkg/errors"
	"github.com/brickapparel/storefront-backend/pkg/logger"
	"github.com/brickapparel/storefront-backend/pkg/pagination"
)

// Notice is one notification to append. Type comes from the payload.
type Notice struct {
	Title         string
	Message       string
	OrderID       *uuid.UUID
	TransactionID *uuid.UUID
	VariantID     *uuid.UUID
	DedupeKey     string
	Payload       Payload
}

// Sink is the write side used by fulfillment flows. Emit never fails the
// caller; errors are logged.
type Sink interface {
	Emit(ctx context.Context, notice Notice)
}

// Service defines notification list/read operations plus the sink.
type Service interface {
	Sink
	List(ctx context.Context, params ListParams) (*ListResult, error)
	MarkRead(ctx context.Context, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context) (int64, error)
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type service struct {
	repo Repository
	logg *logger.Logger
}

// ListParams configures pagination for notifications.
type ListParams struct {
	Limit      int
	Cursor     string
	UnreadOnly bool
	Type       string
}

// Item is a notification with its decoded payload.
type Item struct {
	ID            uuid.UUID              `json:"id"`
	Type          enums.NotificationType `json:"type"`
	Title         string                 `json:"title"`
	Message       string                 `json:"message"`
	OrderID       *uuid.UUID             `json:"order_id,omitempty"`
	TransactionID *uuid.UUID             `json:"transaction_id,omitempty"`
	VariantID     *uuid.UUID             `json:"variant_id,omitempty"`
	Payload       Payload                `json:"payload,omitempty"`
	IsRead        bool                   `json:"is_read"`
	ReadAt        *time.Time             `json:"read_at,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}

// ListResult wraps returned notifications and the cursor for the next page.
type ListResult struct {
	Items  []Item `json:"items"`
	Cursor string `json:"cursor"`
}

// NewService wires notifications dependencies.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: repo, logg: logg}, nil
}

func (s *service) Emit(ctx context.Context, notice Notice) {
	if err := s.emit(ctx, notice); err != nil {
		kind := ""
		if notice.Payload != nil {
			kind = string(notice.Payload.Kind())
		}
		s.logg.Error(s.logg.WithField(ctx, "notification_type", kind), "notification emit failed", err)
	}
}

func (s *service) emit(ctx context.Context, notice Notice) error {
	if notice.Payload == nil {
		return fmt.Errorf("notification payload required")
	}
	payload, err := Encode(notice.Payload)
	if err != nil {
		return err
	}
	if notice.DedupeKey != "" {
		exists, err := s.repo.ExistsUnread(ctx, notice.DedupeKey)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
	}

	record := &models.Notification{
		Type:          notice.Payload.Kind(),
		Title:         notice.Title,
		Message:       notice.Message,
		OrderID:       notice.OrderID,
		TransactionID: notice.TransactionID,
		VariantID:     notice.VariantID,
		Payload:       payload,
	}
	if notice.DedupeKey != "" {
		key := notice.DedupeKey
		record.DedupeKey = &key
	}
	return s.repo.Create(ctx, record)
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	query := listNotificationsParams{
		Limit:      params.Limit,
		UnreadOnly: params.UnreadOnly,
	}
	if params.Type != "" {
		kind, err := enums.ParseNotificationType(params.Type)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid notification type")
		}
		query.Type = &kind
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}

	items := make([]Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, s.toItem(ctx, row))
	}
	return &ListResult{Items: items, Cursor: next}, nil
}

func (s *service) MarkRead(ctx context.Context, notificationID uuid.UUID) error {
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}

	result, err := s.repo.MarkRead(ctx, notificationID, time.Now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	if !result.Found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context) (int64, error) {
	count, err := s.repo.MarkAllRead(ctx, time.Now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	return count, nil
}

func (s *service) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	count, err := s.repo.DeleteReadBefore(ctx, cutoff)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete read notifications")
	}
	return count, nil
}

func (s *service) toItem(ctx context.Context, row models.Notification) Item {
	item := Item{
		ID:            row.ID,
		Type:          row.Type,
		Title:         row.Title,
		Message:       row.Message,
		OrderID:       row.OrderID,
		TransactionID: row.TransactionID,
		VariantID:     row.VariantID,
		IsRead:        row.IsRead,
		ReadAt:        row.ReadAt,
		CreatedAt:     row.CreatedAt,
	}
	if len(row.Payload) > 0 {
		payload, err := Decode(row.Payload)
		if err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "notification_id", row.ID.String()), "undecodable notification payload")
		} else {
			item.Payload = payload
		}
	}
	return item
}
