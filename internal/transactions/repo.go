package transactions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/brickapparel/storefront-backend/pkg/db/models"
	"github.com/brickapparel/storefront-backend/pkg/enums"
)

// Repository persists payment attempts and the provider event log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, txn *models.Transaction) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	FindByProviderRef(ctx context.Context, provider enums.PaymentProvider, ref string) (*models.Transaction, error)
	FindByCaptureRef(ctx context.Context, provider enums.PaymentProvider, captureRef string) (*models.Transaction, error)
	FindLatestForOrder(ctx context.Context, orderID uuid.UUID, provider enums.PaymentProvider) (*models.Transaction, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.PaymentStatus) error
	SetCaptureRef(ctx context.Context, id uuid.UUID, captureRef string) error
	RecordEvent(ctx context.Context, event *models.WebhookEvent) (bool, error)
	ListEvents(ctx context.Context, transactionID uuid.UUID) ([]models.WebhookEvent, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, txn *models.Transaction) error {
	return r.db.WithContext(ctx).Omit("Events").Create(txn).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var txn models.Transaction
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) FindByProviderRef(ctx context.Context, provider enums.PaymentProvider, ref string) (*models.Transaction, error) {
	var txn models.Transaction
	err := r.db.WithContext(ctx).
		Where("provider = ? AND provider_ref = ?", provider, ref).
		First(&txn).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// FindByCaptureRef matches the capture id PayPal refunds point back at.
func (r *repository) FindByCaptureRef(ctx context.Context, provider enums.PaymentProvider, captureRef string) (*models.Transaction, error) {
	var txn models.Transaction
	err := r.db.WithContext(ctx).
		Where("provider = ? AND capture_ref = ?", provider, captureRef).
		Order("created_at DESC, id DESC").
		First(&txn).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) FindLatestForOrder(ctx context.Context, orderID uuid.UUID, provider enums.PaymentProvider) (*models.Transaction, error) {
	var txn models.Transaction
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND provider = ?", orderID, provider).
		Order("created_at DESC, id DESC").
		First(&txn).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.PaymentStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "updated_at": time.Now().UTC()}).Error
}

func (r *repository) SetCaptureRef(ctx context.Context, id uuid.UUID, captureRef string) error {
	return r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ?", id).
		Update("capture_ref", captureRef).Error
}

// RecordEvent appends a provider event. It reports false when the
// (provider, event_id) pair was already recorded.
func (r *repository) RecordEvent(ctx context.Context, event *models.WebhookEvent) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}, {Name: "event_id"}},
			DoNothing: true,
		}).
		Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListEvents(ctx context.Context, transactionID uuid.UUID) ([]models.WebhookEvent, error) {
	var events []models.WebhookEvent
	err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("received_at ASC").
		Find(&events).Error
	return events, err
}
