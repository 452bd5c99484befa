package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/brickapparel/storefront-backend/pkg/db/models"
	"github.com/brickapparel/storefront-backend/pkg/enums"
	"github.com/brickapparel/storefront-backend/pkg/pagination"
)

// ListFilters narrows the admin order list.
type ListFilters struct {
	Status        *enums.OrderStatus
	PaymentStatus *enums.PaymentStatus
}

// Repository defines persistence operations for orders and their lines.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByNumber(ctx context.Context, number string) (*models.Order, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	MarkInventoryApplied(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkInventoryReleased(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	FindStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	List(ctx context.Context, params pagination.Params, filters ListFilters) ([]models.Order, string, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a repository bound to the provided DB handle.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Omit("Transactions").Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

// FindByIDForUpdate row-locks the order on postgres. sqlite serializes
// writers on its own.
func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	q := r.db.WithContext(ctx).Where("id = ?", id)
	if r.db.Dialector != nil && r.db.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return r.first(q)
}

func (r *repository) FindByNumber(ctx context.Context, number string) (*models.Order, error) {
	return r.first(r.db.WithContext(ctx).Where("order_number = ?", number))
}

func (r *repository) first(q *gorm.DB) (*models.Order, error) {
	var order models.Order
	err := q.
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Preload("Transactions", func(db *gorm.DB) *gorm.DB { return db.Order("created_at DESC") }).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id).Updates(updates).Error
}

func (r *repository) MarkInventoryApplied(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND inventory_applied_at IS NULL", id).
		Update("inventory_applied_at", at).Error
}

// MarkInventoryReleased claims the one-time inventory credit for an order.
// It reports false when stock was never applied or was already released.
func (r *repository) MarkInventoryReleased(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND inventory_applied_at IS NOT NULL AND inventory_released_at IS NULL", id).
		Update("inventory_released_at", at)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) FindStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("status = ? AND payment_status = ? AND created_at < ?", enums.OrderStatusPending, enums.PaymentStatusPending, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

func (r *repository) List(ctx context.Context, params pagination.Params, filters ListFilters) ([]models.Order, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}

	q := r.db.WithContext(ctx).Model(&models.Order{})
	if filters.Status != nil {
		q = q.Where("status = ?", *filters.Status)
	}
	if filters.PaymentStatus != nil {
		q = q.Where("payment_status = ?", *filters.PaymentStatus)
	}

	var rows []models.Order
	if err := q.Scopes(pagination.NewestFirst(cursor, params.Limit)).Find(&rows).Error; err != nil {
		return nil, "", err
	}
	page, next := pagination.Page(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	return page, next, nil
}
