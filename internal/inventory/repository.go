package inventory

import (
	"context"

	"gorm.io/gorm"

	"github.com/brickapparel/storefront-backend/pkg/db/models"
)

// Repository is the persistence surface for variant stock counters.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindBySKU(ctx context.Context, sku string) (*models.ProductVariant, error)
	FindBySKUs(ctx context.Context, skus []string) (map[string]models.ProductVariant, error)
	AddQuantity(ctx context.Context, sku string, delta int) (int64, error)
	DecrementIfAvailable(ctx context.Context, sku string, qty int) (int64, error)
	ListLowStock(ctx context.Context) ([]models.ProductVariant, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds a repository to the provided database handle.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindBySKU(ctx context.Context, sku string) (*models.ProductVariant, error) {
	var variant models.ProductVariant
	if err := r.db.WithContext(ctx).Where("sku = ?", sku).First(&variant).Error; err != nil {
		return nil, err
	}
	return &variant, nil
}

func (r *repository) FindBySKUs(ctx context.Context, skus []string) (map[string]models.ProductVariant, error) {
	out := make(map[string]models.ProductVariant, len(skus))
	if len(skus) == 0 {
		return out, nil
	}
	var variants []models.ProductVariant
	if err := r.db.WithContext(ctx).Where("sku IN ?", skus).Find(&variants).Error; err != nil {
		return nil, err
	}
	for _, v := range variants {
		out[v.SKU] = v
	}
	return out, nil
}

// AddQuantity applies a signed delta and returns the rows affected.
func (r *repository) AddQuantity(ctx context.Context, sku string, delta int) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ProductVariant{}).
		Where("sku = ?", sku).
		UpdateColumns(map[string]any{
			"quantity":   gorm.Expr("quantity + ?", delta),
			"updated_at": gorm.Expr("CURRENT_TIMESTAMP"),
		})
	return res.RowsAffected, res.Error
}

// DecrementIfAvailable is the atomic reservation primitive: the row only
// changes when enough stock remains, so zero rows affected means the SKU is
// unknown or short.
func (r *repository) DecrementIfAvailable(ctx context.Context, sku string, qty int) (int64, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE product_variants
		SET quantity = quantity - ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE sku = ? AND quantity >= ?
	`, qty, sku, qty)
	return res.RowsAffected, res.Error
}

func (r *repository) ListLowStock(ctx context.Context) ([]models.ProductVariant, error) {
	var variants []models.ProductVariant
	err := r.db.WithContext(ctx).
		Where("quantity > 0 AND quantity <= low_stock_threshold").
		Order("quantity ASC, sku ASC").
		Find(&variants).Error
	return variants, err
}
