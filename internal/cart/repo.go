package cart

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/brickapparel/storefront-backend/pkg/db/models"
)

// Repository defines the persistence surface required by the cart service.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByOwner(ctx context.Context, owner Owner) (*models.Cart, error)
	Create(ctx context.Context, cart *models.Cart) error
	Touch(ctx context.Context, cartID uuid.UUID, expiresAt time.Time) error
	AddItem(ctx context.Context, item *models.CartItem) error
	UpdateItemQuantity(ctx context.Context, itemID uuid.UUID, qty int) error
	DeleteItem(ctx context.Context, itemID uuid.UUID) error
	DeleteItems(ctx context.Context, cartID uuid.UUID) error
	Delete(ctx context.Context, cartID uuid.UUID) error
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
	FindVariant(ctx context.Context, productID uuid.UUID, sku string) (*models.Product, *models.ProductVariant, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the repository to the provided GORM handle.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindByOwner loads the cart with its lines in insertion order; line indexes
// used by the API refer to this order.
func (r *repository) FindByOwner(ctx context.Context, owner Owner) (*models.Cart, error) {
	q := r.db.WithContext(ctx).Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at ASC, id ASC")
	})
	if owner.CustomerID != nil {
		q = q.Where("customer_id = ?", *owner.CustomerID)
	} else {
		q = q.Where("session_token = ?", owner.SessionToken)
	}
	var cart models.Cart
	if err := q.First(&cart).Error; err != nil {
		return nil, err
	}
	return &cart, nil
}

func (r *repository) Create(ctx context.Context, cart *models.Cart) error {
	return r.db.WithContext(ctx).Omit("Items").Create(cart).Error
}

func (r *repository) Touch(ctx context.Context, cartID uuid.UUID, expiresAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ?", cartID).
		Update("expires_at", expiresAt).Error
}

func (r *repository) AddItem(ctx context.Context, item *models.CartItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *repository) UpdateItemQuantity(ctx context.Context, itemID uuid.UUID, qty int) error {
	return r.db.WithContext(ctx).
		Model(&models.CartItem{}).
		Where("id = ?", itemID).
		Update("quantity", qty).Error
}

func (r *repository) DeleteItem(ctx context.Context, itemID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", itemID).Delete(&models.CartItem{}).Error
}

func (r *repository) DeleteItems(ctx context.Context, cartID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("cart_id = ?", cartID).Delete(&models.CartItem{}).Error
}

func (r *repository) Delete(ctx context.Context, cartID uuid.UUID) error {
	if err := r.DeleteItems(ctx, cartID); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Where("id = ?", cartID).Delete(&models.Cart{}).Error
}

// DeleteExpired removes carts past expires_at together with their lines.
// Lines are deleted explicitly since sqlite does not enforce the cascade.
func (r *repository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	expired := r.db.WithContext(ctx).Model(&models.Cart{}).Select("id").Where("expires_at < ?", cutoff)
	if err := r.db.WithContext(ctx).Where("cart_id IN (?)", expired).Delete(&models.CartItem{}).Error; err != nil {
		return 0, err
	}
	res := r.db.WithContext(ctx).Where("expires_at < ?", cutoff).Delete(&models.Cart{})
	return res.RowsAffected, res.Error
}

func (r *repository) FindVariant(ctx context.Context, productID uuid.UUID, sku string) (*models.Product, *models.ProductVariant, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).Where("id = ? AND active = ?", productID, true).First(&product).Error; err != nil {
		return nil, nil, err
	}
	var variant models.ProductVariant
	if err := r.db.WithContext(ctx).Where("product_id = ? AND sku = ?", productID, sku).First(&variant).Error; err != nil {
		return nil, nil, err
	}
	return &product, &variant, nil
}
