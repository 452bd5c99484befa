package cart

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/brickapparel/storefront-backend/internal/inventory"
	"github.com/brickapparel/storefront-backend/pkg/db"
	"github.com/brickapparel/storefront-backend/pkg/db/models"
	pkgerrors "github.com/brickapparel/storefront-backend/pkg/errors"
)

const defaultRetention = 30 * 24 * time.Hour

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type availabilityChecker interface {
	CheckAvailability(ctx context.Context, sku string, requested int) (*inventory.Availability, error)
}

// Owner identifies a cart by exactly one of a session token or a customer id.
type Owner struct {
	SessionToken string
	CustomerID   *uuid.UUID
}

func (o Owner) validate() error {
	hasSession := strings.TrimSpace(o.SessionToken) != ""
	hasCustomer := o.CustomerID != nil && *o.CustomerID != uuid.Nil
	if hasSession == hasCustomer {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart owner requires exactly one of session token or customer id")
	}
	return nil
}

// AddItemInput names the catalog entry to add.
type AddItemInput struct {
	ProductID uuid.UUID
	SKU       string
	Quantity  int
}

// Totals is the pre-checkout summary. Shipping and tax are computed only at
// order creation.
type Totals struct {
	SubtotalCents int64 `json:"subtotal_cents"`
	ItemCount     int   `json:"item_count"`
}

// Service exposes cart operations.
type Service interface {
	Get(ctx context.Context, owner Owner) (*models.Cart, error)
	AddItem(ctx context.Context, owner Owner, input AddItemInput) (*models.Cart, error)
	UpdateQuantity(ctx context.Context, owner Owner, lineIndex, qty int) (*models.Cart, error)
	RemoveItem(ctx context.Context, owner Owner, lineIndex int) (*models.Cart, error)
	Clear(ctx context.Context, owner Owner) error
	Merge(ctx context.Context, sessionToken string, customerID uuid.UUID) (*models.Cart, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type service struct {
	repo      Repository
	tx        txRunner
	inventory availabilityChecker
	retention time.Duration
	now       func() time.Time
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo Repository, tx txRunner, inv availabilityChecker, retention time.Duration) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if inv == nil {
		return nil, fmt.Errorf("availability checker required")
	}
	if retention <= 0 {
		retention = defaultRetention
	}
	return &service{
		repo:      repo,
		tx:        tx,
		inventory: inv,
		retention: retention,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// ComputeTotals sums the lines of a cart. It has no side effects.
func ComputeTotals(cart *models.Cart) Totals {
	var totals Totals
	if cart == nil {
		return totals
	}
	for _, item := range cart.Items {
		totals.SubtotalCents += item.UnitPriceCents * int64(item.Quantity)
		totals.ItemCount += item.Quantity
	}
	return totals
}

// Get returns the owner's live cart, or an unsaved empty cart when none exists.
func (s *service) Get(ctx context.Context, owner Owner) (*models.Cart, error) {
	if err := owner.validate(); err != nil {
		return nil, err
	}
	cart, err := s.repo.FindByOwner(ctx, owner)
	if err != nil {
		if db.IsNotFound(err) {
			return emptyCart(owner), nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if cart.ExpiresAt.Before(s.now()) {
		return emptyCart(owner), nil
	}
	return cart, nil
}

func (s *service) AddItem(ctx context.Context, owner Owner, input AddItemInput) (*models.Cart, error) {
	if err := owner.validate(); err != nil {
		return nil, err
	}
	sku := strings.TrimSpace(input.SKU)
	if input.ProductID == uuid.Nil || sku == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id and sku are required")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	product, variant, err := s.repo.FindVariant(ctx, input.ProductID, sku)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product variant not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product variant")
	}

	// Availability reads go through the base connection, so they run before
	// the write transaction opens.
	want := input.Quantity
	if current, err := s.Get(ctx, owner); err != nil {
		return nil, err
	} else if line := findLine(current, product.ID, variant.SKU); line != nil {
		want += line.Quantity
	}
	if _, err := s.inventory.CheckAvailability(ctx, variant.SKU, want); err != nil {
		return nil, err
	}

	var cartID uuid.UUID
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := s.loadOrCreate(ctx, repo, owner)
		if err != nil {
			return err
		}
		cartID = cart.ID

		if line := findLine(cart, product.ID, variant.SKU); line != nil {
			if err := repo.UpdateItemQuantity(ctx, line.ID, line.Quantity+input.Quantity); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart line")
			}
			return s.touch(ctx, repo, cart.ID)
		}

		line := &models.CartItem{
			CartID:         cart.ID,
			ProductID:      product.ID,
			ProductName:    product.Name,
			SKU:            variant.SKU,
			Size:           variant.Size,
			Color:          variant.Color,
			Quantity:       input.Quantity,
			UnitPriceCents: variant.PriceCents,
		}
		if err := repo.AddItem(ctx, line); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add cart line")
		}
		return s.touch(ctx, repo, cart.ID)
	})
	if err != nil {
		return nil, err
	}
	return s.reload(ctx, owner, cartID)
}

func (s *service) UpdateQuantity(ctx context.Context, owner Owner, lineIndex, qty int) (*models.Cart, error) {
	if err := owner.validate(); err != nil {
		return nil, err
	}
	cart, item, err := s.lineAt(ctx, s.repo, owner, lineIndex)
	if err != nil {
		return nil, err
	}
	if qty > 0 {
		if _, err := s.inventory.CheckAvailability(ctx, item.SKU, qty); err != nil {
			return nil, err
		}
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if qty <= 0 {
			if err := repo.DeleteItem(ctx, item.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cart line")
			}
		} else if err := repo.UpdateItemQuantity(ctx, item.ID, qty); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart line")
		}
		return s.touch(ctx, repo, cart.ID)
	})
	if err != nil {
		return nil, err
	}
	return s.reload(ctx, owner, cart.ID)
}

func (s *service) RemoveItem(ctx context.Context, owner Owner, lineIndex int) (*models.Cart, error) {
	return s.UpdateQuantity(ctx, owner, lineIndex, 0)
}

// Clear empties the cart but keeps the cart row so the session stays bound.
func (s *service) Clear(ctx context.Context, owner Owner) error {
	if err := owner.validate(); err != nil {
		return err
	}
	cart, err := s.repo.FindByOwner(ctx, owner)
	if err != nil {
		if db.IsNotFound(err) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.DeleteItems(ctx, cart.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
		}
		return s.touch(ctx, repo, cart.ID)
	})
}

// Merge folds a guest session cart into the customer's cart by (product, sku)
// and deletes the session cart. Merged quantities are capped at current stock.
func (s *service) Merge(ctx context.Context, sessionToken string, customerID uuid.UUID) (*models.Cart, error) {
	sessionOwner := Owner{SessionToken: sessionToken}
	customerOwner := Owner{CustomerID: &customerID}
	if err := sessionOwner.validate(); err != nil {
		return nil, err
	}
	if err := customerOwner.validate(); err != nil {
		return nil, err
	}

	source, err := s.repo.FindByOwner(ctx, sessionOwner)
	if err != nil && !db.IsNotFound(err) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load session cart")
	}
	if source == nil || len(source.Items) == 0 || source.ExpiresAt.Before(s.now()) {
		source = nil
	}
	current, err := s.Get(ctx, customerOwner)
	if err != nil {
		return nil, err
	}

	// Resolve the merged quantities up front; stock reads use the base
	// connection and must not run inside the write transaction.
	type mergeStep struct {
		item models.CartItem
		qty  int
	}
	var steps []mergeStep
	if source != nil {
		for _, item := range source.Items {
			want := item.Quantity
			if existing := findLine(current, item.ProductID, item.SKU); existing != nil {
				want += existing.Quantity
			}
			steps = append(steps, mergeStep{item: item, qty: s.cappedQuantity(ctx, item.SKU, want)})
		}
	}

	var cartID uuid.UUID
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		target, err := s.loadOrCreate(ctx, repo, customerOwner)
		if err != nil {
			return err
		}
		cartID = target.ID
		if source == nil {
			return nil
		}

		for _, step := range steps {
			existing := findLine(target, step.item.ProductID, step.item.SKU)
			switch {
			case existing != nil && step.qty != existing.Quantity:
				if err := repo.UpdateItemQuantity(ctx, existing.ID, step.qty); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "merge cart line")
				}
			case existing == nil && step.qty > 0:
				moved := step.item
				moved.ID = uuid.Nil
				moved.CartID = target.ID
				moved.Quantity = step.qty
				if err := repo.AddItem(ctx, &moved); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "merge cart line")
				}
			}
		}
		if err := repo.Delete(ctx, source.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete session cart")
		}
		return s.touch(ctx, repo, target.ID)
	})
	if err != nil {
		return nil, err
	}
	return s.reload(ctx, customerOwner, cartID)
}

func (s *service) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var deleted int64
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := s.repo.WithTx(tx).DeleteExpired(ctx, now)
		deleted = n
		return err
	})
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete expired carts")
	}
	return deleted, nil
}

func (s *service) cappedQuantity(ctx context.Context, sku string, want int) int {
	if want <= 0 {
		return 0
	}
	_, err := s.inventory.CheckAvailability(ctx, sku, want)
	if err == nil {
		return want
	}
	if typed := pkgerrors.As(err); typed != nil {
		if details, ok := typed.Details().(inventory.InsufficientDetails); ok {
			return details.Available
		}
	}
	return 0
}

// loadOrCreate returns the live cart for owner. An expired cart is emptied and
// reused so the unique owner columns stay stable.
func (s *service) loadOrCreate(ctx context.Context, repo Repository, owner Owner) (*models.Cart, error) {
	cart, err := repo.FindByOwner(ctx, owner)
	if err == nil {
		if cart.ExpiresAt.Before(s.now()) {
			if err := repo.DeleteItems(ctx, cart.ID); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reset expired cart")
			}
			cart.Items = nil
		}
		return cart, nil
	}
	if !db.IsNotFound(err) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}

	cart = &models.Cart{ExpiresAt: s.now().Add(s.retention)}
	if owner.CustomerID != nil {
		id := *owner.CustomerID
		cart.CustomerID = &id
	} else {
		token := owner.SessionToken
		cart.SessionToken = &token
	}
	if err := repo.Create(ctx, cart); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart")
	}
	return cart, nil
}

func (s *service) lineAt(ctx context.Context, repo Repository, owner Owner, lineIndex int) (*models.Cart, *models.CartItem, error) {
	cart, err := repo.FindByOwner(ctx, owner)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	// An expired cart reads as empty until the sweep deletes it.
	if cart.ExpiresAt.Before(s.now()) {
		return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
	}
	if lineIndex < 0 || lineIndex >= len(cart.Items) {
		return nil, nil, pkgerrors.Newf(pkgerrors.CodeValidation, "line index %d out of range", lineIndex)
	}
	return cart, &cart.Items[lineIndex], nil
}

func (s *service) touch(ctx context.Context, repo Repository, cartID uuid.UUID) error {
	if err := repo.Touch(ctx, cartID, s.now().Add(s.retention)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "refresh cart expiry")
	}
	return nil
}

func (s *service) reload(ctx context.Context, owner Owner, cartID uuid.UUID) (*models.Cart, error) {
	cart, err := s.repo.FindByOwner(ctx, owner)
	if err != nil {
		return nil, pkgerrors.Wrapf(pkgerrors.CodeDependency, err, "reload cart %s", cartID)
	}
	return cart, nil
}

func emptyCart(owner Owner) *models.Cart {
	cart := &models.Cart{}
	if owner.CustomerID != nil {
		id := *owner.CustomerID
		cart.CustomerID = &id
	} else {
		token := owner.SessionToken
		cart.SessionToken = &token
	}
	return cart
}

func findLine(cart *models.Cart, productID uuid.UUID, sku string) *models.CartItem {
	if cart == nil {
		return nil
	}
	for i := range cart.Items {
		if cart.Items[i].ProductID == productID && cart.Items[i].SKU == sku {
			return &cart.Items[i]
		}
	}
	return nil
}
