package inventory

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/brickapparel/storefront-backend/pkg/db"
	"github.com/brickapparel/storefront-backend/pkg/db/models"
	pkgerrors "github.com/brickapparel/storefront-backend/pkg/errors"
	"github.com/brickapparel/storefront-backend/pkg/outbox/payloads"
)

// Line is one SKU quantity to reserve or release.
type Line struct {
	SKU      string
	Quantity int
}

// Availability is the read-only result of an availability check.
type Availability struct {
	SKU       string
	Available int
	Variant   models.ProductVariant
}

// InsufficientDetails is attached to INSUFFICIENT_INVENTORY errors.
type InsufficientDetails struct {
	SKU       string `json:"sku"`
	Available int    `json:"available"`
	Requested int    `json:"requested"`
}

// StockLevel describes a variant whose count crossed a reporting threshold.
type StockLevel struct {
	VariantID uuid.UUID `json:"variant_id"`
	SKU       string    `json:"sku"`
	Quantity  int       `json:"quantity"`
	Threshold int       `json:"threshold"`
}

// Service is the inventory ledger. Every mutation accepts an optional tx so
// callers can fold it into a larger unit of work.
type Service interface {
	ApplyDelta(ctx context.Context, tx *gorm.DB, sku string, delta int) (int, error)
	CheckAvailability(ctx context.Context, sku string, requested int) (*Availability, error)
	Reserve(ctx context.Context, tx *gorm.DB, lines []Line) ([]payloads.InventoryAdjustment, error)
	Release(ctx context.Context, tx *gorm.DB, lines []Line) ([]payloads.InventoryAdjustment, error)
	ListLowStock(ctx context.Context) ([]StockLevel, error)
	Levels(ctx context.Context, tx *gorm.DB, skus []string) ([]StockLevel, error)
}

type service struct {
	repo Repository
}

// NewService builds the ledger service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	return &service{repo: repo}, nil
}

// Insufficient builds the error returned whenever a SKU cannot cover a request.
func Insufficient(sku string, available, requested int) error {
	if available < 0 {
		available = 0
	}
	return pkgerrors.Newf(pkgerrors.CodeInsufficientInventory, "insufficient inventory for sku %s", sku).
		WithDetails(InsufficientDetails{SKU: sku, Available: available, Requested: requested})
}

func (s *service) ApplyDelta(ctx context.Context, tx *gorm.DB, sku string, delta int) (int, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "sku is required")
	}
	repo := s.repo.WithTx(tx)
	affected, err := repo.AddQuantity(ctx, sku, delta)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply inventory delta")
	}
	if affected == 0 {
		return 0, pkgerrors.Newf(pkgerrors.CodeNotFound, "sku %s not found", sku)
	}
	variant, err := repo.FindBySKU(ctx, sku)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variant after delta")
	}
	return variant.Quantity, nil
}

func (s *service) CheckAvailability(ctx context.Context, sku string, requested int) (*Availability, error) {
	if requested <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "requested quantity must be positive")
	}
	variant, err := s.repo.FindBySKU(ctx, strings.TrimSpace(sku))
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "sku %s not found", sku)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variant")
	}
	if variant.Quantity < requested {
		return nil, Insufficient(variant.SKU, variant.Quantity, requested)
	}
	return &Availability{SKU: variant.SKU, Available: variant.Quantity, Variant: *variant}, nil
}

// Reserve decrements every line with a conditional update. The first short
// line aborts with INSUFFICIENT_INVENTORY; callers roll back tx so earlier
// decrements never stick.
func (s *service) Reserve(ctx context.Context, tx *gorm.DB, lines []Line) ([]payloads.InventoryAdjustment, error) {
	repo := s.repo.WithTx(tx)
	adjustments := make([]payloads.InventoryAdjustment, 0, len(lines))
	for _, line := range mergeLines(lines) {
		affected, err := repo.DecrementIfAvailable(ctx, line.SKU, line.Quantity)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve inventory")
		}
		variant, err := repo.FindBySKU(ctx, line.SKU)
		if err != nil {
			if db.IsNotFound(err) {
				return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "sku %s not found", line.SKU)
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variant after reserve")
		}
		if affected == 0 {
			return nil, Insufficient(line.SKU, variant.Quantity, line.Quantity)
		}
		adjustments = append(adjustments, payloads.InventoryAdjustment{
			SKU:         line.SKU,
			Delta:       -line.Quantity,
			NewQuantity: variant.Quantity,
		})
	}
	return adjustments, nil
}

// Release credits every line back.
func (s *service) Release(ctx context.Context, tx *gorm.DB, lines []Line) ([]payloads.InventoryAdjustment, error) {
	adjustments := make([]payloads.InventoryAdjustment, 0, len(lines))
	for _, line := range mergeLines(lines) {
		qty, err := s.ApplyDelta(ctx, tx, line.SKU, line.Quantity)
		if err != nil {
			return nil, err
		}
		adjustments = append(adjustments, payloads.InventoryAdjustment{
			SKU:         line.SKU,
			Delta:       line.Quantity,
			NewQuantity: qty,
		})
	}
	return adjustments, nil
}

func (s *service) ListLowStock(ctx context.Context) ([]StockLevel, error) {
	variants, err := s.repo.ListLowStock(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list low stock")
	}
	return toLevels(variants), nil
}

// Levels reports the current count of each SKU, in the order given.
func (s *service) Levels(ctx context.Context, tx *gorm.DB, skus []string) ([]StockLevel, error) {
	found, err := s.repo.WithTx(tx).FindBySKUs(ctx, skus)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock levels")
	}
	levels := make([]StockLevel, 0, len(skus))
	for _, sku := range skus {
		if v, ok := found[sku]; ok {
			levels = append(levels, toLevel(v))
		}
	}
	return levels, nil
}

// IsLow reports 0 < quantity <= threshold. Zero is out of stock, not low.
func (l StockLevel) IsLow() bool {
	return l.Quantity > 0 && l.Quantity <= l.Threshold
}

func (l StockLevel) IsOut() bool {
	return l.Quantity <= 0
}

func toLevels(variants []models.ProductVariant) []StockLevel {
	out := make([]StockLevel, 0, len(variants))
	for _, v := range variants {
		out = append(out, toLevel(v))
	}
	return out
}

func toLevel(v models.ProductVariant) StockLevel {
	return StockLevel{
		VariantID: v.ID,
		SKU:       v.SKU,
		Quantity:  v.Quantity,
		Threshold: v.LowStockThreshold,
	}
}

// mergeLines folds repeated SKUs so each variant row is touched once, keeping
// first-seen order.
func mergeLines(lines []Line) []Line {
	index := make(map[string]int, len(lines))
	out := make([]Line, 0, len(lines))
	for _, line := range lines {
		sku := strings.TrimSpace(line.SKU)
		if sku == "" || line.Quantity <= 0 {
			continue
		}
		if i, ok := index[sku]; ok {
			out[i].Quantity += line.Quantity
			continue
		}
		index[sku] = len(out)
		out = append(out, Line{SKU: sku, Quantity: line.Quantity})
	}
	return out
}
