package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/brickapparel/storefront-backend/pkg/db"
	"github.com/brickapparel/storefront-backend/pkg/db/models"
	pkgerrors "github.com/brickapparel/storefront-backend/pkg/errors"
	"github.com/brickapparel/storefront-backend/pkg/pagination"
)

const orderNumberIndex = "idx_orders_order_number"

// Service covers order persistence and the admin read model. Cross-aggregate
// flows (creation with inventory, reconciliation) live in fulfillment.
type Service interface {
	Insert(ctx context.Context, tx *gorm.DB, order *models.Order) error
	Get(ctx context.Context, id uuid.UUID) (*OrderDetail, error)
	Resolve(ctx context.Context, tx *gorm.DB, reference string) (*models.Order, error)
	List(ctx context.Context, params pagination.Params, filters ListFilters) (*OrderList, error)
}

type service struct {
	repo      Repository
	now       func() time.Time
	newNumber func(time.Time) string
}

// NewService builds the order service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	return &service{
		repo:      repo,
		now:       func() time.Time { return time.Now().UTC() },
		newNumber: NewOrderNumber,
	}, nil
}

// Insert assigns an order number and persists the order with its lines. A
// number collision rolls back to a savepoint and retries with a fresh one.
func (s *service) Insert(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for order insert")
	}
	if err := validateTotals(order); err != nil {
		return err
	}
	repo := s.repo.WithTx(tx)
	for attempt := 0; attempt < maxNumberTries; attempt++ {
		order.OrderNumber = s.newNumber(s.now())
		if err := tx.SavePoint("order_number").Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create savepoint")
		}
		err := repo.Create(ctx, order)
		if err == nil {
			return nil
		}
		if !db.IsUniqueViolation(err, orderNumberIndex) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert order")
		}
		if rbErr := tx.RollbackTo("order_number").Error; rbErr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, rbErr, "rollback order savepoint")
		}
		order.ID = uuid.Nil
		for i := range order.Items {
			order.Items[i].ID = uuid.Nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeConflict, "could not allocate a unique order number")
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*OrderDetail, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return ToDetail(order), nil
}

// Resolve finds an order by id or by order number.
func (s *service) Resolve(ctx context.Context, tx *gorm.DB, reference string) (*models.Order, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order reference is empty")
	}
	repo := s.repo.WithTx(tx)
	var (
		order *models.Order
		err   error
	)
	if id, parseErr := uuid.Parse(reference); parseErr == nil {
		order, err = repo.FindByID(ctx, id)
	} else {
		order, err = repo.FindByNumber(ctx, strings.ToUpper(reference))
	}
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve order")
	}
	return order, nil
}

func (s *service) List(ctx context.Context, params pagination.Params, filters ListFilters) (*OrderList, error) {
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, next, err := s.repo.List(ctx, params, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	out := &OrderList{Orders: make([]OrderSummary, 0, len(rows)), NextCursor: next}
	for _, row := range rows {
		out.Orders = append(out.Orders, toSummary(row))
	}
	return out, nil
}

func validateTotals(order *models.Order) error {
	if order == nil || len(order.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "order requires at least one line")
	}
	if order.TotalCents != order.SubtotalCents+order.ShippingCents+order.TaxCents {
		return pkgerrors.New(pkgerrors.CodeInternal, "order total does not match its parts")
	}
	return nil
}
