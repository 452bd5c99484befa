package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/brickapparel/storefront-backend/api/middleware"
	"github.com/brickapparel/storefront-backend/api/responses"
	"github.com/brickapparel/storefront-backend/api/validators"
	cartsvc "github.com/brickapparel/storefront-backend/internal/cart"
	"github.com/brickapparel/storefront-backend/pkg/db/models"
	pkgerrors "github.com/brickapparel/storefront-backend/pkg/errors"
	"github.com/brickapparel/storefront-backend/pkg/logger"
)

// CartService is the subset of the cart service the HTTP layer calls.
type CartService interface {
	Get(ctx context.Context, owner cartsvc.Owner) (*models.Cart, error)
	AddItem(ctx context.Context, owner cartsvc.Owner, input cartsvc.AddItemInput) (*models.Cart, error)
	UpdateQuantity(ctx context.Context, owner cartsvc.Owner, lineIndex, qty int) (*models.Cart, error)
	RemoveItem(ctx context.Context, owner cartsvc.Owner, lineIndex int) (*models.Cart, error)
	Clear(ctx context.Context, owner cartsvc.Owner) error
}

type addCartItemRequest struct {
	ProductID uuid.UUID `json:"productId" validate:"required"`
	SKU       string    `json:"sku" validate:"required,max=64"`
	Quantity  int       `json:"quantity" validate:"required,min=1,max=99"`
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity" validate:"min=0,max=99"`
}

type cartLineResponse struct {
	Index          int       `json:"index"`
	ProductID      uuid.UUID `json:"productId"`
	ProductName    string    `json:"productName"`
	SKU            string    `json:"sku"`
	Size           string    `json:"size,omitempty"`
	Color          string    `json:"color,omitempty"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int64     `json:"unitPriceCents"`
	LineTotalCents int64     `json:"lineTotalCents"`
}

type cartResponse struct {
	Items         []cartLineResponse `json:"items"`
	SubtotalCents int64              `json:"subtotalCents"`
	ItemCount     int                `json:"itemCount"`
	ExpiresAt     *time.Time         `json:"expiresAt,omitempty"`
}

func newCartResponse(cart *models.Cart) cartResponse {
	totals := cartsvc.ComputeTotals(cart)
	resp := cartResponse{
		Items:         []cartLineResponse{},
		SubtotalCents: totals.SubtotalCents,
		ItemCount:     totals.ItemCount,
	}
	if cart == nil {
		return resp
	}
	for i, item := range cart.Items {
		resp.Items = append(resp.Items, cartLineResponse{
			Index:          i,
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			SKU:            item.SKU,
			Size:           item.Size,
			Color:          item.Color,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			LineTotalCents: item.UnitPriceCents * int64(item.Quantity),
		})
	}
	if !cart.ExpiresAt.IsZero() {
		expires := cart.ExpiresAt
		resp.ExpiresAt = &expires
	}
	return resp
}

func cartOwner(r *http.Request) (cartsvc.Owner, error) {
	token := middleware.CartSessionFromContext(r.Context())
	if token == "" {
		return cartsvc.Owner{}, pkgerrors.New(pkgerrors.CodeValidation, middleware.CartSessionHeader+" header required")
	}
	return cartsvc.Owner{SessionToken: token}, nil
}

// CartFetch returns the session's cart. A session without a cart gets an empty one.
func CartFetch(svc CartService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		owner, err := cartOwner(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cart, err := svc.Get(r.Context(), owner)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(cart))
	}
}

// CartAddItem adds a SKU or increments its existing line.
func CartAddItem(svc CartService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		owner, err := cartOwner(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload addCartItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cart, err := svc.AddItem(r.Context(), owner, cartsvc.AddItemInput{
			ProductID: payload.ProductID,
			SKU:       validators.SanitizeString(payload.SKU, 64),
			Quantity:  payload.Quantity,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(cart))
	}
}

// CartUpdateItem sets a line's quantity. Zero removes the line.
func CartUpdateItem(svc CartService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		owner, err := cartOwner(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		index, err := validators.ParseIntParam(r, "line")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload updateCartItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cart, err := svc.UpdateQuantity(r.Context(), owner, index, payload.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(cart))
	}
}

func CartRemoveItem(svc CartService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		owner, err := cartOwner(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		index, err := validators.ParseIntParam(r, "line")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cart, err := svc.RemoveItem(r.Context(), owner, index)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(cart))
	}
}

func CartClear(svc CartService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		owner, err := cartOwner(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Clear(r.Context(), owner); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(nil))
	}
}
