package controllers

import (
	"context"
	"net/http"

	"github.com/brickapparel/storefront-backend/api/responses"
	"github.com/brickapparel/storefront-backend/internal/inventory"
	pkgerrors "github.com/brickapparel/storefront-backend/pkg/errors"
	"github.com/brickapparel/storefront-backend/pkg/logger"
)

type lowStockLister interface {
	ListLowStock(ctx context.Context) ([]inventory.StockLevel, error)
}

// AdminLowStock lists variants at or under their low-stock threshold,
// including those at zero.
func AdminLowStock(svc lowStockLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}
		levels, err := svc.ListLowStock(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if levels == nil {
			levels = []inventory.StockLevel{}
		}
		responses.WriteSuccess(w, levels)
	}
}
