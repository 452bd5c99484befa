package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/brickapparel/storefront-backend/api/responses"
	"github.com/brickapparel/storefront-backend/api/validators"
	"github.com/brickapparel/storefront-backend/internal/fulfillment"
	"github.com/brickapparel/storefront-backend/pkg/enums"
	pkgerrors "github.com/brickapparel/storefront-backend/pkg/errors"
	"github.com/brickapparel/storefront-backend/pkg/logger"
	"github.com/brickapparel/storefront-backend/pkg/types"
)

type checkoutService interface {
	Checkout(ctx context.Context, input fulfillment.CheckoutInput) (*fulfillment.CheckoutResult, error)
}

type checkoutRequest struct {
	Email           string         `json:"email" validate:"required,email,max=254"`
	Phone           string         `json:"phone" validate:"max=32"`
	ShippingAddress types.Address  `json:"shippingAddress" validate:"required"`
	BillingAddress  *types.Address `json:"billingAddress,omitempty"`
	Provider        string         `json:"provider" validate:"required,payment_provider"`
	Notes           string         `json:"notes" validate:"max=1000"`
}

// Checkout converts the session cart into an order and opens a payment with
// the chosen provider. The response carries the client handoff.
func Checkout(svc checkoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		owner, err := cartOwner(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Checkout(r.Context(), fulfillment.CheckoutInput{
			Owner:           owner,
			Email:           strings.ToLower(strings.TrimSpace(payload.Email)),
			Phone:           strings.TrimSpace(payload.Phone),
			ShippingAddress: payload.ShippingAddress,
			BillingAddress:  payload.BillingAddress,
			Provider:        enums.PaymentProvider(payload.Provider),
			Notes:           validators.SanitizeString(payload.Notes, 1000),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}
