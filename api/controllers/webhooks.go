package controllers

import (
	"context"
	"io"
	"net/http"

	"github.com/brickapparel/storefront-backend/api/responses"
	"github.com/brickapparel/storefront-backend/internal/fulfillment"
	"github.com/brickapparel/storefront-backend/internal/payments"
	"github.com/brickapparel/storefront-backend/pkg/enums"
	pkgerrors "github.com/brickapparel/storefront-backend/pkg/errors"
	"github.com/brickapparel/storefront-backend/pkg/logger"
)

const maxWebhookBytes = 1 << 20

// WebhookProcessor verifies and reconciles one provider delivery.
type WebhookProcessor interface {
	Handle(ctx context.Context, provider enums.PaymentProvider, req payments.WebhookRequest) (*fulfillment.ReconcileResult, error)
}

// PaymentWebhook accepts the raw provider delivery. The body is read
// unparsed so the signature covers exactly the bytes the provider sent.
// Non-2xx responses tell the provider to retry.
func PaymentWebhook(provider enums.PaymentProvider, proc WebhookProcessor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if proc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook processor unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}
		if len(payload) == 0 {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "empty webhook payload"))
			return
		}

		result, err := proc.Handle(ctx, provider, payments.WebhookRequest{
			Payload: payload,
			Header:  r.Header.Clone(),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
