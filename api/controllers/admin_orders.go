package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/brickapparel/storefront-backend/api/middleware"
	"github.com/brickapparel/storefront-backend/api/responses"
	"github.com/brickapparel/storefront-backend/api/validators"
	"github.com/brickapparel/storefront-backend/internal/fulfillment"
	internalorders "github.com/brickapparel/storefront-backend/internal/orders"
	"github.com/brickapparel/storefront-backend/pkg/enums"
	pkgerrors "github.com/brickapparel/storefront-backend/pkg/errors"
	"github.com/brickapparel/storefront-backend/pkg/logger"
	"github.com/brickapparel/storefront-backend/pkg/pagination"
)

type orderReader interface {
	Get(ctx context.Context, id uuid.UUID) (*internalorders.OrderDetail, error)
	List(ctx context.Context, params pagination.Params, filters internalorders.ListFilters) (*internalorders.OrderList, error)
}

type orderOperator interface {
	UpdateStatus(ctx context.Context, orderID uuid.UUID, input fulfillment.UpdateStatusInput) (*internalorders.OrderDetail, error)
	CapturePayment(ctx context.Context, orderID uuid.UUID) (*internalorders.OrderDetail, error)
	RefundPayment(ctx context.Context, orderID uuid.UUID, amountCents *int64) (*internalorders.OrderDetail, error)
}

type updateOrderStatusRequest struct {
	Status         string  `json:"status" validate:"required,order_status"`
	TrackingNumber *string `json:"trackingNumber,omitempty" validate:"omitempty,max=64"`
	Notes          *string `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

type refundOrderRequest struct {
	AmountCents *int64 `json:"amountCents,omitempty" validate:"omitempty,gt=0"`
}

// AdminOrderList pages through orders, newest first, optionally filtered by
// status and payment status.
func AdminOrderList(svc orderReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var filters internalorders.ListFilters
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseOrderStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			filters.Status = &status
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("paymentStatus")); raw != "" {
			status, err := enums.ParsePaymentStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid paymentStatus filter"))
				return
			}
			filters.PaymentStatus = &status
		}

		list, err := svc.List(r.Context(), pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func AdminOrderDetail(svc orderReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		detail, err := svc.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}

// AdminOrderStatus applies an admin status write. Disallowed transitions
// come back as STATE_CONFLICT with the allowed targets in details.
func AdminOrderStatus(svc orderOperator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "fulfillment service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload updateOrderStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseOrderStatus(payload.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}
		detail, err := svc.UpdateStatus(r.Context(), orderID, fulfillment.UpdateStatusInput{
			Status:         status,
			TrackingNumber: payload.TrackingNumber,
			Notes:          payload.Notes,
			AdminID:        middleware.AdminIDFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}

func AdminOrderCapture(svc orderOperator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "fulfillment service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		detail, err := svc.CapturePayment(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, detail)
	}
}

// AdminOrderRefund refunds the whole payment unless amountCents is set. An
// empty body is a full refund.
func AdminOrderRefund(svc orderOperator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "fulfillment service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload refundOrderRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		detail, err := svc.RefundPayment(r.Context(), orderID, payload.AmountCents)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, detail)
	}
}
