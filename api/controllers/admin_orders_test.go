package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/brickapparel/storefront-backend/api/middleware"
	"github.com/brickapparel/storefront-backend/internal/fulfillment"
	internalorders "github.com/brickapparel/storefront-backend/internal/orders"
	"github.com/brickapparel/storefront-backend/pkg/enums"
	pkgerrors "github.com/brickapparel/storefront-backend/pkg/errors"
	"github.com/brickapparel/storefront-backend/pkg/pagination"
)

type stubOrderReader struct {
	getFn  func(ctx context.Context, id uuid.UUID) (*internalorders.OrderDetail, error)
	listFn func(ctx context.Context, params pagination.Params, filters internalorders.ListFilters) (*internalorders.OrderList, error)
}

func (s stubOrderReader) Get(ctx context.Context, id uuid.UUID) (*internalorders.OrderDetail, error) {
	return s.getFn(ctx, id)
}

func (s stubOrderReader) List(ctx context.Context, params pagination.Params, filters internalorders.ListFilters) (*internalorders.OrderList, error) {
	return s.listFn(ctx, params, filters)
}

type stubOrderOperator struct {
	updateFn  func(ctx context.Context, id uuid.UUID, input fulfillment.UpdateStatusInput) (*internalorders.OrderDetail, error)
	captureFn func(ctx context.Context, id uuid.UUID) (*internalorders.OrderDetail, error)
	refundFn  func(ctx context.Context, id uuid.UUID, amount *int64) (*internalorders.OrderDetail, error)
}

func (s stubOrderOperator) UpdateStatus(ctx context.Context, id uuid.UUID, input fulfillment.UpdateStatusInput) (*internalorders.OrderDetail, error) {
	return s.updateFn(ctx, id, input)
}

func (s stubOrderOperator) CapturePayment(ctx context.Context, id uuid.UUID) (*internalorders.OrderDetail, error) {
	return s.captureFn(ctx, id)
}

func (s stubOrderOperator) RefundPayment(ctx context.Context, id uuid.UUID, amount *int64) (*internalorders.OrderDetail, error) {
	return s.refundFn(ctx, id, amount)
}

func TestAdminOrderListParsesFilters(t *testing.T) {
	svc := stubOrderReader{listFn: func(_ context.Context, params pagination.Params, filters internalorders.ListFilters) (*internalorders.OrderList, error) {
		if params.Limit != 10 || params.Cursor != "abc" {
			t.Fatalf("unexpected params %+v", params)
		}
		if filters.Status == nil || *filters.Status != enums.OrderStatusShipped {
			t.Fatalf("expected shipped filter, got %+v", filters.Status)
		}
		if filters.PaymentStatus == nil || *filters.PaymentStatus != enums.PaymentStatusCaptured {
			t.Fatalf("expected captured payment filter, got %+v", filters.PaymentStatus)
		}
		return &internalorders.OrderList{Orders: []internalorders.OrderSummary{{OrderNumber: "BA-000042"}}}, nil
	}}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders?limit=10&cursor=abc&status=shipped&paymentStatus=captured", nil)
	resp := httptest.NewRecorder()
	AdminOrderList(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", resp.Code, resp.Body.String())
	}
}

func TestAdminOrderListRejectsBadStatus(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders?status=lost", nil)
	resp := httptest.NewRecorder()
	AdminOrderList(stubOrderReader{}, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestAdminOrderDetailNotFound(t *testing.T) {
	svc := stubOrderReader{getFn: func(context.Context, uuid.UUID) (*internalorders.OrderDetail, error) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}}
	req := withParam(httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders/x", nil), "orderID", uuid.NewString())
	resp := httptest.NewRecorder()
	AdminOrderDetail(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestAdminOrderDetailRejectsBadID(t *testing.T) {
	req := withParam(httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders/nope", nil), "orderID", "nope")
	resp := httptest.NewRecorder()
	AdminOrderDetail(stubOrderReader{}, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestAdminOrderStatusCarriesAdminAndConflict(t *testing.T) {
	orderID := uuid.New()
	svc := stubOrderOperator{updateFn: func(_ context.Context, id uuid.UUID, input fulfillment.UpdateStatusInput) (*internalorders.OrderDetail, error) {
		if id != orderID {
			t.Fatalf("unexpected order id %s", id)
		}
		if input.AdminID != "admin-7" || input.Status != enums.OrderStatusShipped {
			t.Fatalf("unexpected input %+v", input)
		}
		if input.TrackingNumber == nil || *input.TrackingNumber != "1Z999" {
			t.Fatalf("tracking number not forwarded")
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "cannot ship a pending order").
			WithDetails(map[string]any{"allowed": []string{"cancelled"}})
	}}

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/admin/orders/x/status", strings.NewReader(`{"status":"shipped","trackingNumber":"1Z999"}`))
	req = req.WithContext(middleware.WithAdmin(req.Context(), "admin-7", enums.AdminRoleSupport))
	req = withParam(req, "orderID", orderID.String())
	resp := httptest.NewRecorder()
	AdminOrderStatus(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
	if code := decodeError(t, resp); code != string(pkgerrors.CodeStateConflict) {
		t.Fatalf("unexpected code %s", code)
	}
}

func TestAdminOrderCaptureAccepted(t *testing.T) {
	orderID := uuid.New()
	svc := stubOrderOperator{captureFn: func(_ context.Context, id uuid.UUID) (*internalorders.OrderDetail, error) {
		return &internalorders.OrderDetail{ID: id, Status: enums.OrderStatusCaptured, PaymentStatus: enums.PaymentStatusCaptured}, nil
	}}
	req := withParam(httptest.NewRequest(http.MethodPost, "/api/v1/admin/orders/x/capture", nil), "orderID", orderID.String())
	resp := httptest.NewRecorder()
	AdminOrderCapture(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d", resp.Code)
	}
	var envelope struct {
		Data internalorders.OrderDetail `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.ID != orderID || envelope.Data.Status != enums.OrderStatusCaptured {
		t.Fatalf("unexpected detail %+v", envelope.Data)
	}
}

func TestAdminOrderRefundAmounts(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		want   *int64
		status int
	}{
		{name: "empty body is full refund", body: "", status: http.StatusAccepted},
		{name: "partial refund", body: `{"amountCents":1500}`, want: int64Ptr(1500), status: http.StatusAccepted},
		{name: "non-positive amount", body: `{"amountCents":0}`, status: http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			called := false
			svc := stubOrderOperator{refundFn: func(_ context.Context, _ uuid.UUID, amount *int64) (*internalorders.OrderDetail, error) {
				called = true
				switch {
				case tc.want == nil && amount != nil:
					t.Fatalf("expected full refund, got %d", *amount)
				case tc.want != nil && (amount == nil || *amount != *tc.want):
					t.Fatalf("expected amount %d, got %v", *tc.want, amount)
				}
				return &internalorders.OrderDetail{}, nil
			}}
			req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/orders/x/refund", strings.NewReader(tc.body))
			req = withParam(req, "orderID", uuid.NewString())
			resp := httptest.NewRecorder()
			AdminOrderRefund(svc, nil).ServeHTTP(resp, req)

			if resp.Code != tc.status {
				t.Fatalf("expected %d got %d (%s)", tc.status, resp.Code, resp.Body.String())
			}
			if tc.status == http.StatusAccepted && !called {
				t.Fatalf("expected refund to be called")
			}
		})
	}
}

func int64Ptr(v int64) *int64 { return &v }
