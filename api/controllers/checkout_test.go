package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/brickapparel/storefront-backend/internal/fulfillment"
	"github.com/brickapparel/storefront-backend/pkg/enums"
	pkgerrors "github.com/brickapparel/storefront-backend/pkg/errors"
)

type stubCheckoutService struct {
	fn func(ctx context.Context, input fulfillment.CheckoutInput) (*fulfillment.CheckoutResult, error)
}

func (s stubCheckoutService) Checkout(ctx context.Context, input fulfillment.CheckoutInput) (*fulfillment.CheckoutResult, error) {
	return s.fn(ctx, input)
}

const checkoutBody = `{
	"email": " Buyer@Example.com ",
	"shippingAddress": {
		"firstName": "Ada",
		"lastName": "Lovelace",
		"addressLine1": "1 Analytical Way",
		"city": "London",
		"state": "LN",
		"zipCode": "10001"
	},
	"provider": "stripe"
}`

func TestCheckoutCreatesOrder(t *testing.T) {
	orderID := uuid.New()
	svc := stubCheckoutService{fn: func(_ context.Context, input fulfillment.CheckoutInput) (*fulfillment.CheckoutResult, error) {
		if input.Email != "buyer@example.com" {
			t.Fatalf("expected normalized email, got %q", input.Email)
		}
		if input.Provider != enums.PaymentProviderStripe {
			t.Fatalf("unexpected provider %s", input.Provider)
		}
		if input.Owner.SessionToken != "sess-1" {
			t.Fatalf("unexpected owner %+v", input.Owner)
		}
		return &fulfillment.CheckoutResult{
			OrderID:     orderID,
			OrderNumber: "BA-000001",
			RedirectInfo: fulfillment.RedirectInfo{
				Provider:     enums.PaymentProviderStripe,
				ClientSecret: "pi_secret",
			},
		}, nil
	}}

	req := withSession(httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(checkoutBody)), "sess-1")
	resp := httptest.NewRecorder()
	Checkout(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d (%s)", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Data fulfillment.CheckoutResult `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.OrderID != orderID || envelope.Data.RedirectInfo.ClientSecret != "pi_secret" {
		t.Fatalf("unexpected result %+v", envelope.Data)
	}
}

func TestCheckoutRejectsUnknownProvider(t *testing.T) {
	body := strings.Replace(checkoutBody, `"stripe"`, `"venmo"`, 1)
	req := withSession(httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(body)), "sess-1")
	resp := httptest.NewRecorder()
	Checkout(stubCheckoutService{fn: func(context.Context, fulfillment.CheckoutInput) (*fulfillment.CheckoutResult, error) {
		t.Fatalf("service should not be called")
		return nil, nil
	}}, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCheckoutMapsInsufficientInventory(t *testing.T) {
	svc := stubCheckoutService{fn: func(context.Context, fulfillment.CheckoutInput) (*fulfillment.CheckoutResult, error) {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientInventory, "insufficient inventory")
	}}
	req := withSession(httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(checkoutBody)), "sess-1")
	resp := httptest.NewRecorder()
	Checkout(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
	if code := decodeError(t, resp); code != string(pkgerrors.CodeInsufficientInventory) {
		t.Fatalf("unexpected code %s", code)
	}
}

func TestCheckoutProviderOutageIsRetryable(t *testing.T) {
	svc := stubCheckoutService{fn: func(context.Context, fulfillment.CheckoutInput) (*fulfillment.CheckoutResult, error) {
		return nil, pkgerrors.New(pkgerrors.CodeProviderUnavailable, "stripe unavailable")
	}}
	req := withSession(httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(checkoutBody)), "sess-1")
	resp := httptest.NewRecorder()
	Checkout(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
	if resp.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}
