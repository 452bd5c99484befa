package payments

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/plutov/paypal/v4"
	"github.com/stretchr/testify/require"

	"github.com/brickapparel/storefront-backend/pkg/enums"
	pkgerrors "github.com/brickapparel/storefront-backend/pkg/errors"
)

type stubPayPalAPI struct {
	createOrderFn  func(ctx context.Context, intent string, units []paypal.PurchaseUnitRequest, payer *paypal.CreateOrderPayer, appCtx *paypal.ApplicationContext) (*paypal.Order, error)
	captureOrderFn func(ctx context.Context, orderID string, req paypal.CaptureOrderRequest) (*paypal.CaptureOrderResponse, error)
	refundFn       func(ctx context.Context, captureID string, req paypal.RefundCaptureRequest) (*paypal.RefundResponse, error)
	verifyFn       func(ctx context.Context, httpReq *http.Request, webhookID string) (*paypal.VerifyWebhookResponse, error)
}

func (s *stubPayPalAPI) CreateOrder(ctx context.Context, intent string, units []paypal.PurchaseUnitRequest, payer *paypal.CreateOrderPayer, appCtx *paypal.ApplicationContext) (*paypal.Order, error) {
	return s.createOrderFn(ctx, intent, units, payer, appCtx)
}

func (s *stubPayPalAPI) CaptureOrder(ctx context.Context, orderID string, req paypal.CaptureOrderRequest) (*paypal.CaptureOrderResponse, error) {
	return s.captureOrderFn(ctx, orderID, req)
}

func (s *stubPayPalAPI) RefundCapture(ctx context.Context, captureID string, req paypal.RefundCaptureRequest) (*paypal.RefundResponse, error) {
	return s.refundFn(ctx, captureID, req)
}

func (s *stubPayPalAPI) VerifyWebhookSignature(ctx context.Context, httpReq *http.Request, webhookID string) (*paypal.VerifyWebhookResponse, error) {
	return s.verifyFn(ctx, httpReq, webhookID)
}

func newTestPayPalGateway(t *testing.T, api PayPalAPI) Gateway {
	t.Helper()
	gw, err := NewPayPalGateway(api, PayPalSettings{
		WebhookID: "WH-1",
		BrandName: "Brick Apparel",
		ReturnURL: "https://shop.test/order-success",
		CancelURL: "https://shop.test/checkout",
	}, testPolicy())
	require.NoError(t, err)
	return gw
}

func verified(status string) func(context.Context, *http.Request, string) (*paypal.VerifyWebhookResponse, error) {
	return func(context.Context, *http.Request, string) (*paypal.VerifyWebhookResponse, error) {
		return &paypal.VerifyWebhookResponse{VerificationStatus: status}, nil
	}
}

func TestPayPalCreateIntentReturnsApprovalURL(t *testing.T) {
	orderID := uuid.New()
	api := &stubPayPalAPI{
		createOrderFn: func(_ context.Context, intent string, units []paypal.PurchaseUnitRequest, _ *paypal.CreateOrderPayer, appCtx *paypal.ApplicationContext) (*paypal.Order, error) {
			require.Equal(t, paypal.OrderIntentCapture, intent)
			require.Len(t, units, 1)
			require.Equal(t, orderID.String(), units[0].CustomID)
			require.Equal(t, "53.00", units[0].Amount.Value)
			require.Equal(t, "USD", units[0].Amount.Currency)
			require.Equal(t, "Brick Apparel", appCtx.BrandName)
			return &paypal.Order{
				ID: "PP-ORDER-1",
				Links: []paypal.Link{
					{Rel: "self", Href: "https://api.test/self"},
					{Rel: "approve", Href: "https://paypal.test/approve?token=PP-ORDER-1"},
				},
			}, nil
		},
	}
	gw := newTestPayPalGateway(t, api)

	intent, err := gw.CreateIntent(context.Background(), IntentRequest{
		OrderID:     orderID,
		OrderNumber: "ORD-1-ABCD",
		AmountCents: 5300,
		Currency:    enums.CurrencyUSD,
	})
	require.NoError(t, err)
	require.Equal(t, "PP-ORDER-1", intent.ProviderRef)
	require.Equal(t, "https://paypal.test/approve?token=PP-ORDER-1", intent.ApprovalURL)
}

func TestPayPalUnprocessableIsDeclined(t *testing.T) {
	api := &stubPayPalAPI{
		captureOrderFn: func(context.Context, string, paypal.CaptureOrderRequest) (*paypal.CaptureOrderResponse, error) {
			return nil, &paypal.ErrorResponse{
				Response: &http.Response{StatusCode: http.StatusUnprocessableEntity},
				Name:     "UNPROCESSABLE_ENTITY",
				Details:  []paypal.ErrorResponseDetail{{Issue: "INSTRUMENT_DECLINED"}},
			}
		},
	}
	gw := newTestPayPalGateway(t, api)

	_, err := gw.Capture(context.Background(), "PP-ORDER-1")
	require.True(t, pkgerrors.Is(err, pkgerrors.CodePaymentDeclined))
	details := pkgerrors.As(err).Details().(DeclineDetails)
	require.Equal(t, "INSTRUMENT_DECLINED", details.Reason)
}

func TestPayPalCaptureReturnsCaptureID(t *testing.T) {
	api := &stubPayPalAPI{
		captureOrderFn: func(_ context.Context, orderID string, _ paypal.CaptureOrderRequest) (*paypal.CaptureOrderResponse, error) {
			return &paypal.CaptureOrderResponse{
				ID:     orderID,
				Status: "COMPLETED",
				PurchaseUnits: []paypal.CapturedPurchaseUnit{{
					Payments: &paypal.CapturedPayments{Captures: []paypal.CaptureAmount{{ID: "CAP-1"}}},
				}},
			}, nil
		},
	}
	gw := newTestPayPalGateway(t, api)

	res, err := gw.Capture(context.Background(), "PP-ORDER-1")
	require.NoError(t, err)
	require.Equal(t, "CAP-1", res.CaptureRef)
	require.Equal(t, "COMPLETED", res.Status)
}

func TestPayPalRefundRequiresCapture(t *testing.T) {
	gw := newTestPayPalGateway(t, &stubPayPalAPI{})

	_, err := gw.Refund(context.Background(), RefundRequest{ProviderRef: "PP-ORDER-1"})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeStateConflict))
}

func TestPayPalRefundFormatsAmount(t *testing.T) {
	api := &stubPayPalAPI{
		refundFn: func(_ context.Context, captureID string, req paypal.RefundCaptureRequest) (*paypal.RefundResponse, error) {
			require.Equal(t, "CAP-1", captureID)
			require.Equal(t, "12.05", req.Amount.Value)
			return &paypal.RefundResponse{ID: "RF-1", Status: "COMPLETED", Amount: &paypal.PurchaseUnitAmount{Currency: "USD", Value: "12.05"}}, nil
		},
	}
	gw := newTestPayPalGateway(t, api)
	amount := int64(1205)

	res, err := gw.Refund(context.Background(), RefundRequest{CaptureRef: "CAP-1", AmountCents: &amount, Currency: enums.CurrencyUSD})
	require.NoError(t, err)
	require.Equal(t, "RF-1", res.RefundRef)
	require.Equal(t, int64(1205), *res.AmountCents)
}

func TestPayPalParseWebhookRefund(t *testing.T) {
	payload := `{
		"id": "WH-EVT-1",
		"event_type": "PAYMENT.CAPTURE.REFUNDED",
		"resource": {
			"id": "RF-1",
			"custom_id": "ORD-1-ABCD",
			"supplementary_data": {"related_ids": {"order_id": "PP-ORDER-1", "capture_id": "CAP-1"}}
		}
	}`
	api := &stubPayPalAPI{
		verifyFn: func(_ context.Context, httpReq *http.Request, webhookID string) (*paypal.VerifyWebhookResponse, error) {
			require.Equal(t, "WH-1", webhookID)
			require.Equal(t, "SHA256withRSA", httpReq.Header.Get("Paypal-Auth-Algo"))
			body, err := io.ReadAll(httpReq.Body)
			require.NoError(t, err)
			require.JSONEq(t, payload, string(body))
			return &paypal.VerifyWebhookResponse{VerificationStatus: "SUCCESS"}, nil
		},
	}
	gw := newTestPayPalGateway(t, api)
	header := http.Header{}
	header.Set("Paypal-Auth-Algo", "SHA256withRSA")

	event, err := gw.ParseWebhook(context.Background(), WebhookRequest{Payload: []byte(payload), Header: header})
	require.NoError(t, err)
	require.Equal(t, enums.PaymentProviderPayPal, event.Provider)
	require.Equal(t, "WH-EVT-1", event.EventID)
	require.Equal(t, "PP-ORDER-1", event.ProviderRef)
	require.Equal(t, "CAP-1", event.CaptureRef)
	require.Equal(t, "ORD-1-ABCD", event.OrderRef)
	require.Equal(t, enums.PaymentStatusRefunded, event.Status)
	require.True(t, event.Mapped)
}

func TestPayPalParseWebhookCaptureCompletedUsesResourceID(t *testing.T) {
	payload := `{"id":"WH-EVT-2","event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{"id":"CAP-9","supplementary_data":{"related_ids":{"order_id":"PP-ORDER-9"}}}}`
	gw := newTestPayPalGateway(t, &stubPayPalAPI{verifyFn: verified("SUCCESS")})

	event, err := gw.ParseWebhook(context.Background(), WebhookRequest{Payload: []byte(payload), Header: http.Header{}})
	require.NoError(t, err)
	require.Equal(t, "CAP-9", event.CaptureRef)
	require.Equal(t, "PP-ORDER-9", event.ProviderRef)
	require.Equal(t, enums.PaymentStatusCaptured, event.Status)
}

func TestPayPalParseWebhookFailsClosed(t *testing.T) {
	payload := []byte(`{"id":"WH-EVT-3","event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{"id":"CAP-3"}}`)

	gw := newTestPayPalGateway(t, &stubPayPalAPI{verifyFn: verified("FAILURE")})
	_, err := gw.ParseWebhook(context.Background(), WebhookRequest{Payload: payload, Header: http.Header{}})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeInvalidSignature))

	gw = newTestPayPalGateway(t, &stubPayPalAPI{
		verifyFn: func(context.Context, *http.Request, string) (*paypal.VerifyWebhookResponse, error) {
			return nil, &paypal.ErrorResponse{Response: &http.Response{StatusCode: http.StatusBadRequest}, Name: "INVALID_REQUEST"}
		},
	})
	_, err = gw.ParseWebhook(context.Background(), WebhookRequest{Payload: payload, Header: http.Header{}})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeInvalidSignature))
}

func TestPayPalVerificationOutageIsRetryable(t *testing.T) {
	calls := 0
	gw := newTestPayPalGateway(t, &stubPayPalAPI{
		verifyFn: func(context.Context, *http.Request, string) (*paypal.VerifyWebhookResponse, error) {
			calls++
			return nil, errors.New("connection reset")
		},
	})

	_, err := gw.ParseWebhook(context.Background(), WebhookRequest{Payload: []byte(`{"id":"x"}`), Header: http.Header{}})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeProviderUnavailable))
	require.Equal(t, 3, calls)
}

func TestAmountFormatting(t *testing.T) {
	require.Equal(t, "0.05", formatAmount(5))
	require.Equal(t, "100.00", formatAmount(10000))
	cents, err := parseAmount("19.99")
	require.NoError(t, err)
	require.Equal(t, int64(1999), cents)
}

func TestRegistryLookup(t *testing.T) {
	stripeGW := newTestStripeGateway(t, &stubStripeAPI{})
	paypalGW := newTestPayPalGateway(t, &stubPayPalAPI{})

	reg, err := NewRegistry(stripeGW, paypalGW)
	require.NoError(t, err)
	require.Equal(t, []enums.PaymentProvider{enums.PaymentProviderStripe, enums.PaymentProviderPayPal}, reg.Providers())

	gw, err := reg.Get(enums.PaymentProviderPayPal)
	require.NoError(t, err)
	require.Equal(t, enums.PaymentProviderPayPal, gw.Provider())

	_, err = NewRegistry(stripeGW, stripeGW)
	require.Error(t, err)

	empty, err := NewRegistry()
	require.NoError(t, err)
	_, err = empty.Get(enums.PaymentProviderStripe)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestMapEventStatusIgnoresUnknown(t *testing.T) {
	_, ok := MapEventStatus(enums.PaymentProviderStripe, "customer.created")
	require.False(t, ok)
	status, ok := MapEventStatus(enums.PaymentProviderPayPal, "PAYMENT.CAPTURE.DENIED")
	require.True(t, ok)
	require.Equal(t, enums.PaymentStatusFailed, status)
}
