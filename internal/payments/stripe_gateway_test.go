package payments

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/brickapparel/storefront-backend/pkg/config"
	"github.com/brickapparel/storefront-backend/pkg/enums"
	pkgerrors "github.com/brickapparel/storefront-backend/pkg/errors"
	pkgstripe "github.com/brickapparel/storefront-backend/pkg/stripe"
)

const testWebhookSecret = "whsec_test_secret"

type stubStripeAPI struct {
	createFn  func(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	captureFn func(ctx context.Context, id string, params *stripe.PaymentIntentCaptureParams) (*stripe.PaymentIntent, error)
	refundFn  func(ctx context.Context, params *stripe.RefundParams) (*stripe.Refund, error)
}

func (s *stubStripeAPI) CreatePaymentIntent(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return s.createFn(ctx, params)
}

func (s *stubStripeAPI) CapturePaymentIntent(ctx context.Context, id string, params *stripe.PaymentIntentCaptureParams) (*stripe.PaymentIntent, error) {
	return s.captureFn(ctx, id, params)
}

func (s *stubStripeAPI) CreateRefund(ctx context.Context, params *stripe.RefundParams) (*stripe.Refund, error) {
	return s.refundFn(ctx, params)
}

func testPolicy() *Policy {
	p := NewPolicy(config.PaymentsConfig{
		CallTimeout: time.Second,
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  2 * time.Millisecond,
	}, nil, nil)
	p.sleep = func(context.Context, time.Duration) error { return nil }
	return p
}

func newTestStripeGateway(t *testing.T, api StripeAPI) Gateway {
	t.Helper()
	gw, err := NewStripeGateway(api, pkgstripe.NewWebhookVerifier(testWebhookSecret), testPolicy())
	require.NoError(t, err)
	return gw
}

func signedStripeRequest(payload string) WebhookRequest {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
	header := http.Header{}
	header.Set("Stripe-Signature", signed.Header)
	return WebhookRequest{Payload: signed.Payload, Header: header}
}

func TestStripeCreateIntentSendsCentsAndMetadata(t *testing.T) {
	orderID := uuid.New()
	api := &stubStripeAPI{
		createFn: func(_ context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			require.Equal(t, int64(5300), *params.Amount)
			require.Equal(t, "usd", *params.Currency)
			require.Equal(t, string(stripe.PaymentIntentCaptureMethodManual), *params.CaptureMethod)
			require.Equal(t, orderID.String(), params.Metadata["order_id"])
			require.Equal(t, "ORD-1-ABCD", params.Metadata["order_number"])
			require.Equal(t, "intent:"+orderID.String(), *params.IdempotencyKey)
			return &stripe.PaymentIntent{ID: "pi_123", ClientSecret: "pi_123_secret"}, nil
		},
	}
	gw := newTestStripeGateway(t, api)

	intent, err := gw.CreateIntent(context.Background(), IntentRequest{
		OrderID:     orderID,
		OrderNumber: "ORD-1-ABCD",
		AmountCents: 5300,
		Currency:    enums.CurrencyUSD,
	})
	require.NoError(t, err)
	require.Equal(t, "pi_123", intent.ProviderRef)
	require.Equal(t, "pi_123_secret", intent.ClientSecret)
	require.Empty(t, intent.ApprovalURL)
}

func TestStripeRetriesTransientFailures(t *testing.T) {
	calls := 0
	api := &stubStripeAPI{
		createFn: func(context.Context, *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			calls++
			if calls < 3 {
				return nil, &stripe.Error{HTTPStatusCode: http.StatusServiceUnavailable, Type: stripe.ErrorTypeAPI}
			}
			return &stripe.PaymentIntent{ID: "pi_retry"}, nil
		},
	}
	gw := newTestStripeGateway(t, api)

	intent, err := gw.CreateIntent(context.Background(), IntentRequest{OrderID: uuid.New(), AmountCents: 100, Currency: enums.CurrencyUSD})
	require.NoError(t, err)
	require.Equal(t, "pi_retry", intent.ProviderRef)
	require.Equal(t, 3, calls)
}

func TestStripeUnavailableAfterMaxAttempts(t *testing.T) {
	calls := 0
	api := &stubStripeAPI{
		createFn: func(context.Context, *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			calls++
			return nil, &stripe.Error{HTTPStatusCode: http.StatusTooManyRequests}
		},
	}
	gw := newTestStripeGateway(t, api)

	_, err := gw.CreateIntent(context.Background(), IntentRequest{OrderID: uuid.New(), AmountCents: 100, Currency: enums.CurrencyUSD})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeProviderUnavailable))
	require.True(t, pkgerrors.IsRetryable(err))
	require.Equal(t, 3, calls)
}

func TestStripeCardErrorIsDeclinedWithoutRetry(t *testing.T) {
	calls := 0
	api := &stubStripeAPI{
		createFn: func(context.Context, *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			calls++
			return nil, &stripe.Error{
				HTTPStatusCode: http.StatusPaymentRequired,
				Type:           stripe.ErrorTypeCard,
				DeclineCode:    "insufficient_funds",
			}
		},
	}
	gw := newTestStripeGateway(t, api)

	_, err := gw.CreateIntent(context.Background(), IntentRequest{OrderID: uuid.New(), AmountCents: 100, Currency: enums.CurrencyUSD})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodePaymentDeclined))
	require.Equal(t, 1, calls)
	details, ok := pkgerrors.As(err).Details().(DeclineDetails)
	require.True(t, ok)
	require.Equal(t, "insufficient_funds", details.Reason)
}

func TestStripeRefundPartialAmount(t *testing.T) {
	api := &stubStripeAPI{
		refundFn: func(_ context.Context, params *stripe.RefundParams) (*stripe.Refund, error) {
			require.Equal(t, "pi_1", *params.PaymentIntent)
			require.Equal(t, int64(1500), *params.Amount)
			return &stripe.Refund{ID: "re_1", Status: stripe.RefundStatusSucceeded, Amount: 1500}, nil
		},
	}
	gw := newTestStripeGateway(t, api)
	amount := int64(1500)

	res, err := gw.Refund(context.Background(), RefundRequest{ProviderRef: "pi_1", AmountCents: &amount})
	require.NoError(t, err)
	require.Equal(t, "re_1", res.RefundRef)
	require.Equal(t, int64(1500), *res.AmountCents)
}

func TestStripeParseWebhookMapsChargeRefunded(t *testing.T) {
	gw := newTestStripeGateway(t, &stubStripeAPI{})
	req := signedStripeRequest(`{
		"id": "evt_refund_1",
		"object": "event",
		"type": "charge.refunded",
		"data": {"object": {"id": "ch_1", "object": "charge", "payment_intent": "pi_1", "metadata": {"order_id": "ord-ref"}}}
	}`)

	event, err := gw.ParseWebhook(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "evt_refund_1", event.EventID)
	require.Equal(t, "pi_1", event.ProviderRef)
	require.Equal(t, "ch_1", event.CaptureRef)
	require.Equal(t, "ord-ref", event.OrderRef)
	require.True(t, event.Mapped)
	require.Equal(t, enums.PaymentStatusRefunded, event.Status)
}

func TestStripeParseWebhookUnmappedType(t *testing.T) {
	gw := newTestStripeGateway(t, &stubStripeAPI{})
	req := signedStripeRequest(`{"id":"evt_2","object":"event","type":"payment_intent.created","data":{"object":{"id":"pi_2","metadata":{}}}}`)

	event, err := gw.ParseWebhook(context.Background(), req)
	require.NoError(t, err)
	require.False(t, event.Mapped)
	require.Equal(t, "pi_2", event.ProviderRef)
}

func TestStripeParseWebhookRejectsBadSignature(t *testing.T) {
	gw := newTestStripeGateway(t, &stubStripeAPI{})
	req := signedStripeRequest(`{"id":"evt_3","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_3"}}}`)
	req.Payload = []byte(`{"id":"evt_3","object":"event","type":"charge.refunded","data":{"object":{"id":"pi_3"}}}`)

	_, err := gw.ParseWebhook(context.Background(), req)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeInvalidSignature))

	_, err = gw.ParseWebhook(context.Background(), WebhookRequest{Payload: []byte(`{}`), Header: http.Header{}})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeInvalidSignature))
}
