package payments

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"
	"github.com/stripe/stripe-go/v84/refund"

	"github.com/brickapparel/storefront-backend/pkg/enums"
	pkgerrors "github.com/brickapparel/storefront-backend/pkg/errors"
	pkgstripe "github.com/brickapparel/storefront-backend/pkg/stripe"
)

// StripeAPI exposes the subset of Stripe operations the gateway needs.
type StripeAPI interface {
	CreatePaymentIntent(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	CapturePaymentIntent(ctx context.Context, id string, params *stripe.PaymentIntentCaptureParams) (*stripe.PaymentIntent, error)
	CreateRefund(ctx context.Context, params *stripe.RefundParams) (*stripe.Refund, error)
}

// WebhookVerifier checks the Stripe-Signature header.
type WebhookVerifier interface {
	VerifyEvent(payload []byte, signatureHeader string) (stripe.Event, error)
}

type stripeClientWrapper struct{}

// NewStripeAPI wraps the package-level Stripe resources so the gateway can be tested.
func NewStripeAPI(client *pkgstripe.Client) StripeAPI {
	if client == nil {
		return nil
	}
	return &stripeClientWrapper{}
}

func (w *stripeClientWrapper) CreatePaymentIntent(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if params != nil {
		params.Context = ctx
	}
	return paymentintent.New(params)
}

func (w *stripeClientWrapper) CapturePaymentIntent(ctx context.Context, id string, params *stripe.PaymentIntentCaptureParams) (*stripe.PaymentIntent, error) {
	if params != nil {
		params.Context = ctx
	}
	return paymentintent.Capture(id, params)
}

func (w *stripeClientWrapper) CreateRefund(ctx context.Context, params *stripe.RefundParams) (*stripe.Refund, error) {
	if params != nil {
		params.Context = ctx
	}
	return refund.New(params)
}

// stripeEventObject is the slice of a payment_intent or charge object read
// from webhook payloads. Webhook objects are never expanded.
type stripeEventObject struct {
	ID            string            `json:"id"`
	PaymentIntent string            `json:"payment_intent"`
	LatestCharge  string            `json:"latest_charge"`
	Metadata      map[string]string `json:"metadata"`
}

type stripeGateway struct {
	api      StripeAPI
	verifier WebhookVerifier
	policy   *Policy
}

// NewStripeGateway builds the Stripe adapter. The verifier is required even
// when only webhooks are served.
func NewStripeGateway(api StripeAPI, verifier WebhookVerifier, policy *Policy) (Gateway, error) {
	if api == nil {
		return nil, errors.New("stripe api client required")
	}
	if verifier == nil {
		return nil, errors.New("stripe webhook verifier required")
	}
	if policy == nil {
		return nil, errors.New("payment call policy required")
	}
	return &stripeGateway{api: api, verifier: verifier, policy: policy}, nil
}

func (g *stripeGateway) Provider() enums.PaymentProvider {
	return enums.PaymentProviderStripe
}

func (g *stripeGateway) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	if req.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "intent amount must be positive")
	}
	var intent *stripe.PaymentIntent
	err := g.policy.do(ctx, g.Provider(), "create_intent", classifyStripe, func(ctx context.Context) error {
		params := &stripe.PaymentIntentParams{
			Amount:        stripe.Int64(req.AmountCents),
			Currency:      stripe.String(strings.ToLower(string(req.Currency))),
			CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
			AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
				Enabled: stripe.Bool(true),
			},
		}
		if req.Email != "" {
			params.ReceiptEmail = stripe.String(req.Email)
		}
		params.AddMetadata(stripeMetadataOrderID, req.OrderID.String())
		params.AddMetadata(stripeMetadataOrderNumber, req.OrderNumber)
		params.SetIdempotencyKey("intent:" + req.OrderID.String())

		var err error
		intent, err = g.api.CreatePaymentIntent(ctx, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Intent{
		Provider:     g.Provider(),
		ProviderRef:  intent.ID,
		ClientSecret: intent.ClientSecret,
	}, nil
}

func (g *stripeGateway) Capture(ctx context.Context, providerRef string) (*CaptureResult, error) {
	if strings.TrimSpace(providerRef) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id required")
	}
	var intent *stripe.PaymentIntent
	err := g.policy.do(ctx, g.Provider(), "capture", classifyStripe, func(ctx context.Context) error {
		var err error
		intent, err = g.api.CapturePaymentIntent(ctx, providerRef, &stripe.PaymentIntentCaptureParams{})
		return err
	})
	if err != nil {
		return nil, err
	}
	result := &CaptureResult{ProviderRef: intent.ID, Status: string(intent.Status)}
	if intent.LatestCharge != nil {
		result.CaptureRef = intent.LatestCharge.ID
	}
	return result, nil
}

func (g *stripeGateway) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	if strings.TrimSpace(req.ProviderRef) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id required")
	}
	if req.AmountCents != nil && *req.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}
	var out *stripe.Refund
	err := g.policy.do(ctx, g.Provider(), "refund", classifyStripe, func(ctx context.Context) error {
		params := &stripe.RefundParams{PaymentIntent: stripe.String(req.ProviderRef)}
		if req.AmountCents != nil {
			params.Amount = stripe.Int64(*req.AmountCents)
		}
		var err error
		out, err = g.api.CreateRefund(ctx, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	amount := out.Amount
	return &RefundResult{RefundRef: out.ID, Status: string(out.Status), AmountCents: &amount}, nil
}

func (g *stripeGateway) ParseWebhook(ctx context.Context, req WebhookRequest) (*NormalizedEvent, error) {
	signature := req.Header.Get(stripeSignatureHeader)
	if signature == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidSignature, "missing stripe signature")
	}
	event, err := g.verifier.VerifyEvent(req.Payload, signature)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInvalidSignature, err, "invalid stripe signature")
	}

	normalized := &NormalizedEvent{
		Provider:  g.Provider(),
		EventID:   event.ID,
		EventType: string(event.Type),
		Raw:       append([]byte(nil), req.Payload...),
	}
	normalized.Status, normalized.Mapped = MapEventStatus(g.Provider(), normalized.EventType)

	if event.Data == nil || len(event.Data.Raw) == 0 {
		return normalized, nil
	}
	var object stripeEventObject
	if err := json.Unmarshal(event.Data.Raw, &object); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode stripe event object")
	}
	normalized.OrderRef = object.Metadata[stripeMetadataOrderID]
	if normalized.OrderRef == "" {
		normalized.OrderRef = object.Metadata[stripeMetadataOrderNumber]
	}
	if strings.HasPrefix(normalized.EventType, "charge.") {
		normalized.ProviderRef = object.PaymentIntent
		normalized.CaptureRef = object.ID
	} else {
		normalized.ProviderRef = object.ID
		normalized.CaptureRef = object.LatestCharge
	}
	if normalized.Mapped && normalized.ProviderRef == "" {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "stripe event %s has no payment intent", event.ID)
	}
	return normalized, nil
}

func classifyStripe(err error) (outcome, string) {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return outcomeRetry, err.Error()
	}
	reason := string(stripeErr.Code)
	if stripeErr.DeclineCode != "" {
		reason = string(stripeErr.DeclineCode)
	}
	if reason == "" {
		reason = stripeErr.Msg
	}
	if stripeErr.Type == stripe.ErrorTypeCard {
		return outcomeDeclined, reason
	}
	return classifyStatus(stripeErr.HTTPStatusCode), reason
}
