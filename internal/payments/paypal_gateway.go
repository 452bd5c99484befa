package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/plutov/paypal/v4"
	"github.com/shopspring/decimal"

	"github.com/brickapparel/storefront-backend/pkg/enums"
	pkgerrors "github.com/brickapparel/storefront-backend/pkg/errors"
	pkgpaypal "github.com/brickapparel/storefront-backend/pkg/paypal"
)

// PayPalAPI is the subset of the PayPal REST SDK the gateway calls.
// *paypal.Client satisfies it.
type PayPalAPI interface {
	CreateOrder(ctx context.Context, intent string, purchaseUnits []paypal.PurchaseUnitRequest, payer *paypal.CreateOrderPayer, appContext *paypal.ApplicationContext) (*paypal.Order, error)
	CaptureOrder(ctx context.Context, orderID string, req paypal.CaptureOrderRequest) (*paypal.CaptureOrderResponse, error)
	RefundCapture(ctx context.Context, captureID string, req paypal.RefundCaptureRequest) (*paypal.RefundResponse, error)
	VerifyWebhookSignature(ctx context.Context, httpReq *http.Request, webhookID string) (*paypal.VerifyWebhookResponse, error)
}

// PayPalSettings are the checkout values sent with every order.
type PayPalSettings struct {
	WebhookID string
	BrandName string
	ReturnURL string
	CancelURL string
}

// SettingsFromClient copies the configured values off the shared client.
func SettingsFromClient(client *pkgpaypal.Client) PayPalSettings {
	return PayPalSettings{
		WebhookID: client.WebhookID(),
		BrandName: client.BrandName(),
		ReturnURL: client.ReturnURL(),
		CancelURL: client.CancelURL(),
	}
}

type paypalGateway struct {
	api      PayPalAPI
	settings PayPalSettings
	policy   *Policy
}

// paypalWebhookEvent is the envelope of a PayPal webhook notification. For
// capture events resource is the capture; for refunds it is the refund and
// related_ids.capture_id points back at the capture.
type paypalWebhookEvent struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  struct {
		ID                string `json:"id"`
		CustomID          string `json:"custom_id"`
		SupplementaryData struct {
			RelatedIDs struct {
				OrderID   string `json:"order_id"`
				CaptureID string `json:"capture_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
	} `json:"resource"`
}

func NewPayPalGateway(api PayPalAPI, settings PayPalSettings, policy *Policy) (Gateway, error) {
	if api == nil {
		return nil, errors.New("paypal api client required")
	}
	if strings.TrimSpace(settings.WebhookID) == "" {
		return nil, errors.New("paypal webhook id required")
	}
	if policy == nil {
		return nil, errors.New("payment call policy required")
	}
	return &paypalGateway{api: api, settings: settings, policy: policy}, nil
}

func (g *paypalGateway) Provider() enums.PaymentProvider {
	return enums.PaymentProviderPayPal
}

func (g *paypalGateway) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	if req.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "intent amount must be positive")
	}
	units := []paypal.PurchaseUnitRequest{{
		ReferenceID: req.OrderNumber,
		CustomID:    req.OrderID.String(),
		Amount: &paypal.PurchaseUnitAmount{
			Currency: string(req.Currency),
			Value:    formatAmount(req.AmountCents),
		},
	}}
	appCtx := &paypal.ApplicationContext{
		BrandName: g.settings.BrandName,
		ReturnURL: g.settings.ReturnURL,
		CancelURL: g.settings.CancelURL,
	}

	var order *paypal.Order
	err := g.policy.do(ctx, g.Provider(), "create_intent", classifyPayPal, func(ctx context.Context) error {
		var err error
		order, err = g.api.CreateOrder(ctx, paypal.OrderIntentCapture, units, nil, appCtx)
		return err
	})
	if err != nil {
		return nil, err
	}

	intent := &Intent{Provider: g.Provider(), ProviderRef: order.ID}
	for _, link := range order.Links {
		if link.Rel == "approve" {
			intent.ApprovalURL = link.Href
			break
		}
	}
	if intent.ApprovalURL == "" {
		return nil, pkgerrors.Newf(pkgerrors.CodeDependency, "paypal order %s has no approval link", order.ID)
	}
	return intent, nil
}

func (g *paypalGateway) Capture(ctx context.Context, providerRef string) (*CaptureResult, error) {
	if strings.TrimSpace(providerRef) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "paypal order id required")
	}
	var resp *paypal.CaptureOrderResponse
	err := g.policy.do(ctx, g.Provider(), "capture", classifyPayPal, func(ctx context.Context) error {
		var err error
		resp, err = g.api.CaptureOrder(ctx, providerRef, paypal.CaptureOrderRequest{})
		return err
	})
	if err != nil {
		return nil, err
	}
	result := &CaptureResult{ProviderRef: resp.ID, Status: resp.Status}
	for _, unit := range resp.PurchaseUnits {
		if unit.Payments == nil || len(unit.Payments.Captures) == 0 {
			continue
		}
		result.CaptureRef = unit.Payments.Captures[0].ID
		break
	}
	return result, nil
}

// Refund refunds a PayPal capture. The capture id is required because
// PayPal refunds captures, not orders.
func (g *paypalGateway) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	captureID := strings.TrimSpace(req.CaptureRef)
	if captureID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "paypal refund requires a captured payment")
	}
	body := paypal.RefundCaptureRequest{}
	if req.AmountCents != nil {
		if *req.AmountCents <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
		}
		body.Amount = &paypal.Money{Currency: string(req.Currency), Value: formatAmount(*req.AmountCents)}
	}

	var resp *paypal.RefundResponse
	err := g.policy.do(ctx, g.Provider(), "refund", classifyPayPal, func(ctx context.Context) error {
		var err error
		resp, err = g.api.RefundCapture(ctx, captureID, body)
		return err
	})
	if err != nil {
		return nil, err
	}
	result := &RefundResult{RefundRef: resp.ID, Status: resp.Status}
	if resp.Amount != nil {
		if cents, err := parseAmount(resp.Amount.Value); err == nil {
			result.AmountCents = &cents
		}
	}
	return result, nil
}

func (g *paypalGateway) ParseWebhook(ctx context.Context, req WebhookRequest) (*NormalizedEvent, error) {
	if len(req.Payload) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidSignature, "empty paypal webhook payload")
	}
	if err := g.verify(ctx, req); err != nil {
		return nil, err
	}

	var event paypalWebhookEvent
	if err := json.Unmarshal(req.Payload, &event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode paypal webhook")
	}
	if event.ID == "" || event.EventType == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "paypal webhook missing id or event_type")
	}

	related := event.Resource.SupplementaryData.RelatedIDs
	normalized := &NormalizedEvent{
		Provider:    g.Provider(),
		EventID:     event.ID,
		EventType:   event.EventType,
		ProviderRef: related.OrderID,
		OrderRef:    event.Resource.CustomID,
		Raw:         append([]byte(nil), req.Payload...),
	}
	if event.EventType == PayPalEventCaptureRefunded {
		normalized.CaptureRef = related.CaptureID
	} else {
		normalized.CaptureRef = event.Resource.ID
	}
	if normalized.ProviderRef == "" {
		normalized.ProviderRef = event.Resource.ID
	}
	normalized.Status, normalized.Mapped = MapEventStatus(g.Provider(), event.EventType)
	return normalized, nil
}

// verify posts the delivery back to PayPal's verify-webhook-signature API.
// Transport failures surface as unavailable so PayPal redelivers.
func (g *paypalGateway) verify(ctx context.Context, req WebhookRequest) error {
	var resp *paypal.VerifyWebhookResponse
	err := g.policy.do(ctx, g.Provider(), "verify_webhook", classifyPayPal, func(ctx context.Context) error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, "/", bytes.NewReader(req.Payload))
		if err != nil {
			return err
		}
		httpReq.Header = req.Header.Clone()
		resp, err = g.api.VerifyWebhookSignature(ctx, httpReq, g.settings.WebhookID)
		return err
	})
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeProviderUnavailable) {
			return err
		}
		return pkgerrors.Wrap(pkgerrors.CodeInvalidSignature, err, "paypal signature verification failed")
	}
	if resp == nil || resp.VerificationStatus != paypalVerificationSuccessful {
		return pkgerrors.New(pkgerrors.CodeInvalidSignature, "invalid paypal signature")
	}
	return nil
}

func classifyPayPal(err error) (outcome, string) {
	var apiErr *paypal.ErrorResponse
	if !errors.As(err, &apiErr) {
		return outcomeRetry, err.Error()
	}
	reason := apiErr.Name
	if len(apiErr.Details) > 0 && apiErr.Details[0].Issue != "" {
		reason = apiErr.Details[0].Issue
	}
	if reason == "" {
		reason = apiErr.Message
	}
	status := 0
	if apiErr.Response != nil {
		status = apiErr.Response.StatusCode
	}
	if status == http.StatusUnprocessableEntity {
		return outcomeDeclined, reason
	}
	return classifyStatus(status), reason
}

func formatAmount(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

func parseAmount(value string) (int64, error) {
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return 0, err
	}
	return amount.Shift(2).Round(0).IntPart(), nil
}
