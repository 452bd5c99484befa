package payments

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/brickapparel/storefront-backend/pkg/enums"
)

// Gateway is the capability surface every payment provider implements.
type Gateway interface {
	Provider() enums.PaymentProvider
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	Capture(ctx context.Context, providerRef string) (*CaptureResult, error)
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
	// ParseWebhook verifies the delivery and normalizes it. Unverified
	// payloads return INVALID_SIGNATURE and must never reach reconciliation.
	ParseWebhook(ctx context.Context, req WebhookRequest) (*NormalizedEvent, error)
}

// IntentRequest carries what a provider needs to open a payment.
type IntentRequest struct {
	OrderID     uuid.UUID
	OrderNumber string
	AmountCents int64
	Currency    enums.Currency
	Email       string
}

// Intent is the provider handle plus the opaque client handoff. Stripe
// returns a client secret, PayPal an approval URL.
type Intent struct {
	Provider     enums.PaymentProvider `json:"provider"`
	ProviderRef  string                `json:"providerRef"`
	ClientSecret string                `json:"clientSecret,omitempty"`
	ApprovalURL  string                `json:"approvalUrl,omitempty"`
}

// CaptureResult reports the provider state after a capture call.
type CaptureResult struct {
	ProviderRef string
	CaptureRef  string
	Status      string
}

// RefundRequest refunds the whole payment when AmountCents is nil.
type RefundRequest struct {
	ProviderRef string
	CaptureRef  string
	AmountCents *int64
	Currency    enums.Currency
}

type RefundResult struct {
	RefundRef   string
	Status      string
	AmountCents *int64
}

// WebhookRequest is the raw delivery exactly as received.
type WebhookRequest struct {
	Payload []byte
	Header  http.Header
}

// NormalizedEvent is a provider event reduced to what reconciliation reads.
// Mapped is false for event types with no payment status; those are logged
// and acknowledged without touching state.
type NormalizedEvent struct {
	Provider    enums.PaymentProvider
	EventID     string
	EventType   string
	ProviderRef string
	OrderRef    string
	CaptureRef  string
	Status      enums.PaymentStatus
	Mapped      bool
	Raw         json.RawMessage
}
