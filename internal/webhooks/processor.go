package webhooks

import (
	"context"
	"errors"

	"github.com/brickapparel/storefront-backend/internal/fulfillment"
	"github.com/brickapparel/storefront-backend/internal/payments"
	"github.com/brickapparel/storefront-backend/pkg/enums"
	pkgerrors "github.com/brickapparel/storefront-backend/pkg/errors"
	"github.com/brickapparel/storefront-backend/pkg/logger"
)

type gatewayResolver interface {
	Get(provider enums.PaymentProvider) (payments.Gateway, error)
}

type reconciler interface {
	Reconcile(ctx context.Context, event *payments.NormalizedEvent) (*fulfillment.ReconcileResult, error)
}

type eventGuard interface {
	CheckAndMark(ctx context.Context, provider enums.PaymentProvider, eventID string) (bool, error)
	Delete(ctx context.Context, provider enums.PaymentProvider, eventID string) error
}

// Processor verifies a raw delivery and hands it to reconciliation.
type Processor struct {
	gateways gatewayResolver
	recon    reconciler
	guard    eventGuard
	logg     *logger.Logger
}

func NewProcessor(gateways gatewayResolver, recon reconciler, guard eventGuard, logg *logger.Logger) (*Processor, error) {
	switch {
	case gateways == nil:
		return nil, errors.New("gateway registry required")
	case recon == nil:
		return nil, errors.New("reconciler required")
	case guard == nil:
		return nil, errors.New("idempotency guard required")
	case logg == nil:
		return nil, errors.New("logger required")
	}
	return &Processor{gateways: gateways, recon: recon, guard: guard, logg: logg}, nil
}

// Handle returns INVALID_SIGNATURE for unverified payloads without touching
// any state. A reconcile failure clears the redis mark so the provider's
// retry is processed.
func (p *Processor) Handle(ctx context.Context, provider enums.PaymentProvider, req payments.WebhookRequest) (*fulfillment.ReconcileResult, error) {
	ctx = p.logg.WithProvider(ctx, string(provider))
	gateway, err := p.gateways.Get(provider)
	if err != nil {
		return nil, err
	}
	event, err := gateway.ParseWebhook(ctx, req)
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeInvalidSignature) {
			logCtx := p.logg.WithField(ctx, "security_event", "webhook_signature_rejected")
			p.logg.Warn(logCtx, "rejected webhook with invalid signature")
		}
		return nil, err
	}

	ctx = p.logg.WithField(ctx, "event_id", event.EventID)
	seen, err := p.guard.CheckAndMark(ctx, provider, event.EventID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check webhook idempotency")
	}
	if seen {
		p.logg.Info(ctx, "webhook event already processed")
		return &fulfillment.ReconcileResult{Outcome: fulfillment.OutcomeDuplicate}, nil
	}

	result, err := p.recon.Reconcile(ctx, event)
	if err != nil {
		if delErr := p.guard.Delete(ctx, provider, event.EventID); delErr != nil {
			p.logg.Error(ctx, "failed to clear webhook idempotency key", delErr)
		}
		return nil, err
	}
	return result, nil
}
