package fulfillment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/brickapparel/storefront-backend/internal/cart"
	"github.com/brickapparel/storefront-backend/internal/payments"
	"github.com/brickapparel/storefront-backend/pkg/db/models"
	"github.com/brickapparel/storefront-backend/pkg/enums"
	pkgerrors "github.com/brickapparel/storefront-backend/pkg/errors"
	"github.com/brickapparel/storefront-backend/pkg/outbox"
	"github.com/brickapparel/storefront-backend/pkg/outbox/payloads"
	"github.com/brickapparel/storefront-backend/pkg/types"
)

const successPathPrefix = "/order-success/"

// CheckoutInput is the checkout form for the cart identified by Owner.
type CheckoutInput struct {
	Owner           cart.Owner
	Email           string
	Phone           string
	ShippingAddress types.Address
	BillingAddress  *types.Address
	Provider        enums.PaymentProvider
	Notes           string
}

// RedirectInfo is the opaque client handoff. PayPal fills ApprovalURL;
// Stripe fills ClientSecret and SuccessURL.
type RedirectInfo struct {
	Provider     enums.PaymentProvider `json:"provider"`
	ApprovalURL  string                `json:"approvalUrl,omitempty"`
	ClientSecret string                `json:"clientSecret,omitempty"`
	SuccessURL   string                `json:"successUrl,omitempty"`
}

type CheckoutResult struct {
	OrderID      uuid.UUID    `json:"orderId"`
	OrderNumber  string       `json:"orderNumber"`
	RedirectInfo RedirectInfo `json:"redirectInfo"`
}

// Checkout turns the owner's cart into an order and opens a payment with the
// chosen provider. A provider outage leaves the order pending and returns a
// retryable error; a decline cancels the order and credits its inventory.
func (s *service) Checkout(ctx context.Context, input CheckoutInput) (*CheckoutResult, error) {
	gateway, err := s.gateways.Get(input.Provider)
	if err != nil {
		return nil, err
	}
	current, err := s.carts.Get(ctx, input.Owner)
	if err != nil {
		return nil, err
	}
	if current == nil || len(current.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	created, err := s.CreateOrder(ctx, CreateOrderInput{
		Items:           current.Items,
		CustomerID:      input.Owner.CustomerID,
		Email:           input.Email,
		Phone:           input.Phone,
		ShippingAddress: input.ShippingAddress,
		BillingAddress:  input.BillingAddress,
		Provider:        gateway.Provider(),
		Notes:           input.Notes,
	})
	if err != nil {
		return nil, err
	}
	order := created.Order
	ctx = s.logg.WithOrderID(ctx, order.ID.String())

	s.requestConfirmation(ctx, order)

	intent, err := gateway.CreateIntent(ctx, payments.IntentRequest{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		AmountCents: order.TotalCents,
		Currency:    order.Currency,
		Email:       order.Email,
	})
	if err != nil {
		return nil, s.handleIntentFailure(ctx, order, err)
	}

	txn := &models.Transaction{
		OrderID:     order.ID,
		Provider:    intent.Provider,
		ProviderRef: intent.ProviderRef,
		AmountCents: order.TotalCents,
		Currency:    order.Currency,
		Status:      enums.PaymentStatusPending,
	}
	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.txns.WithTx(tx).Create(ctx, txn); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment transaction")
		}
		return nil
	}); err != nil {
		return nil, err
	}

	if err := s.carts.Clear(ctx, input.Owner); err != nil {
		s.logg.Error(ctx, "clear cart after checkout", err)
	}

	redirect := RedirectInfo{Provider: intent.Provider}
	switch intent.Provider {
	case enums.PaymentProviderPayPal:
		redirect.ApprovalURL = intent.ApprovalURL
	default:
		redirect.ClientSecret = intent.ClientSecret
		redirect.SuccessURL = successPathPrefix + order.ID.String()
	}
	return &CheckoutResult{
		OrderID:      order.ID,
		OrderNumber:  order.OrderNumber,
		RedirectInfo: redirect,
	}, nil
}

// requestConfirmation queues the receipt email. It never fails checkout.
func (s *service) requestConfirmation(ctx context.Context, order *models.Order) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderConfirmation,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{Kind: outbox.ActorSystem},
			Data: payloads.OrderConfirmationRequestedEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				Email:       order.Email,
				TotalCents:  order.TotalCents,
				Currency:    string(order.Currency),
			},
		})
	})
	if err != nil {
		s.logg.Error(ctx, "queue order confirmation", err)
	}
}

func (s *service) handleIntentFailure(ctx context.Context, order *models.Order, cause error) error {
	s.metrics.IncCheckoutFailure(string(pkgerrors.As(cause).Code()))
	if !pkgerrors.Is(cause, pkgerrors.CodePaymentDeclined) {
		s.logg.Error(ctx, "create payment intent", cause)
		return cause
	}

	failed := enums.PaymentStatusFailed
	if _, err := s.cancel(ctx, order.ID, cancelRequest{
		reason:        "payment_declined",
		paymentStatus: &failed,
		actor:         &outbox.ActorRef{Kind: outbox.ActorSystem},
	}); err != nil {
		s.logg.Error(ctx, fmt.Sprintf("cancel declined order %s", order.OrderNumber), err)
	}
	return cause
}
