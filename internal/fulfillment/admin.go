package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/brickapparel/storefront-backend/internal/notifications"
	"github.com/brickapparel/storefront-backend/internal/orders"
	"github.com/brickapparel/storefront-backend/internal/payments"
	"github.com/brickapparel/storefront-backend/pkg/db"
	"github.com/brickapparel/storefront-backend/pkg/db/models"
	"github.com/brickapparel/storefront-backend/pkg/enums"
	pkgerrors "github.com/brickapparel/storefront-backend/pkg/errors"
	"github.com/brickapparel/storefront-backend/pkg/outbox"
	"github.com/brickapparel/storefront-backend/pkg/outbox/payloads"
)

var errSkipChange = errors.New("order no longer eligible")

// UpdateStatusInput is an admin status write. An unchanged Status with a
// tracking number or notes only updates those fields.
type UpdateStatusInput struct {
	Status         enums.OrderStatus
	TrackingNumber *string
	Notes          *string
	AdminID        string
}

// TransitionDetails is attached to STATE_CONFLICT errors.
type TransitionDetails struct {
	From    enums.OrderStatus   `json:"from"`
	To      enums.OrderStatus   `json:"to"`
	Allowed []enums.OrderStatus `json:"allowed"`
}

type cancelRequest struct {
	reason        string
	paymentStatus *enums.PaymentStatus
	actor         *outbox.ActorRef
	guard         func(order *models.Order) error
}

type statusChange struct {
	to             enums.OrderStatus
	trackingNumber *string
	notes          *string
	paymentStatus  *enums.PaymentStatus
	reason         string
	actor          *outbox.ActorRef
	guard          func(order *models.Order) error
}

func (s *service) UpdateStatus(ctx context.Context, orderID uuid.UUID, input UpdateStatusInput) (*orders.OrderDetail, error) {
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status")
	}
	ctx = s.logg.WithAdminID(ctx, input.AdminID)
	if _, err := s.changeStatus(ctx, orderID, statusChange{
		to:             input.Status,
		trackingNumber: trimmed(input.TrackingNumber),
		notes:          trimmed(input.Notes),
		reason:         "admin_update",
		actor:          &outbox.ActorRef{Kind: outbox.ActorAdmin, ID: input.AdminID},
	}); err != nil {
		return nil, err
	}
	return s.orders.Get(ctx, orderID)
}

func (s *service) cancel(ctx context.Context, orderID uuid.UUID, req cancelRequest) (*models.Order, error) {
	return s.changeStatus(ctx, orderID, statusChange{
		to:            enums.OrderStatusCancelled,
		paymentStatus: req.paymentStatus,
		reason:        req.reason,
		actor:         req.actor,
		guard:         req.guard,
	})
}

// changeStatus applies one FSM-guarded order transition. Moving to cancelled
// or refunded credits the order's inventory back at most once.
func (s *service) changeStatus(ctx context.Context, orderID uuid.UUID, change statusChange) (*models.Order, error) {
	var (
		order   *models.Order
		from    enums.OrderStatus
		changed bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orderRepo.WithTx(tx)
		var err error
		order, err = repo.FindByIDForUpdate(ctx, orderID)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if change.guard != nil {
			if err := change.guard(order); err != nil {
				return err
			}
		}

		from = order.Status
		updates := map[string]any{}
		if change.to != from {
			if !orders.CanTransition(from, change.to) {
				return pkgerrors.Newf(pkgerrors.CodeStateConflict, "order cannot move from %s to %s", from, change.to).
					WithDetails(TransitionDetails{From: from, To: change.to, Allowed: orders.AllowedTransitions(from)})
			}
			updates["status"] = change.to
			changed = true
		} else if change.trackingNumber == nil && change.notes == nil {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "order is already %s", from).
				WithDetails(TransitionDetails{From: from, To: change.to, Allowed: orders.AllowedTransitions(from)})
		}
		if change.trackingNumber != nil {
			updates["tracking_number"] = *change.trackingNumber
			order.TrackingNumber = change.trackingNumber
		}
		if change.notes != nil {
			updates["notes"] = *change.notes
			order.Notes = change.notes
		}
		if change.paymentStatus != nil {
			updates["payment_status"] = *change.paymentStatus
			order.PaymentStatus = *change.paymentStatus
		}
		if err := repo.Update(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !changed {
			return nil
		}
		order.Status = change.to

		if change.to == enums.OrderStatusCancelled || change.to == enums.OrderStatusRefunded {
			reason := reasonOrderCancelled
			if change.to == enums.OrderStatusRefunded {
				reason = reasonPaymentRefund
			}
			if _, err := s.releaseOnce(ctx, tx, order, reason); err != nil {
				return err
			}
		}
		return s.emitOrderStatusChanged(ctx, tx, order, from, change.reason, change.actor)
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.notify.Emit(ctx, notifications.OrderStatusChangeNotice(order, from, order.Status))
	}
	return order, nil
}

// releaseOnce credits the order's lines back unless an earlier cancel or
// refund already did.
func (s *service) releaseOnce(ctx context.Context, tx *gorm.DB, order *models.Order, reason string) ([]payloads.InventoryAdjustment, error) {
	if order.InventoryAppliedAt == nil {
		return nil, nil
	}
	released, err := s.orderRepo.WithTx(tx).MarkInventoryReleased(ctx, order.ID, s.now())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark inventory released")
	}
	if !released {
		return nil, nil
	}
	adjustments, err := s.inventory.Release(ctx, tx, orderLines(order))
	if err != nil {
		return nil, err
	}
	if err := s.emitInventoryAdjusted(ctx, tx, order.ID, reason, adjustments); err != nil {
		return nil, err
	}
	return adjustments, nil
}

func (s *service) emitOrderStatusChanged(ctx context.Context, tx *gorm.DB, order *models.Order, from enums.OrderStatus, reason string, actor *outbox.ActorRef) error {
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor,
		Data: payloads.OrderStatusChangedEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			From:        from,
			To:          order.Status,
			Reason:      reason,
			ChangedAt:   s.now(),
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order status changed")
	}
	return nil
}

// CapturePayment finalizes an authorized payment. The resulting status
// change still arrives through the provider webhook.
func (s *service) CapturePayment(ctx context.Context, orderID uuid.UUID) (*orders.OrderDetail, error) {
	order, txn, err := s.paymentContext(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status.IsTerminal() {
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "order is %s", order.Status)
	}
	if txn.Status != enums.PaymentStatusPending && txn.Status != enums.PaymentStatusAuthorized {
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "payment is %s", txn.Status)
	}
	gateway, err := s.gateways.Get(txn.Provider)
	if err != nil {
		return nil, err
	}
	result, err := gateway.Capture(ctx, txn.ProviderRef)
	if err != nil {
		return nil, err
	}
	if result.CaptureRef != "" {
		if err := s.txns.SetCaptureRef(ctx, txn.ID, result.CaptureRef); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record capture reference")
		}
	}
	s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), fmt.Sprintf("capture requested (%s %s)", txn.Provider, result.Status))
	return s.orders.Get(ctx, orderID)
}

// RefundPayment refunds a captured payment in full or in part. PayPal
// refunds need the recorded capture id.
func (s *service) RefundPayment(ctx context.Context, orderID uuid.UUID, amountCents *int64) (*orders.OrderDetail, error) {
	order, txn, err := s.paymentContext(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if txn.Status != enums.PaymentStatusCaptured {
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "payment is %s", txn.Status)
	}
	if amountCents != nil && (*amountCents <= 0 || *amountCents > txn.AmountCents) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be between 1 and the captured amount")
	}
	gateway, err := s.gateways.Get(txn.Provider)
	if err != nil {
		return nil, err
	}
	req := payments.RefundRequest{
		ProviderRef: txn.ProviderRef,
		AmountCents: amountCents,
		Currency:    txn.Currency,
	}
	if txn.CaptureRef != nil {
		req.CaptureRef = *txn.CaptureRef
	}
	result, err := gateway.Refund(ctx, req)
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), fmt.Sprintf("refund %s requested (%s)", result.RefundRef, result.Status))
	return s.orders.Get(ctx, orderID)
}

func (s *service) paymentContext(ctx context.Context, orderID uuid.UUID) (*models.Order, *models.Transaction, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	txn, err := s.txns.FindLatestForOrder(ctx, order.ID, order.PaymentProvider)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeTransactionNotFound, "order has no payment transaction")
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
	}
	return order, txn, nil
}

// ExpirePending cancels orders whose payment never left pending before
// cutoff and credits their inventory back. It returns how many were
// cancelled.
func (s *service) ExpirePending(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	stale, err := s.orderRepo.FindStalePending(ctx, cutoff, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find stale orders")
	}
	stillPending := func(order *models.Order) error {
		if order.Status != enums.OrderStatusPending || order.PaymentStatus != enums.PaymentStatusPending {
			return errSkipChange
		}
		return nil
	}
	cancelled := 0
	var errs error
	for _, order := range stale {
		_, err := s.cancel(ctx, order.ID, cancelRequest{
			reason: "payment_expired",
			actor:  &outbox.ActorRef{Kind: outbox.ActorSystem, ID: "pending-payment-expiry"},
			guard:  stillPending,
		})
		switch {
		case err == nil:
			cancelled++
		case errors.Is(err, errSkipChange):
		default:
			errs = multierr.Append(errs, fmt.Errorf("cancel %s: %w", order.OrderNumber, err))
		}
	}
	return cancelled, errs
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	return &v
}
