package fulfillment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
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

// ReconcileOutcome describes what a delivery did.
type ReconcileOutcome string

const (
	OutcomeApplied   ReconcileOutcome = "applied"
	OutcomeDuplicate ReconcileOutcome = "duplicate"
	OutcomeNoop      ReconcileOutcome = "noop"
	OutcomeIgnored   ReconcileOutcome = "ignored"
	OutcomeNotFound  ReconcileOutcome = "not_found"
)

type ReconcileResult struct {
	Outcome       ReconcileOutcome    `json:"outcome"`
	OrderID       *uuid.UUID          `json:"orderId,omitempty"`
	TransactionID *uuid.UUID          `json:"transactionId,omitempty"`
	PaymentStatus enums.PaymentStatus `json:"paymentStatus,omitempty"`
	OrderStatus   enums.OrderStatus   `json:"orderStatus,omitempty"`
}

// Reconcile applies one verified provider event. Each (provider, event id)
// is applied once; repeated deliveries, disallowed payment transitions and
// events for terminal orders are recorded no-ops.
func (s *service) Reconcile(ctx context.Context, event *payments.NormalizedEvent) (*ReconcileResult, error) {
	if event == nil || event.EventID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}
	provider := string(event.Provider)
	ctx = s.logg.WithFields(s.logg.WithProvider(ctx, provider), map[string]any{
		"event_id":   event.EventID,
		"event_type": event.EventType,
	})

	if !event.Mapped {
		s.logg.Info(ctx, "ignoring unmapped payment event")
		s.metrics.IncWebhook(provider, string(OutcomeIgnored))
		return &ReconcileResult{Outcome: OutcomeIgnored}, nil
	}

	var (
		result  = &ReconcileResult{}
		order   *models.Order
		txn     *models.Transaction
		notices []notifications.Notice
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		txn, err = s.lookupTransaction(ctx, tx, event)
		if err != nil {
			return err
		}
		result.TransactionID = &txn.ID
		result.OrderID = &txn.OrderID

		txnRepo := s.txns.WithTx(tx)
		inserted, err := txnRepo.RecordEvent(ctx, &models.WebhookEvent{
			Provider:      event.Provider,
			EventID:       event.EventID,
			EventType:     event.EventType,
			TransactionID: &txn.ID,
			Payload:       event.Raw,
			ReceivedAt:    s.now(),
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record webhook event")
		}
		if !inserted {
			result.Outcome = OutcomeDuplicate
			return nil
		}

		order, err = s.orderRepo.WithTx(tx).FindByIDForUpdate(ctx, txn.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order for reconcile")
		}
		result.Outcome, notices, err = s.applyPayment(ctx, tx, order, txn, event)
		result.PaymentStatus = txn.Status
		result.OrderStatus = order.Status
		return err
	})
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeTransactionNotFound) {
			s.reportUnmatched(ctx, event)
			s.metrics.IncWebhook(provider, string(OutcomeNotFound))
			return nil, err
		}
		s.metrics.IncWebhook(provider, "error")
		return nil, err
	}

	s.metrics.IncWebhook(provider, string(result.Outcome))
	for _, notice := range notices {
		s.notify.Emit(ctx, notice)
	}
	return result, nil
}

// lookupTransaction matches by provider reference, then falls back to the
// order named in the event's custom reference and finally to the recorded
// capture id.
func (s *service) lookupTransaction(ctx context.Context, tx *gorm.DB, event *payments.NormalizedEvent) (*models.Transaction, error) {
	txnRepo := s.txns.WithTx(tx)
	if event.ProviderRef != "" {
		txn, err := txnRepo.FindByProviderRef(ctx, event.Provider, event.ProviderRef)
		if err == nil {
			return txn, nil
		}
		if !db.IsNotFound(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find transaction")
		}
	}
	if event.OrderRef != "" {
		order, err := s.orders.Resolve(ctx, tx, event.OrderRef)
		if err != nil && !pkgerrors.Is(err, pkgerrors.CodeNotFound) {
			return nil, err
		}
		if order != nil {
			txn, err := txnRepo.FindLatestForOrder(ctx, order.ID, event.Provider)
			if err == nil {
				return txn, nil
			}
			if !db.IsNotFound(err) {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find order transaction")
			}
		}
	}
	if event.CaptureRef != "" {
		txn, err := txnRepo.FindByCaptureRef(ctx, event.Provider, event.CaptureRef)
		if err == nil {
			return txn, nil
		}
		if !db.IsNotFound(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find transaction by capture")
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeTransactionNotFound,
		fmt.Sprintf("no %s transaction for %q", event.Provider, event.ProviderRef))
}

// applyPayment moves the transaction and derives the order status. It returns
// the notices to emit after commit.
func (s *service) applyPayment(ctx context.Context, tx *gorm.DB, order *models.Order, txn *models.Transaction, event *payments.NormalizedEvent) (ReconcileOutcome, []notifications.Notice, error) {
	from := txn.Status
	if !orders.CanTransitionPayment(from, event.Status) {
		s.logg.Info(ctx, fmt.Sprintf("payment %s -> %s not applied", from, event.Status))
		return OutcomeNoop, nil, nil
	}

	txnRepo := s.txns.WithTx(tx)
	if err := txnRepo.UpdateStatus(ctx, txn.ID, event.Status); err != nil {
		return "", nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update transaction status")
	}
	txn.Status = event.Status
	if event.CaptureRef != "" && txn.CaptureRef == nil && event.Status == enums.PaymentStatusCaptured {
		if err := txnRepo.SetCaptureRef(ctx, txn.ID, event.CaptureRef); err != nil {
			return "", nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record capture reference")
		}
		ref := event.CaptureRef
		txn.CaptureRef = &ref
	}

	orderFrom := order.Status
	if !orderFrom.IsTerminal() {
		updates := map[string]any{"payment_status": event.Status}
		next, changed := orders.DeriveOrderStatus(orderFrom, event.Status)
		if changed {
			updates["status"] = next
		}
		if err := s.orderRepo.WithTx(tx).Update(ctx, order.ID, updates); err != nil {
			return "", nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order payment status")
		}
		order.PaymentStatus = event.Status
		if changed {
			order.Status = next
			if next == enums.OrderStatusRefunded {
				if _, err := s.releaseOnce(ctx, tx, order, reasonPaymentRefund); err != nil {
					return "", nil, err
				}
			}
			actor := &outbox.ActorRef{Kind: outbox.ActorWebhook, ID: string(event.Provider)}
			if err := s.emitOrderStatusChanged(ctx, tx, order, orderFrom, "payment_"+string(event.Status), actor); err != nil {
				return "", nil, err
			}
		}
	} else {
		s.logg.Warn(ctx, fmt.Sprintf("payment %s recorded on %s order; order left unchanged", event.Status, orderFrom))
	}

	var notices []notifications.Notice
	switch {
	case orderFrom.IsTerminal() && event.Status.HoldsFunds():
		notices = append(notices, notifications.ClosedOrderPaymentNotice(order, txn, event.Status, event.EventID, event.EventType))
	default:
		if notice, ok := notifications.PaymentNotice(order, txn, event.Status, event.EventID); ok {
			notices = append(notices, notice)
		}
	}

	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentStatusChanged,
		AggregateType: enums.AggregateTransaction,
		AggregateID:   txn.ID,
		Actor:         &outbox.ActorRef{Kind: outbox.ActorWebhook, ID: string(event.Provider)},
		Data: payloads.PaymentStatusChangedEvent{
			OrderID:       order.ID,
			TransactionID: txn.ID,
			Provider:      txn.Provider,
			ProviderRef:   txn.ProviderRef,
			EventID:       event.EventID,
			From:          from,
			To:            event.Status,
			OrderStatus:   order.Status,
			AmountCents:   txn.AmountCents,
			Currency:      txn.Currency,
			ChangedAt:     s.now(),
		},
	})
	if err != nil {
		return "", nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit payment status changed")
	}
	return OutcomeApplied, notices, nil
}

func (s *service) reportUnmatched(ctx context.Context, event *payments.NormalizedEvent) {
	s.logg.Warn(ctx, "payment event matched no transaction")
	s.notify.Emit(ctx, notifications.ReconciliationFailedNotice(notifications.ReconciliationFailedPayload{
		Provider:    event.Provider,
		EventID:     event.EventID,
		EventType:   event.EventType,
		ProviderRef: event.ProviderRef,
		OrderRef:    event.OrderRef,
		Reason:      string(pkgerrors.CodeTransactionNotFound),
	}))
}
