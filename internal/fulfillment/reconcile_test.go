package fulfillment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brickapparel/storefront-backend/internal/payments"
	"github.com/brickapparel/storefront-backend/pkg/db/models"
	"github.com/brickapparel/storefront-backend/pkg/enums"
	pkgerrors "github.com/brickapparel/storefront-backend/pkg/errors"
)

func event(provider enums.PaymentProvider, id, eventType, ref string) *payments.NormalizedEvent {
	status, mapped := payments.MapEventStatus(provider, eventType)
	return &payments.NormalizedEvent{
		Provider:    provider,
		EventID:     id,
		EventType:   eventType,
		ProviderRef: ref,
		Status:      status,
		Mapped:      mapped,
		Raw:         []byte(`{"id":"` + id + `"}`),
	}
}

func TestReconcileCaptureAdvancesOrder(t *testing.T) {
	f := newFixture(t)
	order, txn := f.placeWithTransaction(t, "X", 1, enums.PaymentProviderStripe, "pi_1", enums.PaymentStatusPending)

	res, err := f.svc.Reconcile(context.Background(), event(enums.PaymentProviderStripe, "evt_1", payments.StripeEventIntentSucceeded, "pi_1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, txn.ID, *res.TransactionID)

	stored := f.order(t, order.ID)
	assert.Equal(t, enums.OrderStatusCaptured, stored.Status)
	assert.Equal(t, enums.PaymentStatusCaptured, stored.PaymentStatus)
	assert.EqualValues(t, 1, f.count(t, &models.Notification{}, "type = ?", enums.NotificationTypePaymentCaptured))
	assert.EqualValues(t, 1, f.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventPaymentStatusChanged))
}

func TestReconcileRefundCreditsInventoryOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, _ := f.placeWithTransaction(t, "X", 2, enums.PaymentProviderStripe, "pi_2", enums.PaymentStatusCaptured)
	require.Equal(t, 8, f.quantity(t, "X"))

	res, err := f.svc.Reconcile(ctx, event(enums.PaymentProviderStripe, "evt_r1", payments.StripeEventChargeRefunded, "pi_2"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, enums.OrderStatusRefunded, res.OrderStatus)

	stored := f.order(t, order.ID)
	assert.Equal(t, enums.OrderStatusRefunded, stored.Status)
	assert.Equal(t, enums.PaymentStatusRefunded, stored.PaymentStatus)
	assert.NotNil(t, stored.InventoryReleasedAt)
	assert.Equal(t, 10, f.quantity(t, "X"))

	res, err = f.svc.Reconcile(ctx, event(enums.PaymentProviderStripe, "evt_r2", payments.StripeEventChargeRefunded, "pi_2"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, res.Outcome)
	assert.Equal(t, 10, f.quantity(t, "X"))
}

func TestReconcileDuplicateDeliveryIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, txn := f.placeWithTransaction(t, "X", 1, enums.PaymentProviderPayPal, "PP-1", enums.PaymentStatusPending)
	evt := event(enums.PaymentProviderPayPal, "WH-1", payments.PayPalEventCaptureCompleted, "PP-1")
	evt.CaptureRef = "CAP-1"

	first, err := f.svc.Reconcile(ctx, evt)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, first.Outcome)
	afterFirst := f.order(t, order.ID)

	second, err := f.svc.Reconcile(ctx, evt)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, second.Outcome)

	afterSecond := f.order(t, order.ID)
	assert.Equal(t, afterFirst.Status, afterSecond.Status)
	assert.Equal(t, afterFirst.PaymentStatus, afterSecond.PaymentStatus)
	assert.EqualValues(t, 1, f.count(t, &models.WebhookEvent{}, "event_id = ?", "WH-1"))
	assert.EqualValues(t, 1, f.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventPaymentStatusChanged))

	var stored models.Transaction
	require.NoError(t, f.client.DB().Where("id = ?", txn.ID).First(&stored).Error)
	require.NotNil(t, stored.CaptureRef)
	assert.Equal(t, "CAP-1", *stored.CaptureRef)
}

func TestReconcileLateAuthorizationDoesNotRegress(t *testing.T) {
	f := newFixture(t)
	order, _ := f.placeWithTransaction(t, "X", 1, enums.PaymentProviderStripe, "pi_3", enums.PaymentStatusCaptured)

	res, err := f.svc.Reconcile(context.Background(), event(enums.PaymentProviderStripe, "evt_late", payments.StripeEventIntentCapturable, "pi_3"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, res.Outcome)
	assert.Equal(t, enums.OrderStatusCaptured, f.order(t, order.ID).Status)
	assert.EqualValues(t, 1, f.count(t, &models.WebhookEvent{}, "event_id = ?", "evt_late"))
}

func TestReconcileNeverReopensTerminalOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, _ := f.placeWithTransaction(t, "X", 1, enums.PaymentProviderStripe, "pi_4", enums.PaymentStatusPending)
	_, err := f.svc.UpdateStatus(ctx, order.ID, UpdateStatusInput{Status: enums.OrderStatusCancelled, AdminID: "admin-1"})
	require.NoError(t, err)

	_, err = f.svc.Reconcile(ctx, event(enums.PaymentProviderStripe, "evt_cap", payments.StripeEventIntentSucceeded, "pi_4"))
	require.NoError(t, err)

	stored := f.order(t, order.ID)
	assert.Equal(t, enums.OrderStatusCancelled, stored.Status)
	assert.Equal(t, enums.PaymentStatusPending, stored.PaymentStatus)
	assert.Equal(t, 10, f.quantity(t, "X"))
}

func TestReconcileRefundAheadOfCaptureSticks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, _ := f.placeWithTransaction(t, "X", 2, enums.PaymentProviderStripe, "pi_ooo", enums.PaymentStatusPending)
	require.Equal(t, 8, f.quantity(t, "X"))

	refund := event(enums.PaymentProviderStripe, "evt_ooo_refund", payments.StripeEventChargeRefunded, "pi_ooo")
	res, err := f.svc.Reconcile(ctx, refund)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, enums.OrderStatusRefunded, res.OrderStatus)
	assert.Equal(t, 10, f.quantity(t, "X"))

	res, err = f.svc.Reconcile(ctx, event(enums.PaymentProviderStripe, "evt_ooo_capture", payments.StripeEventIntentSucceeded, "pi_ooo"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, res.Outcome)

	res, err = f.svc.Reconcile(ctx, refund)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, res.Outcome)

	stored := f.order(t, order.ID)
	assert.Equal(t, enums.OrderStatusRefunded, stored.Status)
	assert.Equal(t, enums.PaymentStatusRefunded, stored.PaymentStatus)
	assert.Equal(t, 10, f.quantity(t, "X"))
}

func TestReconcileCaptureOnExpiredOrderAsksForRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, _ := f.placeWithTransaction(t, "X", 1, enums.PaymentProviderStripe, "pi_exp", enums.PaymentStatusPending)
	n, err := f.svc.ExpirePending(ctx, time.Now().UTC().Add(time.Hour), 10)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	res, err := f.svc.Reconcile(ctx, event(enums.PaymentProviderStripe, "evt_exp_cap", payments.StripeEventIntentSucceeded, "pi_exp"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, enums.OrderStatusCancelled, res.OrderStatus)

	assert.Equal(t, enums.OrderStatusCancelled, f.order(t, order.ID).Status)
	assert.Equal(t, 10, f.quantity(t, "X"))
	assert.EqualValues(t, 1, f.count(t, &models.Notification{}, "type = ? AND order_id = ?", enums.NotificationTypeReconciliationFailed, order.ID))
	assert.EqualValues(t, 0, f.count(t, &models.Notification{}, "type = ?", enums.NotificationTypePaymentCaptured))
}

func TestReconcileMatchesPayPalRefundByCapture(t *testing.T) {
	f := newFixture(t)
	order, txn := f.placeWithTransaction(t, "X", 1, enums.PaymentProviderPayPal, "PP-11", enums.PaymentStatusCaptured)
	require.NoError(t, f.client.DB().Model(&models.Transaction{}).Where("id = ?", txn.ID).Update("capture_ref", "CAP-11").Error)
	evt := event(enums.PaymentProviderPayPal, "WH-11", payments.PayPalEventCaptureRefunded, "RF-11")
	evt.CaptureRef = "CAP-11"

	res, err := f.svc.Reconcile(context.Background(), evt)
	require.NoError(t, err)
	assert.Equal(t, txn.ID, *res.TransactionID)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, enums.OrderStatusRefunded, f.order(t, order.ID).Status)
	assert.Equal(t, 10, f.quantity(t, "X"))
}

func TestReconcileFallsBackToOrderReference(t *testing.T) {
	f := newFixture(t)
	order, txn := f.placeWithTransaction(t, "X", 1, enums.PaymentProviderPayPal, "PP-ORDER-7", enums.PaymentStatusPending)
	evt := event(enums.PaymentProviderPayPal, "WH-7", payments.PayPalEventCaptureCompleted, "CAP-7")
	evt.OrderRef = order.OrderNumber

	res, err := f.svc.Reconcile(context.Background(), evt)
	require.NoError(t, err)
	assert.Equal(t, txn.ID, *res.TransactionID)
	assert.Equal(t, enums.OrderStatusCaptured, f.order(t, order.ID).Status)
}

func TestReconcileUnknownTransactionNotifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	evt := event(enums.PaymentProviderStripe, "evt_orphan", payments.StripeEventIntentSucceeded, "pi_missing")

	_, err := f.svc.Reconcile(ctx, evt)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeTransactionNotFound))
	_, err = f.svc.Reconcile(ctx, evt)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeTransactionNotFound))

	assert.EqualValues(t, 1, f.count(t, &models.Notification{}, "type = ?", enums.NotificationTypeReconciliationFailed))
	assert.EqualValues(t, 0, f.count(t, &models.WebhookEvent{}, ""))
}

func TestReconcileIgnoresUnmappedEvents(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Reconcile(context.Background(), event(enums.PaymentProviderStripe, "evt_x", "customer.created", "cus_1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Outcome)
	assert.EqualValues(t, 0, f.count(t, &models.WebhookEvent{}, ""))
}

func TestUpdateStatusEnforcesTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, _ := f.placeWithTransaction(t, "X", 3, enums.PaymentProviderStripe, "pi_5", enums.PaymentStatusPending)

	_, err := f.svc.UpdateStatus(ctx, order.ID, UpdateStatusInput{Status: enums.OrderStatusShipped})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeStateConflict))
	details := pkgerrors.As(err).Details().(TransitionDetails)
	assert.Equal(t, enums.OrderStatusPending, details.From)
	assert.Contains(t, details.Allowed, enums.OrderStatusCancelled)

	tracking := " 1Z999 "
	detail, err := f.svc.UpdateStatus(ctx, order.ID, UpdateStatusInput{Status: enums.OrderStatusCancelled, TrackingNumber: &tracking})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, detail.Status)
	require.NotNil(t, detail.TrackingNumber)
	assert.Equal(t, "1Z999", *detail.TrackingNumber)
	assert.Empty(t, detail.AllowedNext)
	assert.Equal(t, 10, f.quantity(t, "X"))

	_, err = f.svc.UpdateStatus(ctx, order.ID, UpdateStatusInput{Status: enums.OrderStatusRefunded})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, 10, f.quantity(t, "X"))
	assert.EqualValues(t, 1, f.count(t, &models.Notification{}, "type = ?", enums.NotificationTypeOrderStatusChange))
}

func TestAdminRefundStatusCreditsOnlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, _ := f.placeWithTransaction(t, "X", 2, enums.PaymentProviderStripe, "pi_6", enums.PaymentStatusCaptured)

	_, err := f.svc.UpdateStatus(ctx, order.ID, UpdateStatusInput{Status: enums.OrderStatusRefunded})
	require.NoError(t, err)
	assert.Equal(t, 10, f.quantity(t, "X"))

	_, err = f.svc.Reconcile(ctx, event(enums.PaymentProviderStripe, "evt_r", payments.StripeEventChargeRefunded, "pi_6"))
	require.NoError(t, err)
	assert.Equal(t, 10, f.quantity(t, "X"))
}

func TestExpirePendingCancelsStaleOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stale, _ := f.placeWithTransaction(t, "X", 2, enums.PaymentProviderStripe, "pi_7", enums.PaymentStatusPending)
	paid, _ := f.placeWithTransaction(t, "X", 1, enums.PaymentProviderStripe, "pi_8", enums.PaymentStatusCaptured)

	n, err := f.svc.ExpirePending(ctx, time.Now().UTC().Add(time.Hour), 50)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, enums.OrderStatusCancelled, f.order(t, stale.ID).Status)
	assert.Equal(t, enums.OrderStatusCaptured, f.order(t, paid.ID).Status)
	assert.Equal(t, 9, f.quantity(t, "X"))

	n, err = f.svc.ExpirePending(ctx, time.Now().UTC().Add(time.Hour), 50)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRefundPaymentUsesCaptureReference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, txn := f.placeWithTransaction(t, "X", 1, enums.PaymentProviderPayPal, "PP-9", enums.PaymentStatusCaptured)
	require.NoError(t, f.client.DB().Model(&models.Transaction{}).Where("id = ?", txn.ID).Update("capture_ref", "CAP-9").Error)

	var got payments.RefundRequest
	f.paypal.refundFn = func(_ context.Context, req payments.RefundRequest) (*payments.RefundResult, error) {
		got = req
		return &payments.RefundResult{RefundRef: "RF-9", Status: "COMPLETED"}, nil
	}
	amount := int64(500)

	_, err := f.svc.RefundPayment(ctx, order.ID, &amount)
	require.NoError(t, err)
	assert.Equal(t, "CAP-9", got.CaptureRef)
	assert.Equal(t, int64(500), *got.AmountCents)
	assert.Equal(t, enums.OrderStatusCaptured, f.order(t, order.ID).Status)

	tooMuch := txn.AmountCents + 1
	_, err = f.svc.RefundPayment(ctx, order.ID, &tooMuch)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestCapturePaymentRecordsCaptureReference(t *testing.T) {
	f := newFixture(t)
	order, txn := f.placeWithTransaction(t, "X", 1, enums.PaymentProviderPayPal, "PP-10", enums.PaymentStatusPending)

	_, err := f.svc.CapturePayment(context.Background(), order.ID)
	require.NoError(t, err)

	var stored models.Transaction
	require.NoError(t, f.client.DB().Where("id = ?", txn.ID).First(&stored).Error)
	require.NotNil(t, stored.CaptureRef)
	assert.Equal(t, "CAP-1", *stored.CaptureRef)
	assert.Equal(t, enums.PaymentStatusPending, stored.Status)
}
