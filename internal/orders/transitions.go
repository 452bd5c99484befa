package orders

import "github.com/brickapparel/storefront-backend/pkg/enums"

var orderTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:    {enums.OrderStatusAuthorized, enums.OrderStatusCaptured, enums.OrderStatusCancelled},
	enums.OrderStatusAuthorized: {enums.OrderStatusCaptured, enums.OrderStatusCancelled, enums.OrderStatusRefunded},
	enums.OrderStatusCaptured:   {enums.OrderStatusShipped, enums.OrderStatusRefunded},
	enums.OrderStatusShipped:    {enums.OrderStatusDelivered, enums.OrderStatusRefunded},
	enums.OrderStatusDelivered:  {enums.OrderStatusRefunded},
}

// paymentTransitions lets a refund land from pending or failed, since it can be
// delivered ahead of the capture it reverses.
var paymentTransitions = map[enums.PaymentStatus][]enums.PaymentStatus{
	enums.PaymentStatusPending:    {enums.PaymentStatusAuthorized, enums.PaymentStatusCaptured, enums.PaymentStatusFailed, enums.PaymentStatusRefunded},
	enums.PaymentStatusAuthorized: {enums.PaymentStatusCaptured, enums.PaymentStatusFailed, enums.PaymentStatusRefunded},
	enums.PaymentStatusCaptured:   {enums.PaymentStatusRefunded},
	// A failed attempt can still succeed when the customer retries a method
	// on the same intent.
	enums.PaymentStatusFailed: {enums.PaymentStatusAuthorized, enums.PaymentStatusCaptured, enums.PaymentStatusRefunded},
}

// CanTransition reports whether an admin may move an order from one status
// to another. Refunded and cancelled are terminal.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, allowed := range orderTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AllowedTransitions lists the statuses reachable from from.
func AllowedTransitions(from enums.OrderStatus) []enums.OrderStatus {
	out := make([]enums.OrderStatus, len(orderTransitions[from]))
	copy(out, orderTransitions[from])
	return out
}

// CanTransitionPayment guards reconcile-driven payment status changes. Late
// or repeated provider events fall outside the table and become no-ops.
func CanTransitionPayment(from, to enums.PaymentStatus) bool {
	for _, allowed := range paymentTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// DeriveOrderStatus maps a new payment status onto the order. The second
// return is false when the order status does not change.
func DeriveOrderStatus(current enums.OrderStatus, payment enums.PaymentStatus) (enums.OrderStatus, bool) {
	if current.IsTerminal() {
		return current, false
	}
	switch payment {
	case enums.PaymentStatusAuthorized:
		if current == enums.OrderStatusPending {
			return enums.OrderStatusAuthorized, true
		}
	case enums.PaymentStatusCaptured:
		if current == enums.OrderStatusPending || current == enums.OrderStatusAuthorized {
			return enums.OrderStatusCaptured, true
		}
	case enums.PaymentStatusRefunded:
		return enums.OrderStatusRefunded, true
	}
	return current, false
}
