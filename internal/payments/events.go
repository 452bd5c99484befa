package payments

import "github.com/brickapparel/storefront-backend/pkg/enums"

const (
	StripeEventIntentSucceeded   = "payment_intent.succeeded"
	StripeEventIntentFailed      = "payment_intent.payment_failed"
	StripeEventIntentCapturable  = "payment_intent.amount_capturable_updated"
	StripeEventChargeRefunded    = "charge.refunded"
	PayPalEventCaptureCompleted  = "PAYMENT.CAPTURE.COMPLETED"
	PayPalEventCaptureRefunded   = "PAYMENT.CAPTURE.REFUNDED"
	PayPalEventCaptureDenied     = "PAYMENT.CAPTURE.DENIED"
	PayPalEventCheckoutApproved  = "CHECKOUT.ORDER.APPROVED"
	stripeMetadataOrderID        = "order_id"
	stripeMetadataOrderNumber    = "order_number"
	stripeSignatureHeader        = "Stripe-Signature"
	paypalVerificationSuccessful = "SUCCESS"
)

var stripeEventStatus = map[string]enums.PaymentStatus{
	StripeEventIntentSucceeded:  enums.PaymentStatusCaptured,
	StripeEventIntentFailed:     enums.PaymentStatusFailed,
	StripeEventIntentCapturable: enums.PaymentStatusAuthorized,
	StripeEventChargeRefunded:   enums.PaymentStatusRefunded,
}

var paypalEventStatus = map[string]enums.PaymentStatus{
	PayPalEventCaptureCompleted: enums.PaymentStatusCaptured,
	PayPalEventCaptureRefunded:  enums.PaymentStatusRefunded,
	PayPalEventCaptureDenied:    enums.PaymentStatusFailed,
}

// MapEventStatus returns the payment status an event type implies.
func MapEventStatus(provider enums.PaymentProvider, eventType string) (enums.PaymentStatus, bool) {
	var table map[string]enums.PaymentStatus
	switch provider {
	case enums.PaymentProviderStripe:
		table = stripeEventStatus
	case enums.PaymentProviderPayPal:
		table = paypalEventStatus
	default:
		return "", false
	}
	status, ok := table[eventType]
	return status, ok
}
