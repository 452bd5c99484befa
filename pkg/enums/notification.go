package enums

import "fmt"

// NotificationType maps to the notification_type column.
type NotificationType string

const (
	NotificationTypeNewOrder             NotificationType = "new_order"
	NotificationTypePaymentAuthorized    NotificationType = "payment_authorized"
	NotificationTypePaymentCaptured      NotificationType = "payment_captured"
	NotificationTypePaymentFailed        NotificationType = "payment_failed"
	NotificationTypePaymentRefunded      NotificationType = "payment_refunded"
	NotificationTypeLowStock             NotificationType = "low_stock"
	NotificationTypeOutOfStock           NotificationType = "out_of_stock"
	NotificationTypeOrderStatusChange    NotificationType = "order_status_change"
	NotificationTypeReconciliationFailed NotificationType = "reconciliation_failed"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeNewOrder,
	NotificationTypePaymentAuthorized,
	NotificationTypePaymentCaptured,
	NotificationTypePaymentFailed,
	NotificationTypePaymentRefunded,
	NotificationTypeLowStock,
	NotificationTypeOutOfStock,
	NotificationTypeOrderStatusChange,
	NotificationTypeReconciliationFailed,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw input into a NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}

// PaymentNotificationType returns the payment_<status> notification for a status.
func PaymentNotificationType(status PaymentStatus) (NotificationType, bool) {
	switch status {
	case PaymentStatusAuthorized:
		return NotificationTypePaymentAuthorized, true
	case PaymentStatusCaptured:
		return NotificationTypePaymentCaptured, true
	case PaymentStatusFailed:
		return NotificationTypePaymentFailed, true
	case PaymentStatusRefunded:
		return NotificationTypePaymentRefunded, true
	default:
		return "", false
	}
}
