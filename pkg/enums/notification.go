package enums

import "fmt"

// NotificationType classifies a persisted notice.
type NotificationType string

const (
	NotificationOrderPlaced     NotificationType = "order_placed"
	NotificationOrderReceived   NotificationType = "order_received"
	NotificationItemAccepted    NotificationType = "item_accepted"
	NotificationItemDeclined    NotificationType = "item_declined"
	NotificationOrderShipped    NotificationType = "order_shipped"
	NotificationOrderDelivered  NotificationType = "order_delivered"
	NotificationOrderCancelled  NotificationType = "order_cancelled"
	NotificationOrderConfirmed  NotificationType = "order_confirmed"
	NotificationPaymentReceived NotificationType = "payment_received"
	NotificationPaymentFailed   NotificationType = "payment_failed"
)

var validNotificationTypes = []NotificationType{
	NotificationOrderPlaced,
	NotificationOrderReceived,
	NotificationItemAccepted,
	NotificationItemDeclined,
	NotificationOrderShipped,
	NotificationOrderDelivered,
	NotificationOrderCancelled,
	NotificationOrderConfirmed,
	NotificationPaymentReceived,
	NotificationPaymentFailed,
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

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
