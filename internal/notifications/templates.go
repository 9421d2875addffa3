package notifications

import (
	"html"

	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	"github.com/angelmondragon/farmlink-backend/pkg/mailer"
)

var emailSubjects = map[enums.NotificationType]string{
	enums.NotificationOrderPlaced:     "We received your order",
	enums.NotificationOrderReceived:   "You have a new order",
	enums.NotificationItemAccepted:    "An item in your order was accepted",
	enums.NotificationItemDeclined:    "An item in your order was declined",
	enums.NotificationOrderConfirmed:  "Your order is confirmed",
	enums.NotificationOrderShipped:    "Your order has shipped",
	enums.NotificationOrderDelivered:  "Order delivered",
	enums.NotificationOrderCancelled:  "Order cancelled",
	enums.NotificationPaymentReceived: "Payment received",
	enums.NotificationPaymentFailed:   "Payment failed",
}

func renderEmail(kind enums.NotificationType, message string) mailer.Message {
	subject, ok := emailSubjects[kind]
	if !ok {
		subject = "Order update"
	}
	return mailer.Message{
		Subject: subject,
		Text:    message,
		HTML:    "<p>" + html.EscapeString(message) + "</p>",
	}
}
