package enums

import "fmt"

// OrderStatus is the aggregate lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusProcessing         OrderStatus = "processing"
	OrderStatusConfirmed          OrderStatus = "confirmed"
	OrderStatusPartiallyConfirmed OrderStatus = "partially_confirmed"
	OrderStatusShipped            OrderStatus = "shipped"
	OrderStatusDelivered          OrderStatus = "delivered"
	OrderStatusCancelled          OrderStatus = "cancelled"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusProcessing,
	OrderStatusConfirmed,
	OrderStatusPartiallyConfirmed,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition may leave this status.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// AwaitingSellers reports whether sellers can still act on items and the
// buyer can still cancel.
func (s OrderStatus) AwaitingSellers() bool {
	switch s {
	case OrderStatusProcessing, OrderStatusConfirmed, OrderStatusPartiallyConfirmed:
		return true
	default:
		return false
	}
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
