package orders

import (
	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
)

// AggregateStatus derives the order status from its item statuses. While any
// item is pending the current status stands. Once every item is decided the
// order is confirmed when nothing was declined and partially confirmed
// otherwise, including when every item was declined. The result depends only
// on the multiset of item statuses, never on decision order. Orders that have
// left the awaiting-sellers phase are returned unchanged.
func AggregateStatus(current enums.OrderStatus, items []enums.ItemStatus) enums.OrderStatus {
	if !current.AwaitingSellers() || len(items) == 0 {
		return current
	}
	declined := false
	for _, status := range items {
		switch status {
		case enums.ItemStatusPending:
			return current
		case enums.ItemStatusDeclined:
			declined = true
		}
	}
	if declined {
		return enums.OrderStatusPartiallyConfirmed
	}
	return enums.OrderStatusConfirmed
}

func statusesOf(items []models.OrderItem) []enums.ItemStatus {
	out := make([]enums.ItemStatus, len(items))
	for i, item := range items {
		out[i] = item.Status
	}
	return out
}
