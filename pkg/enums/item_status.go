package enums

import "fmt"

// ItemStatus tracks the seller-facing state of a single order item.
type ItemStatus string

const (
	ItemStatusPending   ItemStatus = "pending"
	ItemStatusAccepted  ItemStatus = "accepted"
	ItemStatusDeclined  ItemStatus = "declined"
	ItemStatusDelivered ItemStatus = "delivered"
)

var validItemStatuses = []ItemStatus{
	ItemStatusPending,
	ItemStatusAccepted,
	ItemStatusDeclined,
	ItemStatusDelivered,
}

// itemEdges lists the only allowed item transitions.
var itemEdges = map[ItemStatus][]ItemStatus{
	ItemStatusPending:  {ItemStatusAccepted, ItemStatusDeclined},
	ItemStatusAccepted: {ItemStatusDelivered},
}

func (s ItemStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ItemStatus.
func (s ItemStatus) IsValid() bool {
	for _, candidate := range validItemStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the item can no longer change.
func (s ItemStatus) IsTerminal() bool {
	return s == ItemStatusDeclined || s == ItemStatusDelivered
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s ItemStatus) CanTransitionTo(next ItemStatus) bool {
	for _, candidate := range itemEdges[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ParseItemStatus converts raw input into an ItemStatus.
func ParseItemStatus(value string) (ItemStatus, error) {
	for _, candidate := range validItemStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid item status %q", value)
}
