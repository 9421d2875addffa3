package orders

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
)

// ListFilters narrow the order lists.
type ListFilters struct {
	Status        *enums.OrderStatus
	PaymentStatus *enums.PaymentStatus
}

// OrderList wraps a page of orders plus the next page cursor.
type OrderList struct {
	Orders     []models.Order `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// DecideInput carries a seller's decision about one pending item.
type DecideInput struct {
	ItemID   uuid.UUID
	SellerID uuid.UUID
	Decision enums.ItemDecision
	Notes    *string
}

// DecideResult is the decided item and the order status after recomputation.
type DecideResult struct {
	Item          *models.OrderItem
	OrderStatus   enums.OrderStatus
	StatusChanged bool
	StockReleased bool
}

// TransitionInput requests an order status change on behalf of an actor.
type TransitionInput struct {
	OrderID uuid.UUID
	ActorID uuid.UUID
	Role    enums.Role
	Target  enums.OrderStatus
	Reason  string
}

// ListInput scopes the order list to the caller.
type ListInput struct {
	ActorID uuid.UUID
	Role    enums.Role
	Limit   int
	Cursor  string
	Filters ListFilters
}
