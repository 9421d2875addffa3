package payloads

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/farmlink-backend/pkg/enums"
)

// OrderCreatedEvent is emitted once an order and its items are committed.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	OrderNumber   string              `json:"order_number"`
	BuyerID       uuid.UUID           `json:"buyer_id"`
	SellerIDs     []uuid.UUID         `json:"seller_ids"`
	SubtotalCents int64               `json:"subtotal_cents"`
	DeliveryCents int64               `json:"delivery_fee_cents"`
	TotalCents    int64               `json:"total_cents"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	ItemCount     int                 `json:"item_count"`
}

// OrderItemDecidedEvent is emitted when a seller accepts or declines an item.
type OrderItemDecidedEvent struct {
	OrderID             uuid.UUID          `json:"order_id"`
	OrderNumber         string             `json:"order_number"`
	ItemID              uuid.UUID          `json:"item_id"`
	BuyerID             uuid.UUID          `json:"buyer_id"`
	SellerID            uuid.UUID          `json:"seller_id"`
	ProductName         string             `json:"product_name"`
	Decision            enums.ItemDecision `json:"decision"`
	ItemStatus          enums.ItemStatus   `json:"item_status"`
	OrderStatus         enums.OrderStatus  `json:"order_status"`
	PreviousOrderStatus enums.OrderStatus  `json:"previous_order_status"`
	StockReleased       bool               `json:"stock_released"`
	Notes               string             `json:"notes,omitempty"`
}

// OrderStatusChangedEvent is emitted for every guarded order status change.
type OrderStatusChangedEvent struct {
	OrderID         uuid.UUID           `json:"order_id"`
	OrderNumber     string              `json:"order_number"`
	BuyerID         uuid.UUID           `json:"buyer_id"`
	SellerIDs       []uuid.UUID         `json:"seller_ids"`
	From            enums.OrderStatus   `json:"from"`
	To              enums.OrderStatus   `json:"to"`
	ActorRole       enums.Role          `json:"actor_role"`
	ActorID         uuid.UUID           `json:"actor_id"`
	PaymentStatus   enums.PaymentStatus `json:"payment_status"`
	TotalCents      int64               `json:"total_cents"`
	ReleasedItemIDs []uuid.UUID         `json:"released_item_ids,omitempty"`
	Reason          string              `json:"reason,omitempty"`
}

// PaymentSettledEvent is emitted when a payment transaction reaches a final state.
type PaymentSettledEvent struct {
	OrderID       uuid.UUID               `json:"order_id"`
	OrderNumber   string                  `json:"order_number"`
	BuyerID       uuid.UUID               `json:"buyer_id"`
	SellerIDs     []uuid.UUID             `json:"seller_ids"`
	TransactionID string                  `json:"transaction_id"`
	AmountCents   int64                   `json:"amount_cents"`
	Currency      string                  `json:"currency"`
	Status        enums.TransactionStatus `json:"status"`
	OrderStatus   enums.OrderStatus       `json:"order_status"`
	PaymentStatus enums.PaymentStatus     `json:"payment_status"`
	FailureReason string                  `json:"failure_reason,omitempty"`
	// RefundReason is set when money was captured that the order cannot keep.
	RefundReason string `json:"refund_reason,omitempty"`
}
