package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	"github.com/angelmondragon/farmlink-backend/pkg/money"
)

// amount renders minor units as a fixed two-decimal string.
func amount(cents int64) string {
	return money.FromCents(cents).StringFixed(2)
}

type shippingView struct {
	Address    string `json:"address"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
}

type itemView struct {
	ID              uuid.UUID        `json:"id"`
	ProductID       uuid.UUID        `json:"product_id"`
	SellerID        uuid.UUID        `json:"seller_id"`
	ProductName     string           `json:"product_name"`
	Quantity        int              `json:"quantity"`
	UnitPrice       string           `json:"unit_price"`
	Subtotal        string           `json:"subtotal"`
	Status          enums.ItemStatus `json:"status"`
	StatusUpdatedAt *time.Time       `json:"status_updated_at,omitempty"`
	SellerNotes     *string          `json:"seller_notes,omitempty"`
}

type orderView struct {
	ID            uuid.UUID           `json:"id"`
	OrderNumber   string              `json:"order_number"`
	BuyerID       uuid.UUID           `json:"buyer_id"`
	Status        enums.OrderStatus   `json:"status"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	Subtotal      string              `json:"subtotal"`
	DeliveryFee   string              `json:"delivery_fee"`
	Total         string              `json:"total"`
	Shipping      shippingView        `json:"shipping"`
	Notes         *string             `json:"notes,omitempty"`
	Items         []itemView          `json:"items"`
	ConfirmedAt   *time.Time          `json:"confirmed_at,omitempty"`
	ShippedAt     *time.Time          `json:"shipped_at,omitempty"`
	DeliveredAt   *time.Time          `json:"delivered_at,omitempty"`
	CancelledAt   *time.Time          `json:"cancelled_at,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
}

// viewOf renders an order. A seller only sees their own items.
func viewOf(order *models.Order, role enums.Role, actorID uuid.UUID) orderView {
	view := orderView{
		ID:            order.ID,
		OrderNumber:   order.OrderNumber,
		BuyerID:       order.BuyerID,
		Status:        order.Status,
		PaymentMethod: order.PaymentMethod,
		PaymentStatus: order.PaymentStatus,
		Subtotal:      amount(order.SubtotalCents),
		DeliveryFee:   amount(order.DeliveryFeeCents),
		Total:         amount(order.TotalCents),
		Shipping: shippingView{
			Address:    order.ShippingAddress,
			City:       order.ShippingCity,
			State:      order.ShippingState,
			PostalCode: order.ShippingPostalCode,
		},
		Notes:       order.Notes,
		Items:       make([]itemView, 0, len(order.Items)),
		ConfirmedAt: order.ConfirmedAt,
		ShippedAt:   order.ShippedAt,
		DeliveredAt: order.DeliveredAt,
		CancelledAt: order.CancelledAt,
		CreatedAt:   order.CreatedAt,
	}
	for i := range order.Items {
		item := &order.Items[i]
		if role == enums.RoleSeller && item.SellerID != actorID {
			continue
		}
		view.Items = append(view.Items, itemViewOf(item))
	}
	return view
}

func itemViewOf(item *models.OrderItem) itemView {
	return itemView{
		ID:              item.ID,
		ProductID:       item.ProductID,
		SellerID:        item.SellerID,
		ProductName:     item.ProductName,
		Quantity:        item.Quantity,
		UnitPrice:       amount(item.UnitPriceCents),
		Subtotal:        amount(item.SubtotalCents),
		Status:          item.Status,
		StatusUpdatedAt: item.StatusUpdatedAt,
		SellerNotes:     item.SellerNotes,
	}
}

type createOrderResponse struct {
	Order       orderView `json:"order"`
	RedirectURL string    `json:"payment_redirect_url,omitempty"`
	// PaymentError is set when the order was placed but the payment page
	// could not be opened; the buyer retries through the payments route.
	PaymentError string `json:"payment_error,omitempty"`
}

type decisionRequest struct {
	Decision enums.ItemDecision `json:"decision" validate:"required,oneof=accept decline"`
	Notes    *string            `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

type decisionResponse struct {
	Item        itemView          `json:"item"`
	OrderStatus enums.OrderStatus `json:"order_status"`
}

type statusRequest struct {
	TargetStatus enums.OrderStatus `json:"target_status" validate:"required"`
	Reason       string            `json:"reason,omitempty" validate:"max=255"`
}
