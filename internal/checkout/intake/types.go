package intake

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/farmlink-backend/pkg/enums"
)

// ItemRequest is one requested line of a new order.
type ItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

// ShippingRequest carries the delivery destination.
type ShippingRequest struct {
	Address    string `json:"address" validate:"required,max=255"`
	City       string `json:"city" validate:"required,max=100"`
	State      string `json:"state" validate:"required,max=100"`
	PostalCode string `json:"postal_code" validate:"required,max=20"`
}

// OrderRequest is the buyer's checkout payload.
type OrderRequest struct {
	Items         []ItemRequest       `json:"items" validate:"required,min=1,dive"`
	Shipping      ShippingRequest     `json:"shipping"`
	PaymentMethod enums.PaymentMethod `json:"payment_method" validate:"required,oneof=cash_on_delivery online_payment"`
	Notes         string              `json:"notes,omitempty" validate:"max=1000"`
}

// Input is the request plus the authenticated caller.
type Input struct {
	BuyerID uuid.UUID
	Role    enums.Role
	Request OrderRequest
}

// Line is a validated item with the price snapshot taken at validation time.
type Line struct {
	ProductID      uuid.UUID
	SellerID       uuid.UUID
	ProductName    string
	Quantity       int
	UnitPriceCents int64
}

func (l Line) SubtotalCents() int64 {
	return l.UnitPriceCents * int64(l.Quantity)
}

type Shipping struct {
	Address    string
	City       string
	State      string
	PostalCode string
}

// ValidatedOrder is safe to hand to the creation coordinator. Stock checks
// behind it are advisory; reservation is authoritative.
type ValidatedOrder struct {
	BuyerID       uuid.UUID
	Lines         []Line
	Shipping      Shipping
	PaymentMethod enums.PaymentMethod
	Notes         string
}

// SubtotalCents sums every line subtotal.
func (v *ValidatedOrder) SubtotalCents() int64 {
	var total int64
	for _, line := range v.Lines {
		total += line.SubtotalCents()
	}
	return total
}

// ItemViolation explains why one requested line was rejected.
type ItemViolation struct {
	ProductID string `json:"product_id"`
	Reason    string `json:"reason"`
	Requested int    `json:"requested_qty,omitempty"`
	Available *int   `json:"available_qty,omitempty"`
}
