package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/farmlink-backend/pkg/enums"
)

// Order is the buyer-owned aggregate created by a single checkout.
type Order struct {
	ID                 uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber        string              `gorm:"column:order_number;type:text;not null;uniqueIndex:orders_order_number_key"`
	BuyerID            uuid.UUID           `gorm:"column:buyer_id;type:uuid;not null;index"`
	Status             enums.OrderStatus   `gorm:"column:status;type:text;not null"`
	PaymentMethod      enums.PaymentMethod `gorm:"column:payment_method;type:text;not null"`
	PaymentStatus      enums.PaymentStatus `gorm:"column:payment_status;type:text;not null"`
	SubtotalCents      int64               `gorm:"column:subtotal_cents;not null"`
	DeliveryFeeCents   int64               `gorm:"column:delivery_fee_cents;not null"`
	TotalCents         int64               `gorm:"column:total_cents;not null"`
	ShippingAddress    string              `gorm:"column:shipping_address;type:text;not null"`
	ShippingCity       string              `gorm:"column:shipping_city;type:text;not null"`
	ShippingState      string              `gorm:"column:shipping_state;type:text;not null"`
	ShippingPostalCode string              `gorm:"column:shipping_postal_code;type:text;not null"`
	Notes              *string             `gorm:"column:notes;type:text"`
	ConfirmedAt        *time.Time          `gorm:"column:confirmed_at"`
	ShippedAt          *time.Time          `gorm:"column:shipped_at"`
	DeliveredAt        *time.Time          `gorm:"column:delivered_at"`
	CancelledAt        *time.Time          `gorm:"column:cancelled_at"`
	Items              []OrderItem         `gorm:"foreignKey:OrderID;constraint:OnDelete:RESTRICT"`
	CreatedAt          time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// SellerIDs returns the distinct sellers referenced by the order items, in
// first-seen order.
func (o *Order) SellerIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(o.Items))
	ids := make([]uuid.UUID, 0, len(o.Items))
	for _, item := range o.Items {
		if _, ok := seen[item.SellerID]; ok {
			continue
		}
		seen[item.SellerID] = struct{}{}
		ids = append(ids, item.SellerID)
	}
	return ids
}

// HasSeller reports whether any item belongs to sellerID.
func (o *Order) HasSeller(sellerID uuid.UUID) bool {
	for _, item := range o.Items {
		if item.SellerID == sellerID {
			return true
		}
	}
	return false
}
