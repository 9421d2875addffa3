package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/farmlink-backend/pkg/enums"
)

// OrderItem is one seller-owned line within an order. Quantity and price are
// snapshotted at creation and never change.
type OrderItem struct {
	ID              uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	OrderID         uuid.UUID        `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID       uuid.UUID        `gorm:"column:product_id;type:uuid;not null"`
	SellerID        uuid.UUID        `gorm:"column:seller_id;type:uuid;not null;index"`
	ProductName     string           `gorm:"column:product_name;type:text;not null"`
	Quantity        int              `gorm:"column:quantity;not null"`
	UnitPriceCents  int64            `gorm:"column:unit_price_cents;not null"`
	SubtotalCents   int64            `gorm:"column:subtotal_cents;not null"`
	Status          enums.ItemStatus `gorm:"column:status;type:text;not null"`
	StatusUpdatedAt *time.Time       `gorm:"column:status_updated_at"`
	SellerNotes     *string          `gorm:"column:seller_notes;type:text"`
	StockReleased   bool             `gorm:"column:stock_released;not null"`
	StockReleasedAt *time.Time       `gorm:"column:stock_released_at"`
	CreatedAt       time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
