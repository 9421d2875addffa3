package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Product is the catalog listing. StockQty is written only by the inventory
// ledger.
type Product struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	SellerID    uuid.UUID `gorm:"column:seller_id;type:uuid;not null;index"`
	Name        string    `gorm:"column:name;type:text;not null"`
	PriceCents  int64     `gorm:"column:price_cents;not null"`
	StockQty    int       `gorm:"column:stock_qty;not null;check:products_stock_non_negative,stock_qty >= 0"`
	IsAvailable bool      `gorm:"column:is_available;not null"`
	IsActive    bool      `gorm:"column:is_active;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// Sellable reports whether the product can currently be ordered.
func (p *Product) Sellable() bool {
	return p.IsActive && p.IsAvailable && p.StockQty > 0
}
