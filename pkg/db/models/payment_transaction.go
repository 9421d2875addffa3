package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/farmlink-backend/pkg/enums"
)

// PaymentTransaction records one gateway attempt for an order. It settles at
// most once and is never deleted.
type PaymentTransaction struct {
	ID               uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	TransactionID    string                  `gorm:"column:transaction_id;type:text;not null;uniqueIndex:payment_transactions_transaction_id_key"`
	OrderID          uuid.UUID               `gorm:"column:order_id;type:uuid;not null;index"`
	AmountCents      int64                   `gorm:"column:amount_cents;not null"`
	Currency         string                  `gorm:"column:currency;type:text;not null"`
	PaymentMethod    enums.PaymentMethod     `gorm:"column:payment_method;type:text;not null"`
	Status           enums.TransactionStatus `gorm:"column:status;type:text;not null"`
	Gateway          string                  `gorm:"column:gateway;type:text;not null"`
	GatewaySessionID *string                 `gorm:"column:gateway_session_id;type:text"`
	RedirectURL      *string                 `gorm:"column:redirect_url;type:text"`
	FailureReason    *string                 `gorm:"column:failure_reason;type:text"`
	SettledAt        *time.Time              `gorm:"column:settled_at"`
	CreatedAt        time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *PaymentTransaction) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
