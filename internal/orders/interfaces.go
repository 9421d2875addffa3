package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	"github.com/angelmondragon/farmlink-backend/pkg/pagination"
)

// Repository defines persistence operations for orders and their items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	OrderNumberExists(ctx context.Context, number string) (bool, error)
	CreateOrder(ctx context.Context, order *models.Order) error
	FindOrder(ctx context.Context, orderID uuid.UUID, forUpdate bool) (*models.Order, error)
	FindItem(ctx context.Context, itemID uuid.UUID, forUpdate bool) (*models.OrderItem, error)
	DecideItem(ctx context.Context, itemID uuid.UUID, status enums.ItemStatus, notes *string, at time.Time) (bool, error)
	UpdateOrderIfStatus(ctx context.Context, orderID uuid.UUID, observed enums.OrderStatus, updates map[string]any) (bool, error)
	UpdateOrder(ctx context.Context, orderID uuid.UUID, updates map[string]any) error
	DeliverAcceptedItems(ctx context.Context, orderID uuid.UUID, at time.Time) (int64, error)
	ListBuyerOrders(ctx context.Context, buyerID uuid.UUID, params pagination.Params, filters ListFilters) (*OrderList, error)
	ListSellerOrders(ctx context.Context, sellerID uuid.UUID, params pagination.Params, filters ListFilters) (*OrderList, error)
	FindUnpaidBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	HasPendingPayment(ctx context.Context, orderID uuid.UUID) (bool, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// StockReleaser returns the stock held by an item at most once.
type StockReleaser interface {
	ReleaseItem(ctx context.Context, tx *gorm.DB, item *models.OrderItem) (bool, error)
}
