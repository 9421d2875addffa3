// Package inventory is the only writer of product stock. Every mutation runs
// on the caller's transaction so reservations roll back with the order that
// made them.
package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
)

// Ledger reserves and releases product stock.
type Ledger struct {
	now func() time.Time
}

// NewLedger builds the stock ledger.
func NewLedger() *Ledger {
	return &Ledger{now: time.Now}
}

// Reserve decrements stock by qty in a single conditional statement. The
// floor check and the decrement are one atomic step, so concurrent callers
// can never drive stock negative. A product that reaches zero is marked
// unavailable.
func (l *Ledger) Reserve(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "reservation quantity must be positive")
	}
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for inventory reserve")
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE products
		SET stock_qty = stock_qty - ?,
			is_available = CASE WHEN stock_qty - ? > 0 THEN is_available ELSE FALSE END,
			updated_at = ?
		WHERE id = ? AND stock_qty >= ?
	`, qty, qty, l.now().UTC(), productID, qty)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "reserve inventory")
	}
	if res.RowsAffected == 1 {
		return nil
	}

	exists, err := productExists(ctx, tx, productID)
	if err != nil {
		return err
	}
	if !exists {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
			WithDetails(map[string]any{"product_id": productID.String()})
	}
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, "product is no longer available in the requested quantity").
		WithDetails(map[string]any{"product_id": productID.String(), "requested_qty": qty})
}

// Release credits qty back to the product and marks it available again.
// Callers must release a reserved unit at most once; ReleaseItem enforces that
// for order items.
func (l *Ledger) Release(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return nil
	}
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for inventory release")
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE products
		SET stock_qty = stock_qty + ?,
			is_available = TRUE,
			updated_at = ?
		WHERE id = ?
	`, qty, l.now().UTC(), productID)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "release inventory")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
			WithDetails(map[string]any{"product_id": productID.String()})
	}
	return nil
}

// ReleaseItem restores the stock reserved by item unless it was already
// restored. The released flag is flipped with a guarded update first, so a
// retried decline or a cancel after a decline credits nothing. Reports
// whether stock was credited.
func (l *Ledger) ReleaseItem(ctx context.Context, tx *gorm.DB, item *models.OrderItem) (bool, error) {
	if item == nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "order item required")
	}
	if tx == nil {
		return false, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for inventory release")
	}

	now := l.now().UTC()
	res := tx.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("id = ? AND stock_released = ?", item.ID, false).
		Updates(map[string]any{
			"stock_released":    true,
			"stock_released_at": now,
			"updated_at":        now,
		})
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "mark item stock released")
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	if err := l.Release(ctx, tx, item.ProductID, item.Quantity); err != nil {
		return false, err
	}
	item.StockReleased = true
	item.StockReleasedAt = &now
	return true, nil
}

func productExists(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (bool, error) {
	var product models.Product
	err := tx.WithContext(ctx).Select("id").Where("id = ?", productID).Take(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return true, nil
}
