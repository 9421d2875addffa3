package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
)

// Repository persists payment transactions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, txn *models.PaymentTransaction) error
	FindByTransactionID(ctx context.Context, transactionID string, forUpdate bool) (*models.PaymentTransaction, error)
	FindBySessionID(ctx context.Context, sessionID string) (*models.PaymentTransaction, error)
	FindPendingForOrder(ctx context.Context, orderID uuid.UUID) (*models.PaymentTransaction, error)
	Settle(ctx context.Context, transactionID string, status enums.TransactionStatus, reason *string, at time.Time) (bool, error)
	FindPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.PaymentTransaction, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, txn *models.PaymentTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) FindByTransactionID(ctx context.Context, transactionID string, forUpdate bool) (*models.PaymentTransaction, error) {
	query := r.db.WithContext(ctx)
	if forUpdate {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var txn models.PaymentTransaction
	if err := query.Where("transaction_id = ?", transactionID).First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment transaction not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment transaction")
	}
	return &txn, nil
}

func (r *repository) FindBySessionID(ctx context.Context, sessionID string) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	if err := r.db.WithContext(ctx).Where("gateway_session_id = ?", sessionID).First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment transaction not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment transaction")
	}
	return &txn, nil
}

// FindPendingForOrder returns the order's unsettled transaction, or nil when
// there is none.
func (r *repository) FindPendingForOrder(ctx context.Context, orderID uuid.UUID) (*models.PaymentTransaction, error) {
	var rows []models.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, enums.TransactionStatusPending).
		Order("created_at DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// Settle moves a pending transaction to a terminal status. It reports false
// when the transaction had already settled.
func (r *repository) Settle(ctx context.Context, transactionID string, status enums.TransactionStatus, reason *string, at time.Time) (bool, error) {
	updates := map[string]any{
		"status":     status,
		"settled_at": at,
		"updated_at": at,
	}
	if reason != nil {
		updates["failure_reason"] = *reason
	}
	res := r.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Where("transaction_id = ? AND status = ?", transactionID, enums.TransactionStatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) FindPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.PaymentTransaction, error) {
	var rows []models.PaymentTransaction
	query := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.TransactionStatusPending, cutoff).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
