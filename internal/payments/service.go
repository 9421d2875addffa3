// Package payments runs online payment settlement outside the order creation
// transaction: it opens gateway checkouts, records one transaction per
// attempt and folds gateway verdicts back into the order exactly once.
package payments

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/farmlink-backend/internal/orders"
	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
	"github.com/angelmondragon/farmlink-backend/pkg/logger"
	"github.com/angelmondragon/farmlink-backend/pkg/metrics"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox/payloads"
)

const (
	defaultGatewayTimeout = 15 * time.Second
	reasonGatewayTimeout  = "gateway_timeout"
	reasonNoSession       = "gateway_session_missing"

	refundDuplicateCharge = "duplicate_charge"
	refundOrderCancelled  = "order_cancelled"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Config carries gateway call settings.
type Config struct {
	Currency        string
	GatewayTimeout  time.Duration
	SuccessURL      string
	CancelURL       string
	CheckoutExpires time.Duration
}

// InitiateInput identifies the order a buyer wants to pay.
type InitiateInput struct {
	OrderID uuid.UUID
	BuyerID uuid.UUID
}

// InitiateResult is the pending transaction and where to send the buyer.
type InitiateResult struct {
	Transaction *models.PaymentTransaction
	RedirectURL string
}

// Service defines payment settlement operations.
type Service interface {
	Initiate(ctx context.Context, input InitiateInput) (*InitiateResult, error)
	Reconcile(ctx context.Context, transactionID string, outcome *Outcome) (*models.PaymentTransaction, error)
	ReconcilePending(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

type service struct {
	cfg     Config
	tx      txRunner
	repo    Repository
	orders  orders.Repository
	gateway Gateway
	outbox  outbox.Emitter
	logg    *logger.Logger
	metrics *metrics.OrderMetrics
	now     func() time.Time
	random  io.Reader
}

// Deps groups the collaborators of the payment service.
type Deps struct {
	Tx           txRunner
	Transactions Repository
	Orders       orders.Repository
	Gateway      Gateway
	Outbox       outbox.Emitter
	Logger       *logger.Logger
	Metrics      *metrics.OrderMetrics
}

func NewService(cfg Config, deps Deps) (Service, error) {
	if deps.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if deps.Transactions == nil {
		return nil, fmt.Errorf("payment transaction repository required")
	}
	if deps.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if deps.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if deps.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = defaultGatewayTimeout
	}
	cfg.Currency = strings.ToLower(strings.TrimSpace(cfg.Currency))
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	logg := deps.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		cfg:     cfg,
		tx:      deps.Tx,
		repo:    deps.Transactions,
		orders:  deps.Orders,
		gateway: deps.Gateway,
		outbox:  deps.Outbox,
		logg:    logg,
		metrics: deps.Metrics,
		now:     time.Now,
		random:  rand.Reader,
	}, nil
}

// Initiate records a pending transaction, then opens a gateway checkout for
// it. The gateway round trip holds no database transaction. A gateway error
// or timeout settles the transaction as failed, marks the order payment
// failed and surfaces as a gateway error the buyer can retry with a new
// Initiate. An order has at most one open checkout: while it is live,
// Initiate hands back the same redirect instead of opening another.
func (s *service) Initiate(ctx context.Context, input InitiateInput) (*InitiateResult, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.orders.FindOrder(ctx, input.OrderID, false)
	if err != nil {
		return nil, err
	}
	if err := checkPayable(order, input.BuyerID); err != nil {
		return nil, err
	}
	if err := s.settleLapsedCheckout(ctx, order.ID); err != nil {
		return nil, err
	}

	transactionID, err := s.transactionID(order.OrderNumber)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build transaction id")
	}
	txn := &models.PaymentTransaction{
		TransactionID: transactionID,
		OrderID:       order.ID,
		AmountCents:   order.TotalCents,
		Currency:      s.cfg.Currency,
		PaymentMethod: enums.PaymentMethodOnline,
		Status:        enums.TransactionStatusPending,
		Gateway:       s.gateway.Name(),
	}

	var open *models.PaymentTransaction
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ordersRepo := s.orders.WithTx(tx)

		locked, err := ordersRepo.FindOrder(ctx, order.ID, true)
		if err != nil {
			return err
		}
		if err := checkPayable(locked, input.BuyerID); err != nil {
			return err
		}
		existing, err := repo.FindPendingForOrder(ctx, locked.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find open payment")
		}
		if existing != nil {
			if existing.RedirectURL == nil || *existing.RedirectURL == "" {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "a payment for this order is already being opened").
					WithDetails(map[string]any{"transaction_id": existing.TransactionID})
			}
			open = existing
			return nil
		}

		if err := repo.Create(ctx, txn); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment transaction")
		}
		if err := ordersRepo.UpdateOrder(ctx, locked.ID, map[string]any{
			"payment_status": enums.PaymentStatusPending,
			"updated_at":     s.now().UTC(),
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order payment pending")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if open != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"order_id":       order.ID.String(),
			"transaction_id": open.TransactionID,
		}), "payment checkout already open")
		return &InitiateResult{Transaction: open, RedirectURL: *open.RedirectURL}, nil
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":       order.ID.String(),
		"transaction_id": transactionID,
	})

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	session, gatewayErr := s.gateway.CreateCheckout(callCtx, CheckoutRequest{
		TransactionID: transactionID,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		AmountCents:   order.TotalCents,
		Currency:      s.cfg.Currency,
		SuccessURL:    s.cfg.SuccessURL,
		CancelURL:     s.cfg.CancelURL,
		ExpiresAt:     s.expiresAt(),
	})
	cancel()
	if gatewayErr == nil && (session == nil || session.RedirectURL == "") {
		gatewayErr = errors.New("gateway returned no redirect url")
	}
	if gatewayErr != nil {
		reason := gatewayErr.Error()
		if errors.Is(gatewayErr, context.DeadlineExceeded) {
			reason = reasonGatewayTimeout
		}
		s.logg.Error(logCtx, "payment gateway checkout failed", gatewayErr)
		if _, err := s.settle(ctx, transactionID, Outcome{Status: enums.TransactionStatusFailed, FailureReason: reason}); err != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, gatewayErr, "payment gateway unavailable").
			WithDetails(map[string]any{"transaction_id": transactionID})
	}

	sessionID := session.SessionID
	redirect := session.RedirectURL
	if err := s.attachSession(ctx, txn, sessionID, redirect); err != nil {
		return nil, err
	}

	s.logg.Info(logCtx, "payment initiated")
	return &InitiateResult{Transaction: txn, RedirectURL: redirect}, nil
}

// settleLapsedCheckout polls the gateway for an open checkout whose session
// has passed its expiry so a retry does not stay blocked behind it.
func (s *service) settleLapsedCheckout(ctx context.Context, orderID uuid.UUID) error {
	if s.cfg.CheckoutExpires <= 0 {
		return nil
	}
	open, err := s.repo.FindPendingForOrder(ctx, orderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find open payment")
	}
	if open == nil || open.GatewaySessionID == nil {
		return nil
	}
	if open.CreatedAt.Add(s.cfg.CheckoutExpires).After(s.now()) {
		return nil
	}
	_, err = s.Reconcile(ctx, open.TransactionID, nil)
	return err
}

// Reconcile folds a gateway verdict into the transaction and its order. A nil
// outcome polls the gateway; a poll timeout counts as failed. Reconciling a
// transaction that already settled returns it unchanged.
func (s *service) Reconcile(ctx context.Context, transactionID string, outcome *Outcome) (*models.PaymentTransaction, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}
	txn, err := s.repo.FindByTransactionID(ctx, transactionID, false)
	if err != nil {
		return nil, err
	}
	if txn.Status.IsTerminal() {
		return txn, nil
	}

	verdict, err := s.resolveOutcome(ctx, txn, outcome)
	if err != nil {
		return nil, err
	}
	if !verdict.Status.IsTerminal() {
		return txn, nil
	}
	return s.settle(ctx, transactionID, verdict)
}

// ReconcilePending polls the gateway for transactions still pending before
// cutoff. It returns how many settled.
func (s *service) ReconcilePending(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	pending, err := s.repo.FindPendingBefore(ctx, cutoff, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find pending transactions")
	}
	settled := 0
	var errs error
	for _, txn := range pending {
		updated, err := s.Reconcile(ctx, txn.TransactionID, nil)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("reconcile %s: %w", txn.TransactionID, err))
			continue
		}
		if updated.Status.IsTerminal() {
			settled++
		}
	}
	return settled, errs
}

func (s *service) resolveOutcome(ctx context.Context, txn *models.PaymentTransaction, outcome *Outcome) (Outcome, error) {
	if outcome != nil {
		if outcome.Status != enums.TransactionStatusPending && !outcome.Status.IsTerminal() {
			return Outcome{}, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment outcome")
		}
		return *outcome, nil
	}
	if txn.GatewaySessionID == nil || *txn.GatewaySessionID == "" {
		return Outcome{Status: enums.TransactionStatusFailed, FailureReason: reasonNoSession}, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()
	verdict, err := s.gateway.LookupOutcome(callCtx, *txn.GatewaySessionID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Outcome{Status: enums.TransactionStatusFailed, FailureReason: reasonGatewayTimeout}, nil
		}
		return Outcome{}, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "lookup payment outcome")
	}
	return verdict, nil
}

// settle applies a terminal outcome exactly once. Losing the race to another
// reconciler is not an error; the stored transaction is returned.
func (s *service) settle(ctx context.Context, transactionID string, outcome Outcome) (*models.PaymentTransaction, error) {
	var result *models.PaymentTransaction
	applied := false
	refundReason := ""
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ordersRepo := s.orders.WithTx(tx)
		now := s.now().UTC()

		var reason *string
		if outcome.Status == enums.TransactionStatusFailed && outcome.FailureReason != "" {
			r := outcome.FailureReason
			reason = &r
		}
		ok, err := repo.Settle(ctx, transactionID, outcome.Status, reason, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settle payment transaction")
		}
		txn, err := repo.FindByTransactionID(ctx, transactionID, false)
		if err != nil {
			return err
		}
		result = txn
		if !ok {
			return nil
		}
		applied = true

		order, err := ordersRepo.FindOrder(ctx, txn.OrderID, true)
		if err != nil {
			return err
		}
		updates := map[string]any{"updated_at": now}
		switch outcome.Status {
		case enums.TransactionStatusCompleted:
			refundReason = refundReasonFor(order)
			updates["payment_status"] = enums.PaymentStatusCompleted
			order.PaymentStatus = enums.PaymentStatusCompleted
			if order.Status == enums.OrderStatusProcessing {
				updates["status"] = enums.OrderStatusConfirmed
				updates["confirmed_at"] = now
				order.Status = enums.OrderStatusConfirmed
			}
		case enums.TransactionStatusFailed:
			if order.PaymentStatus != enums.PaymentStatusCompleted {
				updates["payment_status"] = enums.PaymentStatusFailed
				order.PaymentStatus = enums.PaymentStatusFailed
			}
		}
		if err := ordersRepo.UpdateOrder(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply payment outcome to order")
		}

		failure := ""
		if txn.FailureReason != nil {
			failure = *txn.FailureReason
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentSettled,
			AggregateType: enums.AggregatePaymentTransaction,
			AggregateID:   txn.ID,
			Actor:         &outbox.ActorRef{Role: enums.RoleSystem},
			OccurredAt:    now,
			Data: payloads.PaymentSettledEvent{
				OrderID:       order.ID,
				OrderNumber:   order.OrderNumber,
				BuyerID:       order.BuyerID,
				SellerIDs:     order.SellerIDs(),
				TransactionID: txn.TransactionID,
				AmountCents:   txn.AmountCents,
				Currency:      txn.Currency,
				Status:        txn.Status,
				OrderStatus:   order.Status,
				PaymentStatus: order.PaymentStatus,
				FailureReason: failure,
				RefundReason:  refundReason,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit payment settled event")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if applied {
		s.metrics.IncSettlement(string(outcome.Status))
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"transaction_id": transactionID,
			"status":         string(outcome.Status),
		})
		if refundReason != "" {
			s.logg.Warn(s.logg.WithField(logCtx, "refund_reason", refundReason), "payment captured for an order that cannot keep it")
		} else {
			s.logg.Info(logCtx, "payment settled")
		}
	}
	return result, nil
}

func (s *service) attachSession(ctx context.Context, txn *models.PaymentTransaction, sessionID, redirect string) error {
	updates := map[string]any{
		"gateway_session_id": sessionID,
		"redirect_url":       redirect,
		"updated_at":         s.now().UTC(),
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.WithContext(ctx).
			Model(&models.PaymentTransaction{}).
			Where("id = ?", txn.ID).
			Updates(updates).Error
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "attach gateway session")
	}
	txn.GatewaySessionID = &sessionID
	txn.RedirectURL = &redirect
	return nil
}

func (s *service) transactionID(orderNumber string) (string, error) {
	buf := make([]byte, 4)
	if _, err := io.ReadFull(s.random, buf); err != nil {
		return "", err
	}
	return orderNumber + "-" + hex.EncodeToString(buf), nil
}

func (s *service) expiresAt() time.Time {
	if s.cfg.CheckoutExpires <= 0 {
		return time.Time{}
	}
	return s.now().UTC().Add(s.cfg.CheckoutExpires)
}

// refundReasonFor names why money captured for order has to go back, or
// returns "" when the order can keep it.
func refundReasonFor(order *models.Order) string {
	switch {
	case order.PaymentStatus == enums.PaymentStatusCompleted:
		return refundDuplicateCharge
	case order.Status == enums.OrderStatusCancelled:
		return refundOrderCancelled
	default:
		return ""
	}
}

func checkPayable(order *models.Order, buyerID uuid.UUID) error {
	if order.BuyerID != buyerID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to buyer")
	}
	if !order.PaymentMethod.SettlesOnline() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not paid online")
	}
	if order.Status.IsTerminal() {
		return pkgerrors.Newf(pkgerrors.CodeStateConflict, "order is %s", order.Status)
	}
	if order.PaymentStatus == enums.PaymentStatusCompleted {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order is already paid")
	}
	return nil
}
