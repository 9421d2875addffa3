// Package orders owns the seller-facing item lifecycle and the role-scoped
// order status transitions.
package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
	"github.com/angelmondragon/farmlink-backend/pkg/logger"
	"github.com/angelmondragon/farmlink-backend/pkg/metrics"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/farmlink-backend/pkg/pagination"
)

// Service defines order operations beyond repository reads.
type Service interface {
	Decide(ctx context.Context, input DecideInput) (*DecideResult, error)
	Transition(ctx context.Context, input TransitionInput) (*models.Order, error)
	Get(ctx context.Context, orderID, actorID uuid.UUID, role enums.Role) (*models.Order, error)
	List(ctx context.Context, input ListInput) (*OrderList, error)
	ExpireUnpaid(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outbox.Emitter
	stock   StockReleaser
	logg    *logger.Logger
	metrics *metrics.OrderMetrics
	now     func() time.Time
}

// NewService builds the order service with the required dependencies.
func NewService(repo Repository, tx txRunner, emitter outbox.Emitter, stock StockReleaser, logg *logger.Logger, m *metrics.OrderMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if stock == nil {
		return nil, fmt.Errorf("stock releaser required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:    repo,
		tx:      tx,
		outbox:  emitter,
		stock:   stock,
		logg:    logg,
		metrics: m,
		now:     time.Now,
	}, nil
}

// Decide applies a seller's accept or decline to a pending item and
// recomputes the parent order status in the same transaction.
func (s *service) Decide(ctx context.Context, input DecideInput) (*DecideResult, error) {
	if input.ItemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id required")
	}
	if input.SellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "seller identity missing")
	}
	if !input.Decision.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "decision must be accept or decline")
	}

	var result *DecideResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		// Lock order before item, the same order Transition takes them in.
		unlocked, err := repo.FindItem(ctx, input.ItemID, false)
		if err != nil {
			return err
		}
		if unlocked.SellerID != input.SellerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "item does not belong to seller")
		}
		order, err := repo.FindOrder(ctx, unlocked.OrderID, true)
		if err != nil {
			return err
		}
		item, err := repo.FindItem(ctx, input.ItemID, true)
		if err != nil {
			return err
		}
		if !order.Status.AwaitingSellers() {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "order is %s and no longer accepts decisions", order.Status).
				WithDetails(map[string]any{"order_status": order.Status})
		}
		if item.Status != enums.ItemStatusPending {
			return alreadyProcessed(item)
		}

		now := s.now().UTC()
		target := input.Decision.TargetStatus()
		updated, err := repo.DecideItem(ctx, item.ID, target, input.Notes, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order item")
		}
		if !updated {
			return alreadyProcessed(item)
		}
		item.Status = target
		item.StatusUpdatedAt = &now
		if input.Notes != nil {
			item.SellerNotes = input.Notes
		}

		released := false
		if target == enums.ItemStatusDeclined {
			released, err = s.stock.ReleaseItem(ctx, tx, item)
			if err != nil {
				return err
			}
		}

		for i := range order.Items {
			if order.Items[i].ID == item.ID {
				order.Items[i] = *item
			}
		}
		previous := order.Status
		next := AggregateStatus(previous, statusesOf(order.Items))
		changed := next != previous
		if changed {
			updates := map[string]any{"status": next, "updated_at": now}
			if next == enums.OrderStatusConfirmed && order.ConfirmedAt == nil {
				updates["confirmed_at"] = now
			}
			ok, err := repo.UpdateOrderIfStatus(ctx, order.ID, previous, updates)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed concurrently")
			}
			order.Status = next
		}

		actor := &outbox.ActorRef{UserID: input.SellerID, Role: enums.RoleSeller}
		notes := ""
		if input.Notes != nil {
			notes = *input.Notes
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderItemDecided,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actor,
			OccurredAt:    now,
			Data: payloads.OrderItemDecidedEvent{
				OrderID:             order.ID,
				OrderNumber:         order.OrderNumber,
				ItemID:              item.ID,
				BuyerID:             order.BuyerID,
				SellerID:            item.SellerID,
				ProductName:         item.ProductName,
				Decision:            input.Decision,
				ItemStatus:          item.Status,
				OrderStatus:         next,
				PreviousOrderStatus: previous,
				StockReleased:       released,
				Notes:               notes,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit item decided event")
		}
		if changed {
			if err := s.emitStatusChanged(ctx, tx, order, previous, actor, nil, ""); err != nil {
				return err
			}
		}

		result = &DecideResult{
			Item:          item,
			OrderStatus:   next,
			StatusChanged: changed,
			StockReleased: released,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncDecision(string(input.Decision))
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"item_id":      result.Item.ID.String(),
		"order_id":     result.Item.OrderID.String(),
		"decision":     string(input.Decision),
		"order_status": string(result.OrderStatus),
	})
	s.logg.Info(logCtx, "order item decided")
	return result, nil
}

// Transition moves an order to target on behalf of an actor. Authorization
// is evaluated against the locked row before any write, and the status update
// is conditional on the observed status so concurrent transitions cannot both
// win.
func (s *service) Transition(ctx context.Context, input TransitionInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.ActorID == uuid.Nil && input.Role != enums.RoleSystem {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !input.Target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown target status")
	}

	var order *models.Order
	var previous enums.OrderStatus
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		loaded, err := repo.FindOrder(ctx, input.OrderID, true)
		if err != nil {
			return err
		}
		if err := Authorize(loaded, input.ActorID, input.Role, input.Target); err != nil {
			return err
		}
		if input.Role == enums.RoleSystem && input.Target == enums.OrderStatusCancelled {
			pending, err := repo.HasPendingPayment(ctx, loaded.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check pending payments")
			}
			if pending {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "order has a payment in progress")
			}
		}

		now := s.now().UTC()
		previous = loaded.Status
		updates := map[string]any{"status": input.Target, "updated_at": now}
		var released []uuid.UUID

		switch input.Target {
		case enums.OrderStatusShipped:
			updates["shipped_at"] = now
		case enums.OrderStatusCancelled:
			updates["cancelled_at"] = now
			for i := range loaded.Items {
				item := &loaded.Items[i]
				if item.Status == enums.ItemStatusDeclined || item.Status == enums.ItemStatusDelivered {
					continue
				}
				ok, err := s.stock.ReleaseItem(ctx, tx, item)
				if err != nil {
					return err
				}
				if ok {
					released = append(released, item.ID)
				}
			}
		case enums.OrderStatusDelivered:
			updates["delivered_at"] = now
			if _, err := repo.DeliverAcceptedItems(ctx, loaded.ID, now); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deliver accepted items")
			}
			for i := range loaded.Items {
				if loaded.Items[i].Status == enums.ItemStatusAccepted {
					loaded.Items[i].Status = enums.ItemStatusDelivered
					loaded.Items[i].StatusUpdatedAt = &now
				}
			}
			if loaded.PaymentMethod == enums.PaymentMethodCashOnDelivery {
				updates["payment_status"] = enums.PaymentStatusCompleted
				loaded.PaymentStatus = enums.PaymentStatusCompleted
			}
		}

		ok, err := repo.UpdateOrderIfStatus(ctx, loaded.ID, previous, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed concurrently").
				WithDetails(map[string]any{"observed": previous})
		}
		loaded.Status = input.Target
		loaded.UpdatedAt = now
		stampTransition(loaded, input.Target, now)

		actor := &outbox.ActorRef{UserID: input.ActorID, Role: input.Role}
		if err := s.emitStatusChanged(ctx, tx, loaded, previous, actor, released, input.Reason); err != nil {
			return err
		}
		order = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncTransition(string(input.Target), string(input.Role))
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":   order.ID.String(),
		"from":       string(previous),
		"to":         string(order.Status),
		"actor_role": string(input.Role),
	})
	s.logg.Info(logCtx, "order status changed")
	return order, nil
}

// Get returns an order visible to the caller: the buyer who owns it, a seller
// with items in it, or any agent.
func (s *service) Get(ctx context.Context, orderID, actorID uuid.UUID, role enums.Role) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindOrder(ctx, orderID, false)
	if err != nil {
		return nil, err
	}
	switch role {
	case enums.RoleBuyer:
		if order.BuyerID == actorID {
			return order, nil
		}
	case enums.RoleSeller:
		if order.HasSeller(actorID) {
			return order, nil
		}
	case enums.RoleAgent:
		return order, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
}

func (s *service) List(ctx context.Context, input ListInput) (*OrderList, error) {
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	params := pagination.Params{Limit: input.Limit, Cursor: input.Cursor}
	switch input.Role {
	case enums.RoleBuyer:
		return s.repo.ListBuyerOrders(ctx, input.ActorID, params, input.Filters)
	case enums.RoleSeller:
		return s.repo.ListSellerOrders(ctx, input.ActorID, params, input.Filters)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "role cannot list orders")
	}
}

// ExpireUnpaid cancels online orders whose payment never completed before
// cutoff. Orders that moved on concurrently are skipped.
func (s *service) ExpireUnpaid(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	candidates, err := s.repo.FindUnpaidBefore(ctx, cutoff, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find unpaid orders")
	}
	expired := 0
	for _, candidate := range candidates {
		_, err := s.Transition(ctx, TransitionInput{
			OrderID: candidate.ID,
			Role:    enums.RoleSystem,
			Target:  enums.OrderStatusCancelled,
			Reason:  "payment_expired",
		})
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeForbidden) || pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
				s.logg.Warn(s.logg.WithOrder(ctx, candidate.ID.String(), candidate.OrderNumber), "unpaid order moved on before expiry")
				continue
			}
			return expired, err
		}
		expired++
	}
	return expired, nil
}

func (s *service) emitStatusChanged(ctx context.Context, tx *gorm.DB, order *models.Order, from enums.OrderStatus, actor *outbox.ActorRef, released []uuid.UUID, reason string) error {
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor,
		OccurredAt:    s.now().UTC(),
		Data: payloads.OrderStatusChangedEvent{
			OrderID:         order.ID,
			OrderNumber:     order.OrderNumber,
			BuyerID:         order.BuyerID,
			SellerIDs:       order.SellerIDs(),
			From:            from,
			To:              order.Status,
			ActorRole:       actor.Role,
			ActorID:         actor.UserID,
			PaymentStatus:   order.PaymentStatus,
			TotalCents:      order.TotalCents,
			ReleasedItemIDs: released,
			Reason:          reason,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order status changed event")
	}
	return nil
}

func stampTransition(order *models.Order, target enums.OrderStatus, at time.Time) {
	switch target {
	case enums.OrderStatusShipped:
		order.ShippedAt = &at
	case enums.OrderStatusDelivered:
		order.DeliveredAt = &at
	case enums.OrderStatusCancelled:
		order.CancelledAt = &at
	}
}

func alreadyProcessed(item *models.OrderItem) error {
	return pkgerrors.Newf(pkgerrors.CodeAlreadyProcessed, "item already %s", item.Status).
		WithDetails(map[string]any{"item_id": item.ID.String(), "status": item.Status})
}
