package orders

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
)

// transitionRule describes one role-scoped edge of the order lifecycle.
type transitionRule struct {
	role   enums.Role
	target enums.OrderStatus
	from   []enums.OrderStatus
	owns   func(order *models.Order, actorID uuid.UUID) bool
}

var awaitingSellers = []enums.OrderStatus{
	enums.OrderStatusProcessing,
	enums.OrderStatusConfirmed,
	enums.OrderStatusPartiallyConfirmed,
}

var transitionRules = []transitionRule{
	{
		role:   enums.RoleSeller,
		target: enums.OrderStatusShipped,
		from:   awaitingSellers,
		owns:   func(o *models.Order, actor uuid.UUID) bool { return o.HasSeller(actor) },
	},
	{
		role:   enums.RoleBuyer,
		target: enums.OrderStatusCancelled,
		from:   awaitingSellers,
		owns:   func(o *models.Order, actor uuid.UUID) bool { return o.BuyerID == actor },
	},
	{
		role:   enums.RoleAgent,
		target: enums.OrderStatusDelivered,
		from:   []enums.OrderStatus{enums.OrderStatusShipped},
	},
	{
		role:   enums.RoleSystem,
		target: enums.OrderStatusCancelled,
		from:   []enums.OrderStatus{enums.OrderStatusProcessing},
	},
}

// Authorize checks that actor may move order to target. It never mutates
// and is evaluated before any write.
func Authorize(order *models.Order, actorID uuid.UUID, role enums.Role, target enums.OrderStatus) error {
	if order == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	for _, rule := range transitionRules {
		if rule.role != role || rule.target != target {
			continue
		}
		if rule.owns != nil && !rule.owns(order, actorID) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to caller")
		}
		if !statusIn(order.Status, rule.from) {
			return pkgerrors.Newf(pkgerrors.CodeForbidden, "cannot move order from %s to %s", order.Status, target).
				WithDetails(map[string]any{"from": order.Status, "to": target})
		}
		return nil
	}
	return pkgerrors.Newf(pkgerrors.CodeForbidden, "role %s cannot move an order to %s", role, target).
		WithDetails(map[string]any{"from": order.Status, "to": target})
}

func statusIn(status enums.OrderStatus, set []enums.OrderStatus) bool {
	for _, candidate := range set {
		if candidate == status {
			return true
		}
	}
	return false
}
