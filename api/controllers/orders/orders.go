package orders

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/farmlink-backend/api/middleware"
	"github.com/angelmondragon/farmlink-backend/api/responses"
	"github.com/angelmondragon/farmlink-backend/api/validators"
	"github.com/angelmondragon/farmlink-backend/internal/checkout"
	"github.com/angelmondragon/farmlink-backend/internal/checkout/intake"
	"github.com/angelmondragon/farmlink-backend/internal/orders"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
	"github.com/angelmondragon/farmlink-backend/pkg/logger"
	"github.com/angelmondragon/farmlink-backend/pkg/pagination"
)

// CreateOrder places a buyer's order. A payment start failure still returns
// the committed order with payment_error set.
func CreateOrder(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		buyerID, ok := actorID(w, r, logg)
		if !ok {
			return
		}

		var req intake.OrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.Checkout(ctx, intake.Input{
			BuyerID: buyerID,
			Role:    middleware.RoleFromContext(ctx),
			Request: req,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		resp := createOrderResponse{
			Order:       viewOf(result.Order, enums.RoleBuyer, buyerID),
			RedirectURL: result.PaymentRedirectURL,
		}
		if result.PaymentError != nil {
			resp.PaymentError = publicPaymentError(result.PaymentError)
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, resp)
	}
}

// ListOrders pages through the caller's orders. Buyers see orders they
// placed; sellers see orders holding at least one of their items.
func ListOrders(svc orders.Service, defaultLimit int, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		userID, ok := actorID(w, r, logg)
		if !ok {
			return
		}
		if defaultLimit <= 0 {
			defaultLimit = pagination.DefaultLimit
		}
		limit, err := validators.ParseQueryInt(r, "limit", defaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		filters, err := parseListFilters(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		role := middleware.RoleFromContext(ctx)
		list, err := svc.List(ctx, orders.ListInput{
			ActorID: userID,
			Role:    role,
			Limit:   limit,
			Cursor:  validators.QueryString(r, "cursor"),
			Filters: filters,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		views := make([]orderView, 0, len(list.Orders))
		for i := range list.Orders {
			views = append(views, viewOf(&list.Orders[i], role, userID))
		}
		responses.WritePage(w, views, list.NextCursor, limit)
	}
}

// GetOrder returns one order when the caller is a party to it.
func GetOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		userID, ok := actorID(w, r, logg)
		if !ok {
			return
		}
		orderID, err := uuidParam(r, "orderId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		role := middleware.RoleFromContext(ctx)
		order, err := svc.Get(ctx, orderID, userID, role)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, viewOf(order, role, userID))
	}
}

// TransitionOrder moves an order to the requested status on behalf of the caller.
func TransitionOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		userID, ok := actorID(w, r, logg)
		if !ok {
			return
		}
		orderID, err := uuidParam(r, "orderId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req statusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		target, err := enums.ParseOrderStatus(string(req.TargetStatus))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid target_status"))
			return
		}

		role := middleware.RoleFromContext(ctx)
		order, err := svc.Transition(ctx, orders.TransitionInput{
			OrderID: orderID,
			ActorID: userID,
			Role:    role,
			Target:  target,
			Reason:  strings.TrimSpace(req.Reason),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, viewOf(order, role, userID))
	}
}

// DecideItem records a seller's accept or decline for one pending item.
func DecideItem(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		sellerID, ok := actorID(w, r, logg)
		if !ok {
			return
		}
		itemID, err := uuidParam(r, "itemId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req decisionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.Decide(ctx, orders.DecideInput{
			ItemID:   itemID,
			SellerID: sellerID,
			Decision: req.Decision,
			Notes:    req.Notes,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, decisionResponse{
			Item:        itemViewOf(result.Item),
			OrderStatus: result.OrderStatus,
		})
	}
}

func parseListFilters(r *http.Request) (orders.ListFilters, error) {
	var (
		filters orders.ListFilters
		err     error
	)
	if filters.Status, err = validators.ParseQueryEnum(r, "status", enums.ParseOrderStatus); err != nil {
		return filters, err
	}
	if filters.PaymentStatus, err = validators.ParseQueryEnum(r, "payment_status", enums.ParsePaymentStatus); err != nil {
		return filters, err
	}
	return filters, nil
}

func actorID(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (uuid.UUID, bool) {
	id := middleware.UserIDFromContext(r.Context())
	if id == uuid.Nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing"))
		return uuid.Nil, false
	}
	return id, true
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	if raw == "" {
		return uuid.Nil, pkgerrors.Newf(pkgerrors.CodeValidation, "%s is required", name)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+name)
	}
	return id, nil
}

func publicPaymentError(err error) string {
	return string(pkgerrors.CodeOf(err))
}
