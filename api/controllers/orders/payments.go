package orders

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/farmlink-backend/api/responses"
	"github.com/angelmondragon/farmlink-backend/api/validators"
	"github.com/angelmondragon/farmlink-backend/internal/payments"
	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
	"github.com/angelmondragon/farmlink-backend/pkg/logger"
)

type transactionView struct {
	ID            uuid.UUID               `json:"id"`
	TransactionID string                  `json:"transaction_id"`
	OrderID       uuid.UUID               `json:"order_id"`
	Amount        string                  `json:"amount"`
	Currency      string                  `json:"currency"`
	PaymentMethod enums.PaymentMethod     `json:"payment_method"`
	Status        enums.TransactionStatus `json:"status"`
	FailureReason *string                 `json:"failure_reason,omitempty"`
	SettledAt     *time.Time              `json:"settled_at,omitempty"`
}

func transactionViewOf(txn *models.PaymentTransaction) transactionView {
	return transactionView{
		ID:            txn.ID,
		TransactionID: txn.TransactionID,
		OrderID:       txn.OrderID,
		Amount:        amount(txn.AmountCents),
		Currency:      txn.Currency,
		PaymentMethod: txn.PaymentMethod,
		Status:        txn.Status,
		FailureReason: txn.FailureReason,
		SettledAt:     txn.SettledAt,
	}
}

type initiateResponse struct {
	Transaction transactionView `json:"transaction"`
	RedirectURL string          `json:"redirect_url"`
}

type reconcileRequest struct {
	TransactionID string `json:"transaction_id" validate:"required,max=64"`
}

// InitiatePayment opens a gateway session for an unpaid online order.
func InitiatePayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeDependency, "online payments are disabled"))
			return
		}
		buyerID, ok := actorID(w, r, logg)
		if !ok {
			return
		}
		orderID, err := uuidParam(r, "orderId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.Initiate(ctx, payments.InitiateInput{OrderID: orderID, BuyerID: buyerID})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, initiateResponse{
			Transaction: transactionViewOf(result.Transaction),
			RedirectURL: result.RedirectURL,
		})
	}
}

// ReconcilePayment asks the gateway for the outcome of a transaction and
// settles it. Settled transactions are returned unchanged.
func ReconcilePayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeDependency, "online payments are disabled"))
			return
		}
		if _, ok := actorID(w, r, logg); !ok {
			return
		}

		var req reconcileRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		txn, err := svc.Reconcile(ctx, strings.TrimSpace(req.TransactionID), nil)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, transactionViewOf(txn))
	}
}
