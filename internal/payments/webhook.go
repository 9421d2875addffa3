package payments

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
	"github.com/angelmondragon/farmlink-backend/pkg/logger"
)

type reconciler interface {
	Reconcile(ctx context.Context, transactionID string, outcome *Outcome) (*models.PaymentTransaction, error)
}

type sessionLookup interface {
	FindBySessionID(ctx context.Context, sessionID string) (*models.PaymentTransaction, error)
}

// WebhookHandler turns verified Stripe Checkout events into reconciliations.
type WebhookHandler struct {
	payments reconciler
	sessions sessionLookup
	logg     *logger.Logger
}

// NewWebhookHandler builds the Stripe event handler. Sessions resolves events
// whose checkout carries no transaction reference.
func NewWebhookHandler(payments reconciler, sessions sessionLookup, logg *logger.Logger) *WebhookHandler {
	if logg == nil {
		logg = logger.Nop()
	}
	return &WebhookHandler{payments: payments, sessions: sessions, logg: logg}
}

// HandleEvent reconciles checkout session events and ignores everything else.
func (h *WebhookHandler) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event payload missing")
	}

	var outcome Outcome
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		outcome = Outcome{Status: enums.TransactionStatusPending}
	case stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		outcome = Outcome{Status: enums.TransactionStatusCompleted}
	case stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		outcome = Outcome{Status: enums.TransactionStatusFailed, FailureReason: "async_payment_failed"}
	case stripe.EventTypeCheckoutSessionExpired:
		outcome = Outcome{Status: enums.TransactionStatusFailed, FailureReason: "checkout_expired"}
	default:
		h.logg.Debug(h.logg.WithField(ctx, "stripe_event_type", string(event.Type)), "stripe event ignored")
		return nil
	}

	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
	}
	if event.Type == stripe.EventTypeCheckoutSessionCompleted {
		outcome = outcomeFromSession(&cs)
	}

	transactionID, err := h.transactionID(ctx, &cs)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			h.logg.Warn(h.logg.WithField(ctx, "stripe_session_id", cs.ID), "stripe event for unknown checkout session")
			return nil
		}
		return err
	}

	logCtx := h.logg.WithFields(ctx, map[string]any{
		"stripe_event_id":   event.ID,
		"stripe_event_type": string(event.Type),
		"transaction_id":    transactionID,
	})
	txn, err := h.payments.Reconcile(ctx, transactionID, &outcome)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			h.logg.Warn(logCtx, "stripe event for unknown transaction")
			return nil
		}
		return err
	}
	h.logg.Info(h.logg.WithField(logCtx, "status", string(txn.Status)), "stripe checkout event reconciled")
	return nil
}

func (h *WebhookHandler) transactionID(ctx context.Context, cs *stripe.CheckoutSession) (string, error) {
	if id := strings.TrimSpace(cs.ClientReferenceID); id != "" {
		return id, nil
	}
	if id := strings.TrimSpace(cs.Metadata["transaction_id"]); id != "" {
		return id, nil
	}
	if h.sessions == nil || strings.TrimSpace(cs.ID) == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "checkout session carries no transaction id")
	}
	txn, err := h.sessions.FindBySessionID(ctx, cs.ID)
	if err != nil {
		return "", err
	}
	return txn.TransactionID, nil
}
