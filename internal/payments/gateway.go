package payments

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/farmlink-backend/pkg/enums"
)

// CheckoutRequest is what the gateway needs to open a hosted payment page.
type CheckoutRequest struct {
	TransactionID string
	OrderID       uuid.UUID
	OrderNumber   string
	AmountCents   int64
	Currency      string
	SuccessURL    string
	CancelURL     string
	ExpiresAt     time.Time
}

// CheckoutSession is the gateway's handle for an opened payment.
type CheckoutSession struct {
	SessionID   string
	RedirectURL string
}

// Outcome is a gateway verdict for one transaction. Pending means the gateway
// has not decided yet.
type Outcome struct {
	Status        enums.TransactionStatus
	FailureReason string
}

// Gateway is the external payment processor.
type Gateway interface {
	Name() string
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	LookupOutcome(ctx context.Context, sessionID string) (Outcome, error)
}
