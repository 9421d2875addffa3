package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"

	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	pkgstripe "github.com/angelmondragon/farmlink-backend/pkg/stripe"
)

const gatewayStripe = "stripe"

// checkoutSessionAPI is the subset of Stripe Checkout used here.
type checkoutSessionAPI interface {
	New(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(ctx context.Context, id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type stripeSessions struct{}

func (stripeSessions) New(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if params != nil {
		params.Context = ctx
	}
	return session.New(params)
}

func (stripeSessions) Get(ctx context.Context, id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if params == nil {
		params = &stripe.CheckoutSessionParams{}
	}
	params.Context = ctx
	return session.Get(id, params)
}

// StripeGateway opens Stripe Checkout sessions in payment mode. The
// transaction id travels as client_reference_id so callbacks can be matched
// without a session lookup.
type StripeGateway struct {
	sessions checkoutSessionAPI
}

// NewStripeGateway requires an initialized Stripe client.
func NewStripeGateway(client *pkgstripe.Client) (*StripeGateway, error) {
	if client == nil {
		return nil, errors.New("stripe client required")
	}
	return &StripeGateway{sessions: stripeSessions{}}, nil
}

func (g *StripeGateway) Name() string {
	return gatewayStripe
}

func (g *StripeGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if req.AmountCents <= 0 {
		return nil, fmt.Errorf("checkout amount must be positive")
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(req.TransactionID),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(req.Currency)),
					UnitAmount: stripe.Int64(req.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Order " + req.OrderNumber),
					},
				},
			},
		},
		Metadata: map[string]string{
			"order_id":       req.OrderID.String(),
			"order_number":   req.OrderNumber,
			"transaction_id": req.TransactionID,
		},
	}
	if !req.ExpiresAt.IsZero() {
		params.ExpiresAt = stripe.Int64(req.ExpiresAt.Unix())
	}

	cs, err := g.sessions.New(ctx, params)
	if err != nil {
		return nil, err
	}
	return &CheckoutSession{SessionID: cs.ID, RedirectURL: cs.URL}, nil
}

func (g *StripeGateway) LookupOutcome(ctx context.Context, sessionID string) (Outcome, error) {
	cs, err := g.sessions.Get(ctx, sessionID, nil)
	if err != nil {
		return Outcome{}, err
	}
	return outcomeFromSession(cs), nil
}

// outcomeFromSession maps a Checkout Session to a settlement verdict. A
// completed session that is still unpaid waits for the async payment events.
func outcomeFromSession(cs *stripe.CheckoutSession) Outcome {
	if cs == nil {
		return Outcome{Status: enums.TransactionStatusPending}
	}
	switch {
	case cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		return Outcome{Status: enums.TransactionStatusCompleted}
	case cs.Status == stripe.CheckoutSessionStatusExpired:
		return Outcome{Status: enums.TransactionStatusFailed, FailureReason: "checkout_expired"}
	default:
		return Outcome{Status: enums.TransactionStatusPending}
	}
}
