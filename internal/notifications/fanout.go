package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	"github.com/angelmondragon/farmlink-backend/pkg/logger"
	"github.com/angelmondragon/farmlink-backend/pkg/money"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox/registry"
)

const (
	fanoutConsumerName    = "notifications"
	recipientConsumerName = "notifications.recipient"
)

type recipientClaims interface {
	Claim(ctx context.Context, consumer, eventID string) (bool, error)
	Release(ctx context.Context, consumer, eventID string) error
}

// Fanout turns order domain events into notices for the affected buyer and sellers.
type Fanout struct {
	notifier Notifier
	claims   recipientClaims
	logg     *logger.Logger
}

// NewFanout builds the notification fanout handler.
func NewFanout(notifier Notifier, logg *logger.Logger) (*Fanout, error) {
	if notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Fanout{notifier: notifier, logg: logg}, nil
}

// WithRecipientGuard records each delivered notice per event and user so a
// redelivered event only reaches the recipients that failed before.
func (f *Fanout) WithRecipientGuard(claims recipientClaims) *Fanout {
	f.claims = claims
	return f
}

// Name identifies the fanout for per-consumer idempotency.
func (f *Fanout) Name() string { return fanoutConsumerName }

// Handle notifies every recipient of the event. Failures are aggregated so
// one bad recipient does not hide the rest.
func (f *Fanout) Handle(ctx context.Context, event *registry.ResolvedEvent) error {
	if event == nil {
		return nil
	}
	notices := f.notices(ctx, event)
	var errs error
	for _, notice := range notices {
		if err := f.deliver(ctx, event.Envelope.EventID, notice); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("notify %s: %w", notice.UserID, err))
		}
	}
	return errs
}

func (f *Fanout) deliver(ctx context.Context, eventID string, notice Notice) error {
	if f.claims == nil || eventID == "" {
		return f.notifier.Notify(ctx, notice)
	}
	key := eventID + ":" + notice.UserID.String()
	first, err := f.claims.Claim(ctx, recipientConsumerName, key)
	if err != nil {
		return fmt.Errorf("claim recipient: %w", err)
	}
	if !first {
		f.logg.Debug(f.logg.WithField(ctx, "recipient_id", notice.UserID.String()), "recipient already notified")
		return nil
	}
	if err := f.notifier.Notify(ctx, notice); err != nil {
		if releaseErr := f.claims.Release(ctx, recipientConsumerName, key); releaseErr != nil {
			err = multierr.Append(err, releaseErr)
		}
		return err
	}
	return nil
}

func (f *Fanout) notices(ctx context.Context, event *registry.ResolvedEvent) []Notice {
	switch payload := event.Payload.(type) {
	case *payloads.OrderCreatedEvent:
		return orderCreatedNotices(payload)
	case *payloads.OrderItemDecidedEvent:
		return itemDecidedNotices(payload)
	case *payloads.OrderStatusChangedEvent:
		return statusChangedNotices(payload)
	case *payloads.PaymentSettledEvent:
		return paymentSettledNotices(payload)
	default:
		f.logg.Warn(f.logg.WithField(ctx, "event_type", string(event.Descriptor.EventType)), "no notification rule for event")
		return nil
	}
}

func orderCreatedNotices(p *payloads.OrderCreatedEvent) []Notice {
	orderID := p.OrderID
	notices := []Notice{{
		UserID:  p.BuyerID,
		Type:    enums.NotificationOrderPlaced,
		Message: fmt.Sprintf("Your order %s totalling %s was placed.", p.OrderNumber, money.Format(p.TotalCents, "")),
		OrderID: &orderID,
	}}
	for _, seller := range distinct(p.SellerIDs) {
		notices = append(notices, Notice{
			UserID:  seller,
			Type:    enums.NotificationOrderReceived,
			Message: fmt.Sprintf("New order %s contains your products.", p.OrderNumber),
			OrderID: &orderID,
		})
	}
	return notices
}

func itemDecidedNotices(p *payloads.OrderItemDecidedEvent) []Notice {
	orderID := p.OrderID
	kind := enums.NotificationItemAccepted
	message := fmt.Sprintf("%s in order %s was accepted by the seller.", p.ProductName, p.OrderNumber)
	if p.Decision == enums.ItemDecisionDecline {
		kind = enums.NotificationItemDeclined
		message = fmt.Sprintf("%s in order %s was declined by the seller.", p.ProductName, p.OrderNumber)
		if p.Notes != "" {
			message += " Note: " + p.Notes
		}
	}
	return []Notice{{UserID: p.BuyerID, Type: kind, Message: message, OrderID: &orderID}}
}

func statusChangedNotices(p *payloads.OrderStatusChangedEvent) []Notice {
	kind, ok := statusNotificationTypes[p.To]
	if !ok {
		return nil
	}
	orderID := p.OrderID
	message := fmt.Sprintf("Order %s is now %s.", p.OrderNumber, humanStatus(p.To))
	if p.To == enums.OrderStatusCancelled && p.Reason != "" {
		message = fmt.Sprintf("Order %s was cancelled (%s).", p.OrderNumber, p.Reason)
	}

	var recipients []uuid.UUID
	switch p.ActorRole {
	case enums.RoleBuyer:
		recipients = distinct(p.SellerIDs)
	case enums.RoleSeller:
		recipients = []uuid.UUID{p.BuyerID}
	default:
		recipients = append([]uuid.UUID{p.BuyerID}, distinct(p.SellerIDs)...)
	}

	notices := make([]Notice, 0, len(recipients))
	for _, user := range distinct(recipients) {
		notices = append(notices, Notice{UserID: user, Type: kind, Message: message, OrderID: &orderID})
	}
	return notices
}

func paymentSettledNotices(p *payloads.PaymentSettledEvent) []Notice {
	orderID := p.OrderID
	amount := money.Format(p.AmountCents, p.Currency)
	if p.Status != enums.TransactionStatusCompleted {
		return []Notice{{
			UserID:  p.BuyerID,
			Type:    enums.NotificationPaymentFailed,
			Message: fmt.Sprintf("Payment of %s for order %s did not go through. You can retry from the order page.", amount, p.OrderNumber),
			OrderID: &orderID,
		}}
	}
	if p.RefundReason != "" {
		return []Notice{{
			UserID:  p.BuyerID,
			Type:    enums.NotificationPaymentReceived,
			Message: fmt.Sprintf("We received a payment of %s for order %s that the order cannot use. It will be refunded.", amount, p.OrderNumber),
			OrderID: &orderID,
		}}
	}
	notices := []Notice{{
		UserID:  p.BuyerID,
		Type:    enums.NotificationPaymentReceived,
		Message: fmt.Sprintf("We received your payment of %s for order %s.", amount, p.OrderNumber),
		OrderID: &orderID,
	}}
	for _, seller := range distinct(p.SellerIDs) {
		notices = append(notices, Notice{
			UserID:  seller,
			Type:    enums.NotificationPaymentReceived,
			Message: fmt.Sprintf("Order %s has been paid.", p.OrderNumber),
			OrderID: &orderID,
		})
	}
	return notices
}

var statusNotificationTypes = map[enums.OrderStatus]enums.NotificationType{
	enums.OrderStatusConfirmed:          enums.NotificationOrderConfirmed,
	enums.OrderStatusPartiallyConfirmed: enums.NotificationOrderConfirmed,
	enums.OrderStatusShipped:            enums.NotificationOrderShipped,
	enums.OrderStatusDelivered:          enums.NotificationOrderDelivered,
	enums.OrderStatusCancelled:          enums.NotificationOrderCancelled,
}

func humanStatus(status enums.OrderStatus) string {
	if status == enums.OrderStatusPartiallyConfirmed {
		return "partially confirmed"
	}
	return string(status)
}

func distinct(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
