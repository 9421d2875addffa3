package notifications

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	"github.com/angelmondragon/farmlink-backend/pkg/logger"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox/registry"
)

type capturingNotifier struct {
	notices []Notice
	failFor uuid.UUID
}

func (c *capturingNotifier) Notify(_ context.Context, notice Notice) error {
	if notice.UserID == c.failFor {
		return errors.New("persist failed")
	}
	c.notices = append(c.notices, notice)
	return nil
}

func (c *capturingNotifier) recipients() map[uuid.UUID]enums.NotificationType {
	out := map[uuid.UUID]enums.NotificationType{}
	for _, n := range c.notices {
		out[n.UserID] = n.Type
	}
	return out
}

func resolved(payload any) *registry.ResolvedEvent {
	return &registry.ResolvedEvent{Payload: payload}
}

func newTestFanout(t *testing.T) (*Fanout, *capturingNotifier) {
	t.Helper()
	notifier := &capturingNotifier{}
	fanout, err := NewFanout(notifier, logger.Nop())
	require.NoError(t, err)
	return fanout, notifier
}

func TestFanoutOrderCreatedNotifiesBuyerAndDistinctSellers(t *testing.T) {
	fanout, notifier := newTestFanout(t)
	buyer, s1, s2 := uuid.New(), uuid.New(), uuid.New()

	err := fanout.Handle(context.Background(), resolved(&payloads.OrderCreatedEvent{
		OrderID:     uuid.New(),
		OrderNumber: "ORD-1",
		BuyerID:     buyer,
		SellerIDs:   []uuid.UUID{s1, s2, s1},
		TotalCents:  350,
	}))
	require.NoError(t, err)
	require.Len(t, notifier.notices, 3)
	got := notifier.recipients()
	assert.Equal(t, enums.NotificationOrderPlaced, got[buyer])
	assert.Equal(t, enums.NotificationOrderReceived, got[s1])
	assert.Equal(t, enums.NotificationOrderReceived, got[s2])
	assert.Contains(t, notifier.notices[0].Message, "3.50")
}

func TestFanoutItemDecisionNotifiesBuyer(t *testing.T) {
	fanout, notifier := newTestFanout(t)
	buyer := uuid.New()

	require.NoError(t, fanout.Handle(context.Background(), resolved(&payloads.OrderItemDecidedEvent{
		OrderNumber: "ORD-1",
		BuyerID:     buyer,
		SellerID:    uuid.New(),
		ProductName: "Honey",
		Decision:    enums.ItemDecisionDecline,
		Notes:       "out of season",
	})))
	require.Len(t, notifier.notices, 1)
	assert.Equal(t, buyer, notifier.notices[0].UserID)
	assert.Equal(t, enums.NotificationItemDeclined, notifier.notices[0].Type)
	assert.Contains(t, notifier.notices[0].Message, "out of season")
}

func TestFanoutStatusChangeRecipientsFollowActor(t *testing.T) {
	buyer, s1, s2 := uuid.New(), uuid.New(), uuid.New()
	cases := []struct {
		name string
		role enums.Role
		to   enums.OrderStatus
		want []uuid.UUID
		kind enums.NotificationType
	}{
		{"buyer cancels", enums.RoleBuyer, enums.OrderStatusCancelled, []uuid.UUID{s1, s2}, enums.NotificationOrderCancelled},
		{"seller ships", enums.RoleSeller, enums.OrderStatusShipped, []uuid.UUID{buyer}, enums.NotificationOrderShipped},
		{"agent delivers", enums.RoleAgent, enums.OrderStatusDelivered, []uuid.UUID{buyer, s1, s2}, enums.NotificationOrderDelivered},
		{"system expires", enums.RoleSystem, enums.OrderStatusCancelled, []uuid.UUID{buyer, s1, s2}, enums.NotificationOrderCancelled},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fanout, notifier := newTestFanout(t)
			require.NoError(t, fanout.Handle(context.Background(), resolved(&payloads.OrderStatusChangedEvent{
				OrderNumber: "ORD-1",
				BuyerID:     buyer,
				SellerIDs:   []uuid.UUID{s1, s2, s2},
				To:          tc.to,
				ActorRole:   tc.role,
			})))
			got := notifier.recipients()
			assert.Len(t, got, len(tc.want))
			for _, id := range tc.want {
				assert.Equal(t, tc.kind, got[id])
			}
		})
	}
}

func TestFanoutPaymentSettled(t *testing.T) {
	buyer, seller := uuid.New(), uuid.New()

	fanout, notifier := newTestFanout(t)
	require.NoError(t, fanout.Handle(context.Background(), resolved(&payloads.PaymentSettledEvent{
		OrderNumber: "ORD-1",
		BuyerID:     buyer,
		SellerIDs:   []uuid.UUID{seller},
		AmountCents: 350,
		Currency:    "usd",
		Status:      enums.TransactionStatusCompleted,
	})))
	assert.Len(t, notifier.notices, 2)
	assert.Contains(t, notifier.notices[0].Message, "3.50 USD")

	fanout, notifier = newTestFanout(t)
	require.NoError(t, fanout.Handle(context.Background(), resolved(&payloads.PaymentSettledEvent{
		BuyerID:   buyer,
		SellerIDs: []uuid.UUID{seller},
		Status:    enums.TransactionStatusFailed,
	})))
	require.Len(t, notifier.notices, 1)
	assert.Equal(t, enums.NotificationPaymentFailed, notifier.notices[0].Type)

	fanout, notifier = newTestFanout(t)
	require.NoError(t, fanout.Handle(context.Background(), resolved(&payloads.PaymentSettledEvent{
		OrderNumber:  "ORD-1",
		BuyerID:      buyer,
		SellerIDs:    []uuid.UUID{seller},
		AmountCents:  350,
		Currency:     "usd",
		Status:       enums.TransactionStatusCompleted,
		OrderStatus:  enums.OrderStatusCancelled,
		RefundReason: "order_cancelled",
	})))
	require.Len(t, notifier.notices, 1, "sellers are not told about money the order cannot keep")
	assert.Equal(t, buyer, notifier.notices[0].UserID)
	assert.Contains(t, notifier.notices[0].Message, "refunded")
}

func TestFanoutAggregatesFailuresAndKeepsGoing(t *testing.T) {
	fanout, notifier := newTestFanout(t)
	buyer, seller := uuid.New(), uuid.New()
	notifier.failFor = buyer

	err := fanout.Handle(context.Background(), resolved(&payloads.OrderCreatedEvent{
		BuyerID:   buyer,
		SellerIDs: []uuid.UUID{seller},
	}))
	assert.Error(t, err)
	require.Len(t, notifier.notices, 1)
	assert.Equal(t, seller, notifier.notices[0].UserID)
}

type memoryClaims struct {
	keys map[string]bool
}

func (m *memoryClaims) Claim(_ context.Context, consumer, eventID string) (bool, error) {
	key := consumer + "/" + eventID
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *memoryClaims) Release(_ context.Context, consumer, eventID string) error {
	delete(m.keys, consumer+"/"+eventID)
	return nil
}

func TestFanoutRedeliveryOnlyRetriesFailedRecipients(t *testing.T) {
	fanout, notifier := newTestFanout(t)
	fanout.WithRecipientGuard(&memoryClaims{keys: map[string]bool{}})
	buyer, s1, s2 := uuid.New(), uuid.New(), uuid.New()
	notifier.failFor = s2

	event := resolved(&payloads.OrderCreatedEvent{
		OrderNumber: "ORD-1",
		BuyerID:     buyer,
		SellerIDs:   []uuid.UUID{s1, s2},
	})
	event.Envelope.EventID = uuid.NewString()

	require.Error(t, fanout.Handle(context.Background(), event))
	require.Len(t, notifier.notices, 2)

	notifier.failFor = uuid.Nil
	require.NoError(t, fanout.Handle(context.Background(), event))
	require.Len(t, notifier.notices, 3)
	assert.Equal(t, s2, notifier.notices[2].UserID)

	require.NoError(t, fanout.Handle(context.Background(), event))
	assert.Len(t, notifier.notices, 3, "every recipient is notified once")
}
