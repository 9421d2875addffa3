package analytics

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/farmlink-backend/internal/analytics/types"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	"github.com/angelmondragon/farmlink-backend/pkg/logger"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox/registry"
)

type fakeWriter struct {
	rows []types.OrderEventRow
	err  error
}

func (f *fakeWriter) InsertOrderEvent(_ context.Context, row types.OrderEventRow) error {
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, row)
	return nil
}

func event(eventType enums.OutboxEventType, payload any, actor *outbox.ActorRef) *registry.ResolvedEvent {
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{EventType: eventType},
		Envelope: outbox.PayloadEnvelope{
			EventID:    uuid.NewString(),
			OccurredAt: time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC),
			Actor:      actor,
		},
		Payload: payload,
	}
}

func TestRecorderOrderCreatedRow(t *testing.T) {
	w := &fakeWriter{}
	rec, err := NewRecorder(w, logger.Nop())
	require.NoError(t, err)
	orderID, buyer, seller := uuid.New(), uuid.New(), uuid.New()

	require.NoError(t, rec.Handle(context.Background(), event(enums.EventOrderCreated, &payloads.OrderCreatedEvent{
		OrderID:       orderID,
		OrderNumber:   "ORD-1",
		BuyerID:       buyer,
		SellerIDs:     []uuid.UUID{seller},
		TotalCents:    350,
		PaymentMethod: enums.PaymentMethodCashOnDelivery,
		PaymentStatus: enums.PaymentStatusNotApplicable,
	}, &outbox.ActorRef{UserID: buyer, Role: enums.RoleBuyer})))

	require.Len(t, w.rows, 1)
	row := w.rows[0]
	assert.Equal(t, "order_created", row.EventType)
	assert.Equal(t, orderID.String(), row.OrderID)
	assert.Equal(t, []string{seller.String()}, row.SellerIDs)
	assert.Equal(t, "buyer", *row.ActorRole)
	assert.Equal(t, int64(350), *row.AmountCents)
	assert.Equal(t, 0, row.Amount.Cmp(big.NewRat(7, 2)))
	assert.True(t, row.Payload.Valid)
}

func TestRecorderStatusChangeUsesEventActor(t *testing.T) {
	w := &fakeWriter{}
	rec, err := NewRecorder(w, logger.Nop())
	require.NoError(t, err)

	require.NoError(t, rec.Handle(context.Background(), event(enums.EventOrderStatusChanged, &payloads.OrderStatusChangedEvent{
		OrderID:   uuid.New(),
		From:      enums.OrderStatusProcessing,
		To:        enums.OrderStatusCancelled,
		ActorRole: enums.RoleSystem,
	}, nil)))
	require.Len(t, w.rows, 1)
	assert.Equal(t, "cancelled", *w.rows[0].OrderStatus)
	assert.Equal(t, "system", *w.rows[0].ActorRole)
}

func TestRecorderRejectsUnknownPayloadAndSurfacesWriterErrors(t *testing.T) {
	w := &fakeWriter{}
	rec, err := NewRecorder(w, logger.Nop())
	require.NoError(t, err)

	err = rec.Handle(context.Background(), event("mystery", &struct{}{}, nil))
	assert.ErrorIs(t, err, ErrUnsupportedPayload)

	w.err = errors.New("bigquery down")
	err = rec.Handle(context.Background(), event(enums.EventPaymentSettled, &payloads.PaymentSettledEvent{OrderID: uuid.New(), Currency: "usd"}, nil))
	assert.Error(t, err)
}
