// Package analytics records one BigQuery fact row per order domain event.
package analytics

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/farmlink-backend/internal/analytics/types"
	"github.com/angelmondragon/farmlink-backend/internal/analytics/writer"
	"github.com/angelmondragon/farmlink-backend/pkg/logger"
	"github.com/angelmondragon/farmlink-backend/pkg/money"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox/registry"
)

const consumerName = "analytics"

// ErrUnsupportedPayload is returned for events with no row mapping.
var ErrUnsupportedPayload = errors.New("unsupported analytics payload")

// Writer delivers order event rows.
type Writer interface {
	InsertOrderEvent(ctx context.Context, row types.OrderEventRow) error
}

// Recorder maps decoded order events to BigQuery rows.
type Recorder struct {
	writer Writer
	logg   *logger.Logger
}

// NewRecorder builds the analytics handler.
func NewRecorder(w Writer, logg *logger.Logger) (*Recorder, error) {
	if w == nil {
		return nil, errors.New("writer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Recorder{writer: w, logg: logg}, nil
}

func (r *Recorder) Name() string { return consumerName }

// Handle writes the row for event.
func (r *Recorder) Handle(ctx context.Context, event *registry.ResolvedEvent) error {
	row, err := buildRow(event)
	if err != nil {
		return err
	}
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"order_id":   row.OrderID,
		"event_type": row.EventType,
	})
	if err := r.writer.InsertOrderEvent(logCtx, row); err != nil {
		r.logg.Error(logCtx, "failed to insert order event row", err)
		return err
	}
	r.logg.Debug(logCtx, "order event row recorded")
	return nil
}

func buildRow(event *registry.ResolvedEvent) (types.OrderEventRow, error) {
	if event == nil {
		return types.OrderEventRow{}, fmt.Errorf("%w: nil event", ErrUnsupportedPayload)
	}
	payloadJSON, err := writer.EncodeJSON(event.Payload)
	if err != nil {
		return types.OrderEventRow{}, fmt.Errorf("encode payload json: %w", err)
	}
	row := types.OrderEventRow{
		EventID:    event.Envelope.EventID,
		EventType:  string(event.Descriptor.EventType),
		OccurredAt: event.Envelope.OccurredAt.UTC(),
		Payload:    payloadJSON,
	}
	if event.Envelope.Actor != nil && event.Envelope.Actor.Role != "" {
		row.ActorRole = strPtr(string(event.Envelope.Actor.Role))
	}

	switch p := event.Payload.(type) {
	case *payloads.OrderCreatedEvent:
		fillOrder(&row, p.OrderID, p.OrderNumber, p.BuyerID, p.SellerIDs)
		row.PaymentMethod = strPtr(string(p.PaymentMethod))
		row.PaymentStatus = strPtr(string(p.PaymentStatus))
		setAmount(&row, p.TotalCents)
	case *payloads.OrderItemDecidedEvent:
		fillOrder(&row, p.OrderID, p.OrderNumber, p.BuyerID, []uuid.UUID{p.SellerID})
		row.OrderStatus = strPtr(string(p.OrderStatus))
	case *payloads.OrderStatusChangedEvent:
		fillOrder(&row, p.OrderID, p.OrderNumber, p.BuyerID, p.SellerIDs)
		row.OrderStatus = strPtr(string(p.To))
		row.PaymentStatus = strPtr(string(p.PaymentStatus))
		row.ActorRole = strPtr(string(p.ActorRole))
		setAmount(&row, p.TotalCents)
	case *payloads.PaymentSettledEvent:
		fillOrder(&row, p.OrderID, p.OrderNumber, p.BuyerID, p.SellerIDs)
		row.OrderStatus = strPtr(string(p.OrderStatus))
		row.PaymentStatus = strPtr(string(p.PaymentStatus))
		setAmount(&row, p.AmountCents)
		if p.Currency != "" {
			row.Currency = strPtr(p.Currency)
		}
	default:
		return types.OrderEventRow{}, fmt.Errorf("%w: %T", ErrUnsupportedPayload, event.Payload)
	}
	return row, nil
}

func fillOrder(row *types.OrderEventRow, orderID uuid.UUID, number string, buyer uuid.UUID, sellers []uuid.UUID) {
	row.OrderID = orderID.String()
	if number != "" {
		row.OrderNumber = strPtr(number)
	}
	if buyer != uuid.Nil {
		row.BuyerID = strPtr(buyer.String())
	}
	for _, seller := range sellers {
		row.SellerIDs = append(row.SellerIDs, seller.String())
	}
}

func setAmount(row *types.OrderEventRow, cents int64) {
	row.AmountCents = &cents
	row.Amount = money.FromCents(cents).Rat()
}

func strPtr(v string) *string {
	return &v
}
