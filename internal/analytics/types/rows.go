package types

import (
	"math/big"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// OrderEventRow mirrors the order_events BigQuery schema. One row is written
// per order domain event.
type OrderEventRow struct {
	EventID       string             `bigquery:"event_id"`
	EventType     string             `bigquery:"event_type"`
	OccurredAt    time.Time          `bigquery:"occurred_at"`
	OrderID       string             `bigquery:"order_id"`
	OrderNumber   *string            `bigquery:"order_number"`
	BuyerID       *string            `bigquery:"buyer_id"`
	SellerIDs     []string           `bigquery:"seller_ids"`
	ActorRole     *string            `bigquery:"actor_role"`
	OrderStatus   *string            `bigquery:"order_status"`
	PaymentMethod *string            `bigquery:"payment_method"`
	PaymentStatus *string            `bigquery:"payment_status"`
	AmountCents   *int64             `bigquery:"amount_cents"`
	Amount        *big.Rat           `bigquery:"amount"`
	Currency      *string            `bigquery:"currency"`
	Payload       cbigquery.NullJSON `bigquery:"payload"`
}
