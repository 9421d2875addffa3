package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestOrderMetricsCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOrderMetrics(reg)
	m.IncCreated("online_payment")
	m.IncCreated("online_payment")
	m.IncDecision("declined")
	m.IncSettlement("completed")
	m.IncStockRejection()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "orders_created_total", "payment_method", "online_payment"); err != nil {
		t.Fatalf("fetch created: %v", err)
	} else if got != 2 {
		t.Fatalf("expected created=2, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "order_item_decisions_total", "decision", "declined"); err != nil || got != 1 {
		t.Fatalf("expected declined=1, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "payment_settlements_total", "status", "completed"); err != nil || got != 1 {
		t.Fatalf("expected completed=1, got %f (%v)", got, err)
	}
	if findMetricFamily(mfs, "orders_stock_rejections_total") == nil {
		t.Fatalf("stock rejection counter not exported")
	}
}

func TestOrderMetricsNilSafe(t *testing.T) {
	var m *OrderMetrics
	m.IncCreated("cash_on_delivery")
	m.IncTransition("shipped", "seller")
	NewOrderMetrics(nil).IncSettlement("failed")
}
