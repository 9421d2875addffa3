package metrics

import "github.com/prometheus/client_golang/prometheus"

// OrderMetrics counts order lifecycle outcomes.
type OrderMetrics struct {
	created      *prometheus.CounterVec
	stockRejects prometheus.Counter
	decisions    *prometheus.CounterVec
	transitions  *prometheus.CounterVec
	settlements  *prometheus.CounterVec
}

// NewOrderMetrics registers the order counters on reg.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	m := &OrderMetrics{
		created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Orders committed by checkout.",
		}, []string{"payment_method"}),
		stockRejects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_stock_rejections_total",
			Help: "Checkouts aborted because a reservation lost the stock race.",
		}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "order_item_decisions_total",
			Help: "Seller decisions applied to order items.",
		}, []string{"decision"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "order_transitions_total",
			Help: "Guarded order status transitions.",
		}, []string{"to", "role"}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_settlements_total",
			Help: "Payment transactions settled to a terminal status.",
		}, []string{"status"}),
	}
	reg.MustRegister(m.created, m.stockRejects, m.decisions, m.transitions, m.settlements)
	return m
}

func (m *OrderMetrics) IncCreated(method string) {
	if m == nil || m.created == nil {
		return
	}
	m.created.WithLabelValues(normalizeLabel(method)).Inc()
}

func (m *OrderMetrics) IncStockRejection() {
	if m == nil || m.stockRejects == nil {
		return
	}
	m.stockRejects.Inc()
}

func (m *OrderMetrics) IncDecision(decision string) {
	if m == nil || m.decisions == nil {
		return
	}
	m.decisions.WithLabelValues(normalizeLabel(decision)).Inc()
}

func (m *OrderMetrics) IncTransition(to, role string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(to), normalizeLabel(role)).Inc()
}

func (m *OrderMetrics) IncSettlement(status string) {
	if m == nil || m.settlements == nil {
		return
	}
	m.settlements.WithLabelValues(normalizeLabel(status)).Inc()
}
