package metrics

import "github.com/prometheus/client_golang/prometheus"

// OrderMetrics counts order lifecycle transitions by outcome.
type OrderMetrics struct {
	transitions *prometheus.CounterVec
}

func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_total",
		Help: "Order lifecycle transitions attempted, by action and outcome.",
	}, []string{"action", "outcome"})
	reg.MustRegister(transitions)
	return &OrderMetrics{transitions: transitions}
}

// ObserveTransition records one attempted transition. outcome is the error
// code for failures or "ok".
func (m *OrderMetrics) ObserveTransition(action, outcome string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(action), normalizeLabel(outcome)).Inc()
}
