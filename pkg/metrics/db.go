package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DBMetrics tracks query latency and slow query counts.
type DBMetrics struct {
	latency *prometheus.HistogramVec
	slow    *prometheus.CounterVec
}

func NewDBMetrics(reg prometheus.Registerer) *DBMetrics {
	if reg == nil {
		return &DBMetrics{}
	}
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Latency of database operations issued through gorm.",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"operation", "table"})
	slow := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "db_slow_queries_total",
		Help: "Database operations slower than the configured threshold.",
	}, []string{"operation", "table"})
	reg.MustRegister(latency, slow)
	return &DBMetrics{latency: latency, slow: slow}
}

func (m *DBMetrics) ObserveQuery(operation, table string, d time.Duration, slow bool) {
	if m == nil || m.latency == nil {
		return
	}
	operation, table = normalizeLabel(operation), normalizeLabel(table)
	m.latency.WithLabelValues(operation, table).Observe(d.Seconds())
	if slow {
		m.slow.WithLabelValues(operation, table).Inc()
	}
}
