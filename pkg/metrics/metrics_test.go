package metrics

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestWorkerMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewWorkerMetrics(reg)
	worker := "outbox-publisher"
	metrics.ObserveDuration(worker, 250*time.Millisecond)
	metrics.IncSuccess(worker)
	metrics.IncFailure(worker)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "worker_batch_success_total", "worker", worker); err != nil {
		t.Fatalf("fetch success: %v", err)
	} else if got != 1 {
		t.Fatalf("expected success=1, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "worker_batch_failure_total", "worker", worker); err != nil {
		t.Fatalf("fetch failure: %v", err)
	} else if got != 1 {
		t.Fatalf("expected failure=1, got %f", got)
	}
	if got, err := fetchHistogramSum(mfs, "worker_batch_duration_seconds", "worker", worker); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestOrderMetricsCountsByActionAndOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOrderMetrics(reg)
	m.ObserveTransition("accept", "ok")
	m.ObserveTransition("accept", "ok")
	m.ObserveTransition("accept", "CONFLICT")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "order_transitions_total", "outcome", "ok"); err != nil || got != 2 {
		t.Fatalf("expected ok=2, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "order_transitions_total", "outcome", "CONFLICT"); err != nil || got != 1 {
		t.Fatalf("expected conflict=1, got %f (%v)", got, err)
	}
}

func TestDBMetricsCountsSlowQueries(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewDBMetrics(reg)
	m.ObserveQuery("query", "orders", 5*time.Millisecond, false)
	m.ObserveQuery("update", "orders", 300*time.Millisecond, true)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "db_slow_queries_total", "operation", "update"); err != nil || got != 1 {
		t.Fatalf("expected one slow update, got %f (%v)", got, err)
	}
	if _, err := fetchCounterValue(mfs, "db_slow_queries_total", "operation", "query"); err == nil {
		t.Fatalf("fast query should not be counted as slow")
	}
}

func TestNilRegistererIsNoop(t *testing.T) {
	NewWorkerMetrics(nil).IncSuccess("x")
	NewOrderMetrics(nil).ObserveTransition("accept", "ok")
	NewDBMetrics(nil).ObserveQuery("query", "orders", time.Second, true)
	NewHTTPMetrics(nil).Observe("GET", "/health/live", 200, time.Millisecond)
	var nilMetrics *OrderMetrics
	nilMetrics.ObserveTransition("accept", "ok")
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}

func TestWorkerHandlerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewWorkerMetrics(reg).IncSuccess("outbox-publisher")
	handler := NewHandler(reg)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "worker_batch_success_total") {
		t.Fatalf("worker counter missing from exposition")
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected live status %d", resp.Code)
	}
}
