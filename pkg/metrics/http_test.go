package metrics

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestHTTPMetricsLabelsByRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)
	m.Observe(http.MethodPost, "/api/v1/checkout", http.StatusCreated, 40*time.Millisecond)
	m.Observe(http.MethodPost, "", http.StatusNotFound, time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "storefront_http_requests_total", "route", "/api/v1/checkout"); err != nil {
		t.Fatalf("fetch requests: %v", err)
	} else if got != 1 {
		t.Fatalf("expected 1 checkout request, got %f", got)
	}
	if _, err := fetchCounterValue(mfs, "storefront_http_requests_total", "route", "unknown"); err != nil {
		t.Fatalf("expected unknown route label: %v", err)
	}
	if got, err := fetchHistogramSum(mfs, "storefront_http_request_duration_seconds", "route", "/api/v1/checkout"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected positive duration, got %f", got)
	}
}

func TestHTTPMetricsNilIsNoop(t *testing.T) {
	var m *HTTPMetrics
	m.Observe(http.MethodGet, "/health/live", http.StatusOK, time.Millisecond)
	NewHTTPMetrics(nil).Observe(http.MethodGet, "/health/live", http.StatusOK, time.Millisecond)
}
