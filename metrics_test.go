package tessera

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecordRequest(t *testing.T) {
	registry := prometheus.NewRegistry()
	mc := NewMetricsCollectorWithRegistry(registry)

	mc.RecordRequest("GET", "/api/v1/users/tickets/", 200, 30*time.Millisecond)
	mc.RecordRequest("GET", "/api/v1/users/tickets/", 200, 45*time.Millisecond)
	mc.RecordRequest("POST", "/api/v1/tickets/book/", 500, 10*time.Millisecond)

	got := testutil.ToFloat64(mc.requestsTotal.WithLabelValues("GET", "200", "/api/v1/users/tickets/"))
	if got != 2 {
		t.Errorf("requests_total{GET,200} = %v, want 2", got)
	}
	got = testutil.ToFloat64(mc.requestsTotal.WithLabelValues("POST", "500", "/api/v1/tickets/book/"))
	if got != 1 {
		t.Errorf("requests_total{POST,500} = %v, want 1", got)
	}
}

func TestMetricsInFlightGauge(t *testing.T) {
	registry := prometheus.NewRegistry()
	mc := NewMetricsCollectorWithRegistry(registry)

	mc.RecordRequestStart("GET", "/api/v1/public/events/")
	mc.RecordRequestStart("GET", "/api/v1/public/events/")
	if got := testutil.ToFloat64(mc.requestsInFlight.WithLabelValues("GET", "/api/v1/public/events/")); got != 2 {
		t.Errorf("in_flight = %v, want 2", got)
	}

	mc.RecordRequestEnd("GET", "/api/v1/public/events/")
	if got := testutil.ToFloat64(mc.requestsInFlight.WithLabelValues("GET", "/api/v1/public/events/")); got != 1 {
		t.Errorf("in_flight after end = %v, want 1", got)
	}
}

func TestMetricsRetriesAndErrors(t *testing.T) {
	registry := prometheus.NewRegistry()
	mc := NewMetricsCollectorWithRegistry(registry)

	mc.RecordRetry("GET", "/api/v1/users/tickets/", 2)
	mc.RecordRetry("GET", "/api/v1/users/tickets/", 2)
	mc.RecordError("server", "GET", "/api/v1/users/tickets/")

	if got := testutil.ToFloat64(mc.retriesTotal.WithLabelValues("GET", "/api/v1/users/tickets/", "2")); got != 2 {
		t.Errorf("retries_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(mc.errorsTotal.WithLabelValues("server", "GET", "/api/v1/users/tickets/")); got != 1 {
		t.Errorf("errors_total = %v, want 1", got)
	}
}

func TestMetricsRefreshOutcomes(t *testing.T) {
	registry := prometheus.NewRegistry()
	mc := NewMetricsCollectorWithRegistry(registry)

	mc.RecordTokenRefresh(RefreshOutcomeSuccess)
	mc.RecordTokenRefresh(RefreshOutcomeFailure)
	mc.RecordTokenRefresh(RefreshOutcomeExpired)
	mc.RecordAuthRequired()
	mc.RecordAuthRequired()

	for _, outcome := range []string{RefreshOutcomeSuccess, RefreshOutcomeFailure, RefreshOutcomeExpired} {
		if got := testutil.ToFloat64(mc.tokenRefreshesTotal.WithLabelValues(outcome)); got != 1 {
			t.Errorf("token_refreshes_total{%s} = %v, want 1", outcome, got)
		}
	}
	if got := testutil.ToFloat64(mc.authRequiredTotal); got != 2 {
		t.Errorf("auth_required_total = %v, want 2", got)
	}
}

func TestMetricsSeparateRegistries(t *testing.T) {
	a := NewMetricsCollectorWithRegistry(prometheus.NewRegistry())
	b := NewMetricsCollectorWithRegistry(prometheus.NewRegistry())

	a.RecordAuthRequired()
	if got := testutil.ToFloat64(b.authRequiredTotal); got != 0 {
		t.Errorf("collectors share state: %v", got)
	}
}
