package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/pobradovic08/myip/internal/iplookup"
)

func TestMetricsRecordRequestsAndLookups(t *testing.T) {
	m := NewMetricsCollector(prometheus.NewRegistry())
	fetcher := &stubFetcher{ip: "203.0.113.10"}
	router := NewRouter(&APIHandler{Fetcher: fetcher, Metrics: m}, nil)

	for _, path := range []string{"/", "/", "/health"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", path, nil))
	}

	fetcher.err = &iplookup.StatusError{URL: "http://lookup", StatusCode: 502}
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("home", "200")); got != 2 {
		t.Fatalf("expected 2 successful home requests, got %v", got)
	}
	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("home", "500")); got != 1 {
		t.Fatalf("expected 1 failed home request, got %v", got)
	}
	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("health", "200")); got != 1 {
		t.Fatalf("expected 1 health request, got %v", got)
	}
	if got := testutil.ToFloat64(m.LookupFailuresTotal.WithLabelValues("status")); got != 1 {
		t.Fatalf("expected 1 status failure, got %v", got)
	}
	if got := testutil.CollectAndCount(m.LookupDuration); got != 1 {
		t.Fatalf("expected lookup histogram to be collected, got %d series", got)
	}
}

func TestMetricsHandlerExposesRegistry(t *testing.T) {
	m := NewMetricsCollector(prometheus.NewRegistry())
	m.IncRateLimitRejectionsTotal()
	m.ObserveLookup(10*time.Millisecond, errors.New("dial failed"))

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		"myip_ratelimit_rejections_total 1",
		`myip_lookup_failures_total{reason="transport"} 1`,
		"myip_lookup_duration_seconds_count 1",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected metrics output to contain %q", want)
		}
	}
}

func TestNilMetricsCollectorIsNoop(t *testing.T) {
	var m *MetricsCollector
	m.IncRequestsTotal("home", 200)
	m.ObserveLookup(time.Second, errors.New("x"))
	m.IncRateLimitRejectionsTotal()
}
