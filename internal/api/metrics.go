package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pobradovic08/myip/internal/iplookup"
)

// MetricsCollector holds the Prometheus metrics for the myip service.
// A nil *MetricsCollector is valid and records nothing.
type MetricsCollector struct {
	registry *prometheus.Registry

	RequestsTotal            *prometheus.CounterVec
	LookupDuration           prometheus.Histogram
	LookupFailuresTotal      *prometheus.CounterVec
	RateLimitRejectionsTotal prometheus.Counter
}

// NewMetricsCollector creates the service metrics and registers them on reg.
func NewMetricsCollector(reg *prometheus.Registry) *MetricsCollector {
	m := &MetricsCollector{
		registry: reg,
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "myip_http_requests_total",
				Help: "Total number of HTTP requests by route and status code.",
			},
			[]string{"route", "code"},
		),
		LookupDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "myip_lookup_duration_seconds",
				Help:    "Duration of outbound public IP lookups in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		),
		LookupFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "myip_lookup_failures_total",
				Help: "Total number of failed public IP lookups by reason.",
			},
			[]string{"reason"},
		),
		RateLimitRejectionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "myip_ratelimit_rejections_total",
				Help: "Total number of requests rejected by rate limiting.",
			},
		),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.LookupDuration,
		m.LookupFailuresTotal,
		m.RateLimitRejectionsTotal,
	)
	return m
}

// IncRequestsTotal counts a served request.
func (m *MetricsCollector) IncRequestsTotal(route string, code int) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// ObserveLookup records the duration and outcome of one outbound lookup.
func (m *MetricsCollector) ObserveLookup(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.LookupDuration.Observe(d.Seconds())
	if err != nil {
		m.LookupFailuresTotal.WithLabelValues(iplookup.FailureReason(err)).Inc()
	}
}

// IncRateLimitRejectionsTotal increments the rate limit rejection counter.
func (m *MetricsCollector) IncRateLimitRejectionsTotal() {
	if m == nil {
		return
	}
	m.RateLimitRejectionsTotal.Inc()
}

// Handler returns an http.Handler that serves the registry in the Prometheus
// exposition format.
func (m *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
