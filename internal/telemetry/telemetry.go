// Package telemetry holds the prometheus collectors exported on /metrics.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/debatehub/backend/internal/moderation"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "debatehub"

// Metrics groups the service collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	providerCalls   *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
	verdicts        *prometheus.CounterVec
	manualReviews   *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "AI provider evaluations by outcome",
		}, []string{"provider", "outcome"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_latency_seconds",
			Help:      "Time spent in one AI provider evaluation, retries included",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
		}, []string{"provider"}),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moderation_verdicts_total",
			Help:      "Stored consensus verdicts by status and risk level",
		}, []string{"status", "risk_level"}),
		manualReviews: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "manual_reviews_total",
			Help:      "Manual moderator reviews by resulting status",
		}, []string{"status", "override"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.providerCalls,
		m.providerLatency,
		m.verdicts,
		m.manualReviews,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// RegisterGauge exposes a value sampled at scrape time, e.g. SSE clients.
func (m *Metrics) RegisterGauge(name, help string, fn func() float64) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

// ObserveProviderCall matches moderation.CallObserver.
func (m *Metrics) ObserveProviderCall(r moderation.Result) {
	if m == nil {
		return
	}
	outcome := "success"
	if r.Fallback {
		outcome = "fallback"
	}
	m.providerCalls.WithLabelValues(r.Provider, outcome).Inc()
	m.providerLatency.WithLabelValues(r.Provider).Observe(r.Latency.Seconds())
}

func (m *Metrics) ObserveVerdict(status, riskLevel string) {
	if m == nil {
		return
	}
	m.verdicts.WithLabelValues(status, riskLevel).Inc()
}

func (m *Metrics) ObserveManualReview(status string, override bool) {
	if m == nil {
		return
	}
	m.manualReviews.WithLabelValues(status, strconv.FormatBool(override)).Inc()
}

// GinMiddleware records request counts and latency per matched route.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Gatherer is used by tests to inspect collected values.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}
