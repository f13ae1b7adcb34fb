// Package metrics holds the Prometheus collectors of the timetable
// pipeline and the HTTP layer. A nil *Metrics records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics:
//   - timetabler_extractions_total{provider,outcome} - extraction calls by outcome
//   - timetabler_extraction_duration_seconds{provider} - extraction latency
//   - timetabler_cache_lookups_total{result} - memo cache hits and misses
//   - timetabler_parse_tier_total{tier} - which parser tier recovered a document
//   - timetabler_entries_normalized_total{rule} - normalizer rule per entry
//   - timetabler_http_requests_total{method,route,status}
//   - timetabler_http_request_duration_seconds{method,route}
type Metrics struct {
	registry *prometheus.Registry

	Extractions        *prometheus.CounterVec
	ExtractionDuration *prometheus.HistogramVec
	CacheLookups       *prometheus.CounterVec
	ParseTiers         *prometheus.CounterVec
	EntriesNormalized  *prometheus.CounterVec
	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
}

// New registers every collector on a fresh registry, along with the Go
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Extractions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "timetabler_extractions_total",
			Help: "Extraction calls by provider and outcome (ok, error, timeout).",
		}, []string{"provider", "outcome"}),
		ExtractionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "timetabler_extraction_duration_seconds",
			Help:    "Duration of extraction calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 9), // 250ms to ~64s
		}, []string{"provider"}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "timetabler_cache_lookups_total",
			Help: "Memo cache lookups by result (hit, miss).",
		}, []string{"result"}),
		ParseTiers: f.NewCounterVec(prometheus.CounterOpts{
			Name: "timetabler_parse_tier_total",
			Help: "Documents recovered per parser tier.",
		}, []string{"tier"}),
		EntriesNormalized: f.NewCounterVec(prometheus.CounterOpts{
			Name: "timetabler_entries_normalized_total",
			Help: "Timetable entries by the normalizer rule that resolved them.",
		}, []string{"rule"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "timetabler_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "timetabler_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveExtraction(provider, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Extractions.WithLabelValues(provider, outcome).Inc()
	m.ExtractionDuration.WithLabelValues(provider).Observe(d.Seconds())
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) ParseTier(tier string) {
	if m == nil {
		return
	}
	m.ParseTiers.WithLabelValues(tier).Inc()
}

func (m *Metrics) EntryNormalized(rule string) {
	if m == nil {
		return
	}
	m.EntriesNormalized.WithLabelValues(rule).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency per matched route, so
// path parameters do not explode label cardinality.
func (m *Metrics) Middleware() gin.HandlerFunc {
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
		method := c.Request.Method
		m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}
