package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics contains Prometheus metrics for the control API. Routes are
// echo route templates, so label cardinality stays bounded.
type HTTPMetrics struct {
	requestsTotal  *prometheus.CounterVec
	requestSeconds *prometheus.HistogramVec
	inFlight       prometheus.Gauge

	collectors []prometheus.Collector
}

// NewHTTPMetrics creates and registers the control API metrics.
func NewHTTPMetrics(registry *prometheus.Registry) (*HTTPMetrics, error) {
	m := &HTTPMetrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "soundbackend_http_requests_total",
			Help: "Control API requests by method, route template and status code",
		}, []string{"method", "route", "code"}),
		requestSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "soundbackend_http_request_duration_seconds",
			Help:    "Control API request latency",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount10),
		}, []string{"method", "route"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "soundbackend_http_requests_in_flight",
			Help: "Control API requests being served",
		}),
	}
	m.collectors = []prometheus.Collector{m.requestsTotal, m.requestSeconds, m.inFlight}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Describe implements prometheus.Collector.
func (m *HTTPMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (m *HTTPMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}

// Begin marks a request in flight. The returned function records its
// outcome and must be called exactly once.
func (m *HTTPMetrics) Begin() func(method, route string, code int) {
	started := time.Now()
	m.inFlight.Inc()
	return func(method, route string, code int) {
		m.inFlight.Dec()
		m.ObserveRequest(method, route, code, time.Since(started))
	}
}

// ObserveRequest records one finished request.
func (m *HTTPMetrics) ObserveRequest(method, route string, code int, took time.Duration) {
	m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.requestSeconds.WithLabelValues(method, route).Observe(took.Seconds())
}
