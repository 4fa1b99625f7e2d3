package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Publish results.
const (
	ResultSuccess  = "success"
	ResultError    = "error"
	ResultRejected = "rejected"
)

// MQTTMetrics covers the broker connection and the event bridge. A nil
// *MQTTMetrics records nothing.
type MQTTMetrics struct {
	connected       prometheus.Gauge
	lastConnect     prometheus.Gauge
	reconnectsTotal prometheus.Counter
	publishesTotal  *prometheus.CounterVec
	publishSeconds  prometheus.Histogram
	payloadBytes    prometheus.Histogram
	eventsTotal     *prometheus.CounterVec

	collectors []prometheus.Collector
}

// NewMQTTMetrics creates and registers the MQTT metrics.
func NewMQTTMetrics(registry *prometheus.Registry) (*MQTTMetrics, error) {
	m := &MQTTMetrics{
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "soundbackend_mqtt_connected",
			Help: "1 while the bridge is connected to the broker",
		}),
		lastConnect: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "soundbackend_mqtt_last_connect_timestamp_seconds",
			Help: "Unix time of the last successful broker connection",
		}),
		reconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soundbackend_mqtt_reconnect_attempts_total",
			Help: "Broker reconnection attempts",
		}),
		publishesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "soundbackend_mqtt_publishes_total",
			Help: "Messages published, by topic kind and result",
		}, []string{"topic", "result"}),
		publishSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "soundbackend_mqtt_publish_duration_seconds",
			Help:    "Time until the broker acknowledged a publish",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount10),
		}),
		payloadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "soundbackend_mqtt_payload_bytes",
			Help:    "Size of published payloads",
			Buckets: prometheus.ExponentialBuckets(BucketStart64B, BucketFactor2, BucketCount10),
		}),
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "soundbackend_mqtt_events_total",
			Help: "Device events received from the broker, by event and result",
		}, []string{"event", "result"}),
	}
	m.collectors = []prometheus.Collector{
		m.connected, m.lastConnect, m.reconnectsTotal,
		m.publishesTotal, m.publishSeconds, m.payloadBytes, m.eventsTotal,
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Describe implements prometheus.Collector.
func (m *MQTTMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (m *MQTTMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}

// SetConnected records a connection state change.
func (m *MQTTMetrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.connected.Set(1)
		m.lastConnect.SetToCurrentTime()
		return
	}
	m.connected.Set(0)
}

// RecordReconnectAttempt counts one reconnection attempt.
func (m *MQTTMetrics) RecordReconnectAttempt() {
	if m == nil {
		return
	}
	m.reconnectsTotal.Inc()
}

// RecordPublish records one publish. Only successful publishes are timed.
func (m *MQTTMetrics) RecordPublish(topic string, size int, took time.Duration, err error) {
	if m == nil {
		return
	}
	kind := TopicKind(topic)
	if err != nil {
		m.publishesTotal.WithLabelValues(kind, ResultError).Inc()
		return
	}
	m.publishesTotal.WithLabelValues(kind, ResultSuccess).Inc()
	m.publishSeconds.Observe(took.Seconds())
	m.payloadBytes.Observe(float64(size))
}

// RecordEvent counts an incoming device event. Rejected events failed to
// decode or named an unknown event.
func (m *MQTTMetrics) RecordEvent(event string, err error) {
	if m == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultRejected
	}
	m.eventsTotal.WithLabelValues(event, result).Inc()
}

// TopicKind reduces a topic to a bounded label: the last path segment for
// bridge topics, "discovery" for Home Assistant config topics.
func TopicKind(topic string) string {
	if strings.HasSuffix(topic, "/config") {
		return "discovery"
	}
	switch topic[strings.LastIndex(topic, "/")+1:] {
	case "status", "routes", "availability", "test":
		return topic[strings.LastIndex(topic, "/")+1:]
	}
	return "other"
}
