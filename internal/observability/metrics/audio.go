// Package metrics provides audio engine metrics for observability
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/tphakala/soundbackend/internal/logger"
)

// AudioMetrics contains Prometheus metrics for the playback and record engines.
// Every metric is labelled with the stream direction ("output" or "input").
type AudioMetrics struct {
	registry *prometheus.Registry

	// Callback metrics
	framesTotal      *prometheus.CounterVec
	callbacksTotal   *prometheus.CounterVec
	callbackDuration *prometheus.HistogramVec
	statusTotal      *prometheus.CounterVec

	// Lifecycle metrics
	engineState       *prometheus.GaugeVec
	terminationsTotal *prometheus.CounterVec
	startRetriesTotal *prometheus.CounterVec
	readErrorsTotal   *prometheus.CounterVec

	// Routing metrics
	routeTransitionsTotal *prometheus.CounterVec
	routeAvailable        *prometheus.GaugeVec

	collectors []prometheus.Collector
}

// NewAudioMetrics creates and registers new audio engine metrics
func NewAudioMetrics(registry *prometheus.Registry) (*AudioMetrics, error) {
	m := &AudioMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *AudioMetrics) initMetrics() {
	m.framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soundbackend_frames_total",
			Help: "Total number of PCM frames moved between the device and the voice engine",
		},
		[]string{"direction"},
	)

	m.callbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soundbackend_callbacks_total",
			Help: "Total number of periodic engine callbacks that moved data",
		},
		[]string{"direction"},
	)

	m.callbackDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "soundbackend_callback_duration_seconds",
			Help:    "Time spent in one periodic engine callback",
			Buckets: prometheus.ExponentialBuckets(BucketStart100us, BucketFactor2, BucketCount12), // 100us to ~200ms
		},
		[]string{"direction"},
	)

	m.statusTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soundbackend_engine_status_total",
			Help: "Status codes returned by the voice engine producer or consumer",
		},
		[]string{"direction", "status"}, // status: ok, no_data, error
	)

	m.engineState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "soundbackend_engine_state",
			Help: "Current engine state (0 stopped, 1 starting, 2 running, 3 paused, 4 shutting down, 5 terminated)",
		},
		[]string{"direction"},
	)

	m.terminationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soundbackend_fatal_terminations_total",
			Help: "Total number of engines terminated by a fatal producer status",
		},
		[]string{"direction"},
	)

	m.startRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soundbackend_start_retries_total",
			Help: "Total number of start attempts retried because the device was not ready",
		},
		[]string{"direction"},
	)

	m.readErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soundbackend_read_errors_total",
			Help: "Total number of failed capture reads",
		},
		[]string{"direction"},
	)

	m.routeTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soundbackend_route_transitions_total",
			Help: "Total number of device availability transitions applied by the router",
		},
		[]string{"kind", "available"},
	)

	m.routeAvailable = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "soundbackend_route_available",
			Help: "Whether a logical output device is available (1) or not (0)",
		},
		[]string{"kind"},
	)

	m.collectors = []prometheus.Collector{
		m.framesTotal,
		m.callbacksTotal,
		m.callbackDuration,
		m.statusTotal,
		m.engineState,
		m.terminationsTotal,
		m.startRetriesTotal,
		m.readErrorsTotal,
		m.routeTransitionsTotal,
		m.routeAvailable,
	}
}

// Describe implements the Collector interface
func (m *AudioMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *AudioMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordFrames adds frames moved by one callback.
func (m *AudioMetrics) RecordFrames(direction string, frames int) {
	if frames <= 0 {
		return
	}
	m.framesTotal.WithLabelValues(direction).Add(float64(frames))
	m.callbacksTotal.WithLabelValues(direction).Inc()
}

// RecordCallbackDuration records how long one callback took.
func (m *AudioMetrics) RecordCallbackDuration(direction string, seconds float64) {
	m.callbackDuration.WithLabelValues(direction).Observe(seconds)
}

// RecordStatus counts a producer or consumer status.
func (m *AudioMetrics) RecordStatus(direction, status string) {
	m.statusTotal.WithLabelValues(direction, status).Inc()
}

// RecordState sets the engine state gauge.
func (m *AudioMetrics) RecordState(direction string, state int) {
	m.engineState.WithLabelValues(direction).Set(float64(state))
}

// RecordTermination counts a fatal engine teardown.
func (m *AudioMetrics) RecordTermination(direction string) {
	m.terminationsTotal.WithLabelValues(direction).Inc()
}

// RecordStartRetry counts one retried start.
func (m *AudioMetrics) RecordStartRetry(direction string) {
	m.startRetriesTotal.WithLabelValues(direction).Inc()
}

// RecordReadError counts one failed capture read.
func (m *AudioMetrics) RecordReadError(direction string) {
	m.readErrorsTotal.WithLabelValues(direction).Inc()
}

// RecordRouteTransition counts an availability transition of a device kind.
func (m *AudioMetrics) RecordRouteTransition(kind string, available bool) {
	m.routeTransitionsTotal.WithLabelValues(kind, strconv.FormatBool(available)).Inc()
	value := 0.0
	if available {
		value = 1
	}
	m.routeAvailable.WithLabelValues(kind).Set(value)
}

// FramesTotal returns the frames counted so far for direction.
func (m *AudioMetrics) FramesTotal(direction string) float64 {
	metric := &dto.Metric{}
	if err := m.framesTotal.WithLabelValues(direction).Write(metric); err != nil {
		log.Warn("Failed to read frames metric", logger.String("direction", direction), logger.Error(err))
		return 0
	}
	if metric.Counter != nil && metric.Counter.Value != nil {
		return *metric.Counter.Value
	}
	return 0
}
