package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAudioMetricsRecordFrames(t *testing.T) {
	t.Parallel()
	t.Attr("component", "metrics")

	registry := prometheus.NewRegistry()
	m, err := NewAudioMetrics(registry)
	require.NoError(t, err)

	m.RecordFrames("output", 480)
	m.RecordFrames("output", 480)
	m.RecordFrames("output", 0)
	m.RecordFrames("input", 160)

	assert.InDelta(t, 960, testutil.ToFloat64(m.framesTotal.WithLabelValues("output")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.callbacksTotal.WithLabelValues("output")), 0)
	assert.InDelta(t, 960, m.FramesTotal("output"), 0)
	assert.InDelta(t, 160, m.FramesTotal("input"), 0)
}

func TestAudioMetricsStatusAndLifecycle(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := NewAudioMetrics(registry)
	require.NoError(t, err)

	m.RecordStatus("output", StatusOK)
	m.RecordStatus("output", StatusNoData)
	m.RecordStatus("output", StatusNoData)
	m.RecordStatus("output", StatusError)
	m.RecordState("output", 5)
	m.RecordTermination("output")
	m.RecordStartRetry("output")
	m.RecordReadError("input")

	assert.InDelta(t, 2, testutil.ToFloat64(m.statusTotal.WithLabelValues("output", StatusNoData)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.statusTotal.WithLabelValues("output", StatusError)), 0)
	assert.InDelta(t, 5, testutil.ToFloat64(m.engineState.WithLabelValues("output")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.terminationsTotal.WithLabelValues("output")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.startRetriesTotal.WithLabelValues("output")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.readErrorsTotal.WithLabelValues("input")), 0)
}

func TestAudioMetricsRouteTransitions(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := NewAudioMetrics(registry)
	require.NoError(t, err)

	m.RecordRouteTransition("bluetooth_headset", true)
	m.RecordRouteTransition("bluetooth_headset", false)
	m.RecordRouteTransition("bluetooth_headset", true)

	assert.InDelta(t, 2, testutil.ToFloat64(m.routeTransitionsTotal.WithLabelValues("bluetooth_headset", "true")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.routeTransitionsTotal.WithLabelValues("bluetooth_headset", "false")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.routeAvailable.WithLabelValues("bluetooth_headset")), 0)
}

func TestAudioMetricsDoubleRegistrationFails(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	_, err := NewAudioMetrics(registry)
	require.NoError(t, err)

	_, err = NewAudioMetrics(registry)
	assert.Error(t, err)
}

func TestHTTPMetricsRecordRequest(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := NewHTTPMetrics(registry)
	require.NoError(t, err)

	done := m.Begin()
	assert.InDelta(t, 1, testutil.ToFloat64(m.inFlight), 0)
	done("GET", "/api/v1/status", 200)
	assert.InDelta(t, 0, testutil.ToFloat64(m.inFlight), 0)

	m.ObserveRequest("POST", "/api/v1/engines/:direction/state", 400, 2*time.Millisecond)

	assert.InDelta(t, 1, testutil.ToFloat64(m.requestsTotal.WithLabelValues("GET", "/api/v1/status", "200")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.requestsTotal.WithLabelValues("POST", "/api/v1/engines/:direction/state", "400")), 0)
}

func TestMQTTMetricsConnectionStatus(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := NewMQTTMetrics(registry)
	require.NoError(t, err)

	m.SetConnected(true)
	assert.InDelta(t, 1, testutil.ToFloat64(m.connected), 0)
	assert.Positive(t, testutil.ToFloat64(m.lastConnect))
	m.SetConnected(false)
	assert.InDelta(t, 0, testutil.ToFloat64(m.connected), 0)

	m.RecordPublish("phone/status", 120, 3*time.Millisecond, nil)
	m.RecordPublish("phone/routes", 80, time.Millisecond, context.DeadlineExceeded)
	m.RecordPublish("homeassistant/sensor/x/x_rate/config", 300, time.Millisecond, nil)
	assert.InDelta(t, 1, testutil.ToFloat64(m.publishesTotal.WithLabelValues("status", ResultSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.publishesTotal.WithLabelValues("routes", ResultError)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.publishesTotal.WithLabelValues("discovery", ResultSuccess)), 0)

	var nilMetrics *MQTTMetrics
	nilMetrics.SetConnected(true)
	nilMetrics.RecordEvent("sco", nil)
}

func TestTopicKind(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "status", TopicKind("soundbackend/status"))
	assert.Equal(t, "availability", TopicKind("a/b/availability"))
	assert.Equal(t, "discovery", TopicKind("homeassistant/binary_sensor/n/n_status/config"))
	assert.Equal(t, "other", TopicKind("soundbackend/events/sco"))
	assert.Equal(t, "other", TopicKind("plain"))
}
