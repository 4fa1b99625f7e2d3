// Package metrics provides custom Prometheus metrics for the soundbackend application.
package metrics

// EngineRecorder is what the audio engines report to. AudioMetrics implements
// it; NoOpRecorder is used when metrics are disabled.
type EngineRecorder interface {
	RecordFrames(direction string, frames int)
	RecordCallbackDuration(direction string, seconds float64)
	// RecordStatus counts a voice engine status, one of StatusOK, StatusNoData
	// or StatusError.
	RecordStatus(direction, status string)
	RecordState(direction string, state int)
	RecordTermination(direction string)
	RecordStartRetry(direction string)
	RecordReadError(direction string)
}

// RouteRecorder is what the device router reports to.
type RouteRecorder interface {
	RecordRouteTransition(kind string, available bool)
}

// NoOpRecorder is a no-op implementation of the EngineRecorder interface.
type NoOpRecorder struct{}

func (NoOpRecorder) RecordFrames(string, int) {}
func (NoOpRecorder) RecordCallbackDuration(string, float64) {}
func (NoOpRecorder) RecordStatus(string, string) {}
func (NoOpRecorder) RecordState(string, int) {}
func (NoOpRecorder) RecordTermination(string) {}
func (NoOpRecorder) RecordStartRetry(string) {}
func (NoOpRecorder) RecordReadError(string) {}
func (NoOpRecorder) RecordRouteTransition(string, bool) {}

var (
	_ EngineRecorder = (*AudioMetrics)(nil)
	_ EngineRecorder = NoOpRecorder{}
	_ RouteRecorder  = (*AudioMetrics)(nil)
	_ RouteRecorder  = NoOpRecorder{}
)
