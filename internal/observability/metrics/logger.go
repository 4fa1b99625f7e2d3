// Package metrics holds the Prometheus recorders for the audio engines, the
// control API and the MQTT bridge.
package metrics

import "github.com/tphakala/soundbackend/internal/logger"

var log = logger.Global().Module("metrics")
