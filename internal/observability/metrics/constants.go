// Package metrics provides constants used across metric definitions.
package metrics

// Voice engine status labels.
const (
	// StatusOK is a zero status from the producer or consumer.
	StatusOK = "ok"
	// StatusNoData is the producer's "nothing queued" status.
	StatusNoData = "no_data"
	// StatusError is any other status.
	StatusError = "error"
)

// Histogram bucket constants.
const (
	// BucketStart100us is the starting bucket for callback histograms.
	BucketStart100us = 0.0001
	// BucketStart1ms is the starting bucket for 1ms histograms (1ms to ~4s range).
	BucketStart1ms = 0.001
	// BucketStart64B is the starting bucket for 64 byte histograms.
	BucketStart64B = 64.0

	// BucketFactor2 is the common exponential growth factor of 2 for histogram buckets.
	BucketFactor2 = 2

	// BucketCount10 defines 10 exponential buckets.
	BucketCount10 = 10
	// BucketCount12 defines 12 exponential buckets.
	BucketCount12 = 12
)
