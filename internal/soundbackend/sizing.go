package soundbackend

import "github.com/tphakala/soundbackend/internal/hal"

// tenMsBytes returns the size of 10 ms of PCM16 audio.
func tenMsBytes(sampleRate, channels int) int {
	return channels * hal.BytesPerSample * sampleRate / 100
}

// adjustedMinBuffer rounds the hardware minimum up so it holds more than
// 20 ms of audio, keeping it a whole multiple of hwMin.
func adjustedMinBuffer(sampleRate, channels, hwMin int) int {
	if hwMin <= 0 {
		return hwMin
	}
	n := 2 * tenMsBytes(sampleRate, channels) / hwMin
	if n > 0 {
		return (n + 1) * hwMin
	}
	return hwMin
}

// playbackBufferSize returns the shared buffer size for playback: a whole
// multiple of adjusted holding more than 500 ms of audio.
func playbackBufferSize(sampleRate, channels, adjusted int) int {
	if adjusted <= 0 {
		return adjusted
	}
	k := 50 * tenMsBytes(sampleRate, channels) / adjusted
	if k > 0 {
		return (k + 1) * adjusted
	}
	return adjusted
}

// periodFrames converts a notification period in milliseconds to frames.
func periodFrames(sampleRate, periodMs int) int {
	return sampleRate * periodMs / 1000
}

// recordPeriodFrames returns the capture notification period. Non-blocking
// capture is polled every ~20 ms; blocking capture reads one minimum buffer
// per callback.
func recordPeriodFrames(sampleRate, channels, minBuffer int, nonBlocking bool) int {
	if nonBlocking {
		return sampleRate * 2 / (100 * channels)
	}
	return minBuffer / (2 * channels)
}
