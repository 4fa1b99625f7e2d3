package soundbackend

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlaybackSizing(t *testing.T) {
	t.Parallel()
	t.Attr("component", "soundbackend")

	tests := []struct {
		name         string
		rate, ch     int
		hwMin        int
		wantAdjusted int
		wantBuffer   int
	}{
		{"48k stereo 4096", 48000, 2, 4096, 4096, 98304},
		{"48k stereo small minimum", 48000, 2, 1000, 4000, 100000},
		{"8k mono large minimum", 8000, 1, 4096, 4096, 8192},
		{"44.1k stereo", 44100, 2, 3528, 7056, 91728},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			adjusted := adjustedMinBuffer(tt.rate, tt.ch, tt.hwMin)
			assert.Equal(t, tt.wantAdjusted, adjusted)
			assert.Equal(t, tt.wantBuffer, playbackBufferSize(tt.rate, tt.ch, adjusted))
		})
	}
}

func TestPlaybackSizingMultiples(t *testing.T) {
	t.Parallel()

	for _, rate := range []int{8000, 16000, 44100, 48000, 96000} {
		for _, ch := range []int{1, 2} {
			for _, hwMin := range []int{256, 1000, 3840, 4096, 16384} {
				tenMs := tenMsBytes(rate, ch)
				adjusted := adjustedMinBuffer(rate, ch, hwMin)
				buffer := playbackBufferSize(rate, ch, adjusted)

				assert.Zero(t, adjusted%hwMin, "rate=%d ch=%d hwMin=%d", rate, ch, hwMin)
				assert.Greater(t, adjusted, 2*tenMs, "adjusted buffer holds more than 20ms")
				assert.Zero(t, buffer%adjusted)
				assert.Greater(t, buffer, 50*tenMs, "shared buffer holds more than 500ms")
			}
		}
	}
}

func TestRecordPeriodFrames(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 960, recordPeriodFrames(48000, 1, 1920, true))
	assert.Equal(t, 480, recordPeriodFrames(48000, 2, 1920, true))
	assert.Equal(t, 480, recordPeriodFrames(48000, 2, 1920, false))
	assert.Equal(t, 960, recordPeriodFrames(48000, 1, 1920, false))
	assert.Equal(t, 480, periodFrames(48000, 10))
}

func TestPreferRate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []int{44100, 48000, 32000, 22050, 16000, 8000, 192000, 96000, 88200}, preferRate(captureRates, 44100))
	assert.Equal(t, []int{11025, 48000, 44100, 32000, 22050, 16000, 8000, 192000, 96000, 88200}, preferRate(captureRates, 11025))
	assert.Equal(t, captureRates, preferRate(captureRates, 48000))
	assert.Equal(t, captureRates, preferRate(captureRates, 0))
}
