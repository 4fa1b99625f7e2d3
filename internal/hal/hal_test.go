package hal

import (
	"bytes"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFIFOWriteDropsOldestWhenNotWaiting(t *testing.T) {
	t.Parallel()
	t.Attr("component", "fifo")

	f := NewFIFO(8)
	n, err := f.Write([]byte{1, 2, 3, 4, 5, 6}, nil)
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	n, err = f.Write([]byte{7, 8, 9, 10}, func() bool { return false })
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 8, f.Length())
	assert.Equal(t, int64(2), f.Dropped())

	out := make([]byte, 8)
	got, err := f.Read(out)
	require.NoError(t, err)
	assert.Equal(t, 8, got)
	assert.Equal(t, []byte{3, 4, 5, 6, 7, 8, 9, 10}, out)
}

func TestFIFOWriteBlocksUntilDrained(t *testing.T) {
	t.Parallel()
	t.Attr("component", "fifo")

	f := NewFIFO(4)
	_, err := f.Write([]byte{1, 2, 3, 4}, nil)
	require.NoError(t, err)

	var done atomic.Bool
	var wg sync.WaitGroup
	wg.Go(func() {
		n, err := f.Write([]byte{5, 6}, func() bool { return true })
		assert.NoError(t, err)
		assert.Equal(t, 2, n)
		done.Store(true)
	})

	time.Sleep(20 * time.Millisecond)
	assert.False(t, done.Load(), "write should wait for space")

	out := make([]byte, 2)
	assert.Equal(t, 2, f.Drain(out))
	wg.Wait()
	assert.True(t, done.Load())
	assert.Equal(t, int64(0), f.Dropped())
}

func TestFIFOCloseReleasesBlockedWriter(t *testing.T) {
	t.Parallel()

	f := NewFIFO(2)
	_, err := f.Write([]byte{1, 2}, nil)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := f.Write([]byte{3}, func() bool { return true })
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	f.Close()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrReleased)
	case <-time.After(time.Second):
		t.Fatal("blocked writer was not released")
	}
}

func TestFIFOOfferReportsOverrunOnce(t *testing.T) {
	t.Parallel()

	f := NewFIFO(4)
	assert.Equal(t, 4, f.Offer([]byte{1, 2, 3, 4, 5, 6}))

	buf := make([]byte, 4)
	_, err := f.Read(buf)
	require.ErrorIs(t, err, ErrOverrun)

	n, err := f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte{1, 2, 3, 4}, buf)
}

func TestFIFODrainZeroFillsUnderrun(t *testing.T) {
	t.Parallel()

	f := NewFIFO(8)
	f.Offer([]byte{9, 9})
	out := bytes.Repeat([]byte{0xff}, 6)
	assert.Equal(t, 2, f.Drain(out))
	assert.Equal(t, []byte{9, 9, 0, 0, 0, 0}, out)
}

func TestReadFullWaitsForData(t *testing.T) {
	t.Parallel()
	t.Attr("component", "fifo")

	f := NewFIFO(8)
	f.Offer([]byte{1, 2})
	wake := make(chan struct{}, 1)

	var wg sync.WaitGroup
	wg.Go(func() {
		time.Sleep(10 * time.Millisecond)
		f.Offer([]byte{3, 4})
		wake <- struct{}{}
	})

	out := make([]byte, 4)
	n, err := ReadFull(f, out, func() bool { return true }, wake)
	wg.Wait()
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte{1, 2, 3, 4}, out)
}

func TestReadFullReturnsShortWhenInactive(t *testing.T) {
	t.Parallel()

	f := NewFIFO(8)
	f.Offer([]byte{5})
	out := make([]byte, 4)
	n, err := ReadFull(f, out, func() bool { return false }, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, byte(5), out[0])
}

func TestPositionTrackerNotifiesOnBoundaries(t *testing.T) {
	t.Parallel()
	t.Attr("component", "position")

	p := NewPositionTracker()
	p.Advance(100)
	select {
	case <-p.C():
		t.Fatal("no notification expected while period is zero")
	default:
	}

	p.SetPeriod(480)
	p.Advance(479)
	assert.Empty(t, p.C())

	p.Advance(1)
	assert.Len(t, p.C(), 1)
	<-p.C()

	// Crossing several periods at once coalesces into one pending signal.
	p.Advance(480 * 3)
	assert.Len(t, p.C(), 1)
	<-p.C()

	assert.Equal(t, int64(100+480+480*3), p.Position())
	p.Reset()
	assert.Equal(t, int64(0), p.Position())
	p.Advance(480)
	assert.Len(t, p.C(), 1)
}

func TestClassifyByName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		dir  Direction
		want DeviceType
	}{
		{"Built-in Audio Analog Stereo", Output, DeviceBuiltinSpeaker},
		{"WH-1000XM4 (A2DP Sink)", Output, DeviceBluetoothA2DP},
		{"WH-1000XM4 Hands-Free", Input, DeviceBluetoothSCO},
		{"bluez_source.headset", Input, DeviceBluetoothSCO},
		{"USB Audio Device", Output, DeviceUSBHeadset},
		{"Headphones", Output, DeviceWiredHeadphones},
		{"Headset Microphone", Input, DeviceWiredHeadset},
		{"HDA Intel HDMI", Output, DeviceHDMI},
		{"Internal Microphone", Input, DeviceBuiltinMic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ClassifyByName(tt.name, tt.dir))
		})
	}
}

func TestParseReleaseStrategy(t *testing.T) {
	t.Parallel()

	s, ok, err := ParseReleaseStrategy("auto")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, ReleaseStopFlush, s)

	s, ok, err = ParseReleaseStrategy("Direct")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ReleaseDirect, s)

	_, _, err = ParseReleaseStrategy("reflect")
	require.Error(t, err)
}

func TestParseDirection(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"input", "IN", " capture ", "record"} {
		d, err := ParseDirection(s)
		require.NoError(t, err, s)
		assert.Equal(t, Input, d)
	}
	for _, s := range []string{"output", "out", "Playback"} {
		d, err := ParseDirection(s)
		require.NoError(t, err, s)
		assert.Equal(t, Output, d)
	}
	_, err := ParseDirection("sideways")
	require.Error(t, err)
}
