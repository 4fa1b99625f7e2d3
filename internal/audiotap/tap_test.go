package audiotap

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pcm16(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func TestWriterThenLoad(t *testing.T) {
	t.Parallel()
	t.Attr("component", "audiotap")

	path := filepath.Join(t.TempDir(), "taps", "played.wav")
	w, err := Create(path, 16000, 2)
	require.NoError(t, err)

	first := pcm16(100, -100, 32767, -32768)
	second := pcm16(1, 2)
	n, err := w.Write(first)
	require.NoError(t, err)
	assert.Equal(t, len(first), n)
	_, err = w.Write(second)
	require.NoError(t, err)
	assert.Equal(t, int64(3), w.Frames())
	require.NoError(t, w.Close())
	require.NoError(t, w.Close(), "second close is a no-op")

	_, err = w.Write(first)
	require.ErrorIs(t, err, os.ErrClosed)

	clip, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 16000, clip.SampleRate)
	assert.Equal(t, 2, clip.Channels)
	assert.Equal(t, append(first, second...), clip.Data)
}

func TestCreateRejectsBadFormat(t *testing.T) {
	t.Parallel()

	_, err := Create(filepath.Join(t.TempDir(), "x.wav"), 0, 1)
	require.Error(t, err)
}

func TestLoadRejectsNonWAV(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "not.wav")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a riff header"), 0o600))

	_, err := Load(path)
	require.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.wav"))
	require.Error(t, err)
}
