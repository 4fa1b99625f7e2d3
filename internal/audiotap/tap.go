// Package audiotap records PCM16 streams to WAV files and loads WAV files as PCM16.
//
// The virtual hardware backend uses it as its sound card (a WAV source for
// capture, a WAV sink for playback) and the engines use it for optional debug
// dumps of what was played and captured.
package audiotap

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/tphakala/soundbackend/internal/errors"
)

const (
	bitDepth      = 16
	wavFormatPCM  = 1
	dirPermission = 0o755
)

// Writer appends PCM16 little-endian bytes to a WAV file.
// Close must be called to finalize the header.
type Writer struct {
	mu     sync.Mutex
	file   *os.File
	enc    *wav.Encoder
	buf    *audio.IntBuffer
	path   string
	frames int64
	closed bool
}

// Create opens path for writing, creating parent directories.
func Create(path string, sampleRate, channels int) (*Writer, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, errors.Newf("invalid wav format %d Hz / %d ch", sampleRate, channels).
			Component("audiotap").
			Category(errors.CategoryValidation).
			Build()
	}

	if err := os.MkdirAll(filepath.Dir(path), dirPermission); err != nil {
		return nil, errors.New(err).
			Component("audiotap").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, errors.New(err).
			Component("audiotap").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}

	format := &audio.Format{SampleRate: sampleRate, NumChannels: channels}
	return &Writer{
		file: f,
		enc:  wav.NewEncoder(f, sampleRate, bitDepth, channels, wavFormatPCM),
		buf:  &audio.IntBuffer{Format: format, SourceBitDepth: bitDepth},
		path: path,
	}, nil
}

// Path returns the file being written.
func (w *Writer) Path() string {
	return w.path
}

// Frames returns the number of frames written so far.
func (w *Writer) Frames() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frames
}

// Write encodes p, which must hold whole PCM16 samples.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, os.ErrClosed
	}

	samples := len(p) / 2
	if cap(w.buf.Data) < samples {
		w.buf.Data = make([]int, samples)
	}
	w.buf.Data = w.buf.Data[:samples]
	for i := range samples {
		w.buf.Data[i] = int(int16(binary.LittleEndian.Uint16(p[i*2:])))
	}

	if err := w.enc.Write(w.buf); err != nil {
		return 0, fmt.Errorf("wav encode: %w", err)
	}
	w.frames += int64(samples / w.buf.Format.NumChannels)
	return samples * 2, nil
}

// Close finalizes the WAV header and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	encErr := w.enc.Close()
	fileErr := w.file.Close()
	return errors.Join(encErr, fileErr)
}

// PCM is a decoded PCM16 clip.
type PCM struct {
	Data       []byte
	SampleRate int
	Channels   int
}

// Load decodes a 16-bit WAV file into little-endian PCM16 bytes.
func Load(path string) (*PCM, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New(err).
			Component("audiotap").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		return nil, errors.Newf("%s is not a valid WAV file", path).
			Component("audiotap").
			Category(errors.CategoryValidation).
			Build()
	}
	if dec.BitDepth != bitDepth {
		return nil, errors.Newf("unsupported bit depth %d", dec.BitDepth).
			Component("audiotap").
			Category(errors.CategoryValidation).
			Context("path", path).
			Build()
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, errors.New(err).
			Component("audiotap").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}

	data := make([]byte, len(buf.Data)*2)
	for i, s := range buf.Data {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(int16(s)))
	}

	return &PCM{
		Data:       data,
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
	}, nil
}
