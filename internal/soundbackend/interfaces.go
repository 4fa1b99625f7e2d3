package soundbackend

// Voice engine status codes.
const (
	// StatusOK is returned by producers and consumers on success.
	StatusOK = 0
	// StatusNoData means the producer had nothing queued. The engine keeps
	// running and plays what is in the buffer.
	StatusNoData = 0x0917
	// StatusBufferTooSmall means the request exceeded the registered buffer.
	StatusBufferTooSmall = 1537
)

// DataProducer fills the playback engine's shared buffer. AcquireData writes
// frames frames of PCM16 into the buffer registered for deviceID and returns
// a status code. It runs on the playback worker and must not block for long.
type DataProducer interface {
	AcquireData(deviceID string, frames int) int
}

// DataConsumer drains the record engine's shared buffer. ProcessData is
// called with the number of frames just captured into the buffer registered
// for deviceID. Its status is only logged.
type DataConsumer interface {
	ProcessData(deviceID string, frames int) int
}

// Registration describes the virtual device handed to the voice engine.
type Registration struct {
	DeviceID    string
	DisplayName string

	CaptureSampleRate int
	CaptureChannels   int
	CaptureBuffer     *SharedBuffer

	PlaybackSampleRate int
	PlaybackChannels   int
	PlaybackBuffer     *SharedBuffer
}

// DeviceRegistrar is the voice engine's device table. Both calls return a
// status code; zero is success.
type DeviceRegistrar interface {
	RegisterDevice(reg Registration) int
	UnregisterDevice(deviceID string) int
}

// ProducerFunc adapts a function to DataProducer.
type ProducerFunc func(deviceID string, frames int) int

// AcquireData calls f.
func (f ProducerFunc) AcquireData(deviceID string, frames int) int { return f(deviceID, frames) }

// ConsumerFunc adapts a function to DataConsumer.
type ConsumerFunc func(deviceID string, frames int) int

// ProcessData calls f.
func (f ConsumerFunc) ProcessData(deviceID string, frames int) int { return f(deviceID, frames) }
