package telemetry

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/soundbackend/internal/conf"
	"github.com/tphakala/soundbackend/internal/errors"
)

// recordingTransport implements sentry.Transport and keeps every event.
type recordingTransport struct {
	mu     sync.Mutex
	events []*sentry.Event
}

func (t *recordingTransport) Configure(sentry.ClientOptions) {} //nolint:gocritic // interface signature

func (t *recordingTransport) SendEvent(event *sentry.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, event)
}

func (t *recordingTransport) Flush(time.Duration) bool { return true }

func (t *recordingTransport) FlushWithContext(context.Context) bool { return true }

func (t *recordingTransport) Close() {}

func (t *recordingTransport) snapshot() []*sentry.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*sentry.Event(nil), t.events...)
}

func TestInitSentryDisabled(t *testing.T) {
	t.Cleanup(Disable)

	settings := conf.Defaults()
	settings.Telemetry.Enabled = false
	require.NoError(t, InitSentry(settings, Info{Version: "test"}))

	reporter := errors.GetTelemetryReporter()
	require.NotNil(t, reporter)
	assert.False(t, reporter.IsEnabled())
	assert.True(t, Flush(time.Millisecond))
}

func TestEnhancedErrorsAreReported(t *testing.T) {
	t.Cleanup(Disable)

	transport := &recordingTransport{}
	settings := conf.Defaults()
	settings.Telemetry.Enabled = true
	settings.Telemetry.DSN = "https://public@example.com/1"
	require.NoError(t, initSentry(settings, Info{Version: "1.2.3", SystemID: "ABCD-0123-4567"}, transport))
	require.True(t, errors.GetTelemetryReporter().IsEnabled())

	_ = errors.Newf("device vanished").
		Component("soundbackend").
		Category(errors.CategoryAudio).
		Context("operation", "start_playback").
		Build()

	require.Eventually(t, func() bool { return len(transport.snapshot()) == 1 },
		time.Second, 10*time.Millisecond)

	event := transport.snapshot()[0]
	assert.Equal(t, "soundbackend", event.Tags["component"])
	assert.Equal(t, "ABCD-0123-4567", event.Tags["system_id"])
	assert.Equal(t, "soundbackend@1.2.3", event.Release)
	assert.Empty(t, event.ServerName)
	assert.True(t, event.User.IsEmpty())
	assert.Contains(t, event.Message, "device vanished")
}

func TestApplyPrivacyFilters(t *testing.T) {
	t.Parallel()

	event := &sentry.Event{
		ServerName: "myhost",
		User:       sentry.User{ID: "42"},
		Contexts:   map[string]sentry.Context{"os": {}, "application": {}},
		Extra:      map[string]any{"component": "x", "path": "/home/me"},
		Tags:       map[string]string{"hostname": "myhost", "component": "x"},
	}
	event = applyPrivacyFilters(event)

	assert.Empty(t, event.ServerName)
	assert.True(t, event.User.IsEmpty())
	assert.NotContains(t, event.Contexts, "os")
	assert.Contains(t, event.Contexts, "application")
	assert.Equal(t, map[string]any{"component": "x"}, event.Extra)
	assert.Equal(t, map[string]string{"component": "x"}, event.Tags)
}

func TestSystemID(t *testing.T) {
	t.Parallel()

	id := GenerateSystemID()
	assert.Len(t, id, 14)
	assert.True(t, isValidSystemID(id))
	assert.False(t, isValidSystemID("not-an-id"))
	assert.False(t, isValidSystemID("ZZZZ-0000-0000"))

	dir := filepath.Join(t.TempDir(), "cfg")
	first, err := LoadOrCreateSystemID(dir)
	require.NoError(t, err)
	second, err := LoadOrCreateSystemID(dir)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	require.NoError(t, os.WriteFile(filepath.Join(dir, systemIDFile), []byte("garbage"), 0o644))
	third, err := LoadOrCreateSystemID(dir)
	require.NoError(t, err)
	assert.NotEqual(t, "garbage", third)
	assert.True(t, isValidSystemID(third))
}
