// Package telemetry provides opt-in error reporting to Sentry.
package telemetry

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/tphakala/soundbackend/internal/conf"
	"github.com/tphakala/soundbackend/internal/errors"
	"github.com/tphakala/soundbackend/internal/logger"
)

// Info identifies the running instance in reported events.
type Info struct {
	Version  string
	SystemID string
}

var (
	initMu      sync.Mutex
	initialized bool
)

// GetLogger returns the telemetry package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("telemetry")
}

// InitSentry initializes the Sentry SDK when telemetry is enabled and
// installs the error reporter. With telemetry disabled the reporter is
// installed in a disabled state so enhanced errors are never sent.
func InitSentry(settings *conf.Settings, info Info) error {
	return initSentry(settings, info, nil)
}

func initSentry(settings *conf.Settings, info Info, transport sentry.Transport) error {
	initMu.Lock()
	defer initMu.Unlock()

	log := GetLogger()
	if !settings.Telemetry.Enabled {
		errors.SetTelemetryReporter(errors.NewSentryReporter(false))
		log.Debug("telemetry is disabled (opt-in required)")
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.Telemetry.DSN,
		SampleRate:       1.0,
		AttachStacktrace: false,
		Environment:      "production",
		ServerName:       "",
		Release:          fmt.Sprintf("soundbackend@%s", info.Version),
		Transport:        transport,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	})
	if err != nil {
		return errors.New(err).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Context("operation", "sentry_init").
			Build()
	}

	configureScope(settings, info)
	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	initialized = true

	log.Info("telemetry initialized",
		logger.String("system_id", info.SystemID),
		logger.String("version", info.Version))
	return nil
}

// Flush waits up to timeout for queued events. It is a no-op when Sentry
// was never initialized.
func Flush(timeout time.Duration) bool {
	initMu.Lock()
	ok := initialized
	initMu.Unlock()
	if !ok {
		return true
	}
	return sentry.Flush(timeout)
}

// Disable detaches the error reporter.
func Disable() {
	initMu.Lock()
	defer initMu.Unlock()
	errors.SetTelemetryReporter(nil)
	initialized = false
}

func configureScope(settings *conf.Settings, info Info) {
	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("system_id", info.SystemID)
		scope.SetTag("os", runtime.GOOS)
		scope.SetTag("arch", runtime.GOARCH)
		scope.SetTag("audio_backend", settings.Audio.Backend)

		scope.SetContext("application", map[string]any{
			"name":      "soundbackend",
			"version":   info.Version,
			"system_id": info.SystemID,
		})
		scope.SetContext("audio", map[string]any{
			"backend":          settings.Audio.Backend,
			"release_strategy": settings.Audio.ReleaseStrategy,
			"sample_rate":      settings.Audio.Playback.SampleRate,
			"channels":         settings.Audio.Playback.Channels,
		})
	})
}

// applyPrivacyFilters strips host identifying data from an event.
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}

	for k := range event.Extra {
		if k != "error_type" && k != "component" {
			delete(event.Extra, k)
		}
	}

	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}
	return event
}
