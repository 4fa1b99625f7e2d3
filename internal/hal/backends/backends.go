// Package backends opens the hal.Backend selected by configuration.
package backends

import (
	"strings"

	"github.com/tphakala/soundbackend/internal/conf"
	"github.com/tphakala/soundbackend/internal/errors"
	"github.com/tphakala/soundbackend/internal/hal"
	"github.com/tphakala/soundbackend/internal/hal/miniaudio"
	"github.com/tphakala/soundbackend/internal/hal/virtual"
	"github.com/tphakala/soundbackend/internal/logger"
)

// New creates the backend named by settings.Audio.Backend. Capabilities are
// resolved here once; audio.releasestrategy overrides the backend default.
func New(settings *conf.AudioSettings) (hal.Backend, error) {
	release, override, err := hal.ParseReleaseStrategy(settings.ReleaseStrategy)
	if err != nil {
		return nil, errors.New(err).
			Component("hal.backends").
			Category(errors.CategoryConfiguration).
			Build()
	}

	var backend hal.Backend
	switch strings.ToLower(settings.Backend) {
	case conf.BackendVirtual:
		cfg := virtual.DefaultConfig()
		cfg.NativeRate = settings.Virtual.NativeRate
		cfg.MinBufferBytes = settings.Virtual.MinBuffer
		cfg.TickMs = settings.Virtual.PeriodMs
		cfg.InputPath = settings.Virtual.Input
		cfg.OutputPath = settings.Virtual.Output
		if override {
			cfg.Capabilities.Release = release
		}
		backend, err = virtual.New(cfg)

	case conf.BackendMiniaudio, "":
		cfg := miniaudio.Config{
			Backends: settings.Miniaudio.Backends,
			PeriodMs: settings.Miniaudio.PeriodMs,
			Periods:  settings.Miniaudio.Periods,
		}
		if override {
			cfg.Release = &release
		}
		backend, err = miniaudio.New(cfg)

	default:
		return nil, errors.Newf("unknown audio backend %q", settings.Backend).
			Component("hal.backends").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err != nil {
		return nil, err
	}

	caps := backend.Capabilities()
	logger.Global().Module("hal").Info("audio backend ready",
		logger.String("backend", backend.Name()),
		logger.Bool("nonblocking_read", caps.NonBlockingRead),
		logger.Bool("graceful_quit", caps.GracefulQuit),
		logger.Bool("preferred_device", caps.PreferredDevice),
		logger.String("release", caps.Release.String()))
	return backend, nil
}
