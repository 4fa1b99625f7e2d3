// Package service assembles the audio backend, the device router and the
// optional HTTP and MQTT surfaces into one long-running process.
package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/cpuid/v2"
	"github.com/shirou/gopsutil/v3/host"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/soundbackend/internal/api"
	"github.com/tphakala/soundbackend/internal/buildinfo"
	"github.com/tphakala/soundbackend/internal/conf"
	"github.com/tphakala/soundbackend/internal/devices"
	"github.com/tphakala/soundbackend/internal/errors"
	"github.com/tphakala/soundbackend/internal/hal"
	"github.com/tphakala/soundbackend/internal/hal/backends"
	"github.com/tphakala/soundbackend/internal/logger"
	"github.com/tphakala/soundbackend/internal/mqtt"
	"github.com/tphakala/soundbackend/internal/notification"
	"github.com/tphakala/soundbackend/internal/observability"
	"github.com/tphakala/soundbackend/internal/soundbackend"
	"github.com/tphakala/soundbackend/internal/voice"
)

// shutdownTimeout bounds Shutdown when the caller's context has no deadline.
const shutdownTimeout = 10 * time.Second

// Service owns every component of a running backend.
type Service struct {
	settings *conf.Settings
	info     *buildinfo.Context
	log      logger.Logger

	hw         hal.Backend
	metrics    *observability.Metrics
	enumerator *devices.Enumerator
	manager    *devices.SoftwareAudioManager
	router     *devices.Router
	backend    *soundbackend.Backend
	engine     *voice.Loopback

	server    *api.Server
	client    mqtt.Client
	bridge    *mqtt.Bridge
	discovery *mqtt.Publisher
	notifier  *notification.Notifier
	watcher   *notification.Watcher

	shutdownOnce sync.Once
}

// Option customizes New. Tests use it to inject components.
type Option func(*Service)

// WithHardware uses hw instead of the backend named in the settings.
func WithHardware(hw hal.Backend) Option {
	return func(s *Service) { s.hw = hw }
}

// WithMQTTClient uses c instead of a broker connection built from the settings.
func WithMQTTClient(c mqtt.Client) Option {
	return func(s *Service) { s.client = c }
}

// WithNotifier sends engine alerts through n, regardless of the settings.
func WithNotifier(n *notification.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// New builds every component. Nothing is started and no audio is opened.
func New(settings *conf.Settings, info *buildinfo.Context, opts ...Option) (*Service, error) {
	s := &Service{
		settings: settings,
		info:     info,
		log:      logger.Global().Module("service"),
	}
	for _, opt := range opts {
		opt(s)
	}

	var err error
	if s.hw == nil {
		if s.hw, err = backends.New(&settings.Audio); err != nil {
			return nil, err
		}
	}

	if s.metrics, err = observability.NewMetrics(); err != nil {
		_ = s.hw.Close()
		return nil, errors.New(err).
			Component("service").
			Category(errors.CategorySystem).
			Context("operation", "create_metrics").
			Build()
	}

	s.enumerator = devices.NewEnumerator(s.hw, devices.DefaultCacheTTL)
	s.backend = soundbackend.New(s.hw, soundbackend.Config{
		DeviceID:    settings.Main.DeviceID,
		DisplayName: settings.Main.DeviceName,
		Playback: soundbackend.Options{
			SampleRate: settings.Audio.Playback.SampleRate,
			Channels:   settings.Audio.Playback.Channels,
			PeriodMs:   settings.Audio.Playback.PeriodMs,
			Device:     s.resolveDevice(hal.Output, settings.Audio.Playback.Device),
			Recorder:   s.metrics.Audio,
			TapDir:     settings.Debug.TapDir,
		},
		Capture: soundbackend.Options{
			Device:          s.resolveDevice(hal.Input, settings.Audio.Capture.Device),
			BlockingCapture: !settings.Audio.Capture.NonBlocking,
			Recorder:        s.metrics.Audio,
			TapDir:          settings.Debug.TapDir,
		},
		PauseOnNoisy: settings.Routing.PauseOnNoisy,
	})

	s.manager = devices.NewSoftwareAudioManager(settings.Routing.ScoAvailable)
	s.manager.OnChange(s.applyRoute)
	s.router = devices.NewRouter(s.manager, devices.RouterOptions{
		ProximitySpeaker: settings.Routing.ProximitySpeaker,
		Recorder:         s.metrics.Audio,
	})
	s.router.OnNoisy(s.backend.HandleNoisy)

	s.engine = voice.NewLoopback(voice.DefaultQueueMs)

	if settings.HTTP.Enabled {
		s.server, err = api.New(settings,
			api.WithBackend(s.backend),
			api.WithRouter(s.router),
			api.WithEnumerator(s.enumerator),
			api.WithMetrics(s.metrics),
			api.WithVersion(info.GetVersion()),
		)
		if err != nil {
			_ = s.hw.Close()
			return nil, err
		}
	}

	if settings.MQTT.Enabled {
		cfg := mqtt.ConfigFromSettings(settings)
		if s.client == nil {
			if s.client, err = mqtt.NewClient(cfg, s.metrics.MQTT); err != nil {
				_ = s.hw.Close()
				return nil, err
			}
		}
		s.bridge = mqtt.NewBridge(s.client, s.router, s.backend, cfg.Topic, mqtt.DefaultStatusInterval)
		s.bridge.SetMetrics(s.metrics.MQTT)
		s.discovery = mqtt.NewDiscoveryPublisher(s.client, s.bridge, mqtt.DiscoveryConfig{
			DeviceName: settings.Main.DeviceName,
			NodeID:     settings.Main.Name,
			Version:    info.GetVersion(),
		})
	}

	if settings.Notification.Enabled && s.notifier == nil {
		nc := settings.Notification
		if s.notifier, err = notification.New(nc.URLs, nc.Title, nc.Timeout); err != nil {
			_ = s.hw.Close()
			return nil, err
		}
		s.notifier.SetMinInterval(nc.MinInterval)
	}
	if s.notifier != nil {
		s.watcher = notification.NewWatcher(s.backend, s.notifier, 0)
	}

	return s, nil
}

// resolveDevice finds a configured endpoint by id, then by name. An empty or
// unknown value selects the system default.
func (s *Service) resolveDevice(dir hal.Direction, want string) *hal.DeviceInfo {
	if want == "" {
		return nil
	}
	dev, err := s.enumerator.FindByID(dir, want)
	if err == nil && dev == nil {
		var list []hal.DeviceInfo
		list, err = s.enumerator.Devices(dir)
		for i := range list {
			if strings.EqualFold(list[i].Name, want) {
				dev = &list[i]
				break
			}
		}
	}
	if err != nil || dev == nil {
		s.log.Warn("configured device not found, using default",
			logger.String("direction", dir.String()),
			logger.String("device", want),
			logger.Error(err))
		return nil
	}
	return dev
}

// applyRoute moves both engines to the endpoints matching the routing
// flags. It runs under the router lock and must not call back into it.
func (s *Service) applyRoute(change devices.RouteChange) {
	var (
		out *hal.DeviceInfo
		err error
	)
	switch {
	case change.BluetoothSco:
		out, err = s.enumerator.FindByType(hal.Output, hal.DeviceBluetoothSCO)
	case change.Speakerphone:
		out, err = s.enumerator.FindByType(hal.Output, hal.DeviceBuiltinSpeaker)
	}
	if err == nil && out == nil {
		out, err = s.enumerator.DefaultOutput()
	}
	if err != nil || out == nil {
		s.log.Warn("no output for route",
			logger.Bool("speakerphone", change.Speakerphone),
			logger.Bool("bluetooth_sco", change.BluetoothSco),
			logger.Error(err))
		return
	}

	s.backend.SetPreferredDevice(out)
	if in, err := s.enumerator.InputFor(*out); err == nil && in != nil {
		s.backend.SetPreferredDevice(in)
	}
	s.log.Info("route applied",
		logger.String("output", out.Name),
		logger.Bool("speakerphone", change.Speakerphone),
		logger.Bool("bluetooth_sco", change.BluetoothSco))
}

// Backend returns the audio backend facade.
func (s *Service) Backend() *soundbackend.Backend { return s.backend }

// Router returns the device router.
func (s *Service) Router() *devices.Router { return s.router }

// Engine returns the in-process voice engine.
func (s *Service) Engine() *voice.Loopback { return s.engine }

// Server returns the HTTP server, nil when disabled.
func (s *Service) Server() *api.Server { return s.server }

// Run registers the voice engine, starts both engines and the enabled
// surfaces, then blocks until ctx is done or a surface fails. Shutdown is
// always performed before Run returns.
func (s *Service) Run(ctx context.Context) error {
	s.logSystemInfo()

	if err := devices.Sync(s.router, s.enumerator); err != nil {
		s.log.Warn("initial device scan failed", logger.Error(err))
	}

	if err := s.backend.PrepareAudio(s.engine, s.engine, s.engine); err != nil {
		s.Shutdown(context.WithoutCancel(ctx))
		return err
	}
	if err := s.backend.SetState(ctx, soundbackend.ActionStart); err != nil {
		s.log.Warn("engines did not start", logger.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	if s.server != nil {
		s.server.Start()
	}
	if s.bridge != nil {
		g.Go(func() error { return s.runMQTT(gctx) })
	}
	if s.watcher != nil {
		g.Go(func() error { return s.watcher.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	err := g.Wait()
	s.Shutdown(context.WithoutCancel(ctx))
	return err
}

func (s *Service) runMQTT(ctx context.Context) error {
	if err := s.client.Connect(ctx); err != nil {
		// The bridge keeps its subscriptions and publishes once a later
		// reconnect succeeds.
		s.log.Warn("mqtt connect failed", logger.Error(err))
	} else if err := s.discovery.PublishDiscovery(ctx); err != nil {
		s.log.Warn("mqtt discovery failed", logger.Error(err))
	}
	return s.bridge.Run(ctx)
}

// Shutdown stops every surface, closes both engines and releases the
// hardware backend. It is safe to call more than once.
func (s *Service) Shutdown(ctx context.Context) {
	s.shutdownOnce.Do(func() {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()
		}

		if s.server != nil {
			if err := s.server.Shutdown(ctx); err != nil {
				s.log.Warn("http server shutdown failed", logger.Error(err))
			}
		}
		if s.client != nil {
			s.client.Disconnect()
		}
		if err := s.backend.Close(ctx); err != nil {
			s.log.Warn("backend close failed", logger.Error(err))
		}
		if err := s.hw.Close(); err != nil {
			s.log.Warn("hardware close failed", logger.Error(err))
		}

		stats := s.engine.Stats()
		s.log.Info("service stopped",
			logger.Int64("captured_frames", stats.CapturedFrames),
			logger.Int64("played_frames", stats.PlayedFrames))
	})
}

func (s *Service) logSystemInfo() {
	fields := []logger.Field{
		logger.String("version", s.info.GetVersion()),
		logger.String("build_date", s.info.GetBuildDate()),
		logger.String("audio_backend", s.hw.Name()),
		logger.String("cpu", cpuid.CPU.BrandName),
		logger.Int("logical_cores", cpuid.CPU.LogicalCores),
	}
	if info, err := host.Info(); err == nil {
		fields = append(fields,
			logger.String("os", info.OS),
			logger.String("platform", info.Platform),
			logger.String("platform_version", info.PlatformVersion))
	}
	s.log.Info("starting sound backend", fields...)
}
