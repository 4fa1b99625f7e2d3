// config.go: settings structs for soundbackend and the functions to load and save them.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/soundbackend/internal/errors"
	"github.com/tphakala/soundbackend/internal/logger"
)

// MainSettings identifies the virtual device registered with the voice engine.
type MainSettings struct {
	Name       string // application name used in logs and MQTT client ids
	DeviceID   string // device id passed to the producer and consumer callbacks
	DeviceName string // display name registered with the voice engine
}

// PlaybackSettings configures the output stream engine.
type PlaybackSettings struct {
	SampleRate int    // 0 selects the native output rate
	Channels   int    // 1 or 2
	Device     string // preferred output device id or name, empty for default
	PeriodMs   int    // notification period of the playback worker
}

// CaptureSettings configures the input stream engine.
type CaptureSettings struct {
	Device      string // preferred input device id or name, empty for default
	NonBlocking bool   // use non-blocking reads when the backend supports them
}

// VirtualSettings configures the software sound card.
type VirtualSettings struct {
	MinBuffer  int    // bytes reported as minimum buffer, 0 derives 10ms
	PeriodMs   int    // clock tick
	NativeRate int    // simulated native output rate
	Input      string // WAV file looped into capture
	Output     string // WAV file receiving playback
}

// MiniaudioSettings configures the malgo hardware backend.
type MiniaudioSettings struct {
	PeriodMs int      // device period size
	Periods  int      // number of periods in the device buffer
	Backends []string // malgo backends, empty selects the platform default
}

// AudioSettings selects and configures the hardware backend.
type AudioSettings struct {
	Backend         string // "miniaudio" or "virtual"
	ReleaseStrategy string // "auto", "stopflush" or "direct"
	Playback        PlaybackSettings
	Capture         CaptureSettings
	Virtual         VirtualSettings
	Miniaudio       MiniaudioSettings
}

// RoutingSettings controls the device router.
type RoutingSettings struct {
	ScoAvailable     bool // platform reports Bluetooth SCO available off-call
	ProximitySpeaker bool // toggle speakerphone from proximity events
	PauseOnNoisy     bool // pause playback when output becomes noisy
}

// HTTPSettings controls the control API.
type HTTPSettings struct {
	Enabled       bool
	Listen        string
	RemoteControl bool // accept state changes from non-loopback clients
}

// MQTTSettings controls the connectivity event bridge.
type MQTTSettings struct {
	Enabled  bool
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string // topic prefix, e.g. "soundbackend"
}

// TelemetrySettings controls error reporting to Sentry.
type TelemetrySettings struct {
	Enabled bool
	DSN     string
}

// NotificationSettings controls operator alerts on engine failures.
type NotificationSettings struct {
	Enabled     bool
	URLs        []string      // shoutrrr service urls, e.g. "ntfy://ntfy.sh/topic"
	Title       string
	Timeout     time.Duration // per delivery
	MinInterval time.Duration // between repeats of the same alert
}

// DebugSettings holds developer options.
type DebugSettings struct {
	TapDir string // when set, played and captured PCM is dumped as WAV here
}

// Settings is the root of the configuration.
type Settings struct {
	Main         MainSettings
	Logging      logger.LoggingConfig
	Audio        AudioSettings
	Routing      RoutingSettings
	HTTP         HTTPSettings
	MQTT         MQTTSettings
	Telemetry    TelemetrySettings
	Notification NotificationSettings
	Debug        DebugSettings
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads defaults, the configuration file and environment variables into
// Settings. An empty configFile searches the default config paths; a missing
// file there is not an error.
func Load(v *viper.Viper, configFile string) (*Settings, error) {
	if err := initViper(v, configFile); err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal").
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}

	settingsMutex.Lock()
	settingsInstance = settings
	settingsMutex.Unlock()
	return settings, nil
}

func initViper(v *viper.Viper, configFile string) error {
	setDefaultConfig(v)
	if err := configureEnvironmentVariables(v); err != nil {
		GetLogger().Warn("environment configuration issues", logger.Error(err))
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		paths, err := GetDefaultConfigPaths()
		if err != nil {
			return err
		}
		for _, path := range paths {
			v.AddConfigPath(path)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			GetLogger().Info("no config file found, using defaults")
			return nil
		}
		return errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("config_file", configFile).
			Build()
	}

	GetLogger().Debug("config file loaded", logger.String("path", v.ConfigFileUsed()))
	return nil
}

// GetSettings returns the settings of the last successful Load, or nil.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Defaults returns the default settings without reading files or environment.
func Defaults() *Settings {
	v := viper.New()
	setDefaultConfig(v)
	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		// Defaults are static; failing to decode them is a programming error.
		panic(fmt.Sprintf("conf: decoding defaults: %v", err))
	}
	return settings
}

// SaveYAML writes settings to path atomically. Comments and key order of an
// existing file are not preserved.
func SaveYAML(path string, settings *Settings) error {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "marshal").
			Build()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.New(err).
			Component("conf").
			Category(errors.CategoryFileIO).
			Context("path", dir).
			Build()
	}

	tempFile, err := os.CreateTemp(dir, "config-*.yaml")
	if err != nil {
		return errors.New(err).
			Component("conf").
			Category(errors.CategoryFileIO).
			Context("operation", "create-temp").
			Build()
	}
	tempName := tempFile.Name()
	defer os.Remove(tempName)

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := moveFile(tempName, path); err != nil {
		return fmt.Errorf("error moving config file into place: %w", err)
	}
	return nil
}
