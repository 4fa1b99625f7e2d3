// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/soundbackend/internal/logger"
)

// Default identifiers registered with the voice engine.
const (
	DefaultDeviceID   = "Java"
	DefaultDeviceName = "Java"
)

// Sets default values for the configuration.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("main.name", "soundbackend")
	v.SetDefault("main.deviceid", DefaultDeviceID)
	v.SetDefault("main.devicename", DefaultDeviceName)

	v.SetDefault("logging.defaultlevel", logger.DefaultLogLevel)
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", logger.DefaultConsoleEnabled)
	v.SetDefault("logging.console.level", logger.DefaultLogLevel)
	v.SetDefault("logging.console.json", false)
	v.SetDefault("logging.fileoutput.enabled", logger.DefaultFileEnabled)
	v.SetDefault("logging.fileoutput.path", logger.DefaultLogPath)
	v.SetDefault("logging.fileoutput.level", logger.DefaultLogLevel)

	v.SetDefault("audio.backend", BackendMiniaudio)
	v.SetDefault("audio.releasestrategy", "auto")

	v.SetDefault("audio.playback.samplerate", 0)
	v.SetDefault("audio.playback.channels", 2)
	v.SetDefault("audio.playback.device", "")
	v.SetDefault("audio.playback.periodms", 10)

	v.SetDefault("audio.capture.device", "")
	v.SetDefault("audio.capture.nonblocking", true)

	v.SetDefault("audio.virtual.minbuffer", 0)
	v.SetDefault("audio.virtual.periodms", 5)
	v.SetDefault("audio.virtual.nativerate", 48000)
	v.SetDefault("audio.virtual.input", "")
	v.SetDefault("audio.virtual.output", "")

	v.SetDefault("audio.miniaudio.periodms", 10)
	v.SetDefault("audio.miniaudio.periods", 3)
	v.SetDefault("audio.miniaudio.backends", []string{})

	v.SetDefault("routing.scoavailable", true)
	v.SetDefault("routing.proximityspeaker", false)
	v.SetDefault("routing.pauseonnoisy", true)

	v.SetDefault("http.enabled", true)
	v.SetDefault("http.listen", "127.0.0.1:8089")
	v.SetDefault("http.remotecontrol", false)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.clientid", "soundbackend")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic", "soundbackend")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.dsn", "")

	v.SetDefault("notification.enabled", false)
	v.SetDefault("notification.urls", []string{})
	v.SetDefault("notification.title", "soundbackend")
	v.SetDefault("notification.timeout", 10*time.Second)
	v.SetDefault("notification.mininterval", time.Minute)

	v.SetDefault("debug.tapdir", "")
}
