// env.go - Environment variable configuration and validation
package conf

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns the explicitly validated environment variables.
// Every other key is still reachable through AutomaticEnv.
func getEnvBindings() []envBinding {
	return []envBinding{
		{"audio.backend", EnvPrefix + "_AUDIO_BACKEND", validateEnvBackend},
		{"audio.playback.samplerate", EnvPrefix + "_AUDIO_PLAYBACK_SAMPLERATE", validateEnvSampleRate},
		{"audio.playback.channels", EnvPrefix + "_AUDIO_PLAYBACK_CHANNELS", validateEnvChannels},
		{"audio.capture.nonblocking", EnvPrefix + "_AUDIO_CAPTURE_NONBLOCKING", validateEnvBool},
		{"http.enabled", EnvPrefix + "_HTTP_ENABLED", validateEnvBool},
		{"mqtt.enabled", EnvPrefix + "_MQTT_ENABLED", validateEnvBool},
		{"mqtt.password", EnvPrefix + "_MQTT_PASSWORD", nil},
		{"telemetry.dsn", EnvPrefix + "_TELEMETRY_DSN", nil},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars(v *viper.Viper) error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate == nil {
			continue
		}
		if value := os.Getenv(binding.EnvVar); value != "" {
			if err := binding.Validate(value); err != nil {
				warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, value, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

func validateEnvBackend(value string) error {
	switch strings.ToLower(value) {
	case BackendMiniaudio, BackendVirtual:
		return nil
	default:
		return fmt.Errorf("must be %q or %q", BackendMiniaudio, BackendVirtual)
	}
}

func validateEnvSampleRate(value string) error {
	rate, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("must be an integer")
	}
	if rate != 0 && (rate < 8000 || rate > 192000) {
		return fmt.Errorf("must be 0 or between 8000 and 192000")
	}
	return nil
}

func validateEnvChannels(value string) error {
	ch, err := strconv.Atoi(value)
	if err != nil || ch < 1 || ch > 2 {
		return fmt.Errorf("must be 1 or 2")
	}
	return nil
}

// configureEnvironmentVariables sets up environment variable support for Viper
func configureEnvironmentVariables(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return bindEnvVars(v)
}
