// conf/validate.go

package conf

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/tphakala/soundbackend/internal/hal"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	ve.Errors = append(ve.Errors, validateMainSettings(&settings.Main)...)
	ve.Errors = append(ve.Errors, validateAudioSettings(&settings.Audio)...)
	ve.Errors = append(ve.Errors, validateHTTPSettings(&settings.HTTP)...)
	ve.Errors = append(ve.Errors, validateMQTTSettings(&settings.MQTT)...)

	if settings.Telemetry.Enabled && settings.Telemetry.DSN == "" {
		ve.Errors = append(ve.Errors, "telemetry is enabled but no DSN is set")
	}

	if settings.Notification.Enabled && len(settings.Notification.URLs) == 0 {
		ve.Errors = append(ve.Errors, "notifications are enabled but no service url is set")
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateMainSettings(settings *MainSettings) []string {
	var errs []string
	if strings.TrimSpace(settings.DeviceID) == "" {
		errs = append(errs, "main device id must not be empty")
	}
	if strings.TrimSpace(settings.DeviceName) == "" {
		errs = append(errs, "main device name must not be empty")
	}
	return errs
}

func validateAudioSettings(settings *AudioSettings) []string {
	var errs []string

	switch strings.ToLower(settings.Backend) {
	case BackendMiniaudio, BackendVirtual:
	default:
		errs = append(errs, fmt.Sprintf("audio backend %q is not supported, use %q or %q",
			settings.Backend, BackendMiniaudio, BackendVirtual))
	}

	if _, _, err := hal.ParseReleaseStrategy(settings.ReleaseStrategy); err != nil {
		errs = append(errs, err.Error())
	}

	pb := settings.Playback
	if pb.SampleRate != 0 && (pb.SampleRate < 8000 || pb.SampleRate > 192000) {
		errs = append(errs, "playback sample rate must be 0 (native) or between 8000 and 192000")
	}
	if pb.Channels < 1 || pb.Channels > 2 {
		errs = append(errs, "playback channels must be 1 or 2")
	}
	if pb.PeriodMs < 1 || pb.PeriodMs > 100 {
		errs = append(errs, "playback period must be between 1 and 100 ms")
	}

	if settings.Virtual.MinBuffer < 0 {
		errs = append(errs, "virtual minimum buffer must not be negative")
	}
	if settings.Virtual.PeriodMs < 1 {
		errs = append(errs, "virtual clock period must be at least 1 ms")
	}
	if settings.Virtual.NativeRate < 8000 || settings.Virtual.NativeRate > 192000 {
		errs = append(errs, "virtual native rate must be between 8000 and 192000")
	}

	if settings.Miniaudio.PeriodMs < 1 {
		errs = append(errs, "miniaudio period must be at least 1 ms")
	}
	if settings.Miniaudio.Periods < 2 {
		errs = append(errs, "miniaudio needs at least 2 periods")
	}

	return errs
}

func validateHTTPSettings(settings *HTTPSettings) []string {
	if !settings.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(settings.Listen); err != nil {
		return []string{fmt.Sprintf("http listen address %q is invalid: %v", settings.Listen, err)}
	}
	return nil
}

func validateMQTTSettings(settings *MQTTSettings) []string {
	if !settings.Enabled {
		return nil
	}

	var errs []string
	u, err := url.Parse(settings.Broker)
	switch {
	case settings.Broker == "":
		errs = append(errs, "MQTT broker URL is required when MQTT is enabled")
	case err != nil || u.Scheme == "" || u.Host == "":
		errs = append(errs, fmt.Sprintf("MQTT broker URL %q is invalid", settings.Broker))
	}
	if strings.TrimSpace(settings.Topic) == "" {
		errs = append(errs, "MQTT topic must not be empty")
	}
	return errs
}
