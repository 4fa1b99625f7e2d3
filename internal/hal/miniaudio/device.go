package miniaudio

import (
	"encoding/hex"
	"runtime"
	"strings"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/soundbackend/internal/errors"
	"github.com/tphakala/soundbackend/internal/hal"
)

// backendForPlatform returns the malgo backend for the current platform.
func backendForPlatform() (malgo.Backend, error) {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa, nil
	case "windows":
		return malgo.BackendWasapi, nil
	case "darwin":
		return malgo.BackendCoreaudio, nil
	default:
		return malgo.BackendNull, errors.Newf("unsupported operating system %s", runtime.GOOS).
			Component("hal.miniaudio").
			Category(errors.CategoryConfiguration).
			Context("os", runtime.GOOS).
			Build()
	}
}

var backendNames = map[string]malgo.Backend{
	"alsa":       malgo.BackendAlsa,
	"pulseaudio": malgo.BackendPulseaudio,
	"jack":       malgo.BackendJack,
	"wasapi":     malgo.BackendWasapi,
	"dsound":     malgo.BackendDsound,
	"coreaudio":  malgo.BackendCoreaudio,
	"null":       malgo.BackendNull,
}

// parseBackends maps configured backend names to malgo backends. An empty
// list selects the platform default.
func parseBackends(names []string) ([]malgo.Backend, error) {
	if len(names) == 0 {
		b, err := backendForPlatform()
		if err != nil {
			return nil, err
		}
		return []malgo.Backend{b}, nil
	}

	out := make([]malgo.Backend, 0, len(names))
	for _, name := range names {
		b, ok := backendNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, errors.Newf("unknown miniaudio backend %q", name).
				Component("hal.miniaudio").
				Category(errors.CategoryConfiguration).
				Build()
		}
		out = append(out, b)
	}
	return out, nil
}

// decodeDeviceID turns malgo's hex device id into something readable. ALSA
// ids decode to strings like "hw:0,0"; other backends keep the hex form.
func decodeDeviceID(hexID string) string {
	raw, err := hex.DecodeString(hexID)
	if err != nil {
		return hexID
	}
	decoded := strings.TrimRight(string(raw), "\x00")
	for _, r := range decoded {
		if r < 0x20 || r > 0x7e {
			return hexID
		}
	}
	if decoded == "" {
		return hexID
	}
	return decoded
}

// isDiscardDevice filters ALSA's null sink.
func isDiscardDevice(name string) bool {
	return strings.Contains(name, "Discard all samples")
}

func toDeviceInfo(info *malgo.DeviceInfo, dir hal.Direction) hal.DeviceInfo {
	name := info.Name()
	return hal.NewDeviceInfo(
		decodeDeviceID(info.ID.String()),
		name,
		hal.ClassifyByName(name, dir),
		dir,
		info.IsDefault == 1,
	)
}

func deviceType(dir hal.Direction) malgo.DeviceType {
	if dir == hal.Input {
		return malgo.Capture
	}
	return malgo.Playback
}

// matchDevice picks the endpoint for a configured name or id. Empty,
// "default" and "sysdefault" select the default device, then the first one.
// Otherwise exact name, exact id and partial name matches are tried in order.
func matchDevice(devices []hal.DeviceInfo, want string) (int, bool) {
	switch want {
	case "", "default", "sysdefault":
		for i := range devices {
			if devices[i].IsDefault {
				return i, true
			}
		}
		return 0, len(devices) > 0
	}

	for i := range devices {
		if devices[i].Name == want {
			return i, true
		}
	}
	for i := range devices {
		if devices[i].ID == want {
			return i, true
		}
	}
	for i := range devices {
		if strings.Contains(devices[i].Name, want) {
			return i, true
		}
	}
	return 0, false
}
