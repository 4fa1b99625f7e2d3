package conf

// Hardware backends selectable with audio.backend.
const (
	BackendMiniaudio = "miniaudio"
	BackendVirtual   = "virtual"
)

// EnvPrefix prefixes environment overrides, e.g. SOUNDBACKEND_AUDIO_BACKEND.
const EnvPrefix = "SOUNDBACKEND"

const (
	osWindows      = "windows"
	configFileName = "config.yaml"
)
