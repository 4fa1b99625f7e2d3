// Home Assistant MQTT auto-discovery.
// See: https://www.home-assistant.io/integrations/mqtt/#mqtt-discovery

package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tphakala/soundbackend/internal/devices"
	"github.com/tphakala/soundbackend/internal/logger"
)

// Sensor type constants.
const (
	SensorPlaybackState = "playback_state"
	SensorRecordState   = "record_state"
	SensorPlaybackRate  = "playback_rate"
	SensorCaptureRate   = "capture_rate"
)

// AllSensorTypes lists all engine sensors, e.g. for removal.
var AllSensorTypes = []string{
	SensorPlaybackState,
	SensorRecordState,
	SensorPlaybackRate,
	SensorCaptureRate,
}

const deviceIDPrefix = "soundbackend"

// idSanitizer replaces characters Home Assistant does not accept in ids.
var idSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// SanitizeID ensures the ID contains only valid characters for MQTT topics and HA entity IDs.
func SanitizeID(id string) string {
	sanitized := idSanitizer.ReplaceAllString(id, "_")
	for strings.Contains(sanitized, "__") {
		sanitized = strings.ReplaceAll(sanitized, "__", "_")
	}
	sanitized = strings.Trim(sanitized, "_")
	if sanitized == "" {
		sanitized = "unknown"
	}
	return sanitized
}

// DiscoveryPayload represents a Home Assistant MQTT discovery message.
type DiscoveryPayload struct {
	Name                string           `json:"name"`
	UniqueID            string           `json:"unique_id"`
	StateTopic          string           `json:"state_topic"`
	ValueTemplate       string           `json:"value_template,omitempty"`
	UnitOfMeasurement   string           `json:"unit_of_measurement,omitempty"`
	DeviceClass         string           `json:"device_class,omitempty"`
	StateClass          string           `json:"state_class,omitempty"`
	Icon                string           `json:"icon,omitempty"`
	EntityCategory      string           `json:"entity_category,omitempty"`
	PayloadOn           string           `json:"payload_on,omitempty"`
	PayloadOff          string           `json:"payload_off,omitempty"`
	PayloadAvailable    string           `json:"payload_available,omitempty"`
	PayloadNotAvailable string           `json:"payload_not_available,omitempty"`
	AvailabilityTopic   string           `json:"availability_topic,omitempty"`
	Device              DiscoveryDevice  `json:"device"`
	Origin              *DiscoveryOrigin `json:"origin,omitempty"`
}

// DiscoveryDevice represents the device information in a discovery payload.
type DiscoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

// DiscoveryOrigin provides information about the software creating the discovery message.
type DiscoveryOrigin struct {
	Name      string `json:"name"`
	SWVersion string `json:"sw_version,omitempty"`
}

// DiscoveryConfig holds configuration for generating discovery payloads.
type DiscoveryConfig struct {
	DiscoveryPrefix string // Home Assistant discovery topic prefix (default: homeassistant)
	DeviceName      string
	NodeID          string // typically main.name
	Version         string
}

// Publisher handles publishing Home Assistant discovery messages.
type Publisher struct {
	client Client
	bridge *Bridge
	config DiscoveryConfig
}

// NewDiscoveryPublisher creates a publisher describing the topics of bridge.
func NewDiscoveryPublisher(client Client, bridge *Bridge, config DiscoveryConfig) *Publisher {
	if config.DiscoveryPrefix == "" {
		config.DiscoveryPrefix = "homeassistant"
	}
	if config.DeviceName == "" {
		config.DeviceName = "Sound Backend"
	}
	return &Publisher{client: client, bridge: bridge, config: config}
}

func (p *Publisher) device() DiscoveryDevice {
	return DiscoveryDevice{
		Identifiers:  []string{p.deviceID()},
		Name:         p.config.DeviceName,
		Manufacturer: "soundbackend",
		Model:        "Voice audio backend",
		SWVersion:    p.config.Version,
	}
}

func (p *Publisher) deviceID() string {
	return fmt.Sprintf("%s_%s", deviceIDPrefix, SanitizeID(p.config.NodeID))
}

// Payloads returns every discovery message keyed by its config topic.
func (p *Publisher) Payloads() map[string]*DiscoveryPayload {
	nodeID := SanitizeID(p.config.NodeID)
	deviceID := p.deviceID()
	device := p.device()
	origin := &DiscoveryOrigin{Name: "soundbackend", SWVersion: p.config.Version}
	availability := p.bridge.AvailabilityTopic()

	out := map[string]*DiscoveryPayload{
		p.binarySensorTopic(nodeID, "availability"): {
			Name:                "Status",
			UniqueID:            deviceID + "_status",
			StateTopic:          availability,
			DeviceClass:         "connectivity",
			EntityCategory:      "diagnostic",
			PayloadOn:           "online",
			PayloadOff:          "offline",
			PayloadAvailable:    "online",
			PayloadNotAvailable: "offline",
			Device:              device,
			Origin:              origin,
		},
	}

	sensors := []struct {
		kind, name, template, unit, icon string
	}{
		{SensorPlaybackState, "Playback State", "{{ value_json.playback.state if value_json.playback else 'none' }}", "", "mdi:speaker"},
		{SensorRecordState, "Record State", "{{ value_json.record.state if value_json.record else 'none' }}", "", "mdi:microphone"},
		{SensorPlaybackRate, "Playback Rate", "{{ value_json.playback.sample_rate if value_json.playback else 0 }}", "Hz", "mdi:sine-wave"},
		{SensorCaptureRate, "Capture Rate", "{{ value_json.record.sample_rate if value_json.record else 0 }}", "Hz", "mdi:sine-wave"},
	}
	for _, s := range sensors {
		out[p.sensorTopic(nodeID, s.kind)] = &DiscoveryPayload{
			Name:              s.name,
			UniqueID:          deviceID + "_" + s.kind,
			StateTopic:        p.bridge.StatusTopic(),
			ValueTemplate:     s.template,
			UnitOfMeasurement: s.unit,
			Icon:              s.icon,
			AvailabilityTopic: availability,
			Device:            device,
			Origin:            origin,
		}
	}

	for i, kind := range devices.Kinds {
		out[p.binarySensorTopic(nodeID, "route_"+kind.String())] = &DiscoveryPayload{
			Name:              kind.DisplayName(),
			UniqueID:          deviceID + "_route_" + kind.String(),
			StateTopic:        p.bridge.RoutesTopic(),
			ValueTemplate:     fmt.Sprintf("{{ 'ON' if value_json[%d].available else 'OFF' }}", i),
			PayloadOn:         "ON",
			PayloadOff:        "OFF",
			Icon:              "mdi:headset",
			AvailabilityTopic: availability,
			Device:            device,
			Origin:            origin,
		}
	}
	return out
}

// PublishDiscovery publishes every discovery message, retained.
func (p *Publisher) PublishDiscovery(ctx context.Context) error {
	log := GetLogger()
	payloads := p.Payloads()
	log.Info("publishing Home Assistant discovery messages",
		logger.Int("count", len(payloads)),
		logger.String("discovery_prefix", p.config.DiscoveryPrefix))

	var firstErr error
	for topic, payload := range payloads {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal discovery payload: %w", err)
		}
		if err := p.client.PublishWithRetain(ctx, topic, string(data), true); err != nil {
			log.Error("failed to publish discovery",
				logger.String("topic", topic),
				logger.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		return fmt.Errorf("failed to publish one or more discovery messages: %w", firstErr)
	}
	return nil
}

// RemoveDiscovery publishes empty retained payloads to remove every entity.
func (p *Publisher) RemoveDiscovery(ctx context.Context) error {
	for topic := range p.Payloads() {
		if err := p.client.PublishWithRetain(ctx, topic, "", true); err != nil {
			GetLogger().Warn("failed to remove discovery",
				logger.String("topic", topic),
				logger.Error(err))
		}
	}
	return nil
}

func (p *Publisher) binarySensorTopic(nodeID, objectID string) string {
	return fmt.Sprintf("%s/binary_sensor/%s/%s_%s/config", p.config.DiscoveryPrefix, nodeID, nodeID, objectID)
}

func (p *Publisher) sensorTopic(nodeID, objectID string) string {
	return fmt.Sprintf("%s/sensor/%s/%s_%s/config", p.config.DiscoveryPrefix, nodeID, nodeID, objectID)
}
