// Package hass publishes entities to Home Assistant through MQTT discovery.
package hass

import "strings"

type Platform string

const (
	PlatformSensor       Platform = "sensor"
	PlatformBinarySensor Platform = "binary_sensor"
	PlatformSwitch       Platform = "switch"
)

const (
	PayloadOn      = "ON"
	PayloadOff     = "OFF"
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// DeviceInfo is the device block shared by every entity of one device.
type DeviceInfo struct {
	Identifiers  []string    `json:"identifiers"`
	Name         string      `json:"name"`
	Manufacturer string      `json:"manufacturer,omitempty"`
	Model        string      `json:"model,omitempty"`
	ModelID      string      `json:"model_id,omitempty"`
	SWVersion    string      `json:"sw_version,omitempty"`
	Connections  [][2]string `json:"connections,omitempty"`
}

// Entity describes one Home Assistant entity of a device.
type Entity struct {
	Key            string
	Name           string
	Platform       Platform
	DeviceClass    string
	Icon           string
	Unit           string
	StateClass     string
	EntityCategory string
}

type availability struct {
	Topic string `json:"topic"`
}

// DiscoveryConfig is the retained payload on the discovery topic.
type DiscoveryConfig struct {
	Name              string         `json:"name"`
	UniqueID          string         `json:"unique_id"`
	ObjectID          string         `json:"object_id"`
	StateTopic        string         `json:"state_topic"`
	CommandTopic      string         `json:"command_topic,omitempty"`
	PayloadOn         string         `json:"payload_on,omitempty"`
	PayloadOff        string         `json:"payload_off,omitempty"`
	Availability      []availability `json:"availability"`
	AvailabilityMode  string         `json:"availability_mode"`
	DeviceClass       string         `json:"device_class,omitempty"`
	Icon              string         `json:"icon,omitempty"`
	UnitOfMeasurement string         `json:"unit_of_measurement,omitempty"`
	StateClass        string         `json:"state_class,omitempty"`
	EntityCategory    string         `json:"entity_category,omitempty"`
	Device            DeviceInfo     `json:"device"`
}

// Topics builds every topic the bridge uses.
type Topics struct {
	DiscoveryPrefix string
	BaseTopic       string
}

func (t Topics) NodeID(deviceID string) string {
	return "catgenie_" + sanitize(deviceID)
}

func (t Topics) Discovery(platform Platform, deviceID, key string) string {
	return strings.Join([]string{t.DiscoveryPrefix, string(platform), t.NodeID(deviceID), key, "config"}, "/")
}

func (t Topics) State(deviceID, key string) string {
	return strings.Join([]string{t.BaseTopic, sanitize(deviceID), key, "state"}, "/")
}

func (t Topics) Command(deviceID, key string) string {
	return strings.Join([]string{t.BaseTopic, sanitize(deviceID), key, "set"}, "/")
}

func (t Topics) Availability() string {
	return t.BaseTopic + "/availability"
}

func (t Topics) DeviceAvailability(deviceID string) string {
	return strings.Join([]string{t.BaseTopic, sanitize(deviceID), "availability"}, "/")
}

// Config returns the discovery payload for one entity.
func (t Topics) Config(deviceID string, device DeviceInfo, entity Entity) DiscoveryConfig {
	cfg := DiscoveryConfig{
		Name:       entity.Name,
		UniqueID:   t.NodeID(deviceID) + "_" + entity.Key,
		ObjectID:   t.NodeID(deviceID) + "_" + entity.Key,
		StateTopic: t.State(deviceID, entity.Key),
		Availability: []availability{
			{Topic: t.Availability()},
			{Topic: t.DeviceAvailability(deviceID)},
		},
		AvailabilityMode:  "all",
		DeviceClass:       entity.DeviceClass,
		Icon:              entity.Icon,
		UnitOfMeasurement: entity.Unit,
		StateClass:        entity.StateClass,
		EntityCategory:    entity.EntityCategory,
		Device:            device,
	}
	switch entity.Platform {
	case PlatformSwitch:
		cfg.CommandTopic = t.Command(deviceID, entity.Key)
		cfg.PayloadOn = PayloadOn
		cfg.PayloadOff = PayloadOff
	case PlatformBinarySensor:
		cfg.PayloadOn = PayloadOn
		cfg.PayloadOff = PayloadOff
	}
	return cfg
}

// sanitize keeps ids usable as a single topic level.
func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '+', '#', ' ':
			return '_'
		}
		return r
	}, id)
}
