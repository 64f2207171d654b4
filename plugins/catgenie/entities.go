package catgenie

import (
	"strconv"

	"github.com/Masterminds/semver/v3"
	"github.com/joshp123/catgenie/internal/hass"
)

const (
	manufacturer = "PetNovations Ltd."
	model        = "VXHCATGENIE"
)

// EntityDescription projects one field of a snapshot onto an entity.
type EntityDescription struct {
	hass.Entity
	// Value returns the state and whether it is known.
	Value func(Snapshot) (string, bool)
}

func intValue(fn func(Snapshot) int) func(Snapshot) (string, bool) {
	return func(s Snapshot) (string, bool) { return strconv.Itoa(fn(s)), true }
}

func boolValue(fn func(Snapshot) bool) func(Snapshot) (string, bool) {
	return func(s Snapshot) (string, bool) {
		if fn(s) {
			return hass.PayloadOn, true
		}
		return hass.PayloadOff, true
	}
}

// Entities lists every entity exposed per device.
func Entities() []EntityDescription {
	return []EntityDescription{
		{
			Entity: hass.Entity{Key: "state", Name: "State", Platform: hass.PlatformSensor, Icon: "mdi:state-machine"},
			Value:  intValue(func(s Snapshot) int { return s.Status.State }),
		},
		{
			Entity: hass.Entity{Key: "progress", Name: "Progress", Platform: hass.PlatformSensor, Icon: "mdi:progress-clock", Unit: "%", StateClass: "measurement"},
			Value:  intValue(func(s Snapshot) int { return s.Status.Progress }),
		},
		{
			Entity: hass.Entity{Key: "error", Name: "Error", Platform: hass.PlatformSensor, Icon: "mdi:alert-circle-outline", EntityCategory: "diagnostic"},
			Value:  func(s Snapshot) (string, bool) { return s.Status.Error, true },
		},
		{
			Entity: hass.Entity{Key: "mode", Name: "Mode", Platform: hass.PlatformSensor, Icon: "mdi:cog"},
			Value:  intValue(func(s Snapshot) int { return s.Status.Mode }),
		},
		{
			Entity: hass.Entity{Key: "step", Name: "Step", Platform: hass.PlatformSensor, Icon: "mdi:debug-step-over"},
			Value:  intValue(func(s Snapshot) int { return s.Status.StepNum }),
		},
		{
			Entity: hass.Entity{Key: "presence", Name: "Presence", Platform: hass.PlatformSensor, DeviceClass: "enum", Icon: "mdi:cat"},
			Value: func(s Snapshot) (string, bool) {
				if s.Status.Sens == nil {
					return "", false
				}
				return *s.Status.Sens, true
			},
		},
		{
			Entity: hass.Entity{Key: "sani_solution", Name: "Sani Solution", Platform: hass.PlatformSensor, Icon: "mdi:bottle-tonic-outline", Unit: "%", StateClass: "measurement"},
			Value: func(s Snapshot) (string, bool) {
				if s.Device.RemainingSaniSolution == nil {
					return "", false
				}
				return strconv.Itoa(*s.Device.RemainingSaniSolution), true
			},
		},
		{
			Entity: hass.Entity{Key: "firmware", Name: "Firmware", Platform: hass.PlatformSensor, Icon: "mdi:chip", EntityCategory: "diagnostic"},
			Value: func(s Snapshot) (string, bool) {
				if s.Device.FirmwareVersion == "" {
					return "", false
				}
				return normalizeFirmware(s.Device.FirmwareVersion), true
			},
		},
		{
			Entity: hass.Entity{Key: "connectivity", Name: "Connectivity", Platform: hass.PlatformBinarySensor, DeviceClass: "connectivity", EntityCategory: "diagnostic"},
			Value:  boolValue(func(s Snapshot) bool { return s.Device.ReportedStatus == "connected" }),
		},
		{
			Entity: hass.Entity{Key: "running", Name: "Running", Platform: hass.PlatformBinarySensor, DeviceClass: "running"},
			Value:  boolValue(func(s Snapshot) bool { return s.Status.State > 0 }),
		},
		{
			Entity: hass.Entity{Key: "problem", Name: "Problem", Platform: hass.PlatformBinarySensor, DeviceClass: "problem"},
			Value:  boolValue(func(s Snapshot) bool { return s.Status.Error != "" }),
		},
		{
			Entity: hass.Entity{Key: "clean", Name: "Clean", Platform: hass.PlatformSwitch, DeviceClass: "switch", Icon: "mdi:broom"},
			Value:  boolValue(func(s Snapshot) bool { return s.Status.State == int(OperationOn) }),
		},
	}
}

// States projects a snapshot onto entity states. A nil snapshot yields no
// states; keys whose value is unknown are omitted.
func States(snapshot *Snapshot) map[string]string {
	if snapshot == nil {
		return nil
	}
	states := make(map[string]string)
	for _, desc := range Entities() {
		if value, ok := desc.Value(*snapshot); ok {
			states[desc.Key] = value
		}
	}
	return states
}

// DeviceInfoFor builds the device registry block for a device.
func DeviceInfoFor(device Device) hass.DeviceInfo {
	info := hass.DeviceInfo{
		Identifiers:  []string{"catgenie_" + device.ManufacturerID},
		Name:         device.DisplayName(),
		Manufacturer: manufacturer,
		Model:        model,
		ModelID:      device.ManufacturerID,
	}
	if device.FirmwareVersion != "" {
		info.SWVersion = normalizeFirmware(device.FirmwareVersion)
	}
	if device.MacAddress != "" {
		info.Connections = [][2]string{{"mac", device.MacAddress}}
	}
	return info
}

// normalizeFirmware renders parseable versions canonically and passes the
// rest through.
func normalizeFirmware(raw string) string {
	v, err := semver.NewVersion(raw)
	if err != nil {
		return raw
	}
	return v.String()
}
