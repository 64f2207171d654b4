package catgenie

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Operation is a command sent to the litter box.
type Operation int

const (
	OperationOn        Operation = 1
	OperationOff       Operation = 2
	OperationResume    Operation = 3
	OperationFullClean Operation = 4
)

func (o Operation) String() string {
	switch o {
	case OperationOn:
		return "on"
	case OperationOff:
		return "off"
	case OperationResume:
		return "resume"
	case OperationFullClean:
		return "full_clean"
	default:
		return fmt.Sprintf("operation(%d)", int(o))
	}
}

// ParseOperation accepts the names printed by Operation.String.
func ParseOperation(value string) (Operation, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "on":
		return OperationOn, nil
	case "off":
		return OperationOff, nil
	case "resume":
		return OperationResume, nil
	case "full_clean", "full-clean", "fullclean":
		return OperationFullClean, nil
	}
	return 0, fmt.Errorf("unknown operation %q (want on, off, resume, full_clean)", value)
}

// Configuration mirrors the device's configuration block.
type Configuration struct {
	Mode        int  `json:"mode"`
	CatSense    bool `json:"catSense"`
	ChildLock   bool `json:"childLock"`
	VolumeLevel int  `json:"volumeLevel"`
	CatDelay    int  `json:"catDelay"`
	AutoLock    bool `json:"autoLock"`
}

// Device is one entry of the account's thing list.
type Device struct {
	ManufacturerID        string        `json:"manufacturerId"`
	MacAddress            string        `json:"macAddress"`
	Name                  string        `json:"name"`
	Serial                string        `json:"serial"`
	FirmwareVersion       string        `json:"fwVersion"`
	ReportedStatus        string        `json:"reportedStatus"`
	RemainingSaniSolution *int          `json:"remainingSaniSolution,omitempty"`
	Configuration         Configuration `json:"configuration"`
}

// DisplayName falls back to "Litter Box <id>" for unnamed devices.
func (d Device) DisplayName() string {
	if name := strings.TrimSpace(d.Name); name != "" {
		return name
	}
	return "Litter Box " + d.ManufacturerID
}

// Status is the device's current operation status.
type Status struct {
	State     int     `json:"state"`
	Progress  int     `json:"progress"`
	Error     string  `json:"error"`
	RTC       *string `json:"rtc,omitempty"`
	Sens      *string `json:"sens,omitempty"`
	Mode      int     `json:"mode"`
	Manual    int     `json:"manual"`
	StepNum   int     `json:"stepNum"`
	RelayMode *int    `json:"relayMode,omitempty"`
}

// Snapshot is the coordinator's view of one device after a tick.
type Snapshot struct {
	Device    Device    `json:"device"`
	Status    Status    `json:"status"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// Snapshots is keyed by manufacturer id.
type Snapshots map[string]Snapshot

func decodeObject(raw json.RawMessage) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("expected JSON object")
	}
	return obj, nil
}

// DeviceFromMap maps a decoded thing-list entry, defaulting missing keys.
func DeviceFromMap(values map[string]any) Device {
	device := Device{
		ManufacturerID:        parseString(values["manufacturerId"]),
		MacAddress:            parseString(values["macAddress"]),
		Name:                  parseString(values["name"]),
		Serial:                parseString(values["serial"]),
		FirmwareVersion:       parseString(values["fwVersion"]),
		ReportedStatus:        parseString(values["reportedStatus"]),
		RemainingSaniSolution: parseOptionalInt(values["remainingSaniSolution"]),
	}
	if cfg, ok := values["configuration"].(map[string]any); ok {
		device.Configuration = Configuration{
			Mode:        parseInt(cfg["mode"]),
			CatSense:    parseBool(cfg["catSense"]),
			ChildLock:   parseBool(cfg["childLock"]),
			VolumeLevel: parseInt(cfg["volumeLevel"]),
			CatDelay:    parseInt(cfg["catDelay"]),
			AutoLock:    parseBool(cfg["autoLock"]),
		}
	}
	return device
}

// StatusFromMap maps a decoded operation status, defaulting missing keys.
func StatusFromMap(values map[string]any) Status {
	return Status{
		State:     parseInt(values["state"]),
		Progress:  parseInt(values["progress"]),
		Error:     parseString(values["error"]),
		RTC:       parseOptionalString(values["rtc"]),
		Sens:      parseOptionalString(values["sens"]),
		Mode:      parseInt(values["mode"]),
		Manual:    parseInt(values["manual"]),
		StepNum:   parseInt(values["stepNum"]),
		RelayMode: parseOptionalInt(values["relayMode"]),
	}
}

func parseInt(value any) int {
	if parsed := parseOptionalInt(value); parsed != nil {
		return *parsed
	}
	return 0
}

func parseOptionalInt(value any) *int {
	var out int
	switch typed := value.(type) {
	case float64:
		if math.IsNaN(typed) || math.IsInf(typed, 0) {
			return nil
		}
		out = int(typed)
	case int:
		out = typed
	case int64:
		out = int(typed)
	case json.Number:
		parsed, err := typed.Int64()
		if err != nil {
			return nil
		}
		out = int(parsed)
	case string:
		text := strings.TrimSpace(typed)
		if text == "" {
			return nil
		}
		if parsed, err := strconv.Atoi(text); err == nil {
			out = parsed
		} else if f, err := strconv.ParseFloat(text, 64); err == nil {
			out = int(f)
		} else {
			return nil
		}
	default:
		return nil
	}
	return &out
}

func parseString(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(typed)
	}
	return ""
}

func parseOptionalString(value any) *string {
	if value == nil {
		return nil
	}
	text := parseString(value)
	return &text
}

func parseBool(value any) bool {
	switch typed := value.(type) {
	case bool:
		return typed
	case float64:
		return typed != 0
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(typed))
		return err == nil && parsed
	}
	return false
}
