package catgenie

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFromMapDefaults(t *testing.T) {
	status := StatusFromMap(map[string]any{})
	assert.Equal(t, Status{}, status)
	assert.Nil(t, status.RTC)
	assert.Nil(t, status.RelayMode)
}

func TestStatusFromMapAcceptsNumericStrings(t *testing.T) {
	var values map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{
		"state": "1", "progress": 75.0, "error": "E12", "rtc": "2024-01-01T10:00:00",
		"sens": 3, "mode": "bogus", "manual": 1, "stepNum": "4", "relayMode": null
	}`), &values))

	status := StatusFromMap(values)
	assert.Equal(t, 1, status.State)
	assert.Equal(t, 75, status.Progress)
	assert.Equal(t, "E12", status.Error)
	require.NotNil(t, status.RTC)
	assert.Equal(t, "2024-01-01T10:00:00", *status.RTC)
	require.NotNil(t, status.Sens)
	assert.Equal(t, "3", *status.Sens)
	assert.Equal(t, 0, status.Mode)
	assert.Equal(t, 1, status.Manual)
	assert.Equal(t, 4, status.StepNum)
	assert.Nil(t, status.RelayMode)
}

func TestDeviceFromMap(t *testing.T) {
	var values map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{
		"manufacturerId": "X1", "macAddress": "aa:bb", "serial": "S1", "fwVersion": "2.0",
		"reportedStatus": "connected", "remainingSaniSolution": "33",
		"configuration": {"mode": 2, "catSense": true, "childLock": "true", "volumeLevel": 5, "catDelay": 300, "autoLock": 0}
	}`), &values))

	device := DeviceFromMap(values)
	assert.Equal(t, "X1", device.ManufacturerID)
	assert.Equal(t, "aa:bb", device.MacAddress)
	assert.Equal(t, "Litter Box X1", device.DisplayName())
	require.NotNil(t, device.RemainingSaniSolution)
	assert.Equal(t, 33, *device.RemainingSaniSolution)
	assert.Equal(t, Configuration{Mode: 2, CatSense: true, ChildLock: true, VolumeLevel: 5, CatDelay: 300}, device.Configuration)

	empty := DeviceFromMap(map[string]any{})
	assert.Equal(t, Device{}, empty)
	assert.Nil(t, empty.RemainingSaniSolution)
}

func TestParseOperation(t *testing.T) {
	for name, want := range map[string]Operation{
		"on":         OperationOn,
		"OFF":        OperationOff,
		"resume":     OperationResume,
		"full_clean": OperationFullClean,
		"full-clean": OperationFullClean,
	} {
		got, err := ParseOperation(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseOperation("dance")
	assert.Error(t, err)
	assert.Equal(t, "full_clean", OperationFullClean.String())
}
