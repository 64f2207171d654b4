package catgenie

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/joshp123/catgenie/internal/hass"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatesAbsentSnapshot(t *testing.T) {
	assert.Nil(t, States(nil))
}

func TestStatesProjection(t *testing.T) {
	sens := "2"
	sani := 40
	snapshot := Snapshot{
		Device: Device{ManufacturerID: "dev-1", ReportedStatus: "connected", FirmwareVersion: "v1.2", RemainingSaniSolution: &sani},
		Status: Status{State: 1, Progress: 30, Error: "", Sens: &sens, StepNum: 4},
	}

	states := States(&snapshot)
	assert.Equal(t, "1", states["state"])
	assert.Equal(t, "30", states["progress"])
	assert.Equal(t, "", states["error"])
	assert.Equal(t, "4", states["step"])
	assert.Equal(t, "2", states["presence"])
	assert.Equal(t, "40", states["sani_solution"])
	assert.Equal(t, "1.2.0", states["firmware"])
	assert.Equal(t, hass.PayloadOn, states["connectivity"])
	assert.Equal(t, hass.PayloadOn, states["running"])
	assert.Equal(t, hass.PayloadOff, states["problem"])
	assert.Equal(t, hass.PayloadOn, states["clean"])
}

func TestStatesOmitUnknownValues(t *testing.T) {
	snapshot := Snapshot{Status: Status{State: 2, Error: "E3"}}
	states := States(&snapshot)

	assert.NotContains(t, states, "presence")
	assert.NotContains(t, states, "sani_solution")
	assert.NotContains(t, states, "firmware")
	assert.Equal(t, hass.PayloadOff, states["clean"])
	assert.Equal(t, hass.PayloadOn, states["running"])
	assert.Equal(t, hass.PayloadOn, states["problem"])
	assert.Equal(t, hass.PayloadOff, states["connectivity"])
}

func TestDeviceInfoFor(t *testing.T) {
	info := DeviceInfoFor(Device{ManufacturerID: "X1", MacAddress: "aa:bb", FirmwareVersion: "build-7"})
	assert.Equal(t, []string{"catgenie_X1"}, info.Identifiers)
	assert.Equal(t, "Litter Box X1", info.Name)
	assert.Equal(t, "PetNovations Ltd.", info.Manufacturer)
	assert.Equal(t, "VXHCATGENIE", info.Model)
	assert.Equal(t, "build-7", info.SWVersion)
	assert.Equal(t, [][2]string{{"mac", "aa:bb"}}, info.Connections)
}

func TestEntityKeysAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, desc := range Entities() {
		require.False(t, seen[desc.Key], desc.Key)
		seen[desc.Key] = true
	}
}

type fakeBridge struct {
	mu        sync.Mutex
	announced map[string]int
	states    map[string]map[string]string
	available map[string]bool
	handlers  map[string]hass.CommandHandler
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{
		announced: map[string]int{},
		states:    map[string]map[string]string{},
		available: map[string]bool{},
		handlers:  map[string]hass.CommandHandler{},
	}
}

func (b *fakeBridge) Announce(deviceID string, _ hass.DeviceInfo, entities []hass.Entity) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.announced[deviceID] = len(entities)
	return nil
}

func (b *fakeBridge) PublishStates(deviceID string, states map[string]string, available bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.states[deviceID] = states
	b.available[deviceID] = available
	return nil
}

func (b *fakeBridge) HandleCommand(deviceID, key string, handler hass.CommandHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[deviceID+"/"+key] = handler
	return nil
}

func (b *fakeBridge) snapshot(deviceID string) (map[string]string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.states[deviceID], b.available[deviceID]
}

func TestHomeAssistantPublishesAndHandlesCommands(t *testing.T) {
	vendor, server := newFakeVendor(t)
	client := newTestClient(t, server.URL)
	coord := NewCoordinator(client, testConfig(server.URL), zerolog.Nop())
	require.NoError(t, coord.FirstRefresh(context.Background()))

	bridge := newFakeBridge()
	ha := NewHomeAssistant(bridge, coord, zerolog.Nop())
	stop, err := ha.Start()
	require.NoError(t, err)
	defer stop()

	assert.Equal(t, len(Entities()), bridge.announced["dev-1"])
	states, available := bridge.snapshot("dev-1")
	assert.True(t, available)
	assert.Equal(t, hass.PayloadOn, states["clean"])

	handler := bridge.handlers["dev-1/clean"]
	require.NotNil(t, handler)

	vendor.set(func(f *fakeVendor) { f.status["dev-1"] = `{"state":0}` })
	handler("dev-1", "clean", "OFF")
	assert.Equal(t, []string{`/device/management/dev-1/operation {"state":2}`}, vendor.sentOperations())
	states, _ = bridge.snapshot("dev-1")
	assert.Equal(t, hass.PayloadOff, states["clean"])

	handler("dev-1", "clean", "toggle")
	assert.Len(t, vendor.sentOperations(), 1)

	vendor.set(func(f *fakeVendor) { f.statusDelay = time.Second })
	coord.Client().timeout = 50 * time.Millisecond
	require.Error(t, coord.Refresh(context.Background()))
	_, available = bridge.snapshot("dev-1")
	assert.False(t, available)
}
