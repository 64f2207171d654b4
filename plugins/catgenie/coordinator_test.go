package catgenie

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/joshp123/catgenie/internal/coordinator"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoordinatorFirstRefresh(t *testing.T) {
	_, server := newFakeVendor(t)
	client := newTestClient(t, server.URL)
	coord := NewCoordinator(client, testConfig(server.URL), zerolog.Nop())

	require.NoError(t, coord.FirstRefresh(context.Background()))
	assert.Equal(t, coordinator.Ready, coord.State())

	snapshot, ok := coord.Snapshot("dev-1")
	require.True(t, ok)
	assert.Equal(t, "Upstairs", snapshot.Device.Name)
	assert.Equal(t, 1, snapshot.Status.State)
	assert.False(t, snapshot.FetchedAt.IsZero())
	assert.Len(t, coord.Devices(), 1)
}

func TestCoordinatorSetupPropagatesForbidden(t *testing.T) {
	vendor, server := newFakeVendor(t)
	vendor.set(func(f *fakeVendor) { f.tokenStatus = http.StatusForbidden })
	client := newTestClient(t, server.URL)
	coord := NewCoordinator(client, testConfig(server.URL), zerolog.Nop())

	err := coord.FirstRefresh(context.Background())
	require.Error(t, err)
	assert.True(t, IsAuthentication(err))
	assert.ErrorIs(t, err, coordinator.ErrAuthFailed)
	assert.Equal(t, coordinator.AuthFailedState, coord.State())
	_, ok := coord.Data()
	assert.False(t, ok)
}

func TestCoordinatorTimeoutKeepsSnapshot(t *testing.T) {
	vendor, server := newFakeVendor(t)
	cfg := testConfig(server.URL)
	cfg.RequestTimeout = 100 * time.Millisecond
	client, err := NewClient(cfg, zerolog.Nop())
	require.NoError(t, err)
	coord := NewCoordinator(client, cfg, zerolog.Nop())
	require.NoError(t, coord.FirstRefresh(context.Background()))
	before, _ := coord.Snapshot("dev-1")

	vendor.set(func(f *fakeVendor) { f.statusDelay = time.Second })
	err = coord.Refresh(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, coordinator.ErrUpdateFailed)
	assert.True(t, IsCommunication(err))
	assert.False(t, coord.LastUpdateSuccess())
	assert.Equal(t, coordinator.Ready, coord.State())

	after, ok := coord.Snapshot("dev-1")
	require.True(t, ok)
	assert.Equal(t, before, after)
}

func TestCoordinatorReexchangesOnceOnUnauthorized(t *testing.T) {
	vendor, server := newFakeVendor(t)
	vendor.set(func(f *fakeVendor) { f.tokens = []string{"old", "new"} })
	client := newTestClient(t, server.URL)
	coord := NewCoordinator(client, testConfig(server.URL), zerolog.Nop())
	require.NoError(t, coord.FirstRefresh(context.Background()))

	vendor.set(func(f *fakeVendor) { f.rejectTokens["old"] = true })
	require.NoError(t, coord.Refresh(context.Background()))
	assert.Equal(t, "Bearer new", vendor.lastAuth())
	assert.Equal(t, 2, vendor.exchangeCount())
	assert.Equal(t, coordinator.Ready, coord.State())
}

func TestCoordinatorAuthFailsAfterSecondRejection(t *testing.T) {
	vendor, server := newFakeVendor(t)
	client := newTestClient(t, server.URL)
	coord := NewCoordinator(client, testConfig(server.URL), zerolog.Nop())
	require.NoError(t, coord.FirstRefresh(context.Background()))

	vendor.set(func(f *fakeVendor) { f.statusCode = http.StatusUnauthorized })
	err := coord.Refresh(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, coordinator.ErrAuthFailed)
	assert.Equal(t, coordinator.AuthFailedState, coord.State())
	assert.Equal(t, 2, vendor.exchangeCount())

	_, ok := coord.Snapshot("dev-1")
	assert.True(t, ok)
}

func TestCoordinatorTracksConfiguredDevices(t *testing.T) {
	vendor, server := newFakeVendor(t)
	vendor.set(func(f *fakeVendor) {
		f.devicesBody = `{"thingList":[{"manufacturerId":"a"},{"manufacturerId":"b"}]}`
		f.status = map[string]string{"a": `{"state":0}`, "b": `{"state":2}`}
	})
	client := newTestClient(t, server.URL)
	cfg := testConfig(server.URL)
	cfg.DeviceIDs = []string{"b", "missing"}
	coord := NewCoordinator(client, cfg, zerolog.Nop())

	require.NoError(t, coord.FirstRefresh(context.Background()))
	data, ok := coord.Data()
	require.True(t, ok)
	assert.Len(t, data, 1)
	assert.Equal(t, 2, data["b"].Status.State)
	assert.False(t, coord.Tracks("a"))
}

func TestCoordinatorOperateRefreshes(t *testing.T) {
	vendor, server := newFakeVendor(t)
	client := newTestClient(t, server.URL)
	coord := NewCoordinator(client, testConfig(server.URL), zerolog.Nop())
	require.NoError(t, coord.FirstRefresh(context.Background()))

	refreshed := 0
	coord.AddListener(func() { refreshed++ })

	require.NoError(t, coord.Operate(context.Background(), "dev-1", OperationOff))
	assert.Equal(t, []string{`/device/management/dev-1/operation {"state":2}`}, vendor.sentOperations())
	assert.Equal(t, 1, refreshed)

	assert.Error(t, coord.Operate(context.Background(), "nope", OperationOn))
}

func TestCoordinatorRefreshNeedsDevices(t *testing.T) {
	vendor, server := newFakeVendor(t)
	vendor.set(func(f *fakeVendor) { f.devicesBody = `{"thingList":[]}` })
	client := newTestClient(t, server.URL)
	coord := NewCoordinator(client, testConfig(server.URL), zerolog.Nop())

	require.Error(t, coord.FirstRefresh(context.Background()))
	err := coord.Refresh(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, coordinator.ErrNotReady)
	assert.Equal(t, coordinator.Uninitialized, coord.State())
	_, ok := coord.Data()
	assert.False(t, ok)
	assert.Empty(t, coord.Devices())
}
