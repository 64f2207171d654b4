package catgenie

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/joshp123/catgenie/internal/coordinator"
	"github.com/rs/zerolog"
)

// Coordinator polls every tracked device and publishes a Snapshots map.
type Coordinator struct {
	*coordinator.Coordinator[Snapshots]

	client     *Client
	configured []string
	log        zerolog.Logger
	now        func() time.Time

	mu      sync.RWMutex
	devices map[string]Device
	tracked []string
}

func NewCoordinator(client *Client, cfg Config, logger zerolog.Logger) *Coordinator {
	c := &Coordinator{
		client:     client,
		configured: append([]string(nil), cfg.DeviceIDs...),
		log:        logger.With().Str("component", "catgenie_coordinator").Logger(),
		now:        time.Now,
		devices:    make(map[string]Device),
	}
	c.Coordinator = coordinator.New(coordinator.Options[Snapshots]{
		Name:     "catgenie",
		Interval: cfg.withDefaults().PollInterval,
		Logger:   logger,
		Setup:    c.setup,
		Update:   c.update,
	})
	return c
}

func (c *Coordinator) Client() *Client {
	return c.client
}

// Devices returns the tracked devices in polling order.
func (c *Coordinator) Devices() []Device {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Device, 0, len(c.tracked))
	for _, id := range c.tracked {
		out = append(out, c.devices[id])
	}
	return out
}

// Snapshot returns the latest snapshot for one device.
func (c *Coordinator) Snapshot(deviceID string) (Snapshot, bool) {
	data, ok := c.Data()
	if !ok {
		return Snapshot{}, false
	}
	snapshot, ok := data[deviceID]
	return snapshot, ok
}

// Tracks reports whether deviceID is polled by this coordinator.
func (c *Coordinator) Tracks(deviceID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.devices[deviceID]
	return ok
}

// Operate sends op to a tracked device and refreshes the snapshot.
func (c *Coordinator) Operate(ctx context.Context, deviceID string, op Operation) error {
	if !c.Tracks(deviceID) {
		return fmt.Errorf("unknown device %q", deviceID)
	}
	if err := c.client.SetDeviceOperation(ctx, deviceID, op); err != nil {
		return err
	}
	if err := c.Refresh(ctx); err != nil {
		c.log.Warn().Err(err).Str("device", deviceID).Msg("refresh after operation failed")
	}
	return nil
}

func (c *Coordinator) setup(ctx context.Context) error {
	if !c.client.HasToken() {
		if _, err := c.client.AcquireAccessToken(ctx); err != nil {
			return classify(err)
		}
	}

	devices, err := c.client.GetDevices(ctx)
	if err != nil {
		return classify(err)
	}

	tracked := devices.Order
	if len(c.configured) > 0 {
		tracked = nil
		for _, id := range c.configured {
			if _, ok := devices.ByID[id]; !ok {
				c.log.Warn().Str("device", id).Msg("configured device not on account")
				continue
			}
			tracked = append(tracked, id)
		}
	}
	if len(tracked) == 0 {
		return newError(KindUnknown, "setup", 0, errNoDevices)
	}

	c.mu.Lock()
	c.devices = make(map[string]Device, len(tracked))
	for _, id := range tracked {
		c.devices[id] = devices.ByID[id]
	}
	c.tracked = append([]string(nil), tracked...)
	c.mu.Unlock()

	c.log.Info().Strs("devices", tracked).Msg("tracking devices")
	return nil
}

func (c *Coordinator) update(ctx context.Context) (Snapshots, error) {
	c.mu.RLock()
	tracked := append([]string(nil), c.tracked...)
	devices := make(map[string]Device, len(c.devices))
	for id, device := range c.devices {
		devices[id] = device
	}
	c.mu.RUnlock()

	reauthed := false
	snapshots := make(Snapshots, len(tracked))
	for _, id := range tracked {
		status, err := c.client.GetDeviceStatus(ctx, id)
		if IsAuthentication(err) && !reauthed {
			reauthed = true
			c.log.Info().Msg("access token rejected, exchanging refresh token")
			c.client.InvalidateToken()
			if _, err = c.client.AcquireAccessToken(ctx); err == nil {
				status, err = c.client.GetDeviceStatus(ctx, id)
			}
		}
		if err != nil {
			return nil, classify(err)
		}
		snapshots[id] = Snapshot{Device: devices[id], Status: status, FetchedAt: c.now()}
	}
	return snapshots, nil
}

// classify maps client failures onto the coordinator's failure signals.
func classify(err error) error {
	var apiErr *APIError
	switch {
	case err == nil:
		return nil
	case IsAuthentication(err):
		return coordinator.AuthFailed(err)
	case errors.As(err, &apiErr):
		return coordinator.UpdateFailed(err)
	default:
		return err
	}
}
