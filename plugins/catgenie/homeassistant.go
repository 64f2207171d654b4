package catgenie

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/joshp123/catgenie/internal/hass"
	"github.com/rs/zerolog"
)

// Bridge is the Home Assistant side of the MQTT bridge.
type Bridge interface {
	Announce(deviceID string, device hass.DeviceInfo, entities []hass.Entity) error
	PublishStates(deviceID string, states map[string]string, available bool) error
	HandleCommand(deviceID, key string, handler hass.CommandHandler) error
}

// HomeAssistant mirrors coordinator snapshots to Home Assistant entities and
// turns switch commands into device operations.
type HomeAssistant struct {
	bridge  Bridge
	coord   *Coordinator
	log     zerolog.Logger
	timeout time.Duration
}

func NewHomeAssistant(bridge Bridge, coord *Coordinator, logger zerolog.Logger) *HomeAssistant {
	return &HomeAssistant{
		bridge:  bridge,
		coord:   coord,
		log:     logger.With().Str("component", "catgenie_hass").Logger(),
		timeout: 30 * time.Second,
	}
}

// Start announces every tracked device and publishes state after each tick.
// The returned func detaches the listener.
func (h *HomeAssistant) Start() (func(), error) {
	entities := make([]hass.Entity, 0, len(Entities()))
	for _, desc := range Entities() {
		entities = append(entities, desc.Entity)
	}

	for _, device := range h.coord.Devices() {
		id := device.ManufacturerID
		if err := h.bridge.Announce(id, DeviceInfoFor(device), entities); err != nil {
			return nil, fmt.Errorf("announce %s: %w", id, err)
		}
		if err := h.bridge.HandleCommand(id, "clean", h.handleClean); err != nil {
			return nil, fmt.Errorf("subscribe %s: %w", id, err)
		}
	}

	h.Publish()
	return h.coord.AddListener(h.Publish), nil
}

// Publish writes the current state of every tracked device.
func (h *HomeAssistant) Publish() {
	data, _ := h.coord.Data()
	healthy := h.coord.LastUpdateSuccess()
	for _, device := range h.coord.Devices() {
		id := device.ManufacturerID
		snapshot, ok := data[id]
		var states map[string]string
		if ok {
			states = States(&snapshot)
		}
		if err := h.bridge.PublishStates(id, states, ok && healthy); err != nil {
			h.log.Warn().Err(err).Str("device", id).Msg("publish states failed")
		}
	}
}

func (h *HomeAssistant) handleClean(deviceID, _ string, payload string) {
	var op Operation
	switch strings.ToUpper(payload) {
	case hass.PayloadOn:
		op = OperationOn
	case hass.PayloadOff:
		op = OperationOff
	default:
		h.log.Warn().Str("device", deviceID).Str("payload", payload).Msg("ignoring clean command")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	if err := h.coord.Operate(ctx, deviceID, op); err != nil {
		h.log.Error().Err(err).Str("device", deviceID).Stringer("operation", op).Msg("clean command failed")
	}
}
