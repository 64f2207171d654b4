package hass

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"
)

const publishTimeout = 10 * time.Second

// Client is the subset of the paho client used by the bridge.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
}

// CommandHandler receives the payload written to an entity's command topic.
type CommandHandler func(deviceID, key, payload string)

type command struct {
	deviceID string
	key      string
	handler  CommandHandler
}

// Bridge announces entities and mirrors their state onto MQTT.
type Bridge struct {
	topics Topics
	log    zerolog.Logger

	mu     sync.RWMutex
	client Client

	commands cmap.ConcurrentMap[string, command]
}

func NewBridge(client Client, topics Topics, logger zerolog.Logger) *Bridge {
	return &Bridge{
		topics:   topics,
		log:      logger.With().Str("component", "hass").Logger(),
		client:   client,
		commands: cmap.New[command](),
	}
}

func (b *Bridge) Topics() Topics {
	return b.topics
}

func (b *Bridge) setClient(client Client) {
	b.mu.Lock()
	b.client = client
	b.mu.Unlock()
}

func (b *Bridge) mqtt() (Client, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.client == nil {
		return nil, fmt.Errorf("mqtt client not connected")
	}
	return b.client, nil
}

// Announce publishes retained discovery configs for every entity of a device.
func (b *Bridge) Announce(deviceID string, device DeviceInfo, entities []Entity) error {
	for _, entity := range entities {
		payload, err := json.Marshal(b.topics.Config(deviceID, device, entity))
		if err != nil {
			return fmt.Errorf("encode discovery %s: %w", entity.Key, err)
		}
		if err := b.publish(b.topics.Discovery(entity.Platform, deviceID, entity.Key), true, payload); err != nil {
			return err
		}
	}
	b.log.Info().Str("device", deviceID).Int("entities", len(entities)).Msg("discovery published")
	return nil
}

// PublishStates writes entity states and the device availability. Keys
// missing from states are left untouched.
func (b *Bridge) PublishStates(deviceID string, states map[string]string, available bool) error {
	for key, state := range states {
		if err := b.publish(b.topics.State(deviceID, key), true, []byte(state)); err != nil {
			return err
		}
	}
	return b.publish(b.topics.DeviceAvailability(deviceID), true, []byte(availabilityPayload(available)))
}

// SetOnline updates the bridge-wide availability topic.
func (b *Bridge) SetOnline(online bool) error {
	return b.publish(b.topics.Availability(), true, []byte(availabilityPayload(online)))
}

// HandleCommand subscribes to an entity's command topic.
func (b *Bridge) HandleCommand(deviceID, key string, handler CommandHandler) error {
	topic := b.topics.Command(deviceID, key)
	b.commands.Set(topic, command{deviceID: deviceID, key: key, handler: handler})
	return b.subscribe(topic)
}

// Resubscribe restores command subscriptions after a reconnect.
func (b *Bridge) Resubscribe() {
	for _, topic := range b.commands.Keys() {
		if err := b.subscribe(topic); err != nil {
			b.log.Warn().Err(err).Str("topic", topic).Msg("resubscribe failed")
		}
	}
}

// Close unsubscribes command topics.
func (b *Bridge) Close() {
	topics := b.commands.Keys()
	b.commands.Clear()
	client, err := b.mqtt()
	if err != nil || len(topics) == 0 {
		return
	}
	token := client.Unsubscribe(topics...)
	token.WaitTimeout(publishTimeout)
}

func (b *Bridge) dispatch(_ mqtt.Client, msg mqtt.Message) {
	cmd, ok := b.commands.Get(msg.Topic())
	if !ok {
		return
	}
	payload := strings.TrimSpace(string(msg.Payload()))
	b.log.Debug().Str("topic", msg.Topic()).Str("payload", payload).Msg("command received")
	go cmd.handler(cmd.deviceID, cmd.key, payload)
}

func (b *Bridge) subscribe(topic string) error {
	client, err := b.mqtt()
	if err != nil {
		return err
	}
	token := client.Subscribe(topic, 1, b.dispatch)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("subscribe %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

func (b *Bridge) publish(topic string, retained bool, payload []byte) error {
	client, err := b.mqtt()
	if err != nil {
		return err
	}
	token := client.Publish(topic, 1, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func availabilityPayload(online bool) string {
	if online {
		return PayloadOnline
	}
	return PayloadOffline
}
