package hass

import (
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DialConfig holds broker settings.
type DialConfig struct {
	Broker   string
	Username string
	Password string
	ClientID string
}

// Connect dials the broker and returns a bridge bound to it. The broker
// publishes "offline" on the availability topic if the daemon disappears.
func Connect(cfg DialConfig, topics Topics, logger zerolog.Logger) (*Bridge, mqtt.Client, error) {
	if strings.TrimSpace(cfg.Broker) == "" {
		return nil, nil, fmt.Errorf("mqtt broker is required")
	}

	bridge := NewBridge(nil, topics, logger)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(clientID(cfg.ClientID))
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetWill(topics.Availability(), PayloadOffline, 1, true)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		bridge.log.Info().Str("broker", cfg.Broker).Msg("mqtt connected")
		bridge.Resubscribe()
		if err := bridge.SetOnline(true); err != nil {
			bridge.log.Warn().Err(err).Msg("publish availability failed")
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		bridge.log.Warn().Err(err).Msg("mqtt connection lost")
	})

	client := mqtt.NewClient(opts)
	bridge.setClient(client)
	if token := client.Connect(); token.WaitTimeout(30*time.Second) && token.Error() != nil {
		return nil, nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return bridge, client, nil
}

// clientID appends a random suffix so two daemons never kick each other off.
func clientID(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "catgenie"
	}
	return prefix + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
