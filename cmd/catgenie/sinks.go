package main

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/joshp123/catgenie/internal/archive"
	"github.com/joshp123/catgenie/internal/config"
	"github.com/joshp123/catgenie/internal/events"
	"github.com/joshp123/catgenie/internal/hass"
	"github.com/joshp123/catgenie/internal/plugins"
)

// connectSinks dials the optional MQTT, NATS and archive backends. The
// returned func tears down whatever was connected.
func connectSinks(cfg *config.Config, logger zerolog.Logger) (plugins.Deps, func(), error) {
	deps := plugins.Deps{Logger: logger}
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.MQTT != nil {
		bridge, client, err := hass.Connect(hass.DialConfig{
			Broker:   cfg.MQTT.Broker,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			ClientID: cfg.MQTT.ClientID,
		}, hass.Topics{
			DiscoveryPrefix: cfg.MQTT.DiscoveryPrefix,
			BaseTopic:       cfg.MQTT.BaseTopic,
		}, logger)
		if err != nil {
			closeAll()
			return deps, nil, err
		}
		deps.Bridge = bridge
		closers = append(closers, func() {
			if err := bridge.SetOnline(false); err != nil {
				logger.Warn().Err(err).Msg("publish offline failed")
			}
			bridge.Close()
			client.Disconnect(250)
		})
	}

	if cfg.NATS != nil {
		publisher, err := events.Connect(cfg.NATS.URL, cfg.NATS.SubjectPrefix, logger)
		if err != nil {
			closeAll()
			return deps, nil, err
		}
		deps.Publisher = publisher
		closers = append(closers, publisher.Close)
	}

	if cfg.Archive != nil {
		store, err := archive.NewS3Store(cfg.Archive)
		if err != nil {
			closeAll()
			return deps, nil, fmt.Errorf("archive: %w", err)
		}
		deps.Archive = archive.New(store, cfg.Archive.Prefix)
	}

	return deps, closeAll, nil
}
