package catgenie

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/joshp123/catgenie/internal/config"
	"github.com/joshp123/catgenie/internal/coordinator"
	"github.com/joshp123/catgenie/internal/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

//go:embed AGENTS.md
var agentsMD string

//go:embed dashboard.json
var dashboardJSON []byte

const ServiceName = "catgenie.v1.CatGenie"

// Sinks are the optional consumers of coordinator snapshots.
type Sinks struct {
	Bridge    Bridge
	Publisher StatusPublisher
	Archive   SnapshotArchive
}

// Plugin implements the plugin contract for CatGenie litter boxes.
type Plugin struct {
	cfg    Config
	client *Client
	coord  *Coordinator
	stream *Stream
	sinks  Sinks
	log    zerolog.Logger

	mu       sync.RWMutex
	setupErr error
	detach   []func()
}

var (
	_ core.Plugin         = (*Plugin)(nil)
	_ core.HTTPRegistrant = (*Plugin)(nil)
	_ core.Runner         = (*Plugin)(nil)
	_ core.Closer         = (*Plugin)(nil)
)

// NewPlugin constructs the plugin from config. The bool is false when the
// catgenie section is absent.
func NewPlugin(cfg *config.CatGenieConfig, sinks Sinks, logger zerolog.Logger) (*Plugin, bool) {
	if cfg == nil {
		return nil, false
	}
	p := &Plugin{sinks: sinks, log: logger.With().Str("plugin", "catgenie").Logger()}

	runtimeCfg, err := ConfigFromFile(cfg)
	if err != nil {
		p.setupErr = err
		return p, true
	}
	p.cfg = runtimeCfg

	client, err := NewClient(runtimeCfg, logger)
	if err != nil {
		p.setupErr = err
		return p, true
	}
	p.client = client
	p.coord = NewCoordinator(client, runtimeCfg, logger)
	p.stream = NewStream(p.coord, logger)
	return p, true
}

func (p *Plugin) ID() string {
	return "catgenie"
}

func (p *Plugin) Manifest() core.Manifest {
	name := "CatGenie"
	if p.cfg.Name != "" {
		name = p.cfg.Name
	}
	return core.Manifest{
		PluginID:    "catgenie",
		DisplayName: name,
		Version:     "0.1.0",
		Services:    []string{ServiceName},
	}
}

func (p *Plugin) AgentsMD() string {
	return agentsMD
}

func (p *Plugin) Dashboards() []core.Dashboard {
	return []core.Dashboard{{Name: "catgenie-overview", JSON: dashboardJSON}}
}

func (p *Plugin) Collectors() []prometheus.Collector {
	if p.coord == nil {
		return nil
	}
	return []prometheus.Collector{NewMetricsCollector(p.coord), tokenExchanges}
}

// Coordinator exposes the polling coordinator; nil when setup failed early.
func (p *Plugin) Coordinator() *Coordinator {
	return p.coord
}

// Run performs the first refresh, retrying every poll interval until it
// succeeds or the token is rejected, then wires the sinks and polls until
// ctx ends.
func (p *Plugin) Run(ctx context.Context) error {
	if err := p.SetupError(); err != nil {
		return err
	}

	for {
		err := p.coord.FirstRefresh(ctx)
		if err == nil {
			break
		}
		if errors.Is(err, coordinator.ErrAuthFailed) {
			p.setSetupError(err)
			return err
		}
		p.log.Warn().Err(err).Dur("retry_in", p.coord.Interval()).Msg("first refresh failed")
		timer := time.NewTimer(p.coord.Interval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
	p.log.Info().Dur("interval", p.coord.Interval()).Msg("first refresh complete")

	if err := p.attachSinks(); err != nil {
		p.log.Error().Err(err).Msg("home assistant bridge setup failed")
	}

	p.coord.Run(ctx)
	if p.coord.State() == coordinator.AuthFailedState {
		return fmt.Errorf("catgenie polling stopped: %w", p.coord.LastError())
	}
	return nil
}

func (p *Plugin) attachSinks() error {
	var detach []func()
	detach = append(detach, p.stream.Attach())
	if p.sinks.Publisher != nil {
		detach = append(detach, AttachPublisher(p.coord, p.sinks.Publisher, p.log))
	}
	if p.sinks.Archive != nil {
		detach = append(detach, AttachArchive(p.coord, p.sinks.Archive, p.log))
	}

	var err error
	if p.sinks.Bridge != nil {
		var stop func()
		stop, err = NewHomeAssistant(p.sinks.Bridge, p.coord, p.log).Start()
		if err == nil {
			detach = append(detach, stop)
		}
	}

	p.mu.Lock()
	p.detach = append(p.detach, detach...)
	p.mu.Unlock()
	return err
}

func (p *Plugin) Close() error {
	p.mu.Lock()
	detach := p.detach
	p.detach = nil
	p.mu.Unlock()
	for _, fn := range detach {
		fn()
	}
	if p.stream != nil {
		p.stream.Close()
	}
	return nil
}

func (p *Plugin) SetupError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.setupErr
}

func (p *Plugin) setSetupError(err error) {
	p.mu.Lock()
	p.setupErr = err
	p.mu.Unlock()
}

func (p *Plugin) Health() core.HealthStatus {
	status, _ := p.health()
	return status
}

func (p *Plugin) HealthMessage() string {
	_, msg := p.health()
	return msg
}

func (p *Plugin) health() (core.HealthStatus, string) {
	if err := p.SetupError(); err != nil {
		return core.HealthError, err.Error()
	}
	switch p.coord.State() {
	case coordinator.AuthFailedState:
		return core.HealthError, "refresh token rejected; run catgenie-cli setup again"
	case coordinator.Uninitialized:
		if err := p.coord.LastError(); err != nil {
			return core.HealthDegraded, err.Error()
		}
		return core.HealthDegraded, "waiting for first refresh"
	}
	if !p.coord.LastUpdateSuccess() {
		msg := "last update failed"
		if err := p.coord.LastError(); err != nil {
			msg = err.Error()
		}
		return core.HealthDegraded, msg
	}
	return core.HealthHealthy, ""
}
