package plugins

import (
	"github.com/rs/zerolog"

	"github.com/joshp123/catgenie/internal/archive"
	"github.com/joshp123/catgenie/internal/config"
	"github.com/joshp123/catgenie/internal/core"
	"github.com/joshp123/catgenie/internal/events"
	"github.com/joshp123/catgenie/internal/hass"
)

// Deps are the shared connections handed to every plugin. Nil fields mean
// the sink is not configured.
type Deps struct {
	Bridge    *hass.Bridge
	Publisher *events.Publisher
	Archive   *archive.Archive
	Logger    zerolog.Logger
}

// Factory builds a plugin instance from the loaded config.
type Factory func(*config.Config, Deps) (core.Plugin, bool)

var compiled []Factory

// Register adds a compiled-in plugin factory to the registry.
func Register(factory Factory) {
	compiled = append(compiled, factory)
}

// Compiled returns the configured plugin instances for this build.
func Compiled(cfg *config.Config, deps Deps) []core.Plugin {
	if cfg == nil {
		return nil
	}
	out := make([]core.Plugin, 0, len(compiled))
	for _, factory := range compiled {
		plugin, ok := factory(cfg, deps)
		if !ok {
			continue
		}
		out = append(out, plugin)
	}
	return out
}
