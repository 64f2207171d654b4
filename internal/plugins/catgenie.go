package plugins

import (
	"github.com/joshp123/catgenie/internal/config"
	"github.com/joshp123/catgenie/internal/core"
	"github.com/joshp123/catgenie/plugins/catgenie"
)

func init() {
	Register(func(cfg *config.Config, deps Deps) (core.Plugin, bool) {
		var sinks catgenie.Sinks
		if deps.Bridge != nil {
			sinks.Bridge = deps.Bridge
		}
		if deps.Publisher != nil {
			sinks.Publisher = deps.Publisher
		}
		if deps.Archive != nil {
			sinks.Archive = deps.Archive
		}
		plugin, ok := catgenie.NewPlugin(cfg.CatGenie, sinks, deps.Logger)
		if !ok {
			return nil, false
		}
		return plugin, true
	})
}
