package core

import "fmt"

// FilterPlugins keeps the plugins enabled by config, or all of them when
// includeAll is set.
func FilterPlugins(compiled []Plugin, enabled map[string]bool, includeAll bool) []Plugin {
	out := make([]Plugin, 0, len(compiled))
	for _, plugin := range compiled {
		if includeAll || enabled[plugin.ID()] {
			out = append(out, plugin)
		}
	}
	return out
}

// ValidateEnabledPlugins fails when config enables a plugin this build lacks.
func ValidateEnabledPlugins(compiled []Plugin, enabled map[string]bool, includeAll bool) error {
	if includeAll {
		return nil
	}
	known := make(map[string]bool, len(compiled))
	for _, plugin := range compiled {
		known[plugin.ID()] = true
	}
	for id, on := range enabled {
		if on && !known[id] {
			return fmt.Errorf("plugin %q is enabled in config but not compiled in", id)
		}
	}
	return nil
}
