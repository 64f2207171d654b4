package core

import (
	"encoding/json"
	"fmt"
	"regexp"
)

var (
	pluginIDPattern    = regexp.MustCompile(`^[a-z][a-z0-9_]+$`)
	serviceNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*(\.[A-Za-z][A-Za-z0-9_]*)+$`)
	dashboardPattern   = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
)

// ValidatePlugins enforces plugin contract invariants at startup: ids,
// health service names and embedded dashboards.
func ValidatePlugins(plugins []Plugin) error {
	seen := make(map[string]bool)
	for _, plugin := range plugins {
		id := plugin.ID()
		manifest := plugin.Manifest()
		if id == "" {
			return fmt.Errorf("plugin id is empty")
		}
		if !pluginIDPattern.MatchString(id) {
			return fmt.Errorf("plugin id %q does not match %s", id, pluginIDPattern.String())
		}
		if manifest.PluginID != id {
			return fmt.Errorf("plugin id mismatch: id=%q manifest=%q", id, manifest.PluginID)
		}
		if seen[id] {
			return fmt.Errorf("duplicate plugin id: %s", id)
		}
		seen[id] = true

		for _, service := range manifest.Services {
			if !serviceNamePattern.MatchString(service) {
				return fmt.Errorf("plugin %s: invalid service name %q", id, service)
			}
		}
		for _, dash := range plugin.Dashboards() {
			if !dashboardPattern.MatchString(dash.Name) {
				return fmt.Errorf("plugin %s: invalid dashboard name %q", id, dash.Name)
			}
			if !json.Valid(dash.JSON) {
				return fmt.Errorf("plugin %s: dashboard %s is not valid JSON", id, dash.Name)
			}
		}
	}
	return nil
}
