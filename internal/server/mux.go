package server

import (
	"net/http"

	"github.com/joshp123/catgenie/internal/core"
	"github.com/prometheus/client_golang/prometheus"
)

// NewMux wires the shared endpoints and every plugin's HTTP handlers.
func NewMux(plugins []core.Plugin, registry *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", LivenessHandler)
	mux.Handle("/health", HealthHandler(plugins))
	mux.Handle("/metrics", MetricsHandler(registry))
	mux.Handle("/dashboards/", DashboardsHandler(core.DashboardsMap(plugins)))

	pluginRegistry := core.NewRegistry(plugins)
	mux.Handle("/plugins", pluginRegistry)
	mux.Handle("/plugins/", pluginRegistry)

	for _, p := range plugins {
		if registrant, ok := p.(core.HTTPRegistrant); ok {
			registrant.RegisterHTTP(mux)
		}
	}
	return mux
}
