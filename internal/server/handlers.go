package server

import (
	"encoding/json"
	"net/http"

	"github.com/joshp123/catgenie/internal/core"
)

type pluginHealth struct {
	Status  core.HealthStatus `json:"status"`
	Message string            `json:"message,omitempty"`
}

// HealthHandler reports per-plugin health. Any plugin in ERROR turns the
// response into a 503.
func HealthHandler(plugins []core.Plugin) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		status := http.StatusOK
		body := make(map[string]pluginHealth, len(plugins))
		for _, p := range plugins {
			h := pluginHealth{Status: p.Health(), Message: p.HealthMessage()}
			if h.Status == core.HealthError {
				status = http.StatusServiceUnavailable
			}
			body[p.ID()] = h
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

// LivenessHandler returns a simple OK.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
