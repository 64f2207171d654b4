package router

import (
	"context"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joshp123/catgenie/internal/core"
)

// RegisterPlugins publishes each plugin's health under its plugin id and
// every service named in its manifest.
func RegisterPlugins(hs *health.Server, plugins []core.Plugin) {
	UpdateHealth(hs, plugins)
}

// UpdateHealth copies plugin health into the gRPC health service. The empty
// service name reflects the whole process.
func UpdateHealth(hs *health.Server, plugins []core.Plugin) {
	overall := healthpb.HealthCheckResponse_SERVING
	for _, p := range plugins {
		status := servingStatus(p.Health())
		if status != healthpb.HealthCheckResponse_SERVING {
			overall = healthpb.HealthCheckResponse_NOT_SERVING
		}
		hs.SetServingStatus(p.ID(), status)
		for _, service := range p.Manifest().Services {
			hs.SetServingStatus(service, status)
		}
	}
	hs.SetServingStatus("", overall)
}

// Watch refreshes health every interval until ctx is done.
func Watch(ctx context.Context, hs *health.Server, plugins []core.Plugin, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			UpdateHealth(hs, plugins)
		}
	}
}

// DEGRADED still serves: the last good snapshot remains readable.
func servingStatus(status core.HealthStatus) healthpb.HealthCheckResponse_ServingStatus {
	switch status {
	case core.HealthHealthy, core.HealthDegraded:
		return healthpb.HealthCheckResponse_SERVING
	default:
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
}
