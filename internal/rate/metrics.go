package rate

import "github.com/prometheus/client_golang/prometheus"

var (
	blockedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catgenie_rate_limit_blocked_total",
			Help: "Outgoing requests refused by the local rate guard",
		},
		[]string{"provider", "reason"},
	)
	retryAfterGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "catgenie_rate_limit_retry_after_seconds",
			Help: "Last Retry-After value returned by the provider",
		},
		[]string{"provider"},
	)
	lastStatusGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "catgenie_rate_limit_last_status_code",
			Help: "Last HTTP status code observed by the rate guard",
		},
		[]string{"provider"},
	)
)

// MetricsCollectors exposes shared rate-limit collectors.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		blockedCounter,
		retryAfterGauge,
		lastStatusGauge,
	}
}
