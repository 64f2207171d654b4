package catgenie

import (
	"github.com/joshp123/catgenie/internal/coordinator"
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector exports the coordinator's latest snapshots. It never
// calls the vendor API itself.
type MetricsCollector struct {
	coord *Coordinator

	updateSuccess prometheus.Gauge
	lastSuccess   prometheus.Gauge
	authFailed    prometheus.Gauge
	info          *prometheus.GaugeVec
	state         *prometheus.GaugeVec
	progress      *prometheus.GaugeVec
	step          *prometheus.GaugeVec
	connected     *prometheus.GaugeVec
	problem       *prometheus.GaugeVec
	saniSolution  *prometheus.GaugeVec
	fetchedAt     *prometheus.GaugeVec
}

func NewMetricsCollector(coord *Coordinator) *MetricsCollector {
	device := []string{"device"}
	return &MetricsCollector{
		coord: coord,
		updateSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "catgenie_update_success",
			Help: "Last coordinator tick success (1=ok, 0=error)",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "catgenie_last_success_timestamp_seconds",
			Help: "Last successful tick timestamp (epoch seconds)",
		}),
		authFailed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "catgenie_auth_failed",
			Help: "1 when the refresh token was rejected and polling stopped",
		}),
		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "catgenie_device_info",
			Help: "CatGenie device info",
		}, []string{"device", "name", "firmware", "mac"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "catgenie_state",
			Help: "Operation state reported by the device",
		}, device),
		progress: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "catgenie_progress_percent",
			Help: "Cleaning cycle progress (%)",
		}, device),
		step: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "catgenie_step",
			Help: "Current cleaning step number",
		}, device),
		connected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "catgenie_connected",
			Help: "1 if the cloud reports the device connected",
		}, device),
		problem: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "catgenie_problem",
			Help: "1 if the device reports an error",
		}, device),
		saniSolution: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "catgenie_sani_solution_percent",
			Help: "Remaining sanitizing solution (%)",
		}, device),
		fetchedAt: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "catgenie_snapshot_timestamp_seconds",
			Help: "When the device snapshot was fetched (epoch seconds)",
		}, device),
	}
}

func (c *MetricsCollector) vectors() []*prometheus.GaugeVec {
	return []*prometheus.GaugeVec{c.info, c.state, c.progress, c.step, c.connected, c.problem, c.saniSolution, c.fetchedAt}
}

func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	c.updateSuccess.Describe(ch)
	c.lastSuccess.Describe(ch)
	c.authFailed.Describe(ch)
	for _, vec := range c.vectors() {
		vec.Describe(ch)
	}
}

func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	for _, vec := range c.vectors() {
		vec.Reset()
	}

	if c.coord != nil {
		c.updateSuccess.Set(boolGauge(c.coord.LastUpdateSuccess()))
		c.authFailed.Set(boolGauge(c.coord.State() == coordinator.AuthFailedState))
		if at := c.coord.LastSuccessAt(); !at.IsZero() {
			c.lastSuccess.Set(float64(at.Unix()))
		}

		data, _ := c.coord.Data()
		for id, snapshot := range data {
			c.info.WithLabelValues(id, snapshot.Device.DisplayName(), snapshot.Device.FirmwareVersion, snapshot.Device.MacAddress).Set(1)
			c.state.WithLabelValues(id).Set(float64(snapshot.Status.State))
			c.progress.WithLabelValues(id).Set(float64(snapshot.Status.Progress))
			c.step.WithLabelValues(id).Set(float64(snapshot.Status.StepNum))
			c.connected.WithLabelValues(id).Set(boolGauge(snapshot.Device.ReportedStatus == "connected"))
			c.problem.WithLabelValues(id).Set(boolGauge(snapshot.Status.Error != ""))
			if sani := snapshot.Device.RemainingSaniSolution; sani != nil {
				c.saniSolution.WithLabelValues(id).Set(float64(*sani))
			}
			c.fetchedAt.WithLabelValues(id).Set(float64(snapshot.FetchedAt.Unix()))
		}
	}

	c.updateSuccess.Collect(ch)
	c.lastSuccess.Collect(ch)
	c.authFailed.Collect(ch)
	for _, vec := range c.vectors() {
		vec.Collect(ch)
	}
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
