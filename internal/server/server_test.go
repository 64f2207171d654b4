package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/joshp123/catgenie/internal/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type testPlugin struct {
	id      string
	health  core.HealthStatus
	message string
	gauge   prometheus.Gauge
}

func (p testPlugin) ID() string { return p.id }
func (p testPlugin) Manifest() core.Manifest {
	return core.Manifest{PluginID: p.id, DisplayName: p.id, Version: "0.0.1"}
}
func (p testPlugin) AgentsMD() string { return "" }
func (p testPlugin) Dashboards() []core.Dashboard {
	return []core.Dashboard{{Name: "overview", JSON: []byte(`{"title":"x"}`)}}
}
func (p testPlugin) Collectors() []prometheus.Collector {
	if p.gauge == nil {
		return nil
	}
	return []prometheus.Collector{p.gauge}
}
func (p testPlugin) Health() core.HealthStatus { return p.health }
func (p testPlugin) HealthMessage() string     { return p.message }

func (p testPlugin) RegisterHTTP(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/"+p.id+"/ping", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "pong")
	})
}

func newMuxServer(t *testing.T, plugins ...core.Plugin) *httptest.Server {
	t.Helper()
	registry, err := core.MetricsRegistry(plugins)
	require.NoError(t, err)
	srv := httptest.NewServer(NewMux(plugins, registry))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestMuxServesSharedEndpoints(t *testing.T) {
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_plugin_up", Help: "test"})
	gauge.Set(1)
	srv := newMuxServer(t, testPlugin{id: "box", health: core.HealthHealthy, gauge: gauge})

	code, body := get(t, srv.URL+"/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body)

	code, body = get(t, srv.URL+"/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "test_plugin_up 1")

	code, body = get(t, srv.URL+core.DashboardPath("box", "overview"))
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"title":"x"}`, body)

	code, _ = get(t, srv.URL+"/dashboards/box/missing.json")
	assert.Equal(t, http.StatusNotFound, code)

	code, body = get(t, srv.URL+"/api/box/ping")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "pong", body)

	code, body = get(t, srv.URL+"/plugins/box")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"box"`)
}

func TestHealthHandlerReportsErrors(t *testing.T) {
	srv := newMuxServer(t,
		testPlugin{id: "ok", health: core.HealthHealthy},
		testPlugin{id: "bad", health: core.HealthError, message: "token rejected"},
	)

	code, body := get(t, srv.URL+"/health")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	var out map[string]pluginHealth
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	assert.Equal(t, core.HealthHealthy, out["ok"].Status)
	assert.Equal(t, "token rejected", out["bad"].Message)
}

func TestHTTPServerShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := NewHTTPServer(ln.Addr().String(), http.HandlerFunc(LivenessHandler))

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()

	code, _ := get(t, "http://"+ln.Addr().String()+"/")
	assert.Equal(t, http.StatusOK, code)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.NoError(t, <-done)
}

func TestGRPCServerHealth(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := NewGRPCServerWithListener(ln)
	go func() { _ = srv.Serve() }()
	defer srv.Stop()

	conn, err := grpc.NewClient(srv.Addr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
