package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tandem-ha/tandem/pkg/client"
	"github.com/tandem-ha/tandem/pkg/config"
	"github.com/tandem-ha/tandem/pkg/failover"
	"github.com/tandem-ha/tandem/pkg/heartbeat"
	"github.com/tandem-ha/tandem/pkg/monitor"
	"github.com/tandem-ha/tandem/pkg/runtime"
	"github.com/tandem-ha/tandem/pkg/types"
)

func fastTimings() config.Timings {
	return config.Timings{
		HeartbeatInterval:      config.Duration(10 * time.Millisecond),
		CheckHeartbeatInterval: config.Duration(10 * time.Millisecond),
		HeartbeatTimeout:       config.Duration(40 * time.Millisecond),
		StartupGracePeriod:     config.Duration(30 * time.Millisecond),
		RestartGracePeriod:     config.Duration(30 * time.Millisecond),
		VerifyChecks:           2,
		VerifyCheckInterval:    config.Duration(5 * time.Millisecond),
		HealthCheckInterval:    config.Duration(15 * time.Millisecond),
		StartPollInterval:      config.Duration(5 * time.Millisecond),
		StartTimeout:           config.Duration(200 * time.Millisecond),
	}
}

func newTestServer(t *testing.T, driver *runtime.FakeDriver) (*httptest.Server, *failover.Coordinator, *heartbeat.Engine) {
	t.Helper()

	timings := fastTimings()
	mon := monitor.New(driver, timings, nil)
	peer := client.NewPeer("http://127.0.0.1:1", "test-node", 0)
	coord := failover.NewCoordinator("test-node", []string{"w1"}, mon, peer, nil, nil)
	engine := heartbeat.NewEngine(coord, peer, timings, nil)

	srv := NewServer(":0", coord, engine, timings)
	ts := httptest.NewServer(srv.http.Handler)
	t.Cleanup(ts.Close)
	return ts, coord, engine
}

func post(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestHeartbeatEndpoint(t *testing.T) {
	driver := runtime.NewFakeDriver(types.WorkloadStateStopped, "w1")
	ts, _, engine := newTestServer(t, driver)

	require.True(t, engine.LastReceived().IsZero())

	resp := post(t, ts.URL+"/heartbeat", client.Message{Server: "node-a"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Heartbeat received", body["message"])
	assert.False(t, engine.LastReceived().IsZero(), "timestamp recorded")
}

func TestHeartbeatMissingSender(t *testing.T) {
	driver := runtime.NewFakeDriver(types.WorkloadStateStopped, "w1")
	ts, _, engine := newTestServer(t, driver)

	resp := post(t, ts.URL+"/heartbeat", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.True(t, engine.LastReceived().IsZero(), "no state change on rejected request")
}

func TestBecomePrimaryEndpoint(t *testing.T) {
	driver := runtime.NewFakeDriver(types.WorkloadStateStopped, "w1")
	ts, coord, _ := newTestServer(t, driver)

	require.Equal(t, types.RoleBackup, coord.Role())

	resp := post(t, ts.URL+"/become_primary", client.Message{Server: "node-a"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, types.RolePrimary, coord.Role())
	assert.Equal(t, types.WorkloadStateRunning, driver.State("w1"))
}

func TestBecomePrimaryMissingSender(t *testing.T) {
	driver := runtime.NewFakeDriver(types.WorkloadStateStopped, "w1")
	ts, coord, _ := newTestServer(t, driver)

	resp := post(t, ts.URL+"/become_primary", map[string]string{"other": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, types.RoleBackup, coord.Role(), "no transition on rejected request")
}

func TestBecomePrimaryTransitionFailure(t *testing.T) {
	driver := runtime.NewFakeDriver(types.WorkloadStateStopped, "w1")
	driver.StartErr["w1"] = assert.AnError
	ts, coord, _ := newTestServer(t, driver)

	resp := post(t, ts.URL+"/become_primary", client.Message{Server: "node-a"})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	// Role is still flipped; only the workload starts failed
	assert.Equal(t, types.RolePrimary, coord.Role())
}

func TestMetricsEndpoint(t *testing.T) {
	driver := runtime.NewFakeDriver(types.WorkloadStateStopped, "w1")
	ts, _, _ := newTestServer(t, driver)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
