package failover

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tandem-ha/tandem/pkg/client"
	"github.com/tandem-ha/tandem/pkg/config"
	"github.com/tandem-ha/tandem/pkg/monitor"
	"github.com/tandem-ha/tandem/pkg/runtime"
	"github.com/tandem-ha/tandem/pkg/types"
)

func fastTimings() config.Timings {
	return config.Timings{
		HeartbeatInterval:      config.Duration(10 * time.Millisecond),
		CheckHeartbeatInterval: config.Duration(10 * time.Millisecond),
		HeartbeatTimeout:       config.Duration(50 * time.Millisecond),
		StartupGracePeriod:     config.Duration(30 * time.Millisecond),
		RestartGracePeriod:     config.Duration(30 * time.Millisecond),
		VerifyChecks:           2,
		VerifyCheckInterval:    config.Duration(5 * time.Millisecond),
		HealthCheckInterval:    config.Duration(15 * time.Millisecond),
		StartPollInterval:      config.Duration(5 * time.Millisecond),
		StartTimeout:           config.Duration(200 * time.Millisecond),
	}
}

// newCoordinator builds a coordinator over a fake driver and a stub peer
func newCoordinator(t *testing.T, driver *runtime.FakeDriver, peerHandler http.HandlerFunc) *Coordinator {
	t.Helper()

	peerURL := "http://127.0.0.1:1" // unreachable unless a handler is given
	if peerHandler != nil {
		server := httptest.NewServer(peerHandler)
		t.Cleanup(server.Close)
		peerURL = server.URL
	}

	workloads := []string{"w1", "w2"}
	mon := monitor.New(driver, fastTimings(), nil)
	peer := client.NewPeer(peerURL, "test-node", 2*time.Second)
	return NewCoordinator("test-node", workloads, mon, peer, nil, nil)
}

func TestInitiateFailoverFromBackup(t *testing.T) {
	driver := runtime.NewFakeDriver(types.WorkloadStateStopped, "w1", "w2")
	c := newCoordinator(t, driver, nil)

	require.Equal(t, types.RoleBackup, c.Role())
	assert.True(t, c.InitiateFailover(context.Background()))
	assert.Equal(t, types.RolePrimary, c.Role())
	assert.Equal(t, types.WorkloadStateRunning, driver.State("w1"))
	assert.Equal(t, types.WorkloadStateRunning, driver.State("w2"))
}

func TestInitiateFailoverNoOpWhenPrimary(t *testing.T) {
	driver := runtime.NewFakeDriver(types.WorkloadStateStopped, "w1", "w2")
	c := newCoordinator(t, driver, nil)

	require.True(t, c.SetInitialRole(context.Background(), types.RolePrimary))
	startCalls := driver.StartCalls

	assert.False(t, c.InitiateFailover(context.Background()))
	assert.Equal(t, startCalls, driver.StartCalls, "no workload side effects")
	assert.Equal(t, types.RolePrimary, c.Role())
}

func TestInitiateFailoverSerialized(t *testing.T) {
	driver := runtime.NewFakeDriver(types.WorkloadStateStopped, "w1", "w2")
	c := newCoordinator(t, driver, nil)

	const attempts = 8
	var wg sync.WaitGroup
	var succeeded atomic.Int32
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.InitiateFailover(context.Background()) {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), succeeded.Load(), "exactly one failover wins")
	assert.Equal(t, 2, driver.StartCalls, "workloads started exactly once")
	assert.Equal(t, types.RolePrimary, c.Role())
}

func TestInitiateFailoverPartialStart(t *testing.T) {
	driver := runtime.NewFakeDriver(types.WorkloadStateStopped, "w1", "w2")
	driver.StartErr["w2"] = assert.AnError
	c := newCoordinator(t, driver, nil)

	assert.False(t, c.InitiateFailover(context.Background()))
	// Role stays primary even on partial start (documented behavior)
	assert.Equal(t, types.RolePrimary, c.Role())
}

func TestHandleBecomePrimaryIdempotent(t *testing.T) {
	driver := runtime.NewFakeDriver(types.WorkloadStateStopped, "w1", "w2")
	c := newCoordinator(t, driver, nil)

	assert.True(t, c.HandleBecomePrimary(context.Background()))
	assert.Equal(t, types.RolePrimary, c.Role())

	// A second request re-runs the transition without harm
	assert.True(t, c.HandleBecomePrimary(context.Background()))
	assert.Equal(t, types.RolePrimary, c.Role())
	assert.Equal(t, types.WorkloadStateRunning, driver.State("w1"))
}

func TestHandleWorkloadFailureHandsOff(t *testing.T) {
	var notified atomic.Int32
	driver := runtime.NewFakeDriver(types.WorkloadStateRunning, "w1", "w2")
	c := newCoordinator(t, driver, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/become_primary" {
			notified.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	})
	c.role.Store(types.RolePrimary)

	assert.True(t, c.HandleWorkloadFailure(context.Background(), "w1"))
	assert.Equal(t, types.RoleBackup, c.Role())
	assert.Equal(t, int32(1), notified.Load())
	assert.Equal(t, types.WorkloadStateStopped, driver.State("w1"))
	assert.Equal(t, types.WorkloadStateStopped, driver.State("w2"))
}

// The peer acknowledges become-primary only after its workloads are up,
// which can take well beyond a heartbeat round trip. A slow
// acknowledgement must still count as a successful notification, or the
// notifier stays primary while the peer finishes becoming primary too.
func TestHandleWorkloadFailureSlowPeerAck(t *testing.T) {
	var notified atomic.Int32
	driver := runtime.NewFakeDriver(types.WorkloadStateRunning, "w1", "w2")
	c := newCoordinator(t, driver, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		notified.Add(1)
		w.WriteHeader(http.StatusOK)
	})
	c.role.Store(types.RolePrimary)

	assert.True(t, c.HandleWorkloadFailure(context.Background(), "w1"))
	assert.Equal(t, types.RoleBackup, c.Role(), "slow peer ack still completes the handoff")
	assert.Equal(t, int32(1), notified.Load())
}

func TestHandleWorkloadFailureStopFails(t *testing.T) {
	var notified atomic.Int32
	driver := runtime.NewFakeDriver(types.WorkloadStateRunning, "w1", "w2")
	driver.StopErr["w1"] = assert.AnError
	c := newCoordinator(t, driver, func(w http.ResponseWriter, r *http.Request) {
		notified.Add(1)
		w.WriteHeader(http.StatusOK)
	})
	c.role.Store(types.RolePrimary)

	assert.False(t, c.HandleWorkloadFailure(context.Background(), "w1"))
	assert.Equal(t, types.RolePrimary, c.Role(), "stays primary when stop fails")
	assert.Equal(t, int32(0), notified.Load(), "peer not notified when stop fails")
}

func TestHandleWorkloadFailureNotifyFails(t *testing.T) {
	driver := runtime.NewFakeDriver(types.WorkloadStateRunning, "w1", "w2")
	c := newCoordinator(t, driver, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	c.role.Store(types.RolePrimary)

	assert.False(t, c.HandleWorkloadFailure(context.Background(), "w1"))
	// Stays primary with workloads stopped: the documented conservative
	// bias toward never ending up with zero primaries.
	assert.Equal(t, types.RolePrimary, c.Role())
	assert.Equal(t, types.WorkloadStateStopped, driver.State("w1"))
}

func TestHealthLoopTriggersHandoff(t *testing.T) {
	var notified atomic.Int32
	driver := runtime.NewFakeDriver(types.WorkloadStateRunning, "w1", "w2")
	c := newCoordinator(t, driver, func(w http.ResponseWriter, r *http.Request) {
		notified.Add(1)
		w.WriteHeader(http.StatusOK)
	})
	c.role.Store(types.RolePrimary)

	// Seed a down observation old enough to be outside the restart grace
	mon := c.monitor
	driver.SetState("w1", types.WorkloadStateStopped)
	require.False(t, mon.IsRunning(context.Background(), "w1"))
	time.Sleep(40 * time.Millisecond)

	loop := NewHealthLoop(c, mon, fastTimings().HealthCheckInterval.Std())
	loop.Start()
	defer loop.Stop()

	require.Eventually(t, func() bool {
		return c.Role() == types.RoleBackup
	}, 2*time.Second, 10*time.Millisecond, "health loop should hand off after confirmed failure")
	assert.Equal(t, int32(1), notified.Load(), "one confirmed failure, one handoff")
}

func TestHealthLoopIdleWhenBackup(t *testing.T) {
	driver := runtime.NewFakeDriver(types.WorkloadStateStopped, "w1", "w2")
	c := newCoordinator(t, driver, nil)

	loop := NewHealthLoop(c, c.monitor, 10*time.Millisecond)
	loop.Start()
	defer loop.Stop()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, types.RoleBackup, c.Role())
	assert.Equal(t, 0, driver.StopCalls, "backup never touches workloads")
}
