package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tandem-ha/tandem/pkg/config"
	"github.com/tandem-ha/tandem/pkg/log"
	"github.com/tandem-ha/tandem/pkg/node"
	"github.com/tandem-ha/tandem/pkg/runtime"
	"github.com/tandem-ha/tandem/pkg/types"
)

func TestMain(m *testing.M) {
	log.Init(log.Config{Level: log.ErrorLevel})
	m.Run()
}

func fastTimings() config.Timings {
	return config.Timings{
		HeartbeatInterval:      config.Duration(20 * time.Millisecond),
		CheckHeartbeatInterval: config.Duration(20 * time.Millisecond),
		HeartbeatTimeout:       config.Duration(150 * time.Millisecond),
		StartupGracePeriod:     config.Duration(50 * time.Millisecond),
		RestartGracePeriod:     config.Duration(50 * time.Millisecond),
		VerifyChecks:           2,
		VerifyCheckInterval:    config.Duration(10 * time.Millisecond),
		HealthCheckInterval:    config.Duration(25 * time.Millisecond),
		StartPollInterval:      config.Duration(10 * time.Millisecond),
		StartTimeout:           config.Duration(2 * time.Second),
	}
}

// freeAddr reserves an ephemeral port and returns host:port for it
func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

type pair struct {
	a, b             *node.Node
	driverA, driverB *runtime.FakeDriver
	addrA, addrB     string
}

// startPair boots two in-process nodes wired to each other, node-a as
// the initial primary.
func startPair(t *testing.T) *pair {
	t.Helper()

	workloads := []string{"w1", "w2"}
	addrA := freeAddr(t)
	addrB := freeAddr(t)

	cfg := &config.Config{
		LogLevel: "error",
		Timings:  fastTimings(),
		Nodes: []config.Node{
			{
				Name:        "node-a",
				Listen:      addrA,
				PeerURL:     "http://" + addrB,
				InitialRole: types.RolePrimary,
				Workloads:   workloads,
			},
			{
				Name:        "node-b",
				Listen:      addrB,
				PeerURL:     "http://" + addrA,
				InitialRole: types.RoleBackup,
				Workloads:   workloads,
			},
		},
	}

	driverA := runtime.NewFakeDriver(types.WorkloadStateStopped, workloads...)
	driverB := runtime.NewFakeDriver(types.WorkloadStateStopped, workloads...)

	a, err := node.New(node.Options{
		Config: cfg, Name: "node-a", Driver: driverA, DisableStore: true,
	})
	require.NoError(t, err)
	b, err := node.New(node.Options{
		Config: cfg, Name: "node-b", Driver: driverB, DisableStore: true,
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, a.Start(ctx))
	require.NoError(t, b.Start(ctx))

	p := &pair{a: a, b: b, driverA: driverA, driverB: driverB, addrA: addrA, addrB: addrB}
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if p.a != nil {
			p.a.Stop(stopCtx)
		}
		if p.b != nil {
			p.b.Stop(stopCtx)
		}
	})
	return p
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestHeartbeatLossFailover(t *testing.T) {
	p := startPair(t)

	// Initial state: A primary with workloads up, B standing by
	require.Equal(t, types.RolePrimary, p.a.Role())
	require.Equal(t, types.RoleBackup, p.b.Role())
	require.Equal(t, types.WorkloadStateRunning, p.driverA.State("w1"))
	require.Equal(t, types.WorkloadStateStopped, p.driverB.State("w1"))

	// B hears from A
	require.Eventually(t, func() bool {
		return !p.b.Engine().LastReceived().IsZero()
	}, 5*time.Second, 10*time.Millisecond, "backup should receive heartbeats")

	// A dies
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p.a.Stop(stopCtx)
	p.a = nil

	// B times out and takes over
	require.Eventually(t, func() bool {
		return p.b.Role() == types.RolePrimary
	}, 5*time.Second, 10*time.Millisecond, "backup should take over after heartbeat timeout")
	assert.Equal(t, types.WorkloadStateRunning, p.driverB.State("w1"))
	assert.Equal(t, types.WorkloadStateRunning, p.driverB.State("w2"))

	// A stale become-primary request to the new primary is processed
	// idempotently, not rejected.
	resp := postJSON(t, fmt.Sprintf("http://%s/become_primary", p.addrB), map[string]string{
		"server": "node-a",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, types.RolePrimary, p.b.Role())
}

func TestWorkloadCrashHandover(t *testing.T) {
	p := startPair(t)

	// Let A's startup grace period pass so health checks are live
	time.Sleep(80 * time.Millisecond)

	// w1 crashes on A and stays down past the restart grace period
	p.driverA.SetState("w1", types.WorkloadStateStopped)

	// A confirms the failure, stops everything, hands off to B
	require.Eventually(t, func() bool {
		return p.b.Role() == types.RolePrimary && p.a.Role() == types.RoleBackup
	}, 5*time.Second, 10*time.Millisecond, "confirmed crash should hand primary role to the peer")

	assert.Equal(t, types.WorkloadStateStopped, p.driverA.State("w1"))
	assert.Equal(t, types.WorkloadStateStopped, p.driverA.State("w2"))
	assert.Equal(t, types.WorkloadStateRunning, p.driverB.State("w1"))
	assert.Equal(t, types.WorkloadStateRunning, p.driverB.State("w2"))

	// Roles have swapped: B now heartbeats, A now listens
	require.Eventually(t, func() bool {
		return !p.a.Engine().LastReceived().IsZero()
	}, 5*time.Second, 10*time.Millisecond, "old primary should now receive heartbeats")
}

func TestTransientCrashDoesNotFailOver(t *testing.T) {
	p := startPair(t)

	time.Sleep(80 * time.Millisecond)

	// w1 blips: down briefly, back up within the restart grace period
	p.driverA.SetState("w1", types.WorkloadStateStopped)
	time.Sleep(20 * time.Millisecond)
	p.driverA.SetState("w1", types.WorkloadStateRunning)

	// Give the controller several health cycles to overreact
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, types.RolePrimary, p.a.Role(), "transient restart must not trigger failover")
	assert.Equal(t, types.RoleBackup, p.b.Role())
}
