package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Role metrics
	IsPrimary = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tandem_is_primary",
			Help: "Whether this node currently holds the primary role (1 = primary, 0 = backup)",
		},
	)

	RoleTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tandem_role_transitions_total",
			Help: "Total number of role transition attempts by trigger and outcome",
		},
		[]string{"trigger", "outcome"},
	)

	// Heartbeat metrics
	HeartbeatsSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tandem_heartbeats_sent_total",
			Help: "Total number of heartbeats sent to the peer by outcome",
		},
		[]string{"outcome"},
	)

	HeartbeatsReceivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tandem_heartbeats_received_total",
			Help: "Total number of heartbeats received from the peer",
		},
	)

	HeartbeatStaleness = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tandem_heartbeat_staleness_seconds",
			Help: "Seconds since the last heartbeat was received from the peer",
		},
	)

	// Workload metrics
	WorkloadsDown = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tandem_workloads_down",
			Help: "Number of owned workloads currently tracked as down",
		},
	)

	WorkloadChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tandem_workload_checks_total",
			Help: "Total number of workload status checks by result",
		},
		[]string{"result"},
	)

	FailoversTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tandem_failovers_total",
			Help: "Total number of failover attempts by trigger and outcome",
		},
		[]string{"trigger", "outcome"},
	)

	// Control-plane metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tandem_api_requests_total",
			Help: "Total number of control-plane requests by endpoint and status",
		},
		[]string{"endpoint", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		IsPrimary,
		RoleTransitionsTotal,
		HeartbeatsSentTotal,
		HeartbeatsReceivedTotal,
		HeartbeatStaleness,
		WorkloadsDown,
		WorkloadChecksTotal,
		FailoversTotal,
		APIRequestsTotal,
	)
}

// SetRole updates the role gauge
func SetRole(primary bool) {
	if primary {
		IsPrimary.Set(1)
	} else {
		IsPrimary.Set(0)
	}
}
