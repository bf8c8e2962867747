package types

import (
	"time"
)

// Role defines which side of the active/passive pair a node is on
type Role string

const (
	RolePrimary Role = "primary"
	RoleBackup  Role = "backup"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RolePrimary || r == RoleBackup
}

// WorkloadState represents the observed state of a managed container
type WorkloadState string

const (
	WorkloadStateRunning WorkloadState = "running"
	WorkloadStateStopped WorkloadState = "stopped"
	WorkloadStateUnknown WorkloadState = "unknown"
)

// TransitionTrigger identifies what caused a role transition
type TransitionTrigger string

const (
	// TriggerStartup is the initial role assignment at process start
	TriggerStartup TransitionTrigger = "startup"

	// TriggerHeartbeatTimeout is a backup taking over after heartbeat loss
	TriggerHeartbeatTimeout TransitionTrigger = "heartbeat_timeout"

	// TriggerWorkloadFailure is a primary stepping down after a confirmed
	// workload failure
	TriggerWorkloadFailure TransitionTrigger = "workload_failure"

	// TriggerPeerRequest is a transition requested by the peer over the
	// control plane
	TriggerPeerRequest TransitionTrigger = "peer_request"
)

// TransitionRecord is the journal entry written for every role transition
// attempt, successful or not.
type TransitionRecord struct {
	ID        string            `json:"id"`
	Node      string            `json:"node"`
	From      Role              `json:"from"`
	To        Role              `json:"to"`
	Trigger   TransitionTrigger `json:"trigger"`
	Succeeded bool              `json:"succeeded"`
	Detail    string            `json:"detail,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
