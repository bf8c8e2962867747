package failover

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tandem-ha/tandem/pkg/client"
	"github.com/tandem-ha/tandem/pkg/events"
	"github.com/tandem-ha/tandem/pkg/log"
	"github.com/tandem-ha/tandem/pkg/metrics"
	"github.com/tandem-ha/tandem/pkg/monitor"
	"github.com/tandem-ha/tandem/pkg/storage"
	"github.com/tandem-ha/tandem/pkg/types"
)

// Coordinator owns the node's role and serializes every role transition
// through a single mutex. The mutex is the failover lock: peer-initiated
// become-primary requests, heartbeat-timeout failovers, and the
// primary-side failure path all take it, so at most one transition
// sequence runs at a time on a node.
type Coordinator struct {
	// mu is the failover lock. Held across the whole transition
	// sequence, including workload starts and stops.
	mu sync.Mutex

	// role is read lock-free by the loops; it is only written while mu
	// is held.
	role atomic.Value // types.Role

	nodeName  string
	workloads []string
	monitor   *monitor.Monitor
	peer      *client.Peer
	broker    *events.Broker
	store     *storage.Store
	logger    zerolog.Logger
}

// NewCoordinator creates a Coordinator. The broker and store may be nil.
func NewCoordinator(nodeName string, workloads []string, mon *monitor.Monitor, peer *client.Peer, broker *events.Broker, store *storage.Store) *Coordinator {
	c := &Coordinator{
		nodeName:  nodeName,
		workloads: workloads,
		monitor:   mon,
		peer:      peer,
		broker:    broker,
		store:     store,
		logger:    log.WithComponent("failover").With().Str("node", nodeName).Logger(),
	}
	c.role.Store(types.RoleBackup)
	return c
}

// Role returns the node's current role
func (c *Coordinator) Role() types.Role {
	return c.role.Load().(types.Role)
}

// Workloads returns the workload identifiers this node owns
func (c *Coordinator) Workloads() []string {
	return c.workloads
}

// setRole updates the role and everything observing it. Callers must
// hold the failover lock, except for the initial assignment at startup.
func (c *Coordinator) setRole(role types.Role) {
	c.role.Store(role)
	metrics.SetRole(role == types.RolePrimary)

	if c.store != nil {
		if err := c.store.SaveRole(role); err != nil {
			c.logger.Error().Err(err).Msg("failed to persist role")
		}
	}

	if c.broker != nil {
		t := events.EventRoleBackup
		if role == types.RolePrimary {
			t = events.EventRolePrimary
		}
		c.broker.Publish(events.New(t, "role is now "+string(role), map[string]string{
			"node": c.nodeName,
		}))
	}
}

func (c *Coordinator) journal(from, to types.Role, trigger types.TransitionTrigger, ok bool, detail string) {
	outcome := "failure"
	if ok {
		outcome = "success"
	}
	metrics.RoleTransitionsTotal.WithLabelValues(string(trigger), outcome).Inc()

	if c.store == nil {
		return
	}
	rec := &types.TransitionRecord{
		ID:        uuid.New().String(),
		Node:      c.nodeName,
		From:      from,
		To:        to,
		Trigger:   trigger,
		Succeeded: ok,
		Detail:    detail,
		Timestamp: time.Now(),
	}
	if err := c.store.AppendTransition(rec); err != nil {
		c.logger.Error().Err(err).Msg("failed to journal transition")
	}
}

// SetInitialRole assigns the role at process start, before any loop
// runs. When the node starts as primary its workloads are started and
// waited for, same as a takeover.
func (c *Coordinator) SetInitialRole(ctx context.Context, role types.Role) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.Info().Str("role", string(role)).Msg("assigning initial role")
	if role == types.RolePrimary {
		ok := c.becomePrimary(ctx)
		c.journal("", types.RolePrimary, types.TriggerStartup, ok, "")
		return ok
	}

	c.setRole(types.RoleBackup)
	c.journal("", types.RoleBackup, types.TriggerStartup, true, "")
	return true
}

// becomePrimary flips the role to primary and starts every owned
// workload, blocking until all report running or the start timeout
// expires. The role stays primary even when some workloads fail to
// start; the caller sees false and the health loop will keep observing
// the still-down workloads.
//
// Callers must hold the failover lock.
func (c *Coordinator) becomePrimary(ctx context.Context) bool {
	c.setRole(types.RolePrimary)
	c.logger.Info().Msg("transitioning to primary role")
	return c.monitor.StartAll(ctx, c.workloads)
}

// becomeBackup flips the role to backup and stops every owned workload.
// Stop failures are logged but not rolled back.
//
// Callers must hold the failover lock.
func (c *Coordinator) becomeBackup(ctx context.Context) {
	c.setRole(types.RoleBackup)
	c.logger.Info().Msg("transitioning to backup role")
	if c.monitor.StopAll(ctx, c.workloads, true) {
		c.logger.Info().Msg("all workloads stopped, now in backup mode")
	} else {
		c.logger.Error().Msg("failed to stop all workloads while transitioning to backup")
	}
}

// InitiateFailover is the single externally triggerable failover entry
// point. It serializes with any concurrent transition, refuses to act
// unless the node is currently backup, and otherwise performs the full
// takeover. Returns true only if every workload started in time.
func (c *Coordinator) InitiateFailover(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Role() != types.RoleBackup {
		c.logger.Debug().Str("role", string(c.Role())).Msg("failover requested but node is not backup")
		return false
	}

	c.logger.Info().Msg("initiating failover")
	if c.broker != nil {
		c.broker.Publish(events.New(events.EventFailoverInitiated, "backup taking over as primary", map[string]string{
			"node": c.nodeName,
		}))
	}

	ok := c.becomePrimary(ctx)
	c.journal(types.RoleBackup, types.RolePrimary, types.TriggerHeartbeatTimeout, ok, "")

	if ok {
		c.logger.Info().Msg("successfully took over as primary")
		metrics.FailoversTotal.WithLabelValues(string(types.TriggerHeartbeatTimeout), "success").Inc()
		if c.broker != nil {
			c.broker.Publish(events.New(events.EventFailoverCompleted, "takeover complete", map[string]string{
				"node": c.nodeName,
			}))
		}
	} else {
		c.logger.Error().Msg("failed to take over as primary")
		metrics.FailoversTotal.WithLabelValues(string(types.TriggerHeartbeatTimeout), "failure").Inc()
		if c.broker != nil {
			c.broker.Publish(events.New(events.EventFailoverFailed, "takeover failed", map[string]string{
				"node": c.nodeName,
			}))
		}
	}
	return ok
}

// HandleBecomePrimary processes a peer-initiated become-primary request
// from the control plane. The transition runs under the failover lock
// with no role guard: a node that is already primary re-runs the start
// sequence, which is a no-op for running workloads.
func (c *Coordinator) HandleBecomePrimary(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	from := c.Role()
	ok := c.becomePrimary(ctx)
	c.journal(from, types.RolePrimary, types.TriggerPeerRequest, ok, "")
	return ok
}

// HandleWorkloadFailure is the primary-side failure path: stop all owned
// workloads, hand the primary role to the peer, and step down to backup.
// Each step is gated on the previous one succeeding; on any failure the
// node keeps the primary role, possibly with workloads partially
// stopped, so the cluster never ends up with no primary at all.
func (c *Coordinator) HandleWorkloadFailure(ctx context.Context, failed string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Role() != types.RolePrimary {
		return false
	}

	c.logger.Warn().Str("workload", failed).Msg("confirmed workload failure, handing off primary role")

	if !c.monitor.StopAll(ctx, c.workloads, true) {
		c.logger.Error().Msg("failed to stop all workloads, staying primary")
		c.journal(types.RolePrimary, types.RoleBackup, types.TriggerWorkloadFailure, false, "stop failed")
		metrics.FailoversTotal.WithLabelValues(string(types.TriggerWorkloadFailure), "failure").Inc()
		return false
	}
	c.logger.Info().Msg("all workloads stopped")

	if err := c.peer.NotifyBecomePrimary(ctx); err != nil {
		c.logger.Error().Err(err).Msg("failed to notify peer, staying primary")
		c.journal(types.RolePrimary, types.RoleBackup, types.TriggerWorkloadFailure, false, "peer notification failed")
		metrics.FailoversTotal.WithLabelValues(string(types.TriggerWorkloadFailure), "failure").Inc()
		return false
	}
	c.logger.Info().Msg("peer notified, stepping down")

	c.becomeBackup(ctx)
	c.journal(types.RolePrimary, types.RoleBackup, types.TriggerWorkloadFailure, true, "failed workload: "+failed)
	metrics.FailoversTotal.WithLabelValues(string(types.TriggerWorkloadFailure), "success").Inc()
	if c.broker != nil {
		c.broker.Publish(events.New(events.EventFailoverCompleted, "handed off primary role to peer", map[string]string{
			"node":     c.nodeName,
			"workload": failed,
		}))
	}
	return true
}
