package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tandem-ha/tandem/pkg/config"
	"github.com/tandem-ha/tandem/pkg/events"
	"github.com/tandem-ha/tandem/pkg/log"
	"github.com/tandem-ha/tandem/pkg/metrics"
	"github.com/tandem-ha/tandem/pkg/runtime"
	"github.com/tandem-ha/tandem/pkg/types"
)

// stopGraceTimeout bounds graceful stops issued outside the failover
// path. Failover stops are immediate and do not use it.
const stopGraceTimeout = 10 * time.Second

// Monitor decides whether a workload is genuinely down or merely inside
// a tolerated grace window. It owns the down-since tracker: entries are
// created the first time a status check sees a workload stopped and
// cleared the moment it is seen running again.
type Monitor struct {
	driver  runtime.Driver
	timings config.Timings
	broker  *events.Broker
	logger  zerolog.Logger

	mu        sync.Mutex
	downSince map[string]time.Time

	startedMu sync.Mutex
	startedAt time.Time
}

// New creates a Monitor. The broker may be nil when no event consumers
// are wired.
func New(driver runtime.Driver, timings config.Timings, broker *events.Broker) *Monitor {
	return &Monitor{
		driver:    driver,
		timings:   timings,
		broker:    broker,
		logger:    log.WithComponent("monitor"),
		downSince: make(map[string]time.Time),
	}
}

func (m *Monitor) publish(t events.EventType, msg, workload string) {
	if m.broker == nil {
		return
	}
	m.broker.Publish(events.New(t, msg, map[string]string{"workload": workload}))
}

// MarkStarted records the moment workloads were (re)started, opening the
// startup grace period.
func (m *Monitor) MarkStarted() {
	m.startedMu.Lock()
	m.startedAt = time.Now()
	m.startedMu.Unlock()
}

// InStartupGrace reports whether the startup grace period is still open
func (m *Monitor) InStartupGrace() bool {
	m.startedMu.Lock()
	startedAt := m.startedAt
	m.startedMu.Unlock()

	if startedAt.IsZero() {
		return false
	}
	return time.Since(startedAt) < m.timings.StartupGracePeriod.Std()
}

// DownSince returns when the workload was first observed down
func (m *Monitor) DownSince(id string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.downSince[id]
	return t, ok
}

// DownCount returns how many workloads are currently tracked as down
func (m *Monitor) DownCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.downSince)
}

// ShouldCheck reports whether the workload should be health-checked this
// cycle. Checks are suppressed wholesale during the startup grace period;
// outside it, a workload is checkable iff the driver can resolve it.
func (m *Monitor) ShouldCheck(ctx context.Context, id string) bool {
	if m.InStartupGrace() {
		m.logger.Debug().Str("workload", id).Msg("in startup grace period, skipping check")
		return false
	}

	exists, err := m.driver.Exists(ctx, id)
	if err != nil {
		m.logger.Error().Err(err).Str("workload", id).Msg("failed to resolve workload")
		return false
	}
	if !exists {
		m.logger.Error().Str("workload", id).Msg("workload not found")
		return false
	}
	return true
}

// IsRunning queries the driver for the workload's current state and
// maintains the down tracker as a side effect. Unresolvable workloads
// and driver errors count as not running.
func (m *Monitor) IsRunning(ctx context.Context, id string) bool {
	state, err := m.driver.Status(ctx, id)
	if err != nil {
		m.logger.Error().Err(err).Str("workload", id).Msg("failed to check workload status")
		metrics.WorkloadChecksTotal.WithLabelValues("error").Inc()
		m.recordDown(id)
		return false
	}

	running := state == types.WorkloadStateRunning
	if running {
		metrics.WorkloadChecksTotal.WithLabelValues("running").Inc()
		m.recordRecovered(id)
	} else {
		metrics.WorkloadChecksTotal.WithLabelValues("stopped").Inc()
		m.recordDown(id)
	}
	return running
}

func (m *Monitor) recordDown(id string) {
	m.mu.Lock()
	_, tracked := m.downSince[id]
	if !tracked {
		m.downSince[id] = time.Now()
	}
	down := len(m.downSince)
	m.mu.Unlock()

	if !tracked {
		m.logger.Warn().Str("workload", id).Msg("workload appears to be down, starting grace period")
		m.publish(events.EventWorkloadDown, "workload observed down", id)
	}
	metrics.WorkloadsDown.Set(float64(down))
}

func (m *Monitor) recordRecovered(id string) {
	m.mu.Lock()
	_, tracked := m.downSince[id]
	if tracked {
		delete(m.downSince, id)
	}
	down := len(m.downSince)
	m.mu.Unlock()

	if tracked {
		m.logger.Info().Str("workload", id).Msg("workload is back up")
		m.publish(events.EventWorkloadRecovered, "workload recovered", id)
	}
	metrics.WorkloadsDown.Set(float64(down))
}

// VerifyHealth confirms whether a workload that a status poll already
// found down has genuinely failed. It returns true (healthy) while the
// restart grace period is open, then re-polls up to VerifyChecks times;
// a single running observation clears the verdict. Only a workload that
// stayed down through every poll and whose down-time has exceeded the
// restart grace period is confirmed failed.
func (m *Monitor) VerifyHealth(ctx context.Context, id string) bool {
	grace := m.timings.RestartGracePeriod.Std()
	wlog := log.WithWorkload(id)

	if since, ok := m.DownSince(id); ok {
		if elapsed := time.Since(since); elapsed < grace {
			wlog.Info().
				Dur("remaining", grace-elapsed).
				Msg("workload in restart grace period")
			return true
		}
	}

	checks := m.timings.VerifyChecks
	for i := 0; i < checks; i++ {
		if m.IsRunning(ctx, id) {
			return true
		}
		if i < checks-1 {
			select {
			case <-time.After(m.timings.VerifyCheckInterval.Std()):
			case <-ctx.Done():
				// Interrupted mid-verification; do not confirm a failure
				return true
			}
		}
	}

	// The grace window may have elapsed while we were polling; re-check
	// before confirming.
	since, ok := m.DownSince(id)
	if !ok {
		return true
	}
	if elapsed := time.Since(since); elapsed >= grace {
		wlog.Error().
			Dur("down_for", elapsed).
			Msg("workload down beyond restart grace period")
		m.publish(events.EventWorkloadConfirmed, "workload confirmed down", id)
		return false
	}
	return true
}

// StartAll starts every listed workload and blocks until all of them
// report running, bounded by the start timeout. Returns true only if all
// workloads came up in time. The startup grace period opens as soon as
// the starts have been issued.
func (m *Monitor) StartAll(ctx context.Context, ids []string) bool {
	for _, id := range ids {
		if err := m.driver.Start(ctx, id); err != nil {
			m.logger.Error().Err(err).Str("workload", id).Msg("failed to start workload")
			return false
		}
		m.logger.Info().Str("workload", id).Msg("started workload")
	}

	m.MarkStarted()
	return m.waitForRunning(ctx, ids)
}

func (m *Monitor) waitForRunning(ctx context.Context, ids []string) bool {
	deadline := time.Now().Add(m.timings.StartTimeout.Std())

	for time.Now().Before(deadline) {
		allRunning := true
		for _, id := range ids {
			if !m.IsRunning(ctx, id) {
				allRunning = false
				break
			}
		}
		if allRunning {
			m.logger.Info().Msg("all workloads are running")
			return true
		}

		m.logger.Info().Msg("waiting for workloads to start")
		select {
		case <-time.After(m.timings.StartPollInterval.Std()):
		case <-ctx.Done():
			m.logger.Error().Msg("interrupted while waiting for workloads to start")
			return false
		}
	}

	m.logger.Error().Msg("timeout reached while waiting for workloads to start")
	return false
}

// StopAll stops every listed workload. Failover stops are immediate so a
// handover is not held up by shutdown hooks. Returns false on the first
// stop failure.
func (m *Monitor) StopAll(ctx context.Context, ids []string, immediate bool) bool {
	for _, id := range ids {
		if err := m.driver.Stop(ctx, id, immediate, stopGraceTimeout); err != nil {
			m.logger.Error().Err(err).Str("workload", id).Msg("failed to stop workload")
			return false
		}
		m.logger.Info().Str("workload", id).Msg("stopped workload")
	}
	return true
}
