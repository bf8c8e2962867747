package failover

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/tandem-ha/tandem/pkg/log"
	"github.com/tandem-ha/tandem/pkg/monitor"
	"github.com/tandem-ha/tandem/pkg/types"
)

// HealthLoop periodically verifies the owned workloads while the node is
// primary. It runs regardless of role and gates on the role each cycle,
// so a node that becomes primary later is covered without restarting
// anything.
type HealthLoop struct {
	coord    *Coordinator
	monitor  *monitor.Monitor
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	logger   zerolog.Logger
}

// NewHealthLoop creates the primary-side health loop
func NewHealthLoop(coord *Coordinator, mon *monitor.Monitor, interval time.Duration) *HealthLoop {
	return &HealthLoop{
		coord:    coord,
		monitor:  mon,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		logger:   log.WithComponent("healthloop"),
	}
}

// Start begins the health loop
func (h *HealthLoop) Start() {
	go h.run()
}

// Stop stops the loop and waits for the current cycle to finish
func (h *HealthLoop) Stop() {
	close(h.stopCh)
	<-h.doneCh
}

func (h *HealthLoop) run() {
	defer close(h.doneCh)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.cycle()
		case <-h.stopCh:
			return
		}
	}
}

// cycle performs one pass over the owned workloads. A single confirmed
// failure triggers one failover attempt for the whole node and ends the
// cycle; remaining workloads are not re-checked until the next tick.
func (h *HealthLoop) cycle() {
	if h.coord.Role() != types.RolePrimary {
		return
	}
	if h.monitor.InStartupGrace() {
		h.logger.Debug().Msg("in startup grace period, skipping cycle")
		return
	}

	ctx := context.Background()
	for _, id := range h.coord.Workloads() {
		if !h.monitor.ShouldCheck(ctx, id) {
			continue
		}
		if h.monitor.IsRunning(ctx, id) {
			continue
		}

		h.logger.Warn().Str("workload", id).Msg("workload appears to be down, verifying")
		if h.monitor.VerifyHealth(ctx, id) {
			continue
		}

		h.logger.Warn().Str("workload", id).Msg("workload confirmed down")
		h.coord.HandleWorkloadFailure(ctx, id)
		return
	}
}
