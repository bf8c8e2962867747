package heartbeat

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/tandem-ha/tandem/pkg/client"
	"github.com/tandem-ha/tandem/pkg/config"
	"github.com/tandem-ha/tandem/pkg/events"
	"github.com/tandem-ha/tandem/pkg/failover"
	"github.com/tandem-ha/tandem/pkg/log"
	"github.com/tandem-ha/tandem/pkg/metrics"
	"github.com/tandem-ha/tandem/pkg/types"
)

// Engine runs the two heartbeat loops. Both run for the life of the
// process regardless of role and gate on the role every iteration, so
// no loop needs restarting when a failover flips the roles.
//
//   - The sender posts a heartbeat to the peer every send interval while
//     this node is primary.
//   - The checker watches for staleness every check interval while this
//     node is backup, and initiates a failover once the last received
//     heartbeat is older than the timeout.
type Engine struct {
	coord  *failover.Coordinator
	peer   *client.Peer
	broker *events.Broker

	sendInterval  time.Duration
	checkInterval time.Duration
	timeout       time.Duration

	// lastReceived is the UnixNano of the most recent heartbeat from the
	// peer; zero means none has ever arrived. Written by the control
	// plane handler, read by the checker loop.
	lastReceived atomic.Int64

	stopCh     chan struct{}
	senderDone chan struct{}
	checkDone  chan struct{}
	logger     zerolog.Logger
}

// NewEngine creates a heartbeat engine. The broker may be nil.
func NewEngine(coord *failover.Coordinator, peer *client.Peer, timings config.Timings, broker *events.Broker) *Engine {
	return &Engine{
		coord:         coord,
		peer:          peer,
		broker:        broker,
		sendInterval:  timings.HeartbeatInterval.Std(),
		checkInterval: timings.CheckHeartbeatInterval.Std(),
		timeout:       timings.HeartbeatTimeout.Std(),
		stopCh:        make(chan struct{}),
		senderDone:    make(chan struct{}),
		checkDone:     make(chan struct{}),
		logger:        log.WithComponent("heartbeat"),
	}
}

// Start launches the sender and checker loops
func (e *Engine) Start() {
	go e.senderLoop()
	go e.checkLoop()
}

// Stop signals both loops and waits for their current iterations
func (e *Engine) Stop() {
	close(e.stopCh)
	<-e.senderDone
	<-e.checkDone
}

// RecordHeartbeat notes that a heartbeat arrived from the peer. Called
// by the control-plane handler.
func (e *Engine) RecordHeartbeat() {
	e.lastReceived.Store(time.Now().UnixNano())
	metrics.HeartbeatsReceivedTotal.Inc()
}

// LastReceived returns when the most recent peer heartbeat arrived; the
// zero time means none ever has.
func (e *Engine) LastReceived() time.Time {
	n := e.lastReceived.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func (e *Engine) senderLoop() {
	defer close(e.senderDone)

	ticker := time.NewTicker(e.sendInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if e.coord.Role() != types.RolePrimary {
				continue
			}
			if err := e.peer.SendHeartbeat(context.Background()); err != nil {
				e.logger.Error().Err(err).Msg("failed to send heartbeat")
				metrics.HeartbeatsSentTotal.WithLabelValues("failure").Inc()
			} else {
				e.logger.Debug().Msg("heartbeat sent to peer")
				metrics.HeartbeatsSentTotal.WithLabelValues("success").Inc()
			}
		case <-e.stopCh:
			return
		}
	}
}

func (e *Engine) checkLoop() {
	defer close(e.checkDone)

	ticker := time.NewTicker(e.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.checkStaleness()
		case <-e.stopCh:
			return
		}
	}
}

// checkStaleness performs one staleness evaluation. Nothing happens
// until at least one heartbeat has arrived: a backup that has never
// heard from its peer must not take over on startup races.
func (e *Engine) checkStaleness() {
	if e.coord.Role() != types.RoleBackup {
		return
	}

	last := e.LastReceived()
	if last.IsZero() {
		return
	}

	stale := time.Since(last)
	metrics.HeartbeatStaleness.Set(stale.Seconds())
	if stale <= e.timeout {
		return
	}

	e.logger.Warn().
		Dur("stale", stale).
		Dur("timeout", e.timeout).
		Msg("no heartbeat from primary for too long")
	if e.broker != nil {
		e.broker.Publish(events.New(events.EventHeartbeatTimeout, "peer heartbeat overdue", map[string]string{
			"stale": stale.String(),
		}))
	}

	e.coord.InitiateFailover(context.Background())
}
