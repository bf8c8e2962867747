package node

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
	"github.com/tandem-ha/tandem/pkg/api"
	"github.com/tandem-ha/tandem/pkg/client"
	"github.com/tandem-ha/tandem/pkg/config"
	"github.com/tandem-ha/tandem/pkg/events"
	"github.com/tandem-ha/tandem/pkg/failover"
	"github.com/tandem-ha/tandem/pkg/heartbeat"
	"github.com/tandem-ha/tandem/pkg/log"
	"github.com/tandem-ha/tandem/pkg/monitor"
	"github.com/tandem-ha/tandem/pkg/runtime"
	"github.com/tandem-ha/tandem/pkg/storage"
	"github.com/tandem-ha/tandem/pkg/types"
)

// Options configures a Node beyond what the cluster config provides
type Options struct {
	// Config is the full cluster configuration
	Config *config.Config

	// Name selects this process's node section from the config
	Name string

	// Driver overrides the workload driver; when nil a containerd
	// driver is created from the configured socket.
	Driver runtime.Driver

	// RoleOverride forces the initial role, bypassing both the
	// persisted role and the configured one.
	RoleOverride types.Role

	// DisableStore skips opening the on-disk journal, for tests
	DisableStore bool

	// PeerURL overrides the configured peer URL, for tests that bind
	// ephemeral ports.
	PeerURL string
}

// Node assembles and runs every component of one controller process:
// workload driver, monitor, coordinator, heartbeat engine, primary
// health loop, and the control-plane server.
type Node struct {
	name    string
	cfg     *config.Config
	nodeCfg *config.Node

	driver     runtime.Driver
	ownsDriver bool
	store      *storage.Store
	broker     *events.Broker
	monitor    *monitor.Monitor
	coord      *failover.Coordinator
	engine     *heartbeat.Engine
	health     *failover.HealthLoop
	server     *api.Server

	listener  net.Listener
	initRole  types.Role
	tap       events.Subscriber
	serverErr chan error
	logger    zerolog.Logger
}

// New builds a Node from options. Nothing is started yet.
func New(opts Options) (*Node, error) {
	nodeCfg, err := opts.Config.Node(opts.Name)
	if err != nil {
		return nil, err
	}

	n := &Node{
		name:    opts.Name,
		cfg:     opts.Config,
		nodeCfg: nodeCfg,
		logger:  log.WithNode(opts.Name),
	}

	n.driver = opts.Driver
	if n.driver == nil {
		d, err := runtime.NewContainerdDriver(opts.Config.ContainerdSock)
		if err != nil {
			return nil, fmt.Errorf("failed to create workload driver: %w", err)
		}
		n.driver = d
		n.ownsDriver = true
	}

	if !opts.DisableStore {
		store, err := storage.Open(opts.Config.DataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open state store: %w", err)
		}
		n.store = store
	}

	peerURL := nodeCfg.PeerURL
	if opts.PeerURL != "" {
		peerURL = opts.PeerURL
	}
	// Become-primary requests block on the peer's workload startup, so
	// their deadline covers the start timeout with margin.
	peer := client.NewPeer(peerURL, n.name, opts.Config.Timings.StartTimeout.Std()+30*time.Second)

	n.broker = events.NewBroker()
	n.monitor = monitor.New(n.driver, opts.Config.Timings, n.broker)
	n.coord = failover.NewCoordinator(n.name, nodeCfg.Workloads, n.monitor, peer, n.broker, n.store)
	n.engine = heartbeat.NewEngine(n.coord, peer, opts.Config.Timings, n.broker)
	n.health = failover.NewHealthLoop(n.coord, n.monitor, opts.Config.Timings.HealthCheckInterval.Std())
	n.server = api.NewServer(nodeCfg.Listen, n.coord, n.engine, opts.Config.Timings)

	n.initRole = n.resolveInitialRole(opts.RoleOverride)
	return n, nil
}

// resolveInitialRole picks the role to start with: an explicit override
// wins, then the role persisted before the last shutdown, then the
// configured initial role.
func (n *Node) resolveInitialRole(override types.Role) types.Role {
	if override.Valid() {
		return override
	}
	if n.store != nil {
		if last, err := n.store.LastRole(); err == nil && last.Valid() {
			n.logger.Info().Str("role", string(last)).Msg("resuming persisted role")
			return last
		}
	}
	return n.nodeCfg.InitialRole
}

// Start brings the node up: control plane first so the peer can reach
// us, then the initial role transition, then the background loops.
// Returns once everything is running.
func (n *Node) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", n.nodeCfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", n.nodeCfg.Listen, err)
	}
	n.listener = ln

	n.broker.Start()
	n.tap = n.broker.Subscribe()
	go n.logEvents()

	n.serverErr = make(chan error, 1)
	go func() {
		n.serverErr <- n.server.Serve(ln)
	}()

	if !n.coord.SetInitialRole(ctx, n.initRole) {
		// Partial workload startup: stay up, the health loop and the
		// peer can still drive recovery.
		n.logger.Error().Msg("initial role transition did not bring all workloads up")
	}

	n.engine.Start()
	n.health.Start()

	n.logger.Info().
		Str("role", string(n.coord.Role())).
		Str("addr", ln.Addr().String()).
		Msg("node started")
	return nil
}

// Wait blocks until the control-plane server exits
func (n *Node) Wait() error {
	return <-n.serverErr
}

// Stop shuts everything down in reverse order of startup
func (n *Node) Stop(ctx context.Context) {
	n.health.Stop()
	n.engine.Stop()

	if err := n.server.Stop(ctx); err != nil {
		n.logger.Error().Err(err).Msg("control plane shutdown error")
	}

	n.broker.Unsubscribe(n.tap)
	n.broker.Stop()

	if n.store != nil {
		if err := n.store.Close(); err != nil {
			n.logger.Error().Err(err).Msg("state store close error")
		}
	}
	if n.ownsDriver {
		if closer, ok := n.driver.(*runtime.ContainerdDriver); ok {
			if err := closer.Close(); err != nil {
				n.logger.Error().Err(err).Msg("driver close error")
			}
		}
	}

	n.logger.Info().Msg("node stopped")
}

// Role returns the node's current role
func (n *Node) Role() types.Role {
	return n.coord.Role()
}

// Addr returns the control plane's bound address
func (n *Node) Addr() string {
	if n.listener == nil {
		return n.nodeCfg.Listen
	}
	return n.listener.Addr().String()
}

// Engine exposes the heartbeat engine, mainly for tests
func (n *Node) Engine() *heartbeat.Engine {
	return n.engine
}

// logEvents is the built-in broker consumer: every controller event
// lands in the log with its metadata.
func (n *Node) logEvents() {
	for ev := range n.tap {
		entry := n.logger.Info().Str("event", string(ev.Type))
		for k, v := range ev.Metadata {
			entry = entry.Str(k, v)
		}
		entry.Msg(ev.Message)
	}
}
