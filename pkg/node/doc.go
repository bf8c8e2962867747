/*
Package node assembles one controller process from its parts.

A Node wires the workload driver, health monitor, failover coordinator,
heartbeat engine, primary health loop, and control-plane server together
from the cluster configuration, and manages their start/stop lifecycle.
The cmd layer and the two-node e2e tests both build processes through
this package, so the wiring under test is the wiring that ships.

Startup order matters: the control plane binds first so the peer can
reach this node during its own startup, then the initial role transition
runs (resuming the persisted role after a restart), then the background
loops begin.
*/
package node
