/*
Package failover implements the role state machine at the heart of
Tandem.

The Coordinator holds the node's role and the failover lock. Every path
that can flip the role (a backup timing out on heartbeats, a primary
confirming a workload failure, a peer request on the control plane)
funnels through that one mutex, so a node runs at most one transition
sequence at a time. Role reads are lock-free; writes happen only inside
the critical section.

Transition sequences:

	InitiateFailover      backup  → primary   (heartbeat timeout)
	HandleWorkloadFailure primary → backup    (stop, notify peer, step down)
	HandleBecomePrimary   any     → primary   (peer request, idempotent)

HandleWorkloadFailure is deliberately conservative: if stopping the
workloads or notifying the peer fails, the node stays primary rather
than guessing, even though that can leave workloads partially stopped.
An operator resolves that state; the controller never trades a known
primary for a possible none.

The HealthLoop drives the primary-side path: each cycle it walks the
owned workloads, escalates a stopped observation through the monitor's
verification, and on a confirmed failure runs one handoff for the whole
node.

Known limitation: nothing beyond heartbeat timing prevents both nodes
from believing they are primary at once. The two-node design has no
quorum or fencing; the journal records every transition so a split
brain is at least diagnosable after the fact.
*/
package failover
