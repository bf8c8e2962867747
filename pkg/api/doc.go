/*
Package api serves the control plane each node exposes to its peer.

Two endpoints make up the wire contract:

	POST /heartbeat       {"server": <sender>}  records the heartbeat
	POST /become_primary  {"server": <sender>}  runs the primary transition

Both reject a missing sender name with 400 and otherwise reply with a
JSON message. /become_primary answers 500 when the transition does not
bring every workload up. GET /metrics serves Prometheus collectors.

There is no authentication beyond the sender field; the control plane
is expected to live on a trusted link between the two nodes.
*/
package api
