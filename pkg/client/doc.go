/*
Package client is the HTTP client for the peer node's control plane.

It speaks the two-message wire contract: POST /heartbeat and
POST /become_primary, both carrying {"server": <sender-name>}. Requests
carry a hard timeout so a hung peer cannot wedge the loops that call it.
*/
package client
