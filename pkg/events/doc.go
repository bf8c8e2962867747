/*
Package events provides an in-process publish/subscribe broker for
controller events: role transitions, failover progress, and workload
state changes.

Subscribers receive events on buffered channels; a slow subscriber drops
events rather than blocking the broker. The journal writer and the log
tap are the built-in consumers.
*/
package events
