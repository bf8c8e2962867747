/*
Package heartbeat implements the liveness protocol between the two
nodes.

The primary's sender loop posts a heartbeat to the peer on a fixed
interval; the backup's checker loop compares the age of the last
received heartbeat against the timeout and initiates a failover when it
is exceeded. Both loops run continuously and gate on the current role,
so the pair swaps duties automatically after a failover.

The checker deliberately does nothing until the first heartbeat arrives.
Without that rule, a backup started before its primary would take over
immediately and both nodes would come up primary.
*/
package heartbeat
