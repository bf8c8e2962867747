/*
Package monitor implements workload health verification for the
failover core.

The Monitor separates "observed down" from "confirmed failed". A status
check that finds a workload stopped only opens a grace window; the
failure is confirmed when three conditions line up: the startup grace
period after becoming primary has passed, the workload has been down
longer than the restart grace period, and a series of consecutive
re-polls all still see it stopped. This debounces container restarts and
short crash loops from sustained outages that warrant a failover.

The down-since tracker is owned by this package. The status-check path
is the single logical writer; readers tolerate transiently stale values,
which is acceptable at the seconds timescale the protocol operates on.
*/
package monitor
