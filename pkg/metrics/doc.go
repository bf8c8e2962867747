/*
Package metrics defines the Prometheus collectors exported by Tandem.

Collectors are package-level and registered in init(), so importing any
package that records metrics is enough to expose them. The control-plane
server serves them at GET /metrics.
*/
package metrics
