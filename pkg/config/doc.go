/*
Package config loads and validates the Tandem cluster configuration.

A single YAML file describes both members of the active/passive pair and
the timing parameters of the failover protocol. Each process loads the
same file and selects its own node section by name, so the two sides
always agree on workload sets and timings.

Validation enforces the two-node shape: exactly two uniquely named nodes,
exactly one initial primary, a non-empty workload list per node, and a
heartbeat timeout larger than the send interval.
*/
package config
