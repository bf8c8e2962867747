/*
Package runtime provides the workload driver used by the failover core.

The Driver interface covers exactly the operations the controller needs:
resolve a named workload, observe whether it is running, and start or
stop it. ContainerdDriver implements it against a local containerd
daemon; FakeDriver is an in-memory implementation for tests.

The controller assumes workloads are pre-provisioned containers with
stable names shared by both nodes. ContainerdDriver.Create exists to
seed a fresh host with those containers; the failover core itself never
creates or deletes anything.

Stop semantics mirror the container engine's: a graceful stop sends
SIGTERM and escalates to SIGKILL after the grace timeout, an immediate
stop kills straight away (the failover path uses immediate stops so a
handover is not delayed by slow shutdown hooks).
*/
package runtime
