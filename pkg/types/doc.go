/*
Package types defines the core data structures shared across Tandem.

It holds the role enumeration for the active/passive pair, observed
workload states, and the transition records persisted to the journal.
Types here are dependency-free and serializable so every other package
can use them without import cycles.
*/
package types
