/*
Package storage persists controller state with BoltDB.

Two buckets: "state" holds the last role this node held, used at startup
to resume the previous role after a restart; "journal" holds one record
per role-transition attempt, keyed by timestamp so the history reads in
order. The journal is the operator's forensic trail for failovers,
including attempts that failed partway.
*/
package storage
