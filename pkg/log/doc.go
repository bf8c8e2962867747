/*
Package log provides structured logging for Tandem using zerolog.

The package wraps zerolog behind a global logger initialized once at
process start, plus child-logger helpers that attach the fields used
throughout the codebase (component, node, workload). Console output is
the default for interactive use; JSON output is available for log
shippers.

Usage:

	log.Init(log.Config{Level: log.InfoLevel})
	logger := log.WithComponent("heartbeat")
	logger.Warn().Dur("stale", d).Msg("heartbeat overdue")
*/
package log
