// Package logging provides the subsystem-tagged structured logger used
// throughout mcpgate.
//
// It is a thin layer over log/slog. Every entry carries a "subsystem"
// attribute identifying the component that produced it (for example
// "Target", "Proxy", "Session", "OAuth"), so output can be filtered per
// component without threading loggers through constructors.
//
// # Log Levels
//   - Debug: per-request detail (fan-out skips, routing-table rebuilds)
//   - Info: lifecycle events (target connected, session created)
//   - Warn: degraded operation (target skipped during a list)
//   - Error: failures that surface to an operator
//
// # Usage
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//	logging.Info("Proxy", "Target %s registered with status %s", name, status)
//	logging.Error("Session", err, "Failed to serve session %s", id)
//
// Security-relevant events (credential writes and deletes, permission
// violations) go through Audit, which tags them with the SECURITY_AUDIT
// subsystem. Never pass token material to Audit.
package logging
