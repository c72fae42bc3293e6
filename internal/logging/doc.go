// Package logging provides structured logging for bootl-analyze.
//
// This package wraps zap logger with convenience functions for common logging
// patterns used throughout the analysis. Logging is silent unless a level is
// given with --verbose or the BOOTL_LOG_LEVEL environment variable, so
// reports written to stdout are never interleaved with log output; logs go to
// stderr.
//
// # Log Levels
//
// The package supports standard log levels:
//   - Debug: Per-query enumeration counts, derived constraints, skipped branches
//   - Info: Paths with their cycle bounds, solver outcomes
//   - Warn: Callees without paths, bounds that could not be computed
//   - Error: Fatal issues (unreadable graph files, invalid queries)
//
// # Structured Logging
//
// All log functions use structured fields for queryability:
//
//	logging.Info("Loaded graphs",
//	    zap.String("file", "checksum.yaml"),
//	    zap.Int("functions", db.Len()),
//	)
//
// # Specialized Logging
//
// Path Logging:
//
//	logging.LogPath(0x1aa8, []uint64{0x1aa8, 0x1aae, 0x1ab4}, 89, 89)
//
// Constraint Logging:
//
//	logging.LogConstraint(0x1aac, "[HL+00h] == 0x0", true)
//	logging.LogSolution(0, 0, true, "[HL+00h]=0x0 [HL+01h]=0x0")
//
// Components that take a *zap.Logger (path.Analyzer, constraint.Deriver)
// default to GetLogger().
//
// # Configuration
//
// Initialize logging at startup:
//
//	if err := logging.Initialize(level); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// # Thread Safety
//
// All logging functions are safe for concurrent use. The underlying zap logger
// handles synchronization automatically.
package logging
