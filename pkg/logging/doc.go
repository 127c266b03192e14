// Package logging provides structured logging for studioprov with unified
// log handling and level filtering.
//
// The package is built on Go's standard slog package. All log entries carry a
// subsystem identifier so that output from the reconcilers, the ingest
// server, and the spool watcher can be filtered independently.
//
// Usage:
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//	logging.Info("DomainReconciler", "Creating domain %s", name)
//	logging.Error("Spool", err, "Failed to read event file %s", path)
package logging
