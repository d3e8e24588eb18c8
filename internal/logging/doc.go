// Package logging assembles structured slog loggers and formatting helpers used
// across b2pc.
//
// It owns the configurable console/JSON handlers, per-run log files, log
// retention, and context-aware helpers so pipeline code can tag lines with run
// IDs, operations and items. SinkLogger bridges the pipeline's log stream into
// slog so every line reaches the console and the run log.
package logging
