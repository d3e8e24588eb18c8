// Package history records finished pipeline runs in SQLite.
//
// Each run row carries the operation, the source and destination, the
// counters of the run summary and whether it was cancelled. Item rows keep
// the per-file outcome including the failure kind, so `b2pc history` can
// show what went wrong after the terminal output is gone.
package history
