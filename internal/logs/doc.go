// Package logs finds the per-run log files written under the log directory
// and reads them tail-style for `b2pc logs`.
//
// Run logs are named <operation>-<UTC timestamp>.log. Reads use bounded
// memory: Last keeps only the requested number of lines and Follow polls
// from a byte offset until its context ends.
package logs
