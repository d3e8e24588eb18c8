// Package toolrun launches one external converter at a time and turns its
// output into log lines, progress ticks and a pass/fail verdict.
//
// Progress parsing is table driven: each tool registers a ParseFunc and any
// critical markers with Parsers, so new tools never touch the Runner. The
// Runner enforces the per-invocation timeout by killing the process, and maps
// outcomes onto the services error markers (ToolTimeout, IncompatibleInput,
// ExternalToolError, Cancelled).
package toolrun
