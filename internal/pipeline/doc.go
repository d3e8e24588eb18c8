// Package pipeline runs one batch conversion over a source directory.
//
// A Session is built once per process from the tool registry and the three
// collaborator ports: a report.LogSink, a report.ProgressSink and a
// Confirmer for the end-of-run cleanup question. Session.Run executes one of
// the fixed operations through the same state machine:
//
//	Init -> Discover -> PermissionCheck -> Process -> Summarize -> CleanupPrompt -> Cleanup -> Done
//
// Setup failures (missing tool, bad option, unwritable destination, another
// run holding the destination) abort the run and are returned as errors.
// Item failures are recorded on the item, counted in the summary and never
// stop the loop. Progress runs from 0 to 30 during discovery, 30 to 80 while
// items are processed and 80 to 100 during cleanup; the final 100 event is
// emitted on every exit path.
package pipeline
