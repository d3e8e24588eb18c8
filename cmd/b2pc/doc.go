// Package main hosts the b2pc CLI entrypoint and command graph.
//
// Every pipeline operation is exposed as its own subcommand taking a source
// and destination folder. The CLI owns the parts of a run that face the
// terminal: the progress bar or sampled progress lines, the cleanup prompt,
// per-run log files, run history and push notifications. The conversion work
// itself lives in internal/pipeline.
package main
