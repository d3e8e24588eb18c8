package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"b2pc/internal/archive"
	"b2pc/internal/fileutil"
	"b2pc/internal/history"
	"b2pc/internal/logging"
	"b2pc/internal/preflight"
	"b2pc/internal/report"
	"b2pc/internal/services"
	"b2pc/internal/toolrun"
)

// Progress bands of a run.
const (
	discoveryEnd = 30
	processBase  = 30
	processBand  = 50
	cleanupBase  = 80
	cleanupBand  = 20
)

// run is the state of one Session.Run invocation.
type run struct {
	session  *Session
	def      *definition
	req      Request
	codec    string
	reporter *report.Reporter
	runner   *toolrun.Runner
	archiver *archive.Archiver
	logger   *slog.Logger
	summary  *Summary
	dirs     map[string]string
}

// Run executes one operation and returns its summary. Setup failures are
// returned as errors together with a zero summary; item failures only show
// up in the summary. A cancelled ctx stops the run between items, kills the
// running tool and skips cleanup; the summary then has Cancelled set.
func (s *Session) Run(ctx context.Context, req Request) (summary Summary, err error) {
	started := s.now()
	reporter := report.NewReporter(s.logs, s.progress)
	summary = Summary{Operation: req.Operation, Source: req.Source, Dest: req.Dest, StartedAt: started}
	defer func() {
		summary.Elapsed = s.now().Sub(started)
		reporter.Complete("Done", summary.Discovered, summary.Discovered)
	}()

	def, ok := definitions[req.Operation]
	if !ok {
		return summary, services.Wrap(services.ErrInvalidOption, "", "operation",
			fmt.Sprintf("unknown operation %q", req.Operation), nil)
	}
	op := string(req.Operation)

	var codec string
	if req.Operation == CompressSquashFS {
		if codec, err = Compressor(req.CompressionLevel); err != nil {
			reporter.Logf("Error: %v", err)
			return summary, err
		}
	}
	if err := s.registry.Validate(); err != nil {
		reporter.Logf("Error: %v", err)
		return summary, err
	}
	if err := preflight.RequireDirectory(op, "source", req.Source); err != nil {
		reporter.Logf("Error: %v", err)
		return summary, err
	}
	if err := preflight.RequireDirectory(op, "destination", req.Dest); err != nil {
		reporter.Logf("Error: %v", err)
		return summary, err
	}

	release, err := runs.acquire(req.Dest, req.Operation)
	if err != nil {
		reporter.Logf("Error: %v", err)
		return summary, err
	}
	defer release()
	lock, err := acquireLock(req.Dest, req.Operation)
	if err != nil {
		reporter.Logf("Error: %v", err)
		return summary, err
	}
	defer func() { _ = lock.Unlock() }()

	summary.RunID = uuid.NewString()
	ctx = services.WithOperation(services.WithRunID(ctx, summary.RunID), op)
	logger := logging.WithContext(ctx, s.logger)
	logger.Info("run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.String("source", req.Source),
		logging.String("dest", req.Dest),
	)

	r := &run{
		session:  s,
		def:      def,
		req:      req,
		codec:    codec,
		reporter: reporter,
		logger:   logger,
		summary:  &summary,
		dirs:     make(map[string]string, len(def.subdirs)),
	}
	r.runner = s.newRunner(reporter)
	r.archiver = archive.New(r.runner, reporter)

	err = r.execute(ctx)
	summary.Elapsed = s.now().Sub(started)
	r.record(ctx, err)

	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "run_complete"),
		logging.Int("discovered", summary.Discovered),
		logging.Int("converted", summary.Converted),
		logging.Int("skipped", summary.Skipped),
		logging.Int("errors", summary.ErrorCount),
		logging.Bool("cancelled", summary.Cancelled),
		logging.Duration("elapsed", summary.Elapsed),
	}
	if err != nil {
		logger.Error("run failed", logging.Args(append(attrs, logging.Error(err))...)...)
	} else {
		logger.Info("run finished", logging.Args(attrs...)...)
	}
	return summary, err
}

func (r *run) execute(ctx context.Context) error {
	op := string(r.req.Operation)

	// Init
	for _, name := range r.def.subdirs {
		dir := filepath.Join(r.req.Dest, name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			err = services.Wrap(services.ErrInsufficientPermissions, op, "prepare destination", dir, err)
			r.reporter.Logf("Error: %v", err)
			return err
		}
		r.dirs[name] = dir
	}
	r.reporter.Logf("Starting %s", op)
	r.reporter.Logf("Source folder: %s", r.req.Source)
	r.reporter.Logf("Destination folder: %s", r.dir(r.def.subdirs[len(r.def.subdirs)-1]))

	// Discover
	items, err := r.def.discover(ctx, r)
	if err != nil {
		if isCancelled(ctx, err) {
			r.cancelled()
			return nil
		}
		r.reporter.Logf("Error: %v", err)
		return err
	}
	r.summary.Items = items
	r.summary.Discovered = len(items)
	r.reporter.Logf("%d item(s) to process", len(items))
	if len(items) == 0 {
		r.reporter.Logf("Nothing to do: no matching files found in %s", r.req.Source)
		r.summarize()
		return nil
	}

	// PermissionCheck
	for _, name := range r.def.subdirs {
		if err := preflight.RequireWritable(op, r.dir(name)); err != nil {
			r.reporter.Logf("Error: %v", err)
			return err
		}
	}

	// Process
	r.reporter.Progress(report.ProgressEvent{TotalProgress: processBase, Stage: r.def.stage, TotalItems: len(items)})
	for i, it := range items {
		if ctx.Err() != nil {
			break
		}
		r.processItem(ctx, i, len(items), it)
		r.summary.record(it)
	}

	// Summarize
	if ctx.Err() != nil {
		r.cancelled()
		r.summarize()
		return nil
	}
	r.summarize()

	// CleanupPrompt
	r.reporter.Log("Waiting for cleanup confirmation...")
	ok, timedOut, err := confirmWithin(ctx, r.session.confirmer, r.req.Operation, r.session.cleanupTimeout)
	switch {
	case ctx.Err() != nil:
		r.cancelled()
		return nil
	case err != nil:
		r.reporter.Logf("Cleanup confirmation failed: %v; source files kept", err)
		return nil
	case timedOut:
		r.reporter.Log("No cleanup answer before timeout; source files kept")
		return nil
	case !ok:
		r.reporter.Log("Cleanup declined; source files kept")
		return nil
	}

	// Cleanup
	r.cleanup(ctx)
	return nil
}

func (r *run) processItem(ctx context.Context, index, total int, it *Item) {
	name := it.Name()
	r.reporter.SetItem(name)
	defer r.reporter.SetItem("")

	w := toolrun.Window{Base: processBase, Band: processBand, Index: index, Total: total, Stage: r.def.stage}
	r.tick(w, 0)
	defer r.tick(w, 100)

	if r.def.exists(it) {
		it.Status = StatusSkipped
		r.reporter.Logf("%s already exists, skipped", filepath.Base(it.Output()))
		return
	}
	for _, stale := range append(append([]string(nil), it.Outputs...), it.scratch...) {
		if fileutil.Exists(stale) {
			r.reporter.Logf("Removing incomplete output %s", filepath.Base(stale))
			fileutil.RemoveAll(stale)
		}
	}

	it.Status = StatusRunning
	r.reporter.Logf("%s: %s (%d/%d)", r.def.stage, name, index+1, total)
	itemCtx := services.WithItem(ctx, name)
	err := r.def.process(itemCtx, r, it, w)
	if err == nil {
		err = r.def.validate(r, it)
	}
	if err == nil {
		it.Status = StatusSucceeded
		r.reporter.Logf("Done: %s -> %s", name, filepath.Base(it.Output()))
		return
	}

	if ctx.Err() != nil && !errors.Is(err, services.ErrCancelled) {
		err = services.Wrap(services.ErrCancelled, string(r.req.Operation), "process", name, ctx.Err())
	}
	it.Status = StatusFailed
	it.Err = err
	for _, rmErr := range fileutil.RemoveAll(append(append([]string(nil), it.Outputs...), it.scratch...)...) {
		r.reporter.Logf("Could not remove partial output: %v", rmErr)
	}
	r.reporter.Logf("Failed: %s: %v", name, err)
	logging.WithContext(itemCtx, r.logger).Warn("item failed",
		logging.String(logging.FieldEventType, "item_failed"),
		logging.String("kind", it.FailureKind()),
		logging.Error(err),
	)
}

func (r *run) tick(w toolrun.Window, percent float64) {
	r.reporter.Progress(report.ProgressEvent{
		TotalProgress:       report.Scale(w.Base, w.Band, w.Index, w.Total, percent),
		CurrentFileProgress: percent,
		Stage:               w.Stage,
		CurrentItem:         w.Index + 1,
		TotalItems:          w.Total,
	})
}

func (r *run) summarize() {
	r.reporter.Log("Summary:")
	for _, c := range r.summary.Counters() {
		r.reporter.Logf("- %s: %d", CounterLabel(c.Key), c.Value)
	}
	if r.summary.ArchiveErrors > 0 {
		r.reporter.Logf("- %s: %d", CounterLabel("archiveErrors"), r.summary.ArchiveErrors)
	}
	r.reporter.Logf("- Elapsed: %s", r.session.now().Sub(r.summary.StartedAt).Round(100*time.Millisecond))
}

func (r *run) cleanup(ctx context.Context) {
	r.reporter.Progress(report.ProgressEvent{TotalProgress: cleanupBase, Stage: "Cleaning up"})
	targets, err := r.def.cleanupTargets(r)
	if err != nil {
		r.reporter.Logf("Cleanup skipped: %v", err)
		return
	}
	r.reporter.Logf("Removing %d source path(s)", len(targets))
	removed := 0
	for i, path := range targets {
		if ctx.Err() != nil {
			r.cancelled()
			return
		}
		if errs := fileutil.RemoveAll(path); len(errs) > 0 {
			r.reporter.Logf("Could not remove %s: %v", path, errs[0])
		} else {
			removed++
		}
		r.reporter.Progress(report.ProgressEvent{
			TotalProgress:       report.Scale(cleanupBase, cleanupBand, i, len(targets), 100),
			CurrentFileProgress: 100,
			Stage:               "Cleaning up",
			CurrentItem:         i + 1,
			TotalItems:          len(targets),
		})
	}
	if r.def.afterCleanup != nil {
		r.def.afterCleanup(r)
	}
	r.summary.CleanedUp = true
	r.reporter.Logf("Cleanup complete: %d path(s) removed", removed)
}

func (r *run) cancelled() {
	if r.summary.Cancelled {
		return
	}
	r.summary.Cancelled = true
	r.reporter.Log("Run cancelled; remaining items were not started and cleanup was skipped")
}

func (r *run) record(ctx context.Context, runErr error) {
	if r.session.history == nil {
		return
	}
	s := r.summary
	entry := history.Run{
		ID:         s.RunID,
		Operation:  string(s.Operation),
		SourceDir:  s.Source,
		DestDir:    s.Dest,
		StartedAt:  s.StartedAt,
		FinishedAt: s.StartedAt.Add(s.Elapsed),
		Discovered: s.Discovered,
		Converted:  s.Converted,
		Skipped:    s.Skipped,
		Failed:     s.Failed,
		Optimized:  s.Optimized,
		ErrorCount: s.ErrorCount,
		Cancelled:  s.Cancelled,
		CleanedUp:  s.CleanedUp,
	}
	if runErr != nil {
		entry.ErrorMessage = runErr.Error()
	}
	for _, it := range s.Items {
		out := ""
		if it.Status == StatusSucceeded || it.Status == StatusSkipped {
			out = it.Output()
		}
		entry.Items = append(entry.Items, history.Item{
			SourcePath:    it.Source,
			OutputPath:    out,
			Status:        string(it.Status),
			FailureKind:   it.FailureKind(),
			FailureReason: it.Reason(),
		})
	}
	if err := r.session.history.Record(context.WithoutCancel(ctx), entry); err != nil {
		logging.WarnWithContext(r.logger, "run history not recorded", "history_record_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "run missing from b2pc history"),
		)
	}
}

// dir returns the absolute path of a destination subfolder.
func (r *run) dir(name string) string {
	if dir, ok := r.dirs[name]; ok {
		return dir
	}
	return filepath.Join(r.req.Dest, name)
}

// excluded returns the destination and its subfolders, which discovery and
// cleanup never descend into. Walk never skips its own root, so a destination
// equal to the source still only hides the subfolders.
func (r *run) excluded() []string {
	out := make([]string, 0, len(r.def.subdirs)+1)
	out = append(out, r.req.Dest)
	for _, name := range r.def.subdirs {
		out = append(out, r.dir(name))
	}
	return out
}

func isCancelled(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, services.ErrCancelled)
}

// CounterLabel turns a counter key such as "convertedGames" into "Converted Games".
func CounterLabel(key string) string {
	var b strings.Builder
	for i, r := range key {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return cases.Title(language.English).String(b.String())
}
