package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"b2pc/internal/pipeline"
	"b2pc/internal/report"
	"b2pc/internal/services"
	"b2pc/internal/testsupport"
	"b2pc/internal/tools"
)

type harness struct {
	toolsDir string
	source   string
	dest     string
	rec      *report.Recorder
	session  *pipeline.Session
}

func newHarness(t *testing.T, opts ...pipeline.Option) *harness {
	t.Helper()
	base := t.TempDir()
	h := &harness{
		toolsDir: filepath.Join(base, "tools"),
		source:   filepath.Join(base, "src"),
		dest:     filepath.Join(base, "dest"),
		rec:      report.NewRecorder(0),
	}
	for _, dir := range []string{h.source, h.dest} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	reg := testsupport.StubTools(t, h.toolsDir)
	all := append([]pipeline.Option{
		pipeline.WithLogSink(h.rec),
		pipeline.WithProgressSink(h.rec),
	}, opts...)
	h.session = pipeline.NewSession(reg, all...)
	return h
}

func (h *harness) run(t *testing.T, op pipeline.Operation) pipeline.Summary {
	t.Helper()
	summary, err := h.session.Run(context.Background(), pipeline.Request{Operation: op, Source: h.source, Dest: h.dest})
	if err != nil {
		t.Fatalf("Run(%s): %v", op, err)
	}
	return summary
}

func (h *harness) logged(substr string) bool {
	for _, msg := range h.rec.Messages() {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}

func assertCounter(t *testing.T, s pipeline.Summary, key string, want int) {
	t.Helper()
	if got := s.Counter(key); got != want {
		t.Fatalf("%s = %d, want %d (counters %+v)", key, got, want, s.Counters())
	}
}

// assertConserved checks that every discovered item ended succeeded, skipped
// or failed, and that the summary counts agree with the item states.
func assertConserved(t *testing.T, s pipeline.Summary) {
	t.Helper()
	counts := map[pipeline.Status]int{}
	for _, it := range s.Items {
		counts[it.Status]++
	}
	done := counts[pipeline.StatusSucceeded] + counts[pipeline.StatusSkipped] + counts[pipeline.StatusFailed]
	if done != s.Discovered || len(s.Items) != s.Discovered {
		t.Fatalf("items not conserved: discovered=%d states=%v", s.Discovered, counts)
	}
	if s.Converted != counts[pipeline.StatusSucceeded] || s.Skipped != counts[pipeline.StatusSkipped] || s.Failed != counts[pipeline.StatusFailed] {
		t.Fatalf("summary %d/%d/%d disagrees with item states %v", s.Converted, s.Skipped, s.Failed, counts)
	}
}

func assertMonotonic(t *testing.T, rec *report.Recorder) {
	t.Helper()
	events := rec.ProgressEvents()
	if len(events) == 0 {
		t.Fatal("expected progress events")
	}
	last := -1.0
	for i, evt := range events {
		if evt.TotalProgress < last {
			t.Fatalf("progress went backwards at event %d: %.1f after %.1f", i, evt.TotalProgress, last)
		}
		last = evt.TotalProgress
	}
	if last != 100 {
		t.Fatalf("final progress = %.1f, want 100", last)
	}
}

func TestConvertToCHDConvertsCueAndISO(t *testing.T) {
	h := newHarness(t)
	testsupport.WriteText(t, filepath.Join(h.source, "game1.cue"), "FILE \"game1.bin\" BINARY\n  TRACK 01 MODE1/2352\n    INDEX 01 00:00:00\n")
	testsupport.WriteFile(t, filepath.Join(h.source, "game1.bin"), 128)
	testsupport.WriteFile(t, filepath.Join(h.source, "game2.iso"), 128)

	summary := h.run(t, pipeline.ConvertToCHD)

	assertCounter(t, summary, "convertedGames", 2)
	assertCounter(t, summary, "skippedGames", 0)
	assertCounter(t, summary, "errorCount", 0)
	for _, name := range []string{"game1.chd", "game2.chd"} {
		if !testsupport.Exists(t, filepath.Join(h.dest, "CHD", name)) {
			t.Fatalf("expected %s in CHD folder", name)
		}
	}
	if summary.RunID == "" {
		t.Fatal("expected run id")
	}
	assertConserved(t, summary)
	assertMonotonic(t, h.rec)
}

func TestRerunSkipsExistingOutputs(t *testing.T) {
	h := newHarness(t)
	testsupport.WriteFile(t, filepath.Join(h.source, "game.iso"), 64)

	first := h.run(t, pipeline.ConvertToCHD)
	assertCounter(t, first, "convertedGames", 1)
	out := filepath.Join(h.dest, "CHD", "game.chd")
	info, err := os.Stat(out)
	if err != nil {
		t.Fatalf("stat output: %v", err)
	}

	second := h.run(t, pipeline.ConvertToCHD)
	assertCounter(t, second, "convertedGames", 0)
	assertCounter(t, second, "skippedGames", 1)
	assertCounter(t, second, "errorCount", 0)
	assertConserved(t, second)
	again, err := os.Stat(out)
	if err != nil {
		t.Fatalf("stat output: %v", err)
	}
	if !again.ModTime().Equal(info.ModTime()) {
		t.Fatal("existing output was rewritten")
	}
}

func TestFailedItemsLeaveNoPartialOutput(t *testing.T) {
	h := newHarness(t)
	testsupport.WriteFile(t, filepath.Join(h.source, "empty.iso"), 64)
	testsupport.WriteFile(t, filepath.Join(h.source, "fail.iso"), 64)
	testsupport.WriteFile(t, filepath.Join(h.source, "good.iso"), 64)

	summary := h.run(t, pipeline.ConvertToCHD)

	assertCounter(t, summary, "convertedGames", 1)
	assertCounter(t, summary, "errorCount", 2)
	for _, name := range []string{"empty.chd", "fail.chd"} {
		if testsupport.Exists(t, filepath.Join(h.dest, "CHD", name)) {
			t.Fatalf("partial output %s left behind", name)
		}
	}
	kinds := map[string]string{}
	for _, it := range summary.Items {
		kinds[it.Name()] = it.FailureKind()
	}
	if kinds["empty.iso"] != "OutputValidationError" {
		t.Fatalf("empty.iso kind = %q", kinds["empty.iso"])
	}
	if kinds["fail.iso"] != "ExternalToolError" {
		t.Fatalf("fail.iso kind = %q", kinds["fail.iso"])
	}
	assertConserved(t, summary)
	assertMonotonic(t, h.rec)
}

func TestArchivePassThroughCleanup(t *testing.T) {
	cases := []struct {
		name      string
		confirmer pipeline.Confirmer
		wantISO   bool
	}{
		{name: "confirmed", confirmer: pipeline.Always, wantISO: false},
		{name: "declined", confirmer: pipeline.Never, wantISO: true},
		{name: "no confirmer", confirmer: nil, wantISO: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, pipeline.WithConfirmer(tc.confirmer))
			testsupport.WriteText(t, filepath.Join(h.source, "pack.zip"), "game.iso\n")

			summary := h.run(t, pipeline.ConvertToCHD)

			if summary.Discovered != 1 {
				t.Fatalf("discovered = %d, want 1", summary.Discovered)
			}
			assertCounter(t, summary, "convertedGames", 1)
			if got := testsupport.Exists(t, filepath.Join(h.source, "game.iso")); got != tc.wantISO {
				t.Fatalf("extracted iso present = %v, want %v", got, tc.wantISO)
			}
			if summary.CleanedUp == tc.wantISO {
				t.Fatalf("CleanedUp = %v", summary.CleanedUp)
			}
			assertMonotonic(t, h.rec)
		})
	}
}

func TestArchiveErrorsAreCounted(t *testing.T) {
	h := newHarness(t)
	testsupport.WriteText(t, filepath.Join(h.source, "broken.7z"), "CORRUPT\n")
	testsupport.WriteText(t, filepath.Join(h.source, "docs.zip"), "readme.txt\n")
	testsupport.WriteFile(t, filepath.Join(h.source, "game.iso"), 32)

	summary := h.run(t, pipeline.PatchXboxISO)

	assertCounter(t, summary, "convertedGames", 1)
	assertCounter(t, summary, "ignoredArchives", 1)
	assertCounter(t, summary, "errorCount", 1)
	if summary.ArchiveErrors != 1 {
		t.Fatalf("archive errors = %d, want 1", summary.ArchiveErrors)
	}
}

func TestToolTimeoutFailsItemAndContinues(t *testing.T) {
	h := newHarness(t, pipeline.WithToolTimeout(200*time.Millisecond))
	testsupport.WriteFile(t, filepath.Join(h.source, "a-hang.iso"), 32)
	testsupport.WriteFile(t, filepath.Join(h.source, "b.iso"), 32)

	summary := h.run(t, pipeline.ConvertToCHD)

	assertCounter(t, summary, "convertedGames", 1)
	assertCounter(t, summary, "errorCount", 1)
	hung := summary.Items[0]
	if !errors.Is(hung.Err, services.ErrToolTimeout) {
		t.Fatalf("expected timeout, got %v", hung.Err)
	}
	if testsupport.Exists(t, filepath.Join(h.dest, "CHD", "a-hang.chd")) {
		t.Fatal("timed out item left output behind")
	}
}

func TestMissingToolFailsBeforeTouchingDestination(t *testing.T) {
	h := newHarness(t)
	if err := os.Remove(filepath.Join(h.toolsDir, "dolphin-tool")); err != nil {
		t.Fatalf("remove stub: %v", err)
	}
	testsupport.WriteFile(t, filepath.Join(h.source, "game.iso"), 32)

	_, err := h.session.Run(context.Background(), pipeline.Request{Operation: pipeline.ConvertToCHD, Source: h.source, Dest: h.dest})
	if !errors.Is(err, services.ErrToolNotFound) {
		t.Fatalf("expected ErrToolNotFound, got %v", err)
	}
	entries, err := os.ReadDir(h.dest)
	if err != nil {
		t.Fatalf("read dest: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("destination was modified: %v", entries)
	}
}

func TestReadOnlyDestinationAbortsBeforeProcessing(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root bypasses permission bits")
	}
	cases := []struct {
		name     string
		readOnly func(h *harness) string
	}{
		{name: "destination", readOnly: func(h *harness) string { return h.dest }},
		{name: "output folder", readOnly: func(h *harness) string { return filepath.Join(h.dest, "CHD") }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, pipeline.WithConfirmer(pipeline.Always))
			testsupport.WriteFile(t, filepath.Join(h.source, "game.iso"), 32)
			dir := tc.readOnly(h)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				t.Fatalf("mkdir: %v", err)
			}
			if err := os.Chmod(dir, 0o555); err != nil {
				t.Fatalf("chmod: %v", err)
			}
			t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

			summary, err := h.session.Run(context.Background(), pipeline.Request{Operation: pipeline.ConvertToCHD, Source: h.source, Dest: h.dest})
			if !errors.Is(err, services.ErrInsufficientPermissions) {
				t.Fatalf("expected ErrInsufficientPermissions, got %v", err)
			}
			for _, it := range summary.Items {
				if it.Status != pipeline.StatusPending {
					t.Fatalf("%s ran despite the permission failure: %s", it.Name(), it.Status)
				}
			}
			if summary.Converted != 0 || summary.Failed != 0 || summary.CleanedUp {
				t.Fatalf("unexpected summary %+v", summary)
			}
			if !testsupport.Exists(t, filepath.Join(h.source, "game.iso")) {
				t.Fatal("source removed after aborted run")
			}
		})
	}
}

func TestDestinationInsideSourceIsNotRediscovered(t *testing.T) {
	h := newHarness(t, pipeline.WithConfirmer(pipeline.Always))
	dest := filepath.Join(h.source, "out")
	testsupport.WriteFile(t, filepath.Join(h.source, "game.iso"), 32)
	// Left behind by an earlier extract-chd run into the same destination.
	testsupport.WriteText(t, filepath.Join(dest, "Extracted_CHD", "old.cue"), "FILE \"old.bin\" BINARY\n")
	testsupport.WriteFile(t, filepath.Join(dest, "Extracted_CHD", "old.bin"), 32)
	testsupport.WriteFile(t, filepath.Join(dest, "xbox", "patched.iso"), 32)

	summary, err := h.session.Run(context.Background(), pipeline.Request{Operation: pipeline.ConvertToCHD, Source: h.source, Dest: dest})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Discovered != 1 || summary.Items[0].Name() != "game.iso" {
		t.Fatalf("discovered %d items: %v", summary.Discovered, summary.Items)
	}
	assertConserved(t, summary)
	if !summary.CleanedUp {
		t.Fatal("expected cleanup")
	}
	for _, name := range []string{"Extracted_CHD/old.cue", "Extracted_CHD/old.bin", "xbox/patched.iso"} {
		if !testsupport.Exists(t, filepath.Join(dest, name)) {
			t.Fatalf("cleanup removed earlier output %s", name)
		}
	}
	if testsupport.Exists(t, filepath.Join(h.source, "game.iso")) {
		t.Fatal("expected converted source removed")
	}
}

func TestMissingSourceIsInvalidOption(t *testing.T) {
	h := newHarness(t)
	_, err := h.session.Run(context.Background(), pipeline.Request{
		Operation: pipeline.ConvertToCHD,
		Source:    filepath.Join(h.source, "nope"),
		Dest:      h.dest,
	})
	if !errors.Is(err, services.ErrInvalidOption) {
		t.Fatalf("expected ErrInvalidOption, got %v", err)
	}
}

func TestUnknownCompressionLevel(t *testing.T) {
	h := newHarness(t)
	_, err := h.session.Run(context.Background(), pipeline.Request{
		Operation:        pipeline.CompressSquashFS,
		Source:           h.source,
		Dest:             h.dest,
		CompressionLevel: "ultra",
	})
	if !errors.Is(err, services.ErrInvalidOption) {
		t.Fatalf("expected ErrInvalidOption, got %v", err)
	}
}

func TestLockHeldByAnotherProcess(t *testing.T) {
	h := newHarness(t)
	lock := flock.New(filepath.Join(h.dest, pipeline.LockFile))
	ok, err := lock.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock: %v %v", ok, err)
	}
	defer func() { _ = lock.Unlock() }()

	// The lock covers the destination, not one operation.
	for _, op := range []pipeline.Operation{pipeline.ConvertToCHD, pipeline.ExtractSquashFS} {
		_, err = h.session.Run(context.Background(), pipeline.Request{Operation: op, Source: h.source, Dest: h.dest})
		if !errors.Is(err, services.ErrRunInProgress) {
			t.Fatalf("%s: expected ErrRunInProgress, got %v", op, err)
		}
	}
}

func TestConcurrentRunOnSameDestinationRejected(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	confirmer := pipeline.ConfirmFunc(func(ctx context.Context, _ pipeline.Operation) (bool, error) {
		close(entered)
		<-release
		return false, nil
	})
	h := newHarness(t, pipeline.WithConfirmer(confirmer))
	testsupport.WriteFile(t, filepath.Join(h.source, "game.iso"), 32)

	done := make(chan error, 1)
	go func() {
		_, err := h.session.Run(context.Background(), pipeline.Request{Operation: pipeline.ConvertToCHD, Source: h.source, Dest: h.dest})
		done <- err
	}()
	<-entered

	_, err := h.session.Run(context.Background(), pipeline.Request{Operation: pipeline.ExtractCHD, Source: h.source, Dest: h.dest})
	if !errors.Is(err, services.ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}
	other := pipeline.NewSession(testsupport.StubTools(t, filepath.Join(t.TempDir(), "tools")))
	_, err = other.Run(context.Background(), pipeline.Request{Operation: pipeline.ExtractCHD, Source: h.source, Dest: h.dest})
	if !errors.Is(err, services.ErrRunInProgress) {
		t.Fatalf("second session: expected ErrRunInProgress, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first run: %v", err)
	}
}

func TestCancellationStopsRunAndSkipsCleanup(t *testing.T) {
	h := newHarness(t, pipeline.WithConfirmer(pipeline.Always))
	testsupport.WriteFile(t, filepath.Join(h.source, "a-hang.iso"), 32)
	testsupport.WriteFile(t, filepath.Join(h.source, "b.iso"), 32)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(300 * time.Millisecond)
		cancel()
	}()
	summary, err := h.session.Run(ctx, pipeline.Request{Operation: pipeline.ConvertToCHD, Source: h.source, Dest: h.dest})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !summary.Cancelled {
		t.Fatal("expected cancelled summary")
	}
	if !errors.Is(summary.Items[0].Err, services.ErrCancelled) {
		t.Fatalf("interrupted item err = %v", summary.Items[0].Err)
	}
	if summary.Items[1].Status != pipeline.StatusPending {
		t.Fatalf("second item status = %s, want pending", summary.Items[1].Status)
	}
	if summary.CleanedUp {
		t.Fatal("cleanup ran after cancellation")
	}
	if !testsupport.Exists(t, filepath.Join(h.source, "b.iso")) {
		t.Fatal("source removed after cancellation")
	}
}

func TestCleanupTimeoutDefaultsToNo(t *testing.T) {
	confirmer := pipeline.ConfirmFunc(func(ctx context.Context, _ pipeline.Operation) (bool, error) {
		<-ctx.Done()
		return true, nil
	})
	h := newHarness(t, pipeline.WithConfirmer(confirmer), pipeline.WithCleanupTimeout(100*time.Millisecond))
	testsupport.WriteFile(t, filepath.Join(h.source, "game.iso"), 32)

	summary := h.run(t, pipeline.ConvertToCHD)

	if summary.CleanedUp {
		t.Fatal("cleanup ran without an answer")
	}
	if !testsupport.Exists(t, filepath.Join(h.source, "game.iso")) {
		t.Fatal("source removed without an answer")
	}
	if !h.logged("No cleanup answer before timeout") {
		t.Fatalf("expected timeout log, got %v", h.rec.Messages())
	}
}

func TestEmptySourceSkipsPrompt(t *testing.T) {
	asked := false
	confirmer := pipeline.ConfirmFunc(func(context.Context, pipeline.Operation) (bool, error) {
		asked = true
		return true, nil
	})
	h := newHarness(t, pipeline.WithConfirmer(confirmer))

	summary := h.run(t, pipeline.ConvertToRVZ)

	if summary.Discovered != 0 || asked {
		t.Fatalf("discovered=%d asked=%v", summary.Discovered, asked)
	}
	assertMonotonic(t, h.rec)
}

func TestHistoryRecordsRun(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	h := newHarness(t, pipeline.WithHistory(store))
	testsupport.WriteFile(t, filepath.Join(h.source, "game.iso"), 32)
	testsupport.WriteFile(t, filepath.Join(h.source, "fail.iso"), 32)

	summary := h.run(t, pipeline.ConvertToCHD)

	got, err := store.Get(context.Background(), summary.RunID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("run not recorded")
	}
	if got.Converted != 1 || got.ErrorCount != 1 || len(got.Items) != 2 {
		t.Fatalf("recorded run = %+v", got)
	}
}

func TestRegistryPathUsedForTools(t *testing.T) {
	h := newHarness(t)
	testsupport.ReplaceTool(t, h.toolsDir, tools.ChdManager, "echo \"custom chdman\" >&2\nexit 3\n")
	testsupport.WriteFile(t, filepath.Join(h.source, "game.iso"), 32)

	summary := h.run(t, pipeline.ConvertToCHD)

	assertCounter(t, summary, "errorCount", 1)
	if !h.logged("custom chdman") {
		t.Fatalf("expected replaced tool output, got %v", h.rec.Messages())
	}
}
