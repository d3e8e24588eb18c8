package history_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"b2pc/internal/history"
	"b2pc/internal/testsupport"
)

func TestRecordAndGet(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	run := history.Run{
		ID:         "run-1",
		Operation:  "convert-to-chd",
		SourceDir:  "/src",
		DestDir:    "/dest",
		StartedAt:  started,
		FinishedAt: started.Add(95 * time.Second),
		Discovered: 2,
		Converted:  1,
		Failed:     1,
		ErrorCount: 1,
		Items: []history.Item{
			{SourcePath: "/src/a.cue", OutputPath: "/dest/CHD/a.chd", Status: "succeeded"},
			{SourcePath: "/src/b.iso", Status: "failed", FailureKind: "ToolTimeout", FailureReason: "no exit within 5m0s"},
		},
	}
	if err := store.Record(ctx, run); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := store.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("expected run")
	}
	if got.Operation != "convert-to-chd" || got.Converted != 1 || got.ErrorCount != 1 {
		t.Fatalf("unexpected run %+v", got)
	}
	if got.Duration() != 95*time.Second {
		t.Fatalf("duration = %s", got.Duration())
	}
	if len(got.Items) != 2 || got.Items[1].FailureKind != "ToolTimeout" || got.Items[0].FailureKind != "" {
		t.Fatalf("unexpected items %+v", got.Items)
	}
}

func TestGetUnknownReturnsNil(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	got, err := store.Get(context.Background(), "missing")
	if err != nil || got != nil {
		t.Fatalf("expected nil, nil; got %v, %v", got, err)
	}
}

func TestRecentNewestFirst(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		start := base.Add(time.Duration(i) * time.Hour)
		if err := store.Record(ctx, history.Run{ID: id, Operation: "merge-bin-cue", StartedAt: start, FinishedAt: start, Cancelled: id == "b"}); err != nil {
			t.Fatalf("Record %s: %v", id, err)
		}
	}

	runs, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "c" || runs[1].ID != "b" {
		t.Fatalf("unexpected order: %+v", runs)
	}
	if !runs[1].Cancelled {
		t.Fatal("cancelled flag lost")
	}
}

func TestRecordRequiresID(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	if err := store.Record(context.Background(), history.Run{}); err == nil {
		t.Fatal("expected error for missing id")
	}
}

func TestReopenKeepsSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first, err := history.Open(cfg.HistoryPath())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	second, err := history.Open(cfg.HistoryPath())
	if err != nil {
		if errors.Is(err, history.ErrSchemaMismatch) {
			t.Fatalf("schema mismatch on reopen: %v", err)
		}
		t.Fatalf("reopen: %v", err)
	}
	_ = second.Close()
}
