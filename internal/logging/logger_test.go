package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"b2pc/internal/config"
	"b2pc/internal/logging"
	"b2pc/internal/report"
	"b2pc/internal/services"
)

func TestNewFromConfigConsole(t *testing.T) {
	cfg := config.Default()
	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger instance")
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestConsoleLoggerWritesComponentAndItem(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger = logging.NewComponentLogger(logger, "pipeline")
	logger.Info("converted", logging.String(logging.FieldItem, "game.iso"), logging.Int("count", 2))
	logger.Debug("hidden")

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	for _, want := range []string{"INFO", "pipeline: [game.iso] converted", "count=2"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line leaked at info level: %q", out)
	}
}

func TestJSONLoggerUsesTSKey(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("hello", logging.String("k", "v"))

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &payload); err != nil {
		t.Fatalf("decode json log: %v (%s)", err, data)
	}
	if _, ok := payload["ts"]; !ok {
		t.Fatalf("expected ts key in %v", payload)
	}
	if payload["level"] != "info" {
		t.Fatalf("expected lowercase level, got %v", payload["level"])
	}
}

func TestWithContextAddsFields(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))
	ctx := services.WithRunID(context.Background(), "run-9")
	ctx = services.WithOperation(ctx, "extract-chd")

	logging.WithContext(ctx, base).Info("start")
	out := buf.String()
	if !strings.Contains(out, `"run_id":"run-9"`) || !strings.Contains(out, `"operation":"extract-chd"`) {
		t.Fatalf("missing context fields: %s", out)
	}
}

func TestOpenRunLogTeesToFile(t *testing.T) {
	var console bytes.Buffer
	base := slog.New(slog.NewTextHandler(&console, nil))
	dir := t.TempDir()

	runLog, err := logging.OpenRunLog(base, dir, "convert-to-chd", "console", time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("OpenRunLog: %v", err)
	}
	if filepath.Base(runLog.Path) != "convert-to-chd-20240301T120000Z.log" {
		t.Fatalf("unexpected run log name %q", runLog.Path)
	}
	sink := logging.NewSinkLogger(runLog.Logger)
	sink.Log(report.LogEvent{Time: time.Now(), Message: "2 items discovered", Item: "game.iso"})
	if err := runLog.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(runLog.Path)
	if err != nil {
		t.Fatalf("read run log: %v", err)
	}
	if !strings.Contains(string(data), "[game.iso] 2 items discovered") {
		t.Fatalf("run log missing line: %q", data)
	}
	if !strings.Contains(console.String(), "2 items discovered") {
		t.Fatalf("console missing line: %q", console.String())
	}
}

func TestTeeLoggerHandlesNil(t *testing.T) {
	logger := logging.TeeLogger(nil, nil)
	logger.Info("discarded")
	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("expected no-op logger")
	}
}

func TestCleanupOldLogs(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "convert-to-chd-old.log")
	fresh := filepath.Join(dir, "convert-to-chd-new.log")
	kept := filepath.Join(dir, "extract-chd-current.log")
	other := filepath.Join(dir, "notes.txt")
	for _, p := range []string{old, fresh, kept, other} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}
	past := time.Now().AddDate(0, 0, -40)
	for _, p := range []string{old, kept, other} {
		if err := os.Chtimes(p, past, past); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	removed := logging.CleanupOldLogs(nil, dir, "*.log", 30, kept)
	if removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatal("expected old log removed")
	}
	for _, p := range []string{fresh, kept, other} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("expected %s to remain: %v", p, err)
		}
	}
	if logging.CleanupOldLogs(nil, dir, "*.log", 0) != 0 {
		t.Fatal("expected retention 0 to disable pruning")
	}
}
