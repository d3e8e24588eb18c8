package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"b2pc/internal/config"
	"b2pc/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	source     string
	dest       string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedTools())
	cfg.Logging.RunLogs = true
	cfg.History.Enabled = true

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	env := &cliTestEnv{
		cfg:        cfg,
		configPath: configPath,
		source:     filepath.Join(base, "src"),
		dest:       filepath.Join(base, "dest"),
	}
	for _, dir := range []string{env.source, env.dest} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	return env
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(""))
	if configPath != "" {
		args = append([]string{"--config", configPath}, args...)
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q\n---\n%s", needle, haystack)
	}
}

func TestOperationCommandConvertsAndRecordsHistory(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.WriteFile(t, filepath.Join(env.source, "game.iso"), 64)

	out, _, err := runCLI(t, []string{"convert-to-chd", "--source", env.source, "--dest", env.dest}, env.configPath)
	if err != nil {
		t.Fatalf("convert-to-chd: %v\n%s", err, out)
	}
	requireContains(t, out, "Converted Games")
	requireContains(t, out, "Progress:")
	requireContains(t, out, "Cleaned Up")
	if !testsupport.Exists(t, filepath.Join(env.dest, "CHD", "game.chd")) {
		t.Fatal("expected CHD output")
	}

	logs, err := filepath.Glob(filepath.Join(env.cfg.Paths.LogDir, "convert-to-chd-*.log"))
	if err != nil || len(logs) != 1 {
		t.Fatalf("run logs = %v, %v", logs, err)
	}

	out, _, err = runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "convert-to-chd")
	requireContains(t, out, "ok")
}

func TestOperationCommandFailsOnItemErrors(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.WriteFile(t, filepath.Join(env.source, "fail.iso"), 64)

	out, _, err := runCLI(t, []string{"convert-to-chd", "-s", env.source, "-d", env.dest}, env.configPath)
	if err == nil {
		t.Fatal("expected error exit")
	}
	requireContains(t, err.Error(), "1 error(s)")
	requireContains(t, out, "ExternalToolError")
}

func TestOperationCommandCleanupYes(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.WriteFile(t, filepath.Join(env.source, "game.chd"), 64)

	if _, _, err := runCLI(t, []string{"extract-chd", "-s", env.source, "-d", env.dest, "--yes"}, env.configPath); err != nil {
		t.Fatalf("extract-chd: %v", err)
	}
	if testsupport.Exists(t, filepath.Join(env.source, "game.chd")) {
		t.Fatal("source should be removed with --yes")
	}
}

func TestOperationCommandRejectsBadFlags(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"convert-to-rvz", "-s", env.source, "-d", env.dest, "--cleanup", "sometimes"}, env.configPath)
	if err == nil {
		t.Fatal("expected invalid cleanup policy error")
	}

	_, _, err = runCLI(t, []string{"compress-wsquashfs", "-s", env.source, "-d", env.dest, "--compression-level", "ultra"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "invalid option") {
		t.Fatalf("expected invalid compression level, got %v", err)
	}

	_, _, err = runCLI(t, []string{"convert-to-chd", "-s", env.source}, env.configPath)
	if err == nil {
		t.Fatal("expected missing --dest error")
	}
}

func TestToolsCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"tools"}, env.configPath)
	if err != nil {
		t.Fatalf("tools: %v\n%s", err, out)
	}
	for _, binary := range []string{"7za", "xiso", "chdman", "dolphin-tool", "gensquashfs", "rdsquashfs"} {
		requireContains(t, out, binary)
	}

	if err := os.Remove(filepath.Join(env.cfg.Tools.Dir, "xiso")); err != nil {
		t.Fatalf("remove stub: %v", err)
	}
	out, _, err = runCLI(t, []string{"tools"}, env.configPath)
	if err == nil {
		t.Fatal("expected failure with a missing tool")
	}
	requireContains(t, out, "missing")
}

func TestChdInfoCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	path := filepath.Join(env.source, "movie-dvd.chd")
	testsupport.WriteFile(t, path, 16)

	out, _, err := runCLI(t, []string{"chd-info", path}, env.configPath)
	if err != nil {
		t.Fatalf("chd-info: %v", err)
	}
	requireContains(t, out, "movie-dvd.chd")
	requireContains(t, out, "DVD")
	requireContains(t, out, "4.4 GiB")
}

func TestTestNotifyWithoutTopic(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"test-notify"}, env.configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "not configured")
}

func TestLogsCommandShowsLatestRunLog(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"logs"}, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	requireContains(t, out, "No run logs")

	testsupport.WriteFile(t, filepath.Join(env.source, "game.iso"), 64)
	if _, _, err := runCLI(t, []string{"convert-to-rvz", "-s", env.source, "-d", env.dest}, env.configPath); err != nil {
		t.Fatalf("convert-to-rvz: %v", err)
	}

	out, _, err = runCLI(t, []string{"logs", "--operation", "convert-to-rvz"}, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	requireContains(t, out, "convert-to-rvz-")
	requireContains(t, out, "Converting to RVZ")

	out, _, err = runCLI(t, []string{"logs", "--list"}, env.configPath)
	if err != nil {
		t.Fatalf("logs --list: %v", err)
	}
	requireContains(t, out, "convert-to-rvz")
}
