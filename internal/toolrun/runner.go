package toolrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"b2pc/internal/logging"
	"b2pc/internal/report"
	"b2pc/internal/services"
	"b2pc/internal/tools"
)

// DefaultTimeout is the per-invocation ceiling when none is configured.
const DefaultTimeout = 5 * time.Minute

// maxCaptured bounds the stdout/stderr text kept per invocation.
const maxCaptured = 256 * 1024

// Window places one invocation inside the run's overall progress scale.
type Window struct {
	Base  float64
	Band  float64
	Index int
	Total int
	Stage string
}

// Invocation describes one tool launch.
type Invocation struct {
	Tool     tools.Name
	Args     []string
	Dir      string
	Item     string
	Progress Window
}

// Result carries the captured output of a finished invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Option configures the runner.
type Option func(*Runner)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(r *Runner) {
		if exec != nil {
			r.exec = exec
		}
	}
}

// WithTimeout overrides the per-invocation timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithLogger attaches a logger for debug-level tool chatter.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Runner launches registered tools one at a time.
type Runner struct {
	registry *tools.Registry
	reporter *report.Reporter
	exec     Executor
	timeout  time.Duration
	parsers  *Parsers
	logger   *slog.Logger
}

// New constructs a runner over registry that reports through reporter.
func New(registry *tools.Registry, reporter *report.Reporter, opts ...Option) *Runner {
	r := &Runner{
		registry: registry,
		reporter: reporter,
		exec:     commandExecutor{},
		timeout:  DefaultTimeout,
		parsers:  DefaultParsers(),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes inv and returns its captured output. It fails when the tool
// exits non-zero, prints a critical marker, exceeds the timeout, or the parent
// context is cancelled.
func (r *Runner) Run(ctx context.Context, inv Invocation) (Result, error) {
	path := r.registry.Path(inv.Tool)
	if strings.TrimSpace(path) == "" {
		return Result{}, services.Wrap(services.ErrToolNotFound, "", string(inv.Tool), "not registered", nil)
	}
	label := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	logger := r.logger.With(logging.Tool(string(inv.Tool)))
	if inv.Item != "" {
		logger = logger.With(logging.Item(inv.Item))
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var (
		stdout   capture
		stderr   capture
		critical string
	)
	onLine := func(stream Stream, line string) {
		line = strings.TrimSpace(line)
		if line == "" {
			return
		}
		if stream == Stdout {
			stdout.add(line)
		} else {
			stderr.add(line)
		}
		if explanation, ok := r.parsers.Critical(inv.Tool, line); ok {
			if critical == "" {
				critical = explanation
			}
			r.reporter.Logf("%s [%s] critical error: %s", label, inv.Item, line)
			return
		}
		if sample, ok := r.parsers.Parse(inv.Tool, line); ok {
			r.emitProgress(inv, sample)
			return
		}
		if stream == Stderr || Important(line) {
			r.reporter.Logf("%s [%s]: %s", label, inv.Item, line)
			return
		}
		logger.Debug(line, logging.String("stream", stream.String()))
	}

	started := time.Now()
	logger.Debug("tool started", logging.String("path", path), logging.String("args", strings.Join(inv.Args, " ")))
	code, err := r.exec.Run(runCtx, Command{Binary: path, Args: inv.Args, Dir: inv.Dir}, onLine)
	result := Result{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: code, Duration: time.Since(started)}
	logger.Debug("tool finished", logging.Int("exit_code", code), logging.Duration("duration", result.Duration))

	switch {
	case ctx.Err() != nil:
		return result, services.Wrap(services.ErrCancelled, "", string(inv.Tool), "process killed", ctx.Err())
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return result, services.Wrap(services.ErrToolTimeout, "", string(inv.Tool),
			fmt.Sprintf("no exit within %s; process killed", r.timeout), nil)
	case err != nil:
		return result, services.Wrap(services.ErrExternalTool, "", string(inv.Tool), "launch failed", err)
	case critical != "":
		return result, services.Wrap(services.ErrIncompatibleInput, "", string(inv.Tool), critical, nil)
	case code != 0:
		msg := strings.TrimSpace(result.Stderr)
		if msg == "" {
			msg = fmt.Sprintf("exit code %d", code)
		}
		return result, services.Wrap(services.ErrExternalTool, "", string(inv.Tool), msg, nil)
	}
	return result, nil
}

func (r *Runner) emitProgress(inv Invocation, sample Sample) {
	w := inv.Progress
	if w.Total <= 0 {
		return
	}
	r.reporter.Progress(report.ProgressEvent{
		TotalProgress:       report.Scale(w.Base, w.Band, w.Index, w.Total, sample.Percent),
		CurrentFileProgress: sample.Percent,
		Stage:               w.Stage,
		CurrentItem:         w.Index + 1,
		TotalItems:          w.Total,
	})
}

// capture accumulates output lines up to maxCaptured bytes, keeping the tail.
type capture struct {
	lines []string
	size  int
}

func (c *capture) add(line string) {
	c.lines = append(c.lines, line)
	c.size += len(line) + 1
	for c.size > maxCaptured && len(c.lines) > 1 {
		c.size -= len(c.lines[0]) + 1
		c.lines = c.lines[1:]
	}
}

func (c *capture) String() string {
	return strings.Join(c.lines, "\n")
}
