package pipeline

import (
	"context"
	"log/slog"
	"time"

	"b2pc/internal/history"
	"b2pc/internal/logging"
	"b2pc/internal/report"
	"b2pc/internal/toolrun"
	"b2pc/internal/tools"
)

const defaultCleanupTimeout = 2 * time.Minute

// HistoryRecorder persists finished runs.
type HistoryRecorder interface {
	Record(ctx context.Context, run history.Run) error
}

// Request is one operation invocation.
type Request struct {
	Operation Operation
	Source    string
	Dest      string
	// CompressionLevel applies to compress-wsquashfs only.
	CompressionLevel string
}

// Option configures a Session.
type Option func(*Session)

// WithLogSink sets the receiver of log events.
func WithLogSink(sink report.LogSink) Option {
	return func(s *Session) { s.logs = sink }
}

// WithProgressSink sets the receiver of progress events.
func WithProgressSink(sink report.ProgressSink) Option {
	return func(s *Session) { s.progress = sink }
}

// WithConfirmer sets the cleanup confirmer. Without one, cleanup is declined.
func WithConfirmer(c Confirmer) Option {
	return func(s *Session) { s.confirmer = c }
}

// WithToolTimeout overrides the per-invocation tool timeout.
func WithToolTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.toolTimeout = d
		}
	}
}

// WithCleanupTimeout bounds how long the cleanup question may stay unanswered.
func WithCleanupTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.cleanupTimeout = d
		}
	}
}

// WithHistory records every finished run.
func WithHistory(h HistoryRecorder) Option {
	return func(s *Session) { s.history = h }
}

// WithLogger attaches a structured logger for diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithExecutor replaces the process executor (primarily for tests).
func WithExecutor(exec toolrun.Executor) Option {
	return func(s *Session) { s.executor = exec }
}

// Session carries everything a run needs. It holds no per-run state and may
// be reused for sequential runs.
type Session struct {
	registry       *tools.Registry
	logs           report.LogSink
	progress       report.ProgressSink
	confirmer      Confirmer
	toolTimeout    time.Duration
	cleanupTimeout time.Duration
	history        HistoryRecorder
	logger         *slog.Logger
	executor       toolrun.Executor
	now            func() time.Time
}

// NewSession constructs a Session over registry.
func NewSession(registry *tools.Registry, opts ...Option) *Session {
	s := &Session{
		registry:       registry,
		toolTimeout:    toolrun.DefaultTimeout,
		cleanupTimeout: defaultCleanupTimeout,
		logger:         logging.NewNop(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "pipeline")
	return s
}

func (s *Session) newRunner(reporter *report.Reporter) *toolrun.Runner {
	opts := []toolrun.Option{
		toolrun.WithTimeout(s.toolTimeout),
		toolrun.WithLogger(s.logger),
	}
	if s.executor != nil {
		opts = append(opts, toolrun.WithExecutor(s.executor))
	}
	return toolrun.New(s.registry, reporter, opts...)
}
