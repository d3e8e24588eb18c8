package logging

import (
	"context"
	"log/slog"
	"time"

	"b2pc/internal/report"
)

// SinkLogger forwards pipeline log events into slog at info level, keeping
// the event's own timestamp.
type SinkLogger struct {
	logger *slog.Logger
}

// NewSinkLogger wraps logger; a nil logger discards events.
func NewSinkLogger(logger *slog.Logger) *SinkLogger {
	if logger == nil {
		logger = NewNop()
	}
	return &SinkLogger{logger: logger}
}

// Log implements report.LogSink.
func (s *SinkLogger) Log(evt report.LogEvent) {
	ctx := context.Background()
	handler := s.logger.Handler()
	if !handler.Enabled(ctx, slog.LevelInfo) {
		return
	}
	ts := evt.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	record := slog.NewRecord(ts, slog.LevelInfo, evt.Message, 0)
	if evt.Item != "" {
		record.AddAttrs(Item(evt.Item))
	}
	_ = handler.Handle(ctx, record)
}
