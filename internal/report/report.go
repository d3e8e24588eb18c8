// Package report carries the two event streams a pipeline run produces: log
// lines and progress ticks.
//
// The pipeline and tool runner depend only on the LogSink and ProgressSink
// ports defined here. Reporter sits between them and the sinks and enforces
// the stream guarantees: sequence numbers, one-decimal rounding and a
// non-decreasing total that ends at exactly 100.
package report

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// LogEvent is one timestamped, human-readable line.
type LogEvent struct {
	Sequence uint64
	Time     time.Time
	Message  string
	Item     string
}

// ProgressEvent reports overall and per-file completion.
type ProgressEvent struct {
	Sequence            uint64
	TotalProgress       float64
	CurrentFileProgress float64
	Stage               string
	CurrentItem         int
	TotalItems          int
}

// LogSink receives log events in emission order.
type LogSink interface {
	Log(LogEvent)
}

// ProgressSink receives progress events in emission order.
type ProgressSink interface {
	Progress(ProgressEvent)
}

// LogFunc adapts a function to LogSink.
type LogFunc func(LogEvent)

// Log implements LogSink.
func (f LogFunc) Log(evt LogEvent) { f(evt) }

// ProgressFunc adapts a function to ProgressSink.
type ProgressFunc func(ProgressEvent)

// Progress implements ProgressSink.
func (f ProgressFunc) Progress(evt ProgressEvent) { f(evt) }

// Reporter serializes events for one run.
type Reporter struct {
	mu       sync.Mutex
	logs     LogSink
	progress ProgressSink
	now      func() time.Time
	logSeq   uint64
	progSeq  uint64
	last     float64
	item     string
}

// NewReporter wires the sinks; either may be nil.
func NewReporter(logs LogSink, progress ProgressSink) *Reporter {
	return &Reporter{logs: logs, progress: progress, now: time.Now}
}

// SetItem attributes subsequent log lines to item. An empty string clears it.
func (r *Reporter) SetItem(item string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.item = item
	r.mu.Unlock()
}

// Log emits a single line.
func (r *Reporter) Log(message string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logSeq++
	if r.logs == nil {
		return
	}
	r.logs.Log(LogEvent{Sequence: r.logSeq, Time: r.now(), Message: message, Item: r.item})
}

// Logf formats and emits a single line.
func (r *Reporter) Logf(format string, args ...any) {
	r.Log(fmt.Sprintf(format, args...))
}

// Progress emits evt after rounding and clamping. TotalProgress never moves
// backwards within a run.
func (r *Reporter) Progress(evt ProgressEvent) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	total := Round1(clamp(evt.TotalProgress))
	if total < r.last {
		total = r.last
	}
	r.last = total
	evt.TotalProgress = total
	evt.CurrentFileProgress = Round1(clamp(evt.CurrentFileProgress))
	r.progSeq++
	evt.Sequence = r.progSeq
	if r.progress != nil {
		r.progress.Progress(evt)
	}
}

// Complete emits the terminal 100% event.
func (r *Reporter) Complete(stage string, current, total int) {
	r.Progress(ProgressEvent{TotalProgress: 100, CurrentFileProgress: 100, Stage: stage, CurrentItem: current, TotalItems: total})
}

// Scale maps a per-item percentage into the item's slot of a progress band:
// base + (index/total)*band + (percent/100)*(band/total).
func Scale(base, band float64, index, total int, percent float64) float64 {
	if total <= 0 {
		return base
	}
	slot := band / float64(total)
	return base + float64(index)*slot + clamp(percent)/100*slot
}

// Round1 rounds v to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
