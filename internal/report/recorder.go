package report

import "sync"

// Recorder keeps a bounded copy of every event it receives. It satisfies both
// sink interfaces and is safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	capacity int
	logs     []LogEvent
	progress []ProgressEvent
}

// NewRecorder constructs a recorder that keeps at most capacity events of
// each kind. A non-positive capacity keeps everything.
func NewRecorder(capacity int) *Recorder {
	return &Recorder{capacity: capacity}
}

// Log implements LogSink.
func (r *Recorder) Log(evt LogEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = appendBounded(r.logs, evt, r.capacity)
}

// Progress implements ProgressSink.
func (r *Recorder) Progress(evt ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = appendBounded(r.progress, evt, r.capacity)
}

// Logs returns a snapshot of recorded log events.
func (r *Recorder) Logs() []LogEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]LogEvent(nil), r.logs...)
}

// ProgressEvents returns a snapshot of recorded progress events.
func (r *Recorder) ProgressEvents() []ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ProgressEvent(nil), r.progress...)
}

// Messages returns the text of every recorded log event.
func (r *Recorder) Messages() []string {
	logs := r.Logs()
	out := make([]string, len(logs))
	for i, evt := range logs {
		out[i] = evt.Message
	}
	return out
}

func appendBounded[T any](buf []T, evt T, capacity int) []T {
	if capacity > 0 && len(buf) == capacity {
		copy(buf, buf[1:])
		buf[len(buf)-1] = evt
		return buf
	}
	return append(buf, evt)
}
