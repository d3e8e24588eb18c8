package main

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"b2pc/internal/logging"
	"b2pc/internal/report"
)

const progressBucket = 10

// console renders pipeline events on the terminal. On a TTY progress drives a
// bar; otherwise sampled progress is printed as plain lines so redirected
// output stays readable.
type console struct {
	mu      sync.Mutex
	out     io.Writer
	bar     *progressbar.ProgressBar
	sampler *logging.ProgressSampler
	runLog  *logging.SinkLogger
}

func newConsole(out, barOut io.Writer, interactive bool, runLog *slog.Logger) *console {
	c := &console{out: out}
	if runLog != nil {
		c.runLog = logging.NewSinkLogger(runLog)
	}
	if interactive {
		c.bar = progressbar.NewOptions(100,
			progressbar.OptionSetWriter(barOut),
			progressbar.OptionSetDescription("Starting"),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer: "█", SaucerHead: "█", SaucerPadding: "░",
				BarStart: "[", BarEnd: "]",
			}),
		)
	} else {
		c.sampler = logging.NewProgressSampler(progressBucket)
	}
	return c
}

// Log implements report.LogSink.
func (c *console) Log(evt report.LogEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bar != nil {
		_ = c.bar.Clear()
	}
	ts := evt.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	fmt.Fprintf(c.out, "[%s] %s\n", ts.Format("15:04:05"), evt.Message)
	if c.runLog != nil {
		c.runLog.Log(evt)
	}
}

// Progress implements report.ProgressSink.
func (c *console) Progress(evt report.ProgressEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bar != nil {
		if evt.Stage != "" {
			c.bar.Describe(stageLabel(evt))
		}
		_ = c.bar.Set(int(evt.TotalProgress))
		return
	}
	if c.sampler.ShouldLog(evt.TotalProgress, evt.Stage) {
		fmt.Fprintf(c.out, "Progress: %.1f%% %s\n", evt.TotalProgress, stageLabel(evt))
	}
}

func (c *console) finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bar != nil {
		_ = c.bar.Finish()
		fmt.Fprintln(c.out)
	}
}

func stageLabel(evt report.ProgressEvent) string {
	if evt.TotalItems > 0 && evt.CurrentItem > 0 {
		return fmt.Sprintf("%s (%d/%d)", evt.Stage, evt.CurrentItem, evt.TotalItems)
	}
	return evt.Stage
}
