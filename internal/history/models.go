package history

import "time"

// Run is one recorded pipeline run.
type Run struct {
	ID           string
	Operation    string
	SourceDir    string
	DestDir      string
	StartedAt    time.Time
	FinishedAt   time.Time
	Discovered   int
	Converted    int
	Skipped      int
	Failed       int
	Optimized    int
	ErrorCount   int
	Cancelled    bool
	CleanedUp    bool
	ErrorMessage string
	Items        []Item
}

// Duration returns the wall-clock time of the run.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Item is the recorded outcome of one job item.
type Item struct {
	SourcePath    string
	OutputPath    string
	Status        string
	FailureKind   string
	FailureReason string
}
