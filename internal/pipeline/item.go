package pipeline

import (
	"path/filepath"

	"b2pc/internal/services"
)

// Status is the lifecycle state of a job item.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Item is one unit of work: a disc image, a cue sheet or a folder.
type Item struct {
	Source  string
	Outputs []string
	Status  Status
	Err     error

	// scratch holds intermediate paths removed when the item fails.
	scratch []string
}

// Name returns the base name used for log attribution.
func (it *Item) Name() string {
	return filepath.Base(it.Source)
}

// Output returns the primary output path.
func (it *Item) Output() string {
	if len(it.Outputs) == 0 {
		return ""
	}
	return it.Outputs[0]
}

// FailureKind returns the taxonomy name of the failure, if any.
func (it *Item) FailureKind() string {
	return services.KindOf(it.Err)
}

// Reason returns the failure message, if any.
func (it *Item) Reason() string {
	if it.Err == nil {
		return ""
	}
	return it.Err.Error()
}

func newItem(source string, outputs ...string) *Item {
	return &Item{Source: source, Outputs: outputs, Status: StatusPending}
}
