package app

import (
	"strings"
	"time"
)

// Operation statuses.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusError   = "error"
)

// Operation is one CLI invocation. Its ID tags every log line the
// invocation writes.
type Operation struct {
	ID      string
	Name    string
	Args    []string
	Started time.Time
	Ended   time.Time
	Status  string
}

// NewOperation starts an operation at now. The ID is the UTC start time.
func NewOperation(name string, args []string, now time.Time) *Operation {
	return &Operation{
		ID:      now.UTC().Format("20060102T150405Z"),
		Name:    name,
		Args:    args,
		Started: now,
		Status:  StatusRunning,
	}
}

// Finish records the outcome. Only the first call counts.
func (op *Operation) Finish(err error, now time.Time) {
	if op.Status != StatusRunning {
		return
	}
	op.Ended = now
	if err != nil {
		op.Status = StatusError
	} else {
		op.Status = StatusSuccess
	}
}

// Duration is the run time so far, or the total once finished.
func (op *Operation) Duration(now time.Time) time.Duration {
	if op.Status != StatusRunning {
		return op.Ended.Sub(op.Started)
	}
	return now.Sub(op.Started)
}

func (op *Operation) String() string {
	if len(op.Args) == 0 {
		return op.Name
	}
	return op.Name + " " + strings.Join(op.Args, " ")
}
