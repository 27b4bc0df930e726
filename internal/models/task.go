package models

import (
	"time"
)

// Status is the lifecycle state of an agent task.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusInProgress Status = "InProgress"
	StatusCompleted  Status = "Completed"
	StatusFailed     Status = "Failed"
)

// IsTerminal reports whether no further transition may leave s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether from -> to is a legal lifecycle step:
// Pending -> InProgress -> Completed | Failed.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusInProgress
	case StatusInProgress:
		return to == StatusCompleted || to == StatusFailed
	}
	return false
}

// SourcesOf lists the statuses a task may move to `to` from.
func SourcesOf(to Status) []string {
	var out []string
	for _, from := range []Status{StatusPending, StatusInProgress, StatusCompleted, StatusFailed} {
		if CanTransition(from, to) {
			out = append(out, string(from))
		}
	}
	return out
}

// Task is one audited attempt to run an agent for one user.
type Task struct {
	ID          string
	AgentType   string
	UserID      string
	Kind        string // agent type for regular dispatches, enhancement type for follow-ups
	Input       map[string]any
	Status      Status
	ScheduledAt *time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Output      map[string]any
	Error       string
	CreatedAt   time.Time
}

// Result is what an agent reports back for a task.
type Result struct {
	Success bool           `json:"success"`
	Output  map[string]any `json:"output,omitempty"`
	Error   string         `json:"error,omitempty"`
	Kind    ErrorKind      `json:"kind,omitempty"`
	Warning string         `json:"warning,omitempty"`
	TaskID  string         `json:"task_id,omitempty"`
}

// Succeeded builds a successful result.
func Succeeded(output map[string]any) Result {
	return Result{Success: true, Output: output}
}

// Failed builds a business-failure result carrying a classified error string.
func Failed(kind ErrorKind, msg string) Result {
	return Result{Success: false, Kind: kind, Error: FormatError(kind, msg)}
}
