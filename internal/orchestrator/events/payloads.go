package events

import "time"

// TaskCompletedEvent is published for every Completed task.
type TaskCompletedEvent struct {
	TaskID      string         `json:"task_id"`
	UserID      string         `json:"user_id"`
	AgentType   string         `json:"agent_type"`
	Output      map[string]any `json:"output,omitempty"`
	Warning     string         `json:"warning,omitempty"`
	CompletedAt time.Time      `json:"completed_at"`
}

// DispatchRequest is a queued manual dispatch, consumed by the worker.
type DispatchRequest struct {
	RequestID string         `json:"request_id"`
	AgentType string         `json:"agent_type"`
	UserID    string         `json:"user_id"`
	Input     map[string]any `json:"input,omitempty"`
}
