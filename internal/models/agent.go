package models

// AgentDescriptor describes a registered agent. It is built once with the registry
// and never mutated afterwards.
type AgentDescriptor struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Schedule    string `json:"schedule,omitempty"` // cron expression, empty means manual only
	Active      bool   `json:"active"`
	InputSchema string `json:"input_schema,omitempty"`
}

// Scheduled reports whether the scheduler should keep a timer for this agent.
func (d AgentDescriptor) Scheduled() bool {
	return d.Active && d.Schedule != ""
}
