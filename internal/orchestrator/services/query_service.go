package services

import (
	"context"
	"time"

	"agent-orchestration-service/internal/models"
	"agent-orchestration-service/internal/orchestrator/db"
)

const (
	RecentTasksPerAgent = 10
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// QueryStore is the read side of the repository.
type QueryStore interface {
	RecentTasksByAgent(ctx context.Context, agentType string, limit int) ([]db.TaskWithUser, error)
	TasksByUser(ctx context.Context, userID string, limit int) ([]db.AgentTask, error)
}

// TaskView is a task as shown to operators.
type TaskView struct {
	ID          string         `json:"id"`
	AgentType   string         `json:"agent_type"`
	AgentName   string         `json:"agent_name,omitempty"`
	UserID      string         `json:"user_id"`
	UserName    string         `json:"user_name,omitempty"`
	Kind        string         `json:"kind"`
	Status      models.Status  `json:"status"`
	Input       map[string]any `json:"input,omitempty"`
	Output      map[string]any `json:"output,omitempty"`
	Error       string         `json:"error,omitempty"`
	ScheduledAt *time.Time     `json:"scheduled_at,omitempty"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// AgentStatus is an agent descriptor plus its timer state and latest tasks.
type AgentStatus struct {
	models.AgentDescriptor
	Scheduled   bool       `json:"scheduled"`
	NextRun     *time.Time `json:"next_run,omitempty"`
	RecentTasks []TaskView `json:"recent_tasks"`
}

type QueryService struct {
	store QueryStore
	names func(agentType string) (string, bool)
}

// NewQueryService builds the read side. names resolves a display name for an agent type.
func NewQueryService(store QueryStore, names func(agentType string) (string, bool)) *QueryService {
	return &QueryService{store: store, names: names}
}

func view(row db.AgentTask) TaskView {
	t := toModel(row)
	return TaskView{
		ID:          t.ID,
		AgentType:   t.AgentType,
		UserID:      t.UserID,
		Kind:        t.Kind,
		Status:      t.Status,
		Input:       t.Input,
		Output:      t.Output,
		Error:       t.Error,
		ScheduledAt: t.ScheduledAt,
		StartedAt:   t.StartedAt,
		CompletedAt: t.CompletedAt,
		CreatedAt:   t.CreatedAt,
	}
}

// RecentTasks returns the newest tasks for one agent, with user names.
func (q *QueryService) RecentTasks(ctx context.Context, agentType string) ([]TaskView, error) {
	rows, err := q.store.RecentTasksByAgent(ctx, agentType, RecentTasksPerAgent)
	if err != nil {
		return nil, err
	}
	out := make([]TaskView, 0, len(rows))
	for _, r := range rows {
		v := view(r.AgentTask)
		v.UserName = r.UserName
		out = append(out, v)
	}
	return out, nil
}

// ClampHistoryLimit applies the default and the upper bound to a page size.
func ClampHistoryLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}

// UserHistory returns a user's newest tasks. Agent names fall back to the stored type
// when the agent is no longer registered.
func (q *QueryService) UserHistory(ctx context.Context, userID string, limit int) ([]TaskView, error) {
	rows, err := q.store.TasksByUser(ctx, userID, ClampHistoryLimit(limit))
	if err != nil {
		return nil, err
	}
	out := make([]TaskView, 0, len(rows))
	for _, r := range rows {
		v := view(r)
		v.AgentName = r.AgentType
		if q.names != nil {
			if name, ok := q.names(r.AgentType); ok && name != "" {
				v.AgentName = name
			}
		}
		out = append(out, v)
	}
	return out, nil
}
