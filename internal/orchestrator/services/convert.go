package services

import (
	"encoding/json"

	"agent-orchestration-service/internal/models"
	"agent-orchestration-service/internal/orchestrator/db"
)

func encodePayload(m map[string]any) string {
	if len(m) == 0 {
		return "{}"
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func decodePayload(s string) map[string]any {
	if s == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return map[string]any{"raw": s}
	}
	return m
}

func toModel(row db.AgentTask) models.Task {
	return models.Task{
		ID:          row.ID,
		AgentType:   row.AgentType,
		UserID:      row.UserID,
		Kind:        row.Kind,
		Input:       decodePayload(row.Input),
		Status:      models.Status(row.Status),
		ScheduledAt: row.ScheduledAt,
		StartedAt:   row.StartedAt,
		CompletedAt: row.CompletedAt,
		Output:      decodePayload(row.Output),
		Error:       row.Error,
		CreatedAt:   row.CreatedAt,
	}
}
