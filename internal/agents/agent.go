// Package agents holds the agent capability, the type-keyed registry and the three
// concrete agents.
package agents

import (
	"context"

	"agent-orchestration-service/internal/models"
)

// Agent types.
const (
	TypeSolver      = "LeetcodeSolver"
	TypeContributor = "OpenSourceContributor"
	TypeProfile     = "ProfileEnhancer"
)

// Agent performs one task for one user.
//
// Expected business outcomes (unknown user, nothing left to do) are reported through
// a Result with Success=false. A returned error means the agent could not finish for an
// exceptional reason (collaborator fault, timeout, persistence) and is classified with
// models.KindOf.
type Agent interface {
	Descriptor() models.AgentDescriptor
	Execute(ctx context.Context, task models.Task) (models.Result, error)
}

func inputString(input map[string]any, key string) string {
	if v, ok := input[key].(string); ok {
		return v
	}
	return ""
}

func inputStrings(input map[string]any, key string) []string {
	switch v := input[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
