package agents

import (
	"fmt"
	"sync/atomic"

	"agent-orchestration-service/internal/models"
)

type snapshot struct {
	byType map[string]Agent
	order  []string
}

func newSnapshot(list []Agent) (*snapshot, error) {
	s := &snapshot{byType: make(map[string]Agent, len(list))}
	for _, a := range list {
		t := a.Descriptor().Type
		if t == "" {
			return nil, fmt.Errorf("agent %T has an empty type", a)
		}
		if _, dup := s.byType[t]; dup {
			return nil, fmt.Errorf("agent type %q registered twice", t)
		}
		s.byType[t] = a
		s.order = append(s.order, t)
	}
	return s, nil
}

// Registry maps agent types to agents. Readers always see one complete snapshot;
// Swap replaces the whole mapping at once.
type Registry struct {
	current atomic.Pointer[snapshot]
}

// NewRegistry builds a registry from agents in registration order.
func NewRegistry(list ...Agent) (*Registry, error) {
	s, err := newSnapshot(list)
	if err != nil {
		return nil, err
	}
	r := &Registry{}
	r.current.Store(s)
	return r, nil
}

// Swap atomically replaces the registered agents. On error the old set is kept.
func (r *Registry) Swap(list ...Agent) error {
	s, err := newSnapshot(list)
	if err != nil {
		return err
	}
	r.current.Store(s)
	return nil
}

func (r *Registry) load() *snapshot {
	if s := r.current.Load(); s != nil {
		return s
	}
	return &snapshot{}
}

// Get returns the agent registered for agentType.
func (r *Registry) Get(agentType string) (Agent, error) {
	a, ok := r.load().byType[agentType]
	if !ok {
		return nil, fmt.Errorf("no agent registered for type: %s", agentType)
	}
	return a, nil
}

// Agents returns the registered agents in registration order.
func (r *Registry) Agents() []Agent {
	s := r.load()
	out := make([]Agent, 0, len(s.order))
	for _, t := range s.order {
		out = append(out, s.byType[t])
	}
	return out
}

// Descriptors returns every registered descriptor in registration order.
func (r *Registry) Descriptors() []models.AgentDescriptor {
	list := r.Agents()
	out := make([]models.AgentDescriptor, 0, len(list))
	for _, a := range list {
		out = append(out, a.Descriptor())
	}
	return out
}
