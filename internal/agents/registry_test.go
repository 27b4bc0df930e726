package agents

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent-orchestration-service/internal/models"
)

type stubAgent struct {
	desc models.AgentDescriptor
}

func (s *stubAgent) Descriptor() models.AgentDescriptor { return s.desc }

func (s *stubAgent) Execute(ctx context.Context, task models.Task) (models.Result, error) {
	return models.Succeeded(nil), nil
}

func stub(agentType string) *stubAgent {
	return &stubAgent{desc: models.AgentDescriptor{Type: agentType, Name: agentType, Active: true}}
}

func TestRegistryGet(t *testing.T) {
	reg, err := NewRegistry(stub("alpha"), stub("beta"))
	require.NoError(t, err)

	testCases := []struct {
		name        string
		agentType   string
		expectError bool
	}{
		{"registered alpha", "alpha", false},
		{"registered beta", "beta", false},
		{"unknown", "unknown-type-for-testing", true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			agent, err := reg.Get(tc.agentType)
			if tc.expectError {
				assert.Nil(t, agent)
				assert.EqualError(t, err, fmt.Sprintf("no agent registered for type: %s", tc.agentType))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.agentType, agent.Descriptor().Type)
		})
	}

	var empty Registry
	_, err = empty.Get("alpha")
	assert.Error(t, err)
	assert.Empty(t, empty.Descriptors())
}

func TestRegistryRejectsDuplicatesAndEmptyTypes(t *testing.T) {
	_, err := NewRegistry(stub("alpha"), stub("alpha"))
	assert.ErrorContains(t, err, "registered twice")

	_, err = NewRegistry(stub(""))
	assert.ErrorContains(t, err, "empty type")
}

func TestRegistrySwapIsAllOrNothing(t *testing.T) {
	reg, err := NewRegistry(stub("alpha"))
	require.NoError(t, err)

	assert.Error(t, reg.Swap(stub("gamma"), stub("gamma")))
	_, err = reg.Get("alpha")
	assert.NoError(t, err, "failed swap keeps the previous set")

	require.NoError(t, reg.Swap(stub("gamma"), stub("delta")))
	_, err = reg.Get("alpha")
	assert.Error(t, err)

	descs := reg.Descriptors()
	require.Len(t, descs, 2)
	assert.Equal(t, "gamma", descs[0].Type)
	assert.Equal(t, "delta", descs[1].Type)
}

func TestRegistryConcurrentReadsDuringSwap(t *testing.T) {
	reg, err := NewRegistry(stub("a"), stub("b"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				descs := reg.Descriptors()
				assert.Len(t, descs, 2)
			}
		}()
	}
	for j := 0; j < 200; j++ {
		if j%2 == 0 {
			require.NoError(t, reg.Swap(stub("c"), stub("d")))
		} else {
			require.NoError(t, reg.Swap(stub("a"), stub("b")))
		}
	}
	wg.Wait()
}
