package services

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent-orchestration-service/internal/agents"
	"agent-orchestration-service/internal/collaborators/llm"
	"agent-orchestration-service/internal/models"
	"agent-orchestration-service/internal/orchestrator/db"
	"agent-orchestration-service/internal/orchestrator/db/dbtest"
)

func newTestOrchestrator(t *testing.T, repo *db.Repository, list ...agents.Agent) *Orchestrator {
	t.Helper()
	reg, err := agents.NewRegistry(list...)
	require.NoError(t, err)
	log, _ := test.NewNullLogger()
	o, err := NewOrchestrator(context.Background(), Options{MaxInFlight: 4, DrainGrace: time.Second}, reg, repo, nil, log)
	require.NoError(t, err)
	t.Cleanup(func() { o.Shutdown() })
	return o
}

func TestSolverEndToEndForNewUser(t *testing.T) {
	repo := dbtest.NewRepository(t)
	ctx := context.Background()
	require.NoError(t, repo.CreateUser(ctx, &db.User{ID: "u1", Name: "Ada", Email: "ada@x", Verified: true}))
	require.NoError(t, repo.UpsertProblems(ctx, []db.Problem{
		{ID: "p1", ExternalID: 1, Title: "Two Sum", Slug: "two-sum", Difficulty: "Easy"},
		{ID: "p2", ExternalID: 2, Title: "Add Two Numbers", Slug: "add-two-numbers", Difficulty: "Medium"},
	}))
	log, _ := test.NewNullLogger()
	solver := agents.NewSolverAgent(agents.SolverOptions{Active: true}, repo, llm.MockGenerator{}, nil, log)
	o := newTestOrchestrator(t, repo, solver)

	res, err := o.DispatchManual(ctx, agents.TypeSolver, "u1", nil)
	require.NoError(t, err)
	require.True(t, res.Success)

	row, err := repo.GetTask(ctx, res.TaskID)
	require.NoError(t, err)
	assert.Equal(t, string(models.StatusCompleted), row.Status)
	assert.NotNil(t, row.StartedAt)
	assert.NotNil(t, row.CompletedAt)

	n, err := repo.CountSolutions(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	solutions, err := repo.RecentSolutions(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Equal(t, "p1", solutions[0].ProblemID)
}

func TestDispatchManualRejections(t *testing.T) {
	repo := dbtest.NewRepository(t)
	log, _ := test.NewNullLogger()
	inactive := newFuncAgent("sleepy", "", succeed)
	inactive.desc.Active = false
	solver := agents.NewSolverAgent(agents.SolverOptions{Active: true}, repo, llm.MockGenerator{}, nil, log)
	o := newTestOrchestrator(t, repo, inactive, solver)
	ctx := context.Background()

	testCases := []struct {
		name      string
		agentType string
		userID    string
		input     map[string]any
		kind      models.ErrorKind
	}{
		{"unknown agent", "Ghost", "u1", nil, models.KindAgentNotFound},
		{"inactive agent", "sleepy", "u1", nil, models.KindAgentInactive},
		{"missing user", agents.TypeSolver, "", nil, models.KindInvalidInput},
		{"bad difficulty", agents.TypeSolver, "u1", map[string]any{"difficulty": "Extreme"}, models.KindInvalidInput},
		{"unexpected field", agents.TypeSolver, "u1", map[string]any{"foo": 1}, models.KindInvalidInput},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := o.DispatchManual(ctx, tc.agentType, tc.userID, tc.input)
			require.Error(t, err)
			assert.Equal(t, tc.kind, models.KindOf(err))
		})
	}
	assert.EqualValues(t, 0, countTasks(t, repo))
}

func TestStartReconcilesInterruptedTasks(t *testing.T) {
	repo := dbtest.NewRepository(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, repo.CreateTask(ctx, &db.AgentTask{ID: "stale", AgentType: "a", UserID: "u1", Input: "{}",
		Owner: OwnerOrchestrator, Status: string(models.StatusInProgress), StartedAt: &now, CreatedAt: now}))
	require.NoError(t, repo.CreateTask(ctx, &db.AgentTask{ID: "queued", AgentType: "a", UserID: "u2", Input: "{}",
		Owner: OwnerWorker, Status: string(models.StatusInProgress), StartedAt: &now, CreatedAt: now}))
	o := newTestOrchestrator(t, repo, newFuncAgent("a", "0 * * * *", succeed))

	require.NoError(t, o.Start(ctx))
	assert.Equal(t, 1, o.TimerCount())

	row, err := repo.GetTask(ctx, "stale")
	require.NoError(t, err)
	assert.Equal(t, string(models.StatusFailed), row.Status)
	assert.Contains(t, row.Error, "Interrupted: ")

	row, err = repo.GetTask(ctx, "queued")
	require.NoError(t, err)
	assert.Equal(t, string(models.StatusInProgress), row.Status, "the worker's dispatch is left to the worker")
}

func TestDispatchStampsOwner(t *testing.T) {
	repo := dbtest.NewRepository(t)
	o := newTestOrchestrator(t, repo, newFuncAgent("a", "", succeed))

	res, err := o.DispatchManual(context.Background(), "a", "u1", nil)
	require.NoError(t, err)
	row, err := repo.GetTask(context.Background(), res.TaskID)
	require.NoError(t, err)
	assert.Equal(t, OwnerOrchestrator, row.Owner)
}

func TestAgentStatusAndHistory(t *testing.T) {
	repo := dbtest.NewRepository(t)
	ctx := context.Background()
	require.NoError(t, repo.CreateUser(ctx, &db.User{ID: "u1", Name: "Ada", Email: "ada@x", Verified: true}))
	o := newTestOrchestrator(t, repo,
		newFuncAgent("alpha", "0 * * * *", succeed),
		newFuncAgent("beta", "", succeed),
	)
	require.NoError(t, o.Start(ctx))

	for i := 0; i < 12; i++ {
		_, err := o.DispatchManual(ctx, "alpha", "u1", nil)
		require.NoError(t, err)
	}
	_, err := o.DispatchManual(ctx, "beta", "u1", nil)
	require.NoError(t, err)

	st, ok, err := o.GetAgentStatus(ctx, "alpha")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, st.Scheduled)
	assert.NotNil(t, st.NextRun)
	assert.Len(t, st.RecentTasks, RecentTasksPerAgent)
	assert.Equal(t, "Ada", st.RecentTasks[0].UserName)

	_, ok, err = o.GetAgentStatus(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, ok)

	all, err := o.GetAllAgentsStatus(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "alpha", all[0].Type)
	assert.False(t, all[1].Scheduled)

	history, err := o.GetUserHistory(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Len(t, history, 13)
	assert.Equal(t, "beta agent", history[0].AgentName)

	history, err = o.GetUserHistory(ctx, "u1", 5)
	require.NoError(t, err)
	assert.Len(t, history, 5)

	// beta disappears from the registry; its history keeps the stored type.
	require.NoError(t, o.Reload([]agents.Agent{newFuncAgent("alpha", "0 * * * *", succeed)}))
	assert.Equal(t, 1, o.TimerCount())
	history, err = o.GetUserHistory(ctx, "u1", 1)
	require.NoError(t, err)
	assert.Equal(t, "beta", history[0].AgentName)
}

func TestClampHistoryLimit(t *testing.T) {
	assert.Equal(t, DefaultHistoryLimit, ClampHistoryLimit(0))
	assert.Equal(t, DefaultHistoryLimit, ClampHistoryLimit(-3))
	assert.Equal(t, 7, ClampHistoryLimit(7))
	assert.Equal(t, MaxHistoryLimit, ClampHistoryLimit(1000))
}
