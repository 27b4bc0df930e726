package services

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent-orchestration-service/internal/agents"
	"agent-orchestration-service/internal/models"
	"agent-orchestration-service/internal/orchestrator/db"
	"agent-orchestration-service/internal/orchestrator/db/dbtest"
)

func succeed(ctx context.Context, task models.Task) (models.Result, error) {
	return models.Succeeded(nil), nil
}

func newTestScheduler(t *testing.T, opts SchedulerOptions, list ...agents.Agent) (*SchedulerService, *db.Repository) {
	t.Helper()
	repo := dbtest.NewRepository(t)
	reg, err := agents.NewRegistry(list...)
	require.NoError(t, err)
	log, _ := test.NewNullLogger()
	exec := NewExecutor(reg, repo, nil, 4, OwnerOrchestrator, log)
	s, err := NewSchedulerService(context.Background(), opts, reg, repo, exec, log)
	require.NoError(t, err)
	t.Cleanup(s.Shutdown)
	return s, repo
}

func TestSchedulerRestartKeepsOneTimerPerAgent(t *testing.T) {
	inactive := newFuncAgent("inactive", "0 * * * *", succeed)
	inactive.desc.Active = false
	s, _ := newTestScheduler(t, SchedulerOptions{},
		newFuncAgent("hourly", "0 * * * *", succeed),
		newFuncAgent("daily", "0 9 * * *", succeed),
		newFuncAgent("manual", "", succeed),
		inactive,
	)

	require.NoError(t, s.Start())
	assert.Equal(t, 2, s.TimerCount())
	assert.Equal(t, []string{"daily", "hourly"}, s.ScheduledAgents())

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Restart())
	}
	assert.Equal(t, 2, s.TimerCount())

	next, ok := s.NextRun("daily")
	require.True(t, ok)
	assert.True(t, next.After(time.Now()))
	_, ok = s.NextRun("manual")
	assert.False(t, ok)

	s.StopAll()
	assert.Equal(t, 0, s.TimerCount())
	assert.Empty(t, s.ScheduledAgents())

	require.NoError(t, s.Restart())
	assert.Equal(t, 2, s.TimerCount())
}

func TestSchedulerReportsInvalidCron(t *testing.T) {
	s, _ := newTestScheduler(t, SchedulerOptions{},
		newFuncAgent("good", "0 * * * *", succeed),
		newFuncAgent("bad", "not a cron", succeed),
	)
	err := s.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schedule bad")
	assert.Equal(t, 1, s.TimerCount())
}

func TestSchedulerFollowUpSweepIsNotAnAgentTimer(t *testing.T) {
	s, _ := newTestScheduler(t, SchedulerOptions{FollowUpSweep: time.Hour},
		newFuncAgent("hourly", "0 * * * *", succeed),
	)
	require.NoError(t, s.Start())
	assert.Equal(t, 1, s.TimerCount())
	assert.Len(t, s.Scheduler.Jobs(), 2)

	require.NoError(t, s.Restart())
	assert.Len(t, s.Scheduler.Jobs(), 2)
}

func TestSchedulerFireDispatchesEveryVerifiedUser(t *testing.T) {
	picky := newFuncAgent("picky", "0 * * * *", func(ctx context.Context, task models.Task) (models.Result, error) {
		if task.UserID == "u2" {
			return models.Failed(models.KindNoSuitableItem, "none"), nil
		}
		return models.Succeeded(nil), nil
	})
	s, repo := newTestScheduler(t, SchedulerOptions{}, picky)
	ctx := context.Background()
	for _, u := range []db.User{
		{ID: "u1", Email: "u1@x", Verified: true},
		{ID: "u2", Email: "u2@x", Verified: true},
		{ID: "u3", Email: "u3@x", Verified: true},
		{ID: "u4", Email: "u4@x", Verified: false},
	} {
		require.NoError(t, repo.CreateUser(ctx, &u))
	}

	s.fire("picky")

	for _, id := range []string{"u1", "u3"} {
		rows, err := repo.TasksByUser(ctx, id, 10)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, string(models.StatusCompleted), rows[0].Status)
	}
	rows, err := repo.TasksByUser(ctx, "u2", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, string(models.StatusFailed), rows[0].Status)

	rows, err = repo.TasksByUser(ctx, "u4", 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSchedulerSweepRunsDueFollowUps(t *testing.T) {
	s, repo := newTestScheduler(t, SchedulerOptions{}, newFuncAgent("profile", "", succeed))
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Minute)
	future := time.Now().UTC().Add(time.Hour)
	require.NoError(t, repo.CreateTasks(ctx, []db.AgentTask{
		{ID: "due", AgentType: "profile", UserID: "u1", Kind: "SKILL_SHOWCASE", Input: "{}", Status: string(models.StatusPending), ScheduledAt: &past, CreatedAt: past},
		{ID: "later", AgentType: "profile", UserID: "u1", Kind: "SKILL_SHOWCASE", Input: "{}", Status: string(models.StatusPending), ScheduledAt: &future, CreatedAt: past},
	}))

	s.sweepFollowUps()

	due, err := repo.GetTask(ctx, "due")
	require.NoError(t, err)
	assert.Equal(t, string(models.StatusCompleted), due.Status)
	later, err := repo.GetTask(ctx, "later")
	require.NoError(t, err)
	assert.Equal(t, string(models.StatusPending), later.Status)
}
