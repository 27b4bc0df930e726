package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"agent-orchestration-service/internal/agents"
	"agent-orchestration-service/internal/models"
	"agent-orchestration-service/internal/orchestrator/db"
	"agent-orchestration-service/internal/orchestrator/db/dbtest"
)

type funcAgent struct {
	desc models.AgentDescriptor
	run  func(ctx context.Context, task models.Task) (models.Result, error)
}

func (f *funcAgent) Descriptor() models.AgentDescriptor { return f.desc }

func (f *funcAgent) Execute(ctx context.Context, task models.Task) (models.Result, error) {
	return f.run(ctx, task)
}

func newFuncAgent(agentType, schedule string, run func(ctx context.Context, task models.Task) (models.Result, error)) *funcAgent {
	return &funcAgent{
		desc: models.AgentDescriptor{Type: agentType, Name: agentType + " agent", Schedule: schedule, Active: true},
		run:  run,
	}
}

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) Notify(ctx context.Context, userID, agentType string, result models.Result) error {
	args := m.Called(ctx, userID, agentType, result)
	return args.Error(0)
}

func newTestExecutor(t *testing.T, notifier Notifier, list ...agents.Agent) (*Executor, *db.Repository, *test.Hook) {
	t.Helper()
	repo := dbtest.NewRepository(t)
	reg, err := agents.NewRegistry(list...)
	require.NoError(t, err)
	log, hook := test.NewNullLogger()
	return NewExecutor(reg, repo, notifier, 4, OwnerOrchestrator, log), repo, hook
}

func countTasks(t *testing.T, repo *db.Repository) int64 {
	t.Helper()
	var n int64
	require.NoError(t, repo.DB.Model(&db.AgentTask{}).Count(&n).Error)
	return n
}

func TestExecutorUnknownAgentWritesNothing(t *testing.T) {
	exec, repo, _ := newTestExecutor(t, nil)

	_, err := exec.Dispatch(context.Background(), "Nope", "u1", nil)
	require.Error(t, err)
	assert.Equal(t, models.KindAgentNotFound, models.KindOf(err))
	assert.EqualValues(t, 0, countTasks(t, repo))
}

func TestExecutorFailureAndFaultDifferOnlyInError(t *testing.T) {
	business := newFuncAgent("business", "", func(ctx context.Context, task models.Task) (models.Result, error) {
		return models.Failed(models.KindNoSuitableItem, "nothing left"), nil
	})
	fault := newFuncAgent("fault", "", func(ctx context.Context, task models.Task) (models.Result, error) {
		return models.Result{}, models.NewError(models.KindTimeout, "generate", context.DeadlineExceeded)
	})
	exec, repo, _ := newTestExecutor(t, nil, business, fault)
	ctx := context.Background()

	r1, err := exec.Dispatch(ctx, "business", "u1", nil)
	require.NoError(t, err)
	r2, err := exec.Dispatch(ctx, "fault", "u1", nil)
	require.NoError(t, err)

	assert.False(t, r1.Success)
	assert.False(t, r2.Success)
	assert.Equal(t, models.KindTimeout, r2.Kind)

	t1, err := repo.GetTask(ctx, r1.TaskID)
	require.NoError(t, err)
	t2, err := repo.GetTask(ctx, r2.TaskID)
	require.NoError(t, err)

	assert.Equal(t, string(models.StatusFailed), t1.Status)
	assert.Equal(t, string(models.StatusFailed), t2.Status)
	assert.NotNil(t, t1.CompletedAt)
	assert.NotNil(t, t2.CompletedAt)
	assert.Empty(t, t1.Output)
	assert.Empty(t, t2.Output)
	assert.Equal(t, "NoSuitableItem: nothing left", t1.Error)
	assert.Equal(t, "Timeout: generate: context deadline exceeded", t2.Error)
}

func TestDescribeKeepsOneKindPrefix(t *testing.T) {
	timeout := models.NewError(models.KindTimeout, "openai chat completion", context.DeadlineExceeded)
	testCases := []struct {
		name string
		err  error
		want string
	}{
		{"plain", errors.New("boom"), "CollaboratorFault: boom"},
		{"deadline", fmt.Errorf("search: %w", context.DeadlineExceeded), "Timeout: search: context deadline exceeded"},
		{"classified", timeout, "Timeout: openai chat completion: context deadline exceeded"},
		{
			"wrapped classified",
			fmt.Errorf("generate solution for %q: %w", "Two Sum", timeout),
			`Timeout: generate solution for "Two Sum": openai chat completion: context deadline exceeded`,
		},
		{
			"classified inside classified",
			models.NewError(models.KindPersistenceFault, "save solution", models.NewError(models.KindPersistenceFault, "insert", errors.New("disk full"))),
			"PersistenceFault: save solution: insert: disk full",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, describe(tc.err))
		})
	}
}

func TestExecutorRecoversPanics(t *testing.T) {
	boom := newFuncAgent("boom", "", func(ctx context.Context, task models.Task) (models.Result, error) {
		panic("kaboom")
	})
	exec, repo, _ := newTestExecutor(t, nil, boom)

	res, err := exec.Dispatch(context.Background(), "boom", "u1", nil)
	require.NoError(t, err)
	assert.Equal(t, models.KindCollaboratorFault, res.Kind)

	row, err := repo.GetTask(context.Background(), res.TaskID)
	require.NoError(t, err)
	assert.Equal(t, string(models.StatusFailed), row.Status)
	assert.Contains(t, row.Error, "kaboom")
}

func TestExecutorCompletesAndNotifies(t *testing.T) {
	notifier := new(mockNotifier)
	ok := newFuncAgent("ok", "", func(ctx context.Context, task models.Task) (models.Result, error) {
		assert.Equal(t, models.StatusInProgress, task.Status)
		assert.NotNil(t, task.StartedAt)
		return models.Succeeded(map[string]any{"answer": 42.0}), nil
	})
	exec, repo, _ := newTestExecutor(t, notifier, ok)
	notifier.On("Notify", mock.Anything, "u1", "ok", mock.MatchedBy(func(r models.Result) bool {
		return r.Success && r.TaskID != ""
	})).Return(nil).Once()

	res, err := exec.Dispatch(context.Background(), "ok", "u1", map[string]any{"x": "y"})
	require.NoError(t, err)
	require.True(t, res.Success)

	row, err := repo.GetTask(context.Background(), res.TaskID)
	require.NoError(t, err)
	assert.Equal(t, string(models.StatusCompleted), row.Status)
	assert.JSONEq(t, `{"answer":42}`, row.Output)
	assert.JSONEq(t, `{"x":"y"}`, row.Input)
	assert.Empty(t, row.Error)
	notifier.AssertExpectations(t)
}

func TestExecutorNotifyFailureIsLoggedOnly(t *testing.T) {
	notifier := new(mockNotifier)
	ok := newFuncAgent("ok", "", func(ctx context.Context, task models.Task) (models.Result, error) {
		return models.Succeeded(nil), nil
	})
	exec, repo, hook := newTestExecutor(t, notifier, ok)
	notifier.On("Notify", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))

	res, err := exec.Dispatch(context.Background(), "ok", "u1", nil)
	require.NoError(t, err)
	assert.True(t, res.Success)

	row, err := repo.GetTask(context.Background(), res.TaskID)
	require.NoError(t, err)
	assert.Equal(t, string(models.StatusCompleted), row.Status)

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, "completion notification failed", hook.LastEntry().Message)
}

func TestExecutorFailedTasksAreNotNotified(t *testing.T) {
	notifier := new(mockNotifier)
	bad := newFuncAgent("bad", "", func(ctx context.Context, task models.Task) (models.Result, error) {
		return models.Failed(models.KindUserNotFound, "who"), nil
	})
	exec, _, _ := newTestExecutor(t, notifier, bad)

	_, err := exec.Dispatch(context.Background(), "bad", "u1", nil)
	require.NoError(t, err)
	notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestExecutorPersistenceFaultPropagates(t *testing.T) {
	broken := newFuncAgent("broken", "", func(ctx context.Context, task models.Task) (models.Result, error) {
		return models.Result{}, models.NewError(models.KindPersistenceFault, "save solution", errors.New("disk full"))
	})
	exec, repo, _ := newTestExecutor(t, nil, broken)

	res, err := exec.Dispatch(context.Background(), "broken", "u1", nil)
	require.Error(t, err)
	assert.Equal(t, models.KindPersistenceFault, models.KindOf(err))

	row, gerr := repo.GetTask(context.Background(), res.TaskID)
	require.NoError(t, gerr)
	assert.Equal(t, string(models.StatusFailed), row.Status)
}

func TestExecutorTerminalWriteSurvivesCancellation(t *testing.T) {
	started := make(chan struct{})
	slow := newFuncAgent("slow", "", func(ctx context.Context, task models.Task) (models.Result, error) {
		close(started)
		<-ctx.Done()
		return models.Result{}, ctx.Err()
	})
	exec, repo, _ := newTestExecutor(t, nil, slow)

	ctx, cancel := context.WithCancel(context.Background())
	var res models.Result
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		res, _ = exec.Dispatch(ctx, "slow", "u1", nil)
	}()
	<-started
	cancel()
	wg.Wait()

	row, err := repo.GetTask(context.Background(), res.TaskID)
	require.NoError(t, err)
	assert.Equal(t, string(models.StatusFailed), row.Status)
	assert.NotNil(t, row.CompletedAt)
}

func TestExecutorRunPendingIsGuarded(t *testing.T) {
	var runs int
	var mu sync.Mutex
	follow := newFuncAgent("follow", "", func(ctx context.Context, task models.Task) (models.Result, error) {
		mu.Lock()
		runs++
		mu.Unlock()
		assert.Equal(t, "README_OPTIMIZATION", task.Kind)
		return models.Succeeded(nil), nil
	})
	exec, repo, _ := newTestExecutor(t, nil, follow)
	ctx := context.Background()

	at := time.Now().UTC().Add(-time.Minute)
	row := db.AgentTask{ID: "p1", AgentType: "follow", UserID: "u1", Kind: "README_OPTIMIZATION",
		Input: "{}", Status: string(models.StatusPending), ScheduledAt: &at, CreatedAt: at}
	require.NoError(t, repo.CreateTasks(ctx, []db.AgentTask{row}))

	res, ran, err := exec.RunPending(ctx, row)
	require.NoError(t, err)
	assert.True(t, ran)
	assert.True(t, res.Success)

	_, ran, err = exec.RunPending(ctx, row)
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Equal(t, 1, runs)

	got, err := repo.GetTask(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, string(models.StatusCompleted), got.Status)
}

func TestExecutorRunPendingUnknownAgentStartsThenFails(t *testing.T) {
	exec, repo, _ := newTestExecutor(t, nil)
	ctx := context.Background()

	at := time.Now().UTC().Add(-time.Minute)
	row := db.AgentTask{ID: "p1", AgentType: "Retired", UserID: "u1", Kind: "README_OPTIMIZATION",
		Input: "{}", Status: string(models.StatusPending), ScheduledAt: &at, CreatedAt: at}
	require.NoError(t, repo.CreateTasks(ctx, []db.AgentTask{row}))

	res, ran, err := exec.RunPending(ctx, row)
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, models.KindAgentNotFound, res.Kind)

	got, err := repo.GetTask(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, string(models.StatusFailed), got.Status)
	assert.Equal(t, "AgentNotFound: no agent registered for type Retired", got.Error)
	assert.NotNil(t, got.StartedAt, "the task went through InProgress")
	assert.NotNil(t, got.CompletedAt)
}

func TestExecutorBoundsConcurrencyAndDrains(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	var cur, peak int
	slow := newFuncAgent("slow", "", func(ctx context.Context, task models.Task) (models.Result, error) {
		mu.Lock()
		cur++
		if cur > peak {
			peak = cur
		}
		mu.Unlock()
		<-release
		mu.Lock()
		cur--
		mu.Unlock()
		return models.Succeeded(nil), nil
	})
	repo := dbtest.NewRepository(t)
	reg, err := agents.NewRegistry(slow)
	require.NoError(t, err)
	log, _ := test.NewNullLogger()
	exec := NewExecutor(reg, repo, nil, 2, OwnerOrchestrator, log)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = exec.Dispatch(context.Background(), "slow", "u1", nil)
		}()
	}
	assert.Eventually(t, func() bool { return exec.InFlight() == 2 }, time.Second, 5*time.Millisecond)
	assert.False(t, exec.Drain(20*time.Millisecond))

	close(release)
	wg.Wait()
	assert.True(t, exec.Drain(time.Second))
	assert.LessOrEqual(t, peak, 2)

	_, err = exec.Dispatch(context.Background(), "slow", "u1", nil)
	assert.Equal(t, models.KindInterrupted, models.KindOf(err))
}

func TestExecutorDrainLeavesNoAdmittedDispatchRunning(t *testing.T) {
	quick := newFuncAgent("quick", "", func(ctx context.Context, task models.Task) (models.Result, error) {
		time.Sleep(time.Millisecond)
		return models.Succeeded(nil), nil
	})
	for round := 0; round < 20; round++ {
		exec, repo, _ := newTestExecutor(t, nil, quick)

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = exec.Dispatch(context.Background(), "quick", "u1", nil)
			}()
		}
		require.True(t, exec.Drain(5*time.Second))

		// Everything admitted before Drain returned has reached a terminal state.
		var running int64
		require.NoError(t, repo.DB.Model(&db.AgentTask{}).Where("status = ?", string(models.StatusInProgress)).Count(&running).Error)
		assert.Zero(t, running, "round %d", round)
		assert.Zero(t, exec.InFlight())
		wg.Wait()
	}
}
