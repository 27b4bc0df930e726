package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"agent-orchestration-service/internal/agents"
	"agent-orchestration-service/internal/models"
	"agent-orchestration-service/internal/orchestrator/db"
)

// terminalWriteTimeout bounds the final status write, which runs detached from the
// dispatch context so shutdown cancellation cannot leave a row InProgress.
const terminalWriteTimeout = 10 * time.Second

// AgentResolver looks agents up by type.
type AgentResolver interface {
	Get(agentType string) (agents.Agent, error)
}

// TaskStore is the task persistence the executor needs.
type TaskStore interface {
	CreateTask(ctx context.Context, task *db.AgentTask) error
	StartPendingTask(ctx context.Context, id, owner string, startedAt time.Time) error
	FinishTask(ctx context.Context, id string, status models.Status, output, errMsg string, completedAt time.Time) error
}

// Notifier is told about every completed task. Delivery is best-effort.
type Notifier interface {
	Notify(ctx context.Context, userID, agentType string, result models.Result) error
}

// Executor drives tasks through their lifecycle with bounded concurrency.
type Executor struct {
	registry AgentResolver
	store    TaskStore
	notifier Notifier
	sem      *semaphore.Weighted
	owner    string
	log      logrus.FieldLogger

	// mu orders admission against Drain so wg.Add never races wg.Wait.
	mu       sync.Mutex
	closing  bool
	wg       sync.WaitGroup
	inFlight atomic.Int64

	now   func() time.Time
	newID func() string
}

// NewExecutor builds an executor. Tasks it starts are stamped with owner.
func NewExecutor(registry AgentResolver, store TaskStore, notifier Notifier, maxInFlight int64, owner string, log logrus.FieldLogger) *Executor {
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	return &Executor{
		registry: registry,
		store:    store,
		notifier: notifier,
		sem:      semaphore.NewWeighted(maxInFlight),
		owner:    owner,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// Dispatch creates one InProgress task for userID and runs agentType on it.
//
// An unknown agent type returns a KindAgentNotFound error and writes nothing. Agent
// failures, faults and panics all end as a Failed task and are reported through the
// returned Result. A non-nil error is only returned when no task row could be written or
// a status write was rejected by the store (KindPersistenceFault).
func (e *Executor) Dispatch(ctx context.Context, agentType, userID string, input map[string]any) (models.Result, error) {
	agent, err := e.registry.Get(agentType)
	if err != nil {
		return models.Result{}, models.NewError(models.KindAgentNotFound, agentType, err)
	}
	release, err := e.admit(ctx)
	if err != nil {
		return models.Result{}, err
	}
	defer release()

	started := e.now()
	row := &db.AgentTask{
		ID:        e.newID(),
		AgentType: agentType,
		UserID:    userID,
		Kind:      agentType,
		Owner:     e.owner,
		Input:     encodePayload(input),
		Status:    string(models.StatusInProgress),
		StartedAt: &started,
		CreatedAt: started,
	}
	if err := e.store.CreateTask(ctx, row); err != nil {
		return models.Result{}, err
	}
	return e.drive(ctx, agent, toModel(*row))
}

// RunPending moves a due Pending task to InProgress and runs it. Tasks that are no longer
// Pending are skipped with ok=false.
func (e *Executor) RunPending(ctx context.Context, row db.AgentTask) (res models.Result, ok bool, err error) {
	release, err := e.admit(ctx)
	if err != nil {
		return models.Result{}, false, err
	}
	defer release()

	started := e.now()
	if err := e.store.StartPendingTask(ctx, row.ID, e.owner, started); err != nil {
		if isGuardMiss(err) {
			return models.Result{}, false, nil
		}
		return models.Result{}, false, err
	}

	agent, err := e.registry.Get(row.AgentType)
	if err != nil {
		// The row is claimed, so it is failed rather than left running.
		msg := models.FormatError(models.KindAgentNotFound, "no agent registered for type "+row.AgentType)
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
		defer cancel()
		if ferr := e.store.FinishTask(writeCtx, row.ID, models.StatusFailed, "", msg, e.now()); ferr != nil && !isGuardMiss(ferr) {
			return models.Result{}, true, ferr
		}
		return models.Result{Kind: models.KindAgentNotFound, Error: msg, TaskID: row.ID}, true, nil
	}

	task := toModel(row)
	task.Status = models.StatusInProgress
	task.StartedAt = &started
	res, err = e.drive(ctx, agent, task)
	return res, true, err
}

func isGuardMiss(err error) bool {
	return errors.Is(err, db.ErrTaskNotPending) || errors.Is(err, db.ErrTaskTerminal) || errors.Is(err, db.ErrTaskNotFound)
}

// admit registers an in-flight dispatch and takes a concurrency slot.
func (e *Executor) admit(ctx context.Context) (func(), error) {
	e.mu.Lock()
	if e.closing {
		e.mu.Unlock()
		return nil, models.Errorf(models.KindInterrupted, "executor is shutting down")
	}
	e.wg.Add(1)
	e.mu.Unlock()
	if err := e.sem.Acquire(ctx, 1); err != nil {
		e.wg.Done()
		return nil, models.NewError(models.KindInterrupted, "waiting for a dispatch slot", err)
	}
	e.inFlight.Add(1)
	return func() {
		e.inFlight.Add(-1)
		e.sem.Release(1)
		e.wg.Done()
	}, nil
}

func (e *Executor) drive(ctx context.Context, agent agents.Agent, task models.Task) (models.Result, error) {
	logger := e.log.WithFields(logrus.Fields{"task_id": task.ID, "agent_type": task.AgentType, "user_id": task.UserID})

	res, runErr := e.invoke(ctx, agent, task)
	res.TaskID = task.ID

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
	defer cancel()

	if runErr != nil {
		kind := models.KindOf(runErr)
		res = models.Result{Success: false, Kind: kind, Error: describe(runErr), TaskID: task.ID}
		werr := e.store.FinishTask(writeCtx, task.ID, models.StatusFailed, "", res.Error, e.now())
		if kind == models.KindPersistenceFault {
			logger.WithError(runErr).Error("dispatch aborted by persistence fault")
			return res, runErr
		}
		if werr != nil && !isGuardMiss(werr) {
			logger.WithError(werr).Error("failed to record task failure")
			return res, werr
		}
		logger.WithError(runErr).WithField("kind", kind).Warn("task failed")
		return res, nil
	}

	if !res.Success {
		if res.Error == "" {
			res.Error = models.FormatError(res.Kind, "agent reported failure")
		}
		if err := e.store.FinishTask(writeCtx, task.ID, models.StatusFailed, "", res.Error, e.now()); err != nil && !isGuardMiss(err) {
			logger.WithError(err).Error("failed to record task failure")
			return res, err
		}
		logger.WithField("kind", res.Kind).Info("task failed: " + res.Error)
		return res, nil
	}

	if err := e.store.FinishTask(writeCtx, task.ID, models.StatusCompleted, encodePayload(res.Output), "", e.now()); err != nil {
		if isGuardMiss(err) {
			logger.WithError(err).Warn("task already terminal, completion not recorded")
			return res, nil
		}
		logger.WithError(err).Error("failed to record task completion")
		return res, err
	}
	if res.Warning != "" {
		logger.WithField("warning", res.Warning).Warn("task completed with warning")
	} else {
		logger.Info("task completed")
	}

	if e.notifier != nil {
		if err := e.notifier.Notify(writeCtx, task.UserID, task.AgentType, res); err != nil {
			logger.WithError(err).Warn("completion notification failed")
		}
	}
	return res, nil
}

// invoke runs the agent, converting a panic into an error.
func (e *Executor) invoke(ctx context.Context, agent agents.Agent, task models.Task) (res models.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = models.Errorf(models.KindCollaboratorFault, "agent panicked: %v", r)
		}
	}()
	return agent.Execute(ctx, task)
}

// describe renders an error as the short string stored on the task. Only the outermost
// kind is kept as a prefix; kinds of wrapped classified errors are dropped from the text.
func describe(err error) string {
	msg := err.Error()
	for cur := err; cur != nil; cur = errors.Unwrap(cur) {
		me, ok := cur.(*models.Error)
		if !ok {
			continue
		}
		full := me.Error()
		msg = strings.Replace(msg, full, strings.TrimPrefix(full, string(me.Kind)+": "), 1)
	}
	return models.FormatError(models.KindOf(err), msg)
}

// InFlight reports how many dispatches currently hold a slot.
func (e *Executor) InFlight() int64 { return e.inFlight.Load() }

// Drain stops admitting new dispatches and waits for in-flight ones, up to grace.
// It reports whether everything finished in time.
func (e *Executor) Drain(grace time.Duration) bool {
	e.mu.Lock()
	e.closing = true
	e.mu.Unlock()
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(grace):
		e.log.WithField("in_flight", e.InFlight()).Warn(fmt.Sprintf("drain grace of %s elapsed with dispatches still running", grace))
		return false
	}
}
