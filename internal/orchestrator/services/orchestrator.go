package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"agent-orchestration-service/internal/agents"
	"agent-orchestration-service/internal/models"
	"agent-orchestration-service/pkg/validation"
)

// Store is everything the orchestrator persists and reads.
type Store interface {
	TaskStore
	SchedulerStore
	QueryStore
	FailInterrupted(ctx context.Context, owner, reason string, at time.Time) (int64, error)
}

// Task owners. Each process role stamps the tasks it starts and only reconciles its own.
const (
	OwnerOrchestrator = "orchestrator"
	OwnerWorker       = "worker"
	OwnerCLI          = "agentctl"
)

type Options struct {
	Scheduler   SchedulerOptions
	MaxInFlight int64
	DrainGrace  time.Duration
	// DisableScheduler keeps timers off, for processes that only serve queued dispatches.
	DisableScheduler bool
	// Owner stamps started tasks and scopes Reconcile. Defaults to OwnerOrchestrator.
	Owner string
}

// Orchestrator is the service facade used by the API, the worker and the CLI.
type Orchestrator struct {
	registry  *agents.Registry
	store     Store
	executor  *Executor
	scheduler *SchedulerService
	queries   *QueryService
	opts      Options
	log       logrus.FieldLogger
}

func NewOrchestrator(ctx context.Context, opts Options, registry *agents.Registry, store Store, notifier Notifier, log logrus.FieldLogger) (*Orchestrator, error) {
	if opts.Owner == "" {
		opts.Owner = OwnerOrchestrator
	}
	executor := NewExecutor(registry, store, notifier, opts.MaxInFlight, opts.Owner, log.WithField("component", "executor"))
	scheduler, err := NewSchedulerService(ctx, opts.Scheduler, registry, store, executor, log.WithField("component", "scheduler"))
	if err != nil {
		return nil, err
	}
	o := &Orchestrator{
		registry:  registry,
		store:     store,
		executor:  executor,
		scheduler: scheduler,
		opts:      opts,
		log:       log,
	}
	o.queries = NewQueryService(store, o.agentName)
	return o, nil
}

func (o *Orchestrator) agentName(agentType string) (string, bool) {
	a, err := o.registry.Get(agentType)
	if err != nil {
		return "", false
	}
	return a.Descriptor().Name, true
}

// Reconcile fails every task this owner left InProgress in a previous process.
func (o *Orchestrator) Reconcile(ctx context.Context) (int64, error) {
	reason := models.FormatError(models.KindInterrupted, "process stopped before the task finished")
	n, err := o.store.FailInterrupted(ctx, o.opts.Owner, reason, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		o.log.WithFields(logrus.Fields{"tasks": n, "owner": o.opts.Owner}).Warn("reconciled interrupted tasks")
	}
	return n, nil
}

// Start reconciles interrupted tasks, then starts the scheduler.
func (o *Orchestrator) Start(ctx context.Context) error {
	if _, err := o.Reconcile(ctx); err != nil {
		return err
	}
	if o.opts.DisableScheduler {
		return nil
	}
	return o.scheduler.Start()
}

// DispatchManual runs one agent for one user immediately.
func (o *Orchestrator) DispatchManual(ctx context.Context, agentType, userID string, input map[string]any) (models.Result, error) {
	agent, err := o.registry.Get(agentType)
	if err != nil {
		return models.Result{}, models.NewError(models.KindAgentNotFound, agentType, err)
	}
	desc := agent.Descriptor()
	if !desc.Active {
		return models.Result{}, models.Errorf(models.KindAgentInactive, "agent %s is not active", agentType)
	}
	if userID == "" {
		return models.Result{}, models.Errorf(models.KindInvalidInput, "userId is required")
	}
	if err := validation.ValidateValue(desc.InputSchema, input); err != nil {
		return models.Result{}, models.NewError(models.KindInvalidInput, "input rejected", err)
	}
	return o.executor.Dispatch(ctx, agentType, userID, input)
}

// GetAgentStatus reports one agent. ok is false for an unknown type.
func (o *Orchestrator) GetAgentStatus(ctx context.Context, agentType string) (*AgentStatus, bool, error) {
	agent, err := o.registry.Get(agentType)
	if err != nil {
		return nil, false, nil
	}
	status, err := o.status(ctx, agent.Descriptor())
	if err != nil {
		return nil, true, err
	}
	return status, true, nil
}

func (o *Orchestrator) status(ctx context.Context, desc models.AgentDescriptor) (*AgentStatus, error) {
	recent, err := o.queries.RecentTasks(ctx, desc.Type)
	if err != nil {
		return nil, err
	}
	st := &AgentStatus{AgentDescriptor: desc, RecentTasks: recent}
	if next, ok := o.scheduler.NextRun(desc.Type); ok {
		st.Scheduled = true
		st.NextRun = &next
	}
	return st, nil
}

// GetAllAgentsStatus reports every registered agent in registration order.
func (o *Orchestrator) GetAllAgentsStatus(ctx context.Context) ([]AgentStatus, error) {
	descs := o.registry.Descriptors()
	out := make([]AgentStatus, 0, len(descs))
	for _, d := range descs {
		st, err := o.status(ctx, d)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, nil
}

// GetUserHistory returns a user's tasks, newest first.
func (o *Orchestrator) GetUserHistory(ctx context.Context, userID string, limit int) ([]TaskView, error) {
	return o.queries.UserHistory(ctx, userID, limit)
}

// StopAll removes every agent timer. In-flight dispatches are left to finish.
func (o *Orchestrator) StopAll() { o.scheduler.StopAll() }

// Restart rebuilds the timers from the registry.
func (o *Orchestrator) Restart() error { return o.scheduler.Restart() }

// Reload swaps in a new agent set and rebuilds the timers.
func (o *Orchestrator) Reload(list []agents.Agent) error {
	if err := o.registry.Swap(list...); err != nil {
		return err
	}
	o.log.WithField("agents", len(list)).Info("agent registry reloaded")
	if o.opts.DisableScheduler {
		return nil
	}
	return o.scheduler.Restart()
}

// TimerCount reports how many agent timers are live.
func (o *Orchestrator) TimerCount() int { return o.scheduler.TimerCount() }

// InFlight reports running dispatches.
func (o *Orchestrator) InFlight() int64 { return o.executor.InFlight() }

// Shutdown stops timers, drains in-flight dispatches up to the grace period and stops the
// scheduler.
func (o *Orchestrator) Shutdown() bool {
	o.scheduler.StopAll()
	grace := o.opts.DrainGrace
	if grace <= 0 {
		grace = 30 * time.Second
	}
	drained := o.executor.Drain(grace)
	o.scheduler.Shutdown()
	return drained
}
