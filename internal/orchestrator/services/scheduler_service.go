package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"agent-orchestration-service/internal/models"
	"agent-orchestration-service/internal/orchestrator/db"
)

const (
	agentScheduleTag = "agent_schedule"
	followUpSweepTag = "followup_sweep"
)

// DescriptorSource lists the currently registered agents.
type DescriptorSource interface {
	Descriptors() []models.AgentDescriptor
}

// SchedulerStore is the persistence the scheduler reads on fire.
type SchedulerStore interface {
	VerifiedUsers(ctx context.Context) ([]db.User, error)
	DuePendingTasks(ctx context.Context, now time.Time, limit int) ([]db.AgentTask, error)
}

// Dispatcher runs tasks. *Executor implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, agentType, userID string, input map[string]any) (models.Result, error)
	RunPending(ctx context.Context, row db.AgentTask) (models.Result, bool, error)
}

type SchedulerOptions struct {
	Location      *time.Location
	Locker        gocron.Locker // optional, for multi-replica deployments
	FollowUpSweep time.Duration // 0 disables the follow-up sweep
	FollowUpBatch int
}

// SchedulerService keeps one cron job per active, scheduled agent.
type SchedulerService struct {
	Scheduler  gocron.Scheduler
	agents     DescriptorSource
	store      SchedulerStore
	dispatcher Dispatcher
	opts       SchedulerOptions
	log        logrus.FieldLogger
	appContext context.Context

	mu       sync.Mutex
	jobs     map[string]uuid.UUID // agent type -> gocron job id
	sweepJob *uuid.UUID
}

func NewSchedulerService(ctx context.Context, opts SchedulerOptions, agents DescriptorSource, store SchedulerStore, dispatcher Dispatcher, log logrus.FieldLogger) (*SchedulerService, error) {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.FollowUpBatch <= 0 {
		opts.FollowUpBatch = 50
	}
	schedOpts := []gocron.SchedulerOption{gocron.WithLocation(opts.Location)}
	if opts.Locker != nil {
		schedOpts = append(schedOpts, gocron.WithDistributedLocker(opts.Locker))
	}
	s, err := gocron.NewScheduler(schedOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &SchedulerService{
		Scheduler:  s,
		agents:     agents,
		store:      store,
		dispatcher: dispatcher,
		opts:       opts,
		log:        log,
		appContext: ctx,
		jobs:       make(map[string]uuid.UUID),
	}, nil
}

// Start starts the underlying scheduler and builds the agent jobs.
func (s *SchedulerService) Start() error {
	s.log.Info("scheduler starting")
	s.Scheduler.Start()
	return s.Restart()
}

// StopAll removes every agent job and the follow-up sweep. The scheduler itself keeps
// running so Restart can rebuild the jobs.
func (s *SchedulerService) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *SchedulerService) stopLocked() {
	s.Scheduler.RemoveByTags(agentScheduleTag, followUpSweepTag)
	s.jobs = make(map[string]uuid.UUID)
	s.sweepJob = nil
	s.log.Info("all agent timers stopped")
}

// Restart stops every timer and rebuilds one per active, scheduled agent from the
// current registry. Agents whose schedule cannot be parsed are skipped and reported.
func (s *SchedulerService) Restart() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()

	var errs []error
	for _, desc := range s.agents.Descriptors() {
		if !desc.Scheduled() {
			continue
		}
		agentType := desc.Type
		job, err := s.Scheduler.NewJob(
			gocron.CronJob(desc.Schedule, false),
			gocron.NewTask(s.fire, agentType),
			gocron.WithName("agent_"+agentType),
			gocron.WithTags(agentScheduleTag, "agent_type:"+agentType),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			s.log.WithError(err).WithField("agent_type", agentType).Errorf("failed to schedule agent with cron %q", desc.Schedule)
			errs = append(errs, fmt.Errorf("schedule %s: %w", agentType, err))
			continue
		}
		s.jobs[agentType] = job.ID()
		entry := s.log.WithFields(logrus.Fields{"agent_type": agentType, "cron": desc.Schedule, "job_id": job.ID()})
		if next, err := job.NextRun(); err == nil {
			entry = entry.WithField("next_run", next.Format(time.RFC3339))
		}
		entry.Info("agent scheduled")
	}

	if s.opts.FollowUpSweep > 0 {
		job, err := s.Scheduler.NewJob(
			gocron.DurationJob(s.opts.FollowUpSweep),
			gocron.NewTask(s.sweepFollowUps),
			gocron.WithName("followup_sweep"),
			gocron.WithTags(followUpSweepTag),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			errs = append(errs, fmt.Errorf("schedule follow-up sweep: %w", err))
		} else {
			id := job.ID()
			s.sweepJob = &id
		}
	}
	s.log.WithField("timers", len(s.jobs)).Info("agent timers rebuilt")
	return errors.Join(errs...)
}

// Shutdown stops the underlying scheduler; it cannot be restarted afterwards.
func (s *SchedulerService) Shutdown() {
	s.log.Info("scheduler stopping")
	if err := s.Scheduler.Shutdown(); err != nil {
		s.log.WithError(err).Error("error shutting down gocron scheduler")
	}
}

// ScheduledAgents returns the agent types that currently own a timer, sorted.
func (s *SchedulerService) ScheduledAgents() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.jobs))
	for t := range s.jobs {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// TimerCount counts agent jobs as the gocron scheduler sees them.
func (s *SchedulerService) TimerCount() int {
	n := 0
	for _, j := range s.Scheduler.Jobs() {
		for _, tag := range j.Tags() {
			if tag == agentScheduleTag {
				n++
				break
			}
		}
	}
	return n
}

// NextRun reports when the agent's timer fires next.
func (s *SchedulerService) NextRun(agentType string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.jobs[agentType]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	for _, j := range s.Scheduler.Jobs() {
		if j.ID() == id {
			next, err := j.NextRun()
			return next, err == nil && !next.IsZero()
		}
	}
	return time.Time{}, false
}

// fire dispatches agentType once for every verified user and waits for the batch.
func (s *SchedulerService) fire(agentType string) {
	logger := s.log.WithField("agent_type", agentType)
	users, err := s.store.VerifiedUsers(s.appContext)
	if err != nil {
		logger.WithError(err).Error("failed to list users for scheduled run")
		return
	}
	logger.WithField("users", len(users)).Info("scheduled run triggered")

	var wg sync.WaitGroup
	var mu sync.Mutex
	var completed, failed int
	for _, u := range users {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			res, err := s.dispatcher.Dispatch(s.appContext, agentType, userID, nil)
			mu.Lock()
			defer mu.Unlock()
			if err != nil || !res.Success {
				failed++
				if err != nil {
					logger.WithError(err).WithField("user_id", userID).Error("scheduled dispatch errored")
				}
				return
			}
			completed++
		}(u.ID)
	}
	wg.Wait()
	logger.WithFields(logrus.Fields{"completed": completed, "failed": failed}).Info("scheduled run finished")
}

// sweepFollowUps runs Pending tasks whose scheduled time has passed.
func (s *SchedulerService) sweepFollowUps() {
	due, err := s.store.DuePendingTasks(s.appContext, time.Now().UTC(), s.opts.FollowUpBatch)
	if err != nil {
		s.log.WithError(err).Error("failed to load due follow-up tasks")
		return
	}
	if len(due) == 0 {
		return
	}
	var wg sync.WaitGroup
	for _, row := range due {
		wg.Add(1)
		go func(row db.AgentTask) {
			defer wg.Done()
			if _, ran, err := s.dispatcher.RunPending(s.appContext, row); err != nil {
				s.log.WithError(err).WithField("task_id", row.ID).Error("follow-up task errored")
			} else if !ran {
				s.log.WithField("task_id", row.ID).Debug("follow-up task already picked up")
			}
		}(row)
	}
	wg.Wait()
	s.log.WithField("tasks", len(due)).Info("follow-up sweep finished")
}
