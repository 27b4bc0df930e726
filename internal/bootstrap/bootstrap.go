// Package bootstrap wires configuration into a running orchestrator. The server, the
// worker and the CLI all build their stack through it.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"agent-orchestration-service/internal/agents"
	"agent-orchestration-service/internal/collaborators/github"
	"agent-orchestration-service/internal/collaborators/llm"
	"agent-orchestration-service/internal/config"
	"agent-orchestration-service/internal/lock"
	"agent-orchestration-service/internal/orchestrator/db"
	orchKafka "agent-orchestration-service/internal/orchestrator/kafka"
	"agent-orchestration-service/internal/orchestrator/services"
	gormdb "agent-orchestration-service/pkg/db"
)

type Options struct {
	// DisableScheduler keeps agent timers and the follow-up sweep off.
	DisableScheduler bool
	// SeedCatalog loads database.seed_catalog when the file exists.
	SeedCatalog bool
	// Owner stamps the tasks this process starts; see services.Options.Owner.
	Owner string
}

// App is a fully wired orchestrator and the resources behind it.
type App struct {
	Config       *config.Config
	Log          *logrus.Logger
	DB           *gorm.DB
	Repo         *db.Repository
	Registry     *agents.Registry
	Orchestrator *services.Orchestrator

	deps    agents.Deps
	closers []io.Closer
}

// OpenRepository opens and migrates the configured database.
func OpenRepository(cfg *config.Config) (*gorm.DB, *db.Repository, error) {
	gormDB, err := gormdb.NewGormDB(gormdb.Options{
		Type:     cfg.Database.Type,
		DSN:      cfg.Database.DSN,
		LogLevel: cfg.Database.LogLevel,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	repo := db.NewRepository(gormDB)
	if err := repo.Migrate(); err != nil {
		_ = gormdb.Close(gormDB)
		return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return gormDB, repo, nil
}

func New(ctx context.Context, cfg *config.Config, log *logrus.Logger, opts Options) (*App, error) {
	gormDB, repo, err := OpenRepository(cfg)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Log: log, DB: gormDB, Repo: repo}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	if opts.SeedCatalog && cfg.Database.SeedCatalog != "" {
		if _, statErr := os.Stat(cfg.Database.SeedCatalog); statErr == nil {
			n, err := repo.SeedCatalogFile(ctx, cfg.Database.SeedCatalog)
			if err != nil {
				return nil, err
			}
			log.WithField("problems", n).Info("problem catalog seeded")
		}
	}

	generator, err := llm.New(ctx, cfg.LLM, log.WithField("component", "llm"))
	if err != nil {
		return nil, err
	}
	if c, isCloser := generator.(io.Closer); isCloser {
		a.closers = append(a.closers, c)
	}
	gh, err := github.NewClient(cfg.GitHub.BaseURL, cfg.GitHub.PerPage, cfg.GitHub.Timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to create github client: %w", err)
	}
	a.deps = agents.Deps{Store: repo, Generator: generator, Discovery: gh, CodeHost: gh, Log: log}

	a.Registry, err = agents.NewRegistry(agents.Build(cfg, a.deps)...)
	if err != nil {
		return nil, err
	}

	var notifier services.Notifier = orchKafka.LogNotifier{Log: log.WithField("component", "notifier")}
	if cfg.Kafka.Enabled() {
		n := orchKafka.NewNotifier(orchKafka.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.NotifyTopic))
		a.closers = append(a.closers, n)
		notifier = n
	}

	schedOpts := services.SchedulerOptions{
		Location:      cfg.Location(),
		FollowUpSweep: cfg.Scheduler.FollowUpSweep,
		FollowUpBatch: cfg.Scheduler.FollowUpBatch,
	}
	if cfg.Redis.Addr != "" && !opts.DisableScheduler {
		client := lock.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		a.closers = append(a.closers, client)
		schedOpts.Locker = lock.NewRedisLocker(client, "agents:lock:", cfg.Redis.LockTTL)
	}

	a.Orchestrator, err = services.NewOrchestrator(ctx, services.Options{
		Scheduler:        schedOpts,
		MaxInFlight:      cfg.Scheduler.MaxInFlight,
		DrainGrace:       cfg.Scheduler.DrainGrace,
		DisableScheduler: opts.DisableScheduler,
		Owner:            opts.Owner,
	}, a.Registry, repo, notifier, log)
	if err != nil {
		return nil, err
	}
	ok = true
	return a, nil
}

// Reload rebuilds the agent set from cfg and swaps it in. Collaborators are kept.
func (a *App) Reload(cfg *config.Config) error {
	if err := a.Orchestrator.Reload(agents.Build(cfg, a.deps)); err != nil {
		return err
	}
	a.Config = cfg
	return nil
}

// Close releases producers, clients and the database.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.Log.WithError(err).Warn("error closing resource")
		}
	}
	a.closers = nil
	if a.DB != nil {
		if err := gormdb.Close(a.DB); err != nil {
			a.Log.WithError(err).Warn("error closing database")
		}
		a.DB = nil
	}
}
