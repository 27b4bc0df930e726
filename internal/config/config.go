package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "AGENTS"

// Config is the full process configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	LLM       LLMConfig       `mapstructure:"llm"`
	GitHub    GitHubConfig    `mapstructure:"github"`
	Agents    AgentsConfig    `mapstructure:"agents"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Redis     RedisConfig     `mapstructure:"redis"`
	GRPC      GRPCConfig      `mapstructure:"grpc"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Addr     string        `mapstructure:"addr"`
	ExitWait time.Duration `mapstructure:"exit_wait"`
	// Instance names the tasks this server starts. Replicas sharing a database need
	// distinct names so startup reconciliation only fails their own tasks.
	Instance string `mapstructure:"instance"`
}

type DatabaseConfig struct {
	Type        string `mapstructure:"type"` // sqlite or mysql
	DSN         string `mapstructure:"dsn"`
	LogLevel    string `mapstructure:"log_level"`
	SeedCatalog string `mapstructure:"seed_catalog"`
}

type SchedulerConfig struct {
	Timezone      string        `mapstructure:"timezone"`
	MaxInFlight   int64         `mapstructure:"max_in_flight"`
	DrainGrace    time.Duration `mapstructure:"drain_grace"`
	FollowUpSweep time.Duration `mapstructure:"followup_sweep"`
	FollowUpBatch int           `mapstructure:"followup_batch"`
}

type LLMConfig struct {
	Provider string        `mapstructure:"provider"` // openai, gemini, mock
	APIKey   string        `mapstructure:"api_key"`
	Model    string        `mapstructure:"model"`
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type GitHubConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	PerPage  int           `mapstructure:"per_page"`
	Queries  []string      `mapstructure:"queries"`
	RepoName string        `mapstructure:"repo_name"` // repository solutions are relayed to
}

type AgentConfig struct {
	Active   bool   `mapstructure:"active"`
	Schedule string `mapstructure:"schedule"`
}

type AgentsConfig struct {
	Solver      SolverConfig      `mapstructure:"solver"`
	Contributor ContributorConfig `mapstructure:"contributor"`
	Profile     ProfileConfig     `mapstructure:"profile"`
}

type SolverConfig struct {
	AgentConfig   `mapstructure:",squash"`
	HistoryWindow int  `mapstructure:"history_window"`
	Relay         bool `mapstructure:"relay"`
}

type ContributorConfig struct {
	AgentConfig   `mapstructure:",squash"`
	MaxCandidates int `mapstructure:"max_candidates"`
}

type ProfileConfig struct {
	AgentConfig    `mapstructure:",squash"`
	FollowUps      int           `mapstructure:"follow_ups"`
	FollowUpWindow time.Duration `mapstructure:"follow_up_window"`
}

// ScoringConfig holds the project ranking bands.
type ScoringConfig struct {
	SweetSpotMin         int      `mapstructure:"sweet_spot_min"`
	SweetSpotMax         int      `mapstructure:"sweet_spot_max"`
	SubBandMin           int      `mapstructure:"sub_band_min"`
	SubBandMax           int      `mapstructure:"sub_band_max"`
	IssuesMin            int      `mapstructure:"issues_min"`
	IssuesMax            int      `mapstructure:"issues_max"`
	PreferredLanguages   []string `mapstructure:"preferred_languages"`
	MinDescriptionLength int      `mapstructure:"min_description_length"`
}

type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	NotifyTopic   string   `mapstructure:"notify_topic"`
	DispatchTopic string   `mapstructure:"dispatch_topic"`
	GroupID       string   `mapstructure:"group_id"`
}

// Enabled reports whether any broker is configured.
func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

type GRPCConfig struct {
	HealthAddr string `mapstructure:"health_addr"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // json or text
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

var DefaultDiscoveryQueries = []string{
	`label:"good first issue" language:typescript stars:100..1000`,
	`label:"help wanted" language:javascript stars:50..500`,
	`label:"beginner friendly" language:python stars:100..1000`,
	`topic:hacktoberfest language:typescript`,
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.exit_wait", 5*time.Second)
	v.SetDefault("server.instance", "orchestrator")

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "agents.db")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.seed_catalog", "configs/problems.yaml")

	v.SetDefault("scheduler.timezone", "America/New_York")
	v.SetDefault("scheduler.max_in_flight", 8)
	v.SetDefault("scheduler.drain_grace", 30*time.Second)
	v.SetDefault("scheduler.followup_sweep", 15*time.Minute)
	v.SetDefault("scheduler.followup_batch", 50)

	v.SetDefault("llm.provider", "mock")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.timeout", 60*time.Second)

	v.SetDefault("github.base_url", "https://api.github.com")
	v.SetDefault("github.timeout", 20*time.Second)
	v.SetDefault("github.per_page", 10)
	v.SetDefault("github.queries", DefaultDiscoveryQueries)
	v.SetDefault("github.repo_name", "leetcode-solutions")

	v.SetDefault("agents.solver.active", true)
	v.SetDefault("agents.solver.schedule", "0 9 * * *")
	v.SetDefault("agents.solver.history_window", 10)
	v.SetDefault("agents.solver.relay", true)
	v.SetDefault("agents.contributor.active", true)
	v.SetDefault("agents.contributor.schedule", "0 10 * * *")
	v.SetDefault("agents.contributor.max_candidates", 20)
	v.SetDefault("agents.profile.active", true)
	v.SetDefault("agents.profile.schedule", "0 11 * * 1")
	v.SetDefault("agents.profile.follow_ups", 3)
	v.SetDefault("agents.profile.follow_up_window", 7*24*time.Hour)

	v.SetDefault("scoring.sweet_spot_min", 50)
	v.SetDefault("scoring.sweet_spot_max", 1000)
	v.SetDefault("scoring.sub_band_min", 100)
	v.SetDefault("scoring.sub_band_max", 500)
	v.SetDefault("scoring.issues_min", 5)
	v.SetDefault("scoring.issues_max", 100)
	v.SetDefault("scoring.preferred_languages", []string{"typescript", "javascript", "python", "go", "rust"})
	v.SetDefault("scoring.min_description_length", 20)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.notify_topic", "agent_notifications")
	v.SetDefault("kafka.dispatch_topic", "agent_dispatch_requests")
	v.SetDefault("kafka.group_id", "agent-worker-group")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl", 5*time.Minute)

	v.SetDefault("grpc.health_addr", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
}

// Loader reads configuration from an optional YAML file plus AGENTS_* environment
// variables. A .env file in the working directory is loaded first when present.
type Loader struct {
	v *viper.Viper
}

// NewLoader prepares a loader. configFile may be empty, in which case configs/config.yaml
// and ./config.yaml are tried.
func NewLoader(configFile string) *Loader {
	_ = godotenv.Load() // .env is optional

	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("configs")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// Load reads and validates the configuration. A missing config file is not an error.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// ConfigFileUsed returns the path of the file that was read, if any.
func (l *Loader) ConfigFileUsed() string { return l.v.ConfigFileUsed() }

// Watch invokes fn with the reloaded configuration whenever the config file changes.
// Invalid edits are reported through onErr and otherwise ignored.
func (l *Loader) Watch(fn func(*Config), onErr func(error)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := l.decode()
		if err != nil {
			if onErr != nil {
				onErr(fmt.Errorf("reload %s: %w", e.Name, err))
			}
			return
		}
		fn(cfg)
	})
	l.v.WatchConfig()
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Database.Type) {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("unsupported database type %q", c.Database.Type)
	}
	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("invalid scheduler timezone %q: %w", c.Scheduler.Timezone, err)
	}
	if c.Scheduler.MaxInFlight < 1 {
		return fmt.Errorf("scheduler.max_in_flight must be >= 1, got %d", c.Scheduler.MaxInFlight)
	}
	if c.Scoring.SubBandMin < c.Scoring.SweetSpotMin || c.Scoring.SubBandMax > c.Scoring.SweetSpotMax {
		return fmt.Errorf("scoring sub-band [%d,%d] must lie inside the sweet spot [%d,%d]",
			c.Scoring.SubBandMin, c.Scoring.SubBandMax, c.Scoring.SweetSpotMin, c.Scoring.SweetSpotMax)
	}
	if c.Scoring.IssuesMin >= c.Scoring.IssuesMax {
		return fmt.Errorf("scoring.issues_min (%d) must be below scoring.issues_max (%d)", c.Scoring.IssuesMin, c.Scoring.IssuesMax)
	}
	return nil
}

// Location returns the process-wide scheduling time zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
