package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Environment represents different deployment environments
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// Supported storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds the configuration for the todo service.
// Environment variables are parsed from the TODO_SERVICE_ prefix.
type Config struct {
	// Build target selects high-level environment: local, cloud-dev, cloud
	BuildTarget string `envconfig:"BUILD_TARGET" default:"local"`

	// Derived or override driver: auto | sqlite | postgres | memory
	DBDriver string `envconfig:"DB_DRIVER" default:"auto"`

	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`

	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`

	SQLitePath  string `envconfig:"SQLITE_PATH" default:""`
	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`

	// Entity runtime
	ActivationTimeout time.Duration `envconfig:"ACTIVATION_TIMEOUT" default:"5s"`
	IdleTimeout       time.Duration `envconfig:"IDLE_TIMEOUT" default:"10m"`
	MailboxSize       int           `envconfig:"MAILBOX_SIZE" default:"64"`
	EnqueueTimeout    time.Duration `envconfig:"ENQUEUE_TIMEOUT" default:"2s"`

	// Reminder registered by every todo list on activation
	ReminderDue    time.Duration `envconfig:"REMINDER_DUE" default:"10s"`
	ReminderPeriod time.Duration `envconfig:"REMINDER_PERIOD" default:"24h"`

	// Reminder scheduler
	SchedulerInterval         time.Duration `envconfig:"SCHEDULER_INTERVAL" default:"1s"`
	SchedulerBatchSize        int           `envconfig:"SCHEDULER_BATCH_SIZE" default:"100"`
	SchedulerLease            time.Duration `envconfig:"SCHEDULER_LEASE" default:"30s"`
	SchedulerFiringsPerSecond float64       `envconfig:"SCHEDULER_FIRINGS_PER_SECOND" default:"50"`

	// Reminder side effect; empty means log only
	NotifyURL     string        `envconfig:"NOTIFY_URL" default:""`
	NotifyTimeout time.Duration `envconfig:"NOTIFY_TIMEOUT" default:"10s"`

	// Health
	HealthIntervalSeconds     int `envconfig:"HEALTH_INTERVAL_SECONDS" default:"30"`
	HealthProbeTimeoutSeconds int `envconfig:"HEALTH_PROBE_TIMEOUT_SECONDS" default:"2"`
	BootstrapTimeoutSeconds   int `envconfig:"BOOTSTRAP_TIMEOUT_SECONDS" default:"5"`
}

// ResolveDefaults validates BuildTarget and derives DBDriver and SQLitePath when left on "auto".
func (c *Config) ResolveDefaults() error {
	var defaultDB string

	switch c.BuildTarget {
	case "local":
		defaultDB = DriverSQLite
	case "cloud-dev", "cloud":
		defaultDB = DriverPostgres
	default:
		return fmt.Errorf("unsupported BUILD_TARGET: %s", c.BuildTarget)
	}

	if c.DBDriver == "" || c.DBDriver == "auto" {
		c.DBDriver = defaultDB
	}

	switch c.DBDriver {
	case DriverSQLite:
		if c.SQLitePath == "" {
			c.SQLitePath = "data/todo.db"
		}
	case DriverPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required when DB_DRIVER=postgres")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.DBDriver)
	}

	if c.ActivationTimeout <= 0 {
		return fmt.Errorf("ACTIVATION_TIMEOUT must be positive, got %s", c.ActivationTimeout)
	}
	if c.ReminderPeriod < 0 || c.ReminderDue < 0 {
		return fmt.Errorf("reminder due/period must not be negative")
	}
	return nil
}

// New creates a new Config by parsing environment variables
// prefixed with TODO_SERVICE_, e.g. TODO_SERVICE_HTTP_PORT.
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("TODO_SERVICE", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Str("build_target", cfg.BuildTarget).
		Str("db_driver", cfg.DBDriver).
		Str("environment", string(cfg.Environment)).
		Int("port", cfg.HTTPPort).
		Str("sqlite_path", cfg.SQLitePath).
		Bool("postgres_dsn_present", cfg.PostgresDSN != "").
		Dur("activation_timeout", cfg.ActivationTimeout).
		Dur("idle_timeout", cfg.IdleTimeout).
		Dur("reminder_due", cfg.ReminderDue).
		Dur("reminder_period", cfg.ReminderPeriod).
		Bool("notify_webhook", cfg.NotifyURL != "").
		Msg("Configuration loaded")

	return &cfg, nil
}

// NewForTesting creates an in-memory config specifically for testing
func NewForTesting() *Config {
	return &Config{
		BuildTarget: "local",
		DBDriver:    DriverMemory,
		Environment: EnvTesting,
		HTTPPort:    8080,

		ActivationTimeout: 2 * time.Second,
		IdleTimeout:       time.Minute,
		MailboxSize:       64,
		EnqueueTimeout:    time.Second,

		ReminderDue:    10 * time.Second,
		ReminderPeriod: 24 * time.Hour,

		SchedulerInterval:         50 * time.Millisecond,
		SchedulerBatchSize:        10,
		SchedulerLease:            5 * time.Second,
		SchedulerFiringsPerSecond: 100,

		NotifyTimeout: time.Second,

		HealthIntervalSeconds:     1,
		HealthProbeTimeoutSeconds: 1,
		BootstrapTimeoutSeconds:   1,
	}
}

// IsTesting returns true if the environment is set to testing
func (c *Config) IsTesting() bool {
	return c.Environment == EnvTesting
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
