// Package config defines service configuration and its loading.
//
// Values are layered defaults -> optional YAML file -> environment, see Load.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Supported store drivers.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory position fix queue.
	QueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of fix evaluation workers.
	WorkerCount int `koanf:"worker_count"`
	// DedupeSize bounds how many fix ids are remembered for idempotency.
	DedupeSize int `koanf:"dedupe_size"`

	// Store selects the persistence backend: memory, sqlite or postgres.
	Store       string `koanf:"store"`
	SQLitePath  string `koanf:"sqlite_path"`
	PostgresDSN string `koanf:"postgres_dsn"`

	// ActiveFence names the geofence entities are evaluated against.
	ActiveFence string `koanf:"active_fence"`
	// EvaluationInterval schedules full passes; zero disables them.
	EvaluationInterval time.Duration `koanf:"evaluation_interval"`
	// PassConcurrency bounds parallel entity evaluations inside a pass.
	PassConcurrency int `koanf:"pass_concurrency"`

	AlertQueueSize int           `koanf:"alert_queue_size"`
	AlertWorkers   int           `koanf:"alert_workers"`
	AlertTimeout   time.Duration `koanf:"alert_timeout"`

	// PositionsRate limits POST /positions in requests per second; zero disables.
	PositionsRate  float64 `koanf:"positions_rate"`
	PositionsBurst int     `koanf:"positions_burst"`

	SMTPHost        string   `koanf:"smtp_host"`
	SMTPPort        int      `koanf:"smtp_port"`
	SMTPUser        string   `koanf:"smtp_user"`
	SMTPPassword    string   `koanf:"smtp_password"`
	SMTPFrom        string   `koanf:"smtp_from"`
	AlertRecipients []string `koanf:"alert_recipients"`

	KafkaBrokers        []string `koanf:"kafka_brokers"`
	KafkaPositionsTopic string   `koanf:"kafka_positions_topic"`
	KafkaAlertsTopic    string   `koanf:"kafka_alerts_topic"`
	KafkaGroup          string   `koanf:"kafka_group"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		LogFormat:          "text",
		Addr:               ":9080",
		QueueSize:          10_000,
		WorkerCount:        runtime.NumCPU() * 2,
		DedupeSize:         100_000,
		Store:              StoreMemory,
		SQLitePath:         "herdwatch.db",
		ActiveFence:        "default",
		EvaluationInterval: 30 * time.Second,
		PassConcurrency:    runtime.NumCPU(),
		AlertQueueSize:     1_000,
		AlertWorkers:       2,
		AlertTimeout:       10 * time.Second,
		PositionsRate:      0,
		PositionsBurst:     100,
		SMTPPort:           587,
		KafkaGroup:         "herdwatch",
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	switch c.Store {
	case StoreMemory:
	case StoreSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("%w: sqlite_path is required for the sqlite store", ErrInvalidConfig)
		}
	case StorePostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return fmt.Errorf("%w: postgres_dsn is required for the postgres store", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store %q", ErrInvalidConfig, c.Store)
	}
	if strings.TrimSpace(c.ActiveFence) == "" {
		return fmt.Errorf("%w: active_fence must not be empty", ErrInvalidConfig)
	}
	if c.EvaluationInterval < 0 {
		return fmt.Errorf("%w: evaluation_interval must not be negative", ErrInvalidConfig)
	}
	if c.AlertTimeout <= 0 {
		return fmt.Errorf("%w: alert_timeout must be positive", ErrInvalidConfig)
	}
	if c.SMTPHost != "" && len(c.AlertRecipients) == 0 {
		return fmt.Errorf("%w: alert_recipients is required when smtp_host is set", ErrInvalidConfig)
	}
	if (c.KafkaPositionsTopic != "" || c.KafkaAlertsTopic != "") && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("%w: kafka_brokers is required when a kafka topic is set", ErrInvalidConfig)
	}
	return nil
}
