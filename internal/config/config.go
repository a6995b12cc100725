// Package config handles application configuration and environment loading.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// RolloutConfig holds gradual-rollout supervision settings.
type RolloutConfig struct {
	ErrorRateThreshold float64       // abort ramp when error rate exceeds this (default 0.05)
	LatencyThresholdMs float64       // abort ramp when avg latency exceeds this (default 10000)
	HealthCheckEvery   time.Duration // health poll interval between steps (default 30s)
	DeployTimeout      time.Duration // max wait for one deployment to complete (default 5m)
	DeployPollEvery    time.Duration // deployment status poll interval (default 5s)
	DefaultStepSize    int           // percentage points per step (default 10)
	DefaultStepWait    time.Duration // soak time per step (default 5m)
}

// ValidationConfig holds data-integrity validation settings.
type ValidationConfig struct {
	SampleSize        int           // records per sample check (default 100)
	AccuracyThreshold float64       // min sample accuracy before error (default 0.95)
	TimeRangeSlack    time.Duration // tolerance on time-bound coverage (default 1m)
	Parallelism       int           // default table-level parallelism (default 1)
}

// JobConfig holds migration-job orchestration settings.
type JobConfig struct {
	PollInterval time.Duration // worker status poll interval (default 10s)
	Timeout      time.Duration // per-job deadline (default 4h)
	Parallelism  int           // default concurrent jobs (default 1)
	BatchSize    int           // default records per worker batch (default 5000)
	StatusRPS    float64       // aggregate cap on worker status calls (default 5)
}

// Config holds the configuration for the migration coordinator.
type Config struct {
	// Flag provider
	FlagFilePath string        // path to the file-backed flag store (default "cutover_flags.yaml")
	ConfigTTL    time.Duration // ConfigurationSnapshot cache TTL (default 30s)

	// Backend DSNs for validation queries. Optional; validate commands fail
	// with a clear error when the side they need is not configured.
	SourceDriver string // "sqlite3" or "pgx" (default "sqlite3")
	SourceDSN    string
	TargetDriver string
	TargetDSN    string

	HistoryDBPath string // SQLite run-history file (default "cutover_history.sqlite")
	TableManifest string // YAML table manifest for validate --all (default "tables.yaml")

	// External migration worker. Optional; execute-migration and monitor
	// fail with a clear error when unset.
	WorkerURL   string
	WorkerToken string

	MetricsSink  string // "log" or "prometheus" (default "log")
	PublishEvery string // cron spec for summary publishing (default "@every 1m")
	LogLevel     string // log level: debug, info, warn, error (default "info")
	Env          string // environment: "development" (default) or "production"

	Rollout    RolloutConfig
	Validation ValidationConfig
	Jobs       JobConfig

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// HasSourceStore returns true when a source backend DSN is configured.
func (c *Config) HasSourceStore() bool { return c.SourceDSN != "" }

// HasTargetStore returns true when a target backend DSN is configured.
func (c *Config) HasTargetStore() bool { return c.TargetDSN != "" }

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Rollout.ErrorRateThreshold <= 0 || c.Rollout.ErrorRateThreshold >= 1 {
		return fmt.Errorf("ROLLOUT_ERROR_RATE_THRESHOLD must be in (0,1), got %g", c.Rollout.ErrorRateThreshold)
	}
	if c.Validation.AccuracyThreshold <= 0 || c.Validation.AccuracyThreshold > 1 {
		return fmt.Errorf("VALIDATION_ACCURACY_THRESHOLD must be in (0,1], got %g", c.Validation.AccuracyThreshold)
	}
	if c.Rollout.DefaultStepSize < 1 || c.Rollout.DefaultStepSize > 100 {
		return fmt.Errorf("ROLLOUT_STEP_SIZE must be in [1,100], got %d", c.Rollout.DefaultStepSize)
	}
	if c.Jobs.Parallelism < 1 {
		return fmt.Errorf("JOB_PARALLELISM must be at least 1, got %d", c.Jobs.Parallelism)
	}
	switch c.MetricsSink {
	case "log", "prometheus":
	default:
		return fmt.Errorf("METRICS_SINK must be \"log\" or \"prometheus\", got %q", c.MetricsSink)
	}
	switch c.SourceDriver {
	case "sqlite3", "pgx":
	default:
		return fmt.Errorf("SOURCE_DRIVER must be \"sqlite3\" or \"pgx\", got %q", c.SourceDriver)
	}
	switch c.TargetDriver {
	case "sqlite3", "pgx":
	default:
		return fmt.Errorf("TARGET_DRIVER must be \"sqlite3\" or \"pgx\", got %q", c.TargetDriver)
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables. Backend DSNs are
// optional; routing and rollout work without them.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		FlagFilePath:  os.Getenv("FLAG_FILE_PATH"),
		SourceDriver:  os.Getenv("SOURCE_DRIVER"),
		SourceDSN:     os.Getenv("SOURCE_DSN"),
		TargetDriver:  os.Getenv("TARGET_DRIVER"),
		TargetDSN:     os.Getenv("TARGET_DSN"),
		HistoryDBPath: os.Getenv("HISTORY_DB_PATH"),
		TableManifest: os.Getenv("TABLE_MANIFEST"),
		WorkerURL:     os.Getenv("WORKER_URL"),
		WorkerToken:   os.Getenv("WORKER_TOKEN"),
		MetricsSink:   os.Getenv("METRICS_SINK"),
		PublishEvery:  os.Getenv("PUBLISH_EVERY"),
		LogLevel:      os.Getenv("LOG_LEVEL"),
		Env:           os.Getenv("ENV"),
	}

	cfg.ConfigTTL = parseDurationEnvDefault("CONFIG_TTL", 30*time.Second)

	cfg.Rollout = RolloutConfig{
		ErrorRateThreshold: parseFloatEnvDefault("ROLLOUT_ERROR_RATE_THRESHOLD", 0.05),
		LatencyThresholdMs: parseFloatEnvDefault("ROLLOUT_LATENCY_THRESHOLD_MS", 10_000),
		HealthCheckEvery:   parseDurationEnvDefault("ROLLOUT_HEALTH_CHECK_EVERY", 30*time.Second),
		DeployTimeout:      parseDurationEnvDefault("ROLLOUT_DEPLOY_TIMEOUT", 5*time.Minute),
		DeployPollEvery:    parseDurationEnvDefault("ROLLOUT_DEPLOY_POLL_EVERY", 5*time.Second),
		DefaultStepSize:    parseIntEnvDefault("ROLLOUT_STEP_SIZE", 10),
		DefaultStepWait:    parseDurationEnvDefault("ROLLOUT_STEP_WAIT", 5*time.Minute),
	}

	cfg.Validation = ValidationConfig{
		SampleSize:        parseIntEnvDefault("VALIDATION_SAMPLE_SIZE", 100),
		AccuracyThreshold: parseFloatEnvDefault("VALIDATION_ACCURACY_THRESHOLD", 0.95),
		TimeRangeSlack:    parseDurationEnvDefault("VALIDATION_TIME_RANGE_SLACK", time.Minute),
		Parallelism:       parseIntEnvDefault("VALIDATION_PARALLELISM", 1),
	}

	cfg.Jobs = JobConfig{
		PollInterval: parseDurationEnvDefault("JOB_POLL_INTERVAL", 10*time.Second),
		Timeout:      parseDurationEnvDefault("JOB_TIMEOUT", 4*time.Hour),
		Parallelism:  parseIntEnvDefault("JOB_PARALLELISM", 1),
		BatchSize:    parseIntEnvDefault("JOB_BATCH_SIZE", 5000),
		StatusRPS:    parseFloatEnvDefault("JOB_STATUS_RPS", 5),
	}

	// Defaults
	if cfg.FlagFilePath == "" {
		cfg.FlagFilePath = "cutover_flags.yaml"
	}
	if cfg.HistoryDBPath == "" {
		cfg.HistoryDBPath = "cutover_history.sqlite"
	}
	if cfg.TableManifest == "" {
		cfg.TableManifest = "tables.yaml"
	}
	if cfg.MetricsSink == "" {
		cfg.MetricsSink = "log"
	}
	if cfg.PublishEvery == "" {
		cfg.PublishEvery = "@every 1m"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.SourceDriver == "" {
		cfg.SourceDriver = "sqlite3"
	}
	if cfg.TargetDriver == "" {
		cfg.TargetDriver = "sqlite3"
	}
	if !cfg.HasSourceStore() {
		cfg.Warnings = append(cfg.Warnings, "SOURCE_DSN not set, validation against the source backend is unavailable")
	}
	if !cfg.HasTargetStore() {
		cfg.Warnings = append(cfg.Warnings, "TARGET_DSN not set, validation against the target backend is unavailable")
	}
	if cfg.WorkerURL == "" {
		cfg.Warnings = append(cfg.Warnings, "WORKER_URL not set, migration execution is unavailable")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseIntEnvDefault(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}

func parseFloatEnvDefault(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func parseDurationEnvDefault(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
