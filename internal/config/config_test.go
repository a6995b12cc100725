package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable LoadFromEnv reads so tests see only what
// they set themselves.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"FLAG_FILE_PATH", "CONFIG_TTL",
		"SOURCE_DRIVER", "SOURCE_DSN", "TARGET_DRIVER", "TARGET_DSN",
		"HISTORY_DB_PATH", "TABLE_MANIFEST",
		"WORKER_URL", "WORKER_TOKEN",
		"METRICS_SINK", "PUBLISH_EVERY", "LOG_LEVEL", "ENV",
		"ROLLOUT_ERROR_RATE_THRESHOLD", "ROLLOUT_LATENCY_THRESHOLD_MS",
		"ROLLOUT_HEALTH_CHECK_EVERY", "ROLLOUT_DEPLOY_TIMEOUT",
		"ROLLOUT_DEPLOY_POLL_EVERY", "ROLLOUT_STEP_SIZE", "ROLLOUT_STEP_WAIT",
		"VALIDATION_SAMPLE_SIZE", "VALIDATION_ACCURACY_THRESHOLD",
		"VALIDATION_TIME_RANGE_SLACK", "VALIDATION_PARALLELISM",
		"JOB_POLL_INTERVAL", "JOB_TIMEOUT", "JOB_PARALLELISM",
		"JOB_BATCH_SIZE", "JOB_STATUS_RPS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadFromEnvDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "cutover_flags.yaml", cfg.FlagFilePath)
	assert.Equal(t, 30*time.Second, cfg.ConfigTTL)
	assert.Equal(t, "cutover_history.sqlite", cfg.HistoryDBPath)
	assert.Equal(t, "tables.yaml", cfg.TableManifest)
	assert.Equal(t, "log", cfg.MetricsSink)
	assert.Equal(t, "sqlite3", cfg.SourceDriver)
	assert.Equal(t, "sqlite3", cfg.TargetDriver)

	assert.InDelta(t, 0.05, cfg.Rollout.ErrorRateThreshold, 0.0001)
	assert.InDelta(t, 10_000, cfg.Rollout.LatencyThresholdMs, 0.0001)
	assert.Equal(t, 10, cfg.Rollout.DefaultStepSize)
	assert.Equal(t, 5*time.Minute, cfg.Rollout.DefaultStepWait)

	assert.Equal(t, 100, cfg.Validation.SampleSize)
	assert.InDelta(t, 0.95, cfg.Validation.AccuracyThreshold, 0.0001)

	assert.Equal(t, 10*time.Second, cfg.Jobs.PollInterval)
	assert.Equal(t, 4*time.Hour, cfg.Jobs.Timeout)
	assert.Equal(t, 5000, cfg.Jobs.BatchSize)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("FLAG_FILE_PATH", "/var/run/flags.yaml")
	t.Setenv("CONFIG_TTL", "10s")
	t.Setenv("SOURCE_DSN", "file:source.sqlite")
	t.Setenv("TARGET_DRIVER", "pgx")
	t.Setenv("TARGET_DSN", "postgres://localhost/target")
	t.Setenv("WORKER_URL", "http://worker:8080")
	t.Setenv("ROLLOUT_STEP_SIZE", "25")
	t.Setenv("VALIDATION_SAMPLE_SIZE", "500")
	t.Setenv("JOB_TIMEOUT", "30m")
	t.Setenv("METRICS_SINK", "prometheus")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "/var/run/flags.yaml", cfg.FlagFilePath)
	assert.Equal(t, 10*time.Second, cfg.ConfigTTL)
	assert.True(t, cfg.HasSourceStore())
	assert.True(t, cfg.HasTargetStore())
	assert.Equal(t, "pgx", cfg.TargetDriver)
	assert.Equal(t, 25, cfg.Rollout.DefaultStepSize)
	assert.Equal(t, 500, cfg.Validation.SampleSize)
	assert.Equal(t, 30*time.Minute, cfg.Jobs.Timeout)
	assert.Equal(t, "prometheus", cfg.MetricsSink)
}

func TestLoadFromEnvWarnsOnMissingOptionalPieces(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	// Missing DSNs and worker URL are warnings, not errors.
	assert.Len(t, cfg.Warnings, 3)
}

func TestLoadFromEnvUnparseableValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("ROLLOUT_STEP_SIZE", "lots")
	t.Setenv("CONFIG_TTL", "soon")
	t.Setenv("VALIDATION_ACCURACY_THRESHOLD", "high")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Rollout.DefaultStepSize)
	assert.Equal(t, 30*time.Second, cfg.ConfigTTL)
	assert.InDelta(t, 0.95, cfg.Validation.AccuracyThreshold, 0.0001)
}

func TestLoadFromEnvInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"error rate out of range", "ROLLOUT_ERROR_RATE_THRESHOLD", "1.5"},
		{"step size over 100", "ROLLOUT_STEP_SIZE", "150"},
		{"step size negative", "ROLLOUT_STEP_SIZE", "-10"},
		{"accuracy over 1", "VALIDATION_ACCURACY_THRESHOLD", "2"},
		{"parallelism zero", "JOB_PARALLELISM", "0"},
		{"unknown sink", "METRICS_SINK", "statsd"},
		{"unknown driver", "SOURCE_DRIVER", "oracle"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			_, err := LoadFromEnv()
			assert.Error(t, err)
		})
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"nonsense", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		cfg := &Config{LogLevel: tt.level}
		assert.Equal(t, tt.want, cfg.SlogLevel(), "level %q", tt.level)
	}
}

func TestIsProduction(t *testing.T) {
	assert.False(t, (&Config{Env: "development"}).IsProduction())
	assert.False(t, (&Config{}).IsProduction())
	assert.True(t, (&Config{Env: "production"}).IsProduction())
}
