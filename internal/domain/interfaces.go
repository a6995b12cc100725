package domain

import (
	"context"
	"time"
)

// ConfigProvider is the external flag/config service the coordinator reads
// migration flags from and deploys percentage changes through.
type ConfigProvider interface {
	GetConfiguration(ctx context.Context) (*ConfigurationSnapshot, error)
	Deploy(ctx context.Context, change FlagChange) (deploymentID string, err error)
	GetDeploymentStatus(ctx context.Context, deploymentID string) (DeploymentState, error)
	StopDeployment(ctx context.Context, deploymentID string) error
}

// MetricsSink receives performance summaries. Fire-and-forget: callers log and
// swallow any error it returns.
type MetricsSink interface {
	Emit(ctx context.Context, name string, value float64, dimensions map[string]string, at time.Time) error
}

// JobHandle identifies one running job at the external migration worker.
type JobHandle string

// MigrationWorker is the external service that performs the actual data copy
// for a backfill job.
type MigrationWorker interface {
	Start(ctx context.Context, job MigrationJob) (JobHandle, error)
	Status(ctx context.Context, handle JobHandle) (*WorkerStatus, error)
	Cancel(ctx context.Context, handle JobHandle) error
}

// StoreQuery is the read surface of one backend, implemented once for the
// source and once for the target. Validation consumes nothing else.
type StoreQuery interface {
	Count(ctx context.Context, table string, r TimeRange) (int64, error)
	Sample(ctx context.Context, table string, r TimeRange, n int) ([]Record, error)
	Lookup(ctx context.Context, table string, keys []string, r TimeRange) ([]Record, error)
	Checksum(ctx context.Context, table string, r TimeRange) (uint64, error)
	Schema(ctx context.Context, table string) (*TableSchema, error)
	TimeBounds(ctx context.Context, table string) (*TimeRange, error)
}

// HistoryRepository persists run records for the status and monitor commands.
type HistoryRepository interface {
	RecordRollout(ctx context.Context, run *RolloutRun) error
	RecordJob(ctx context.Context, result *JobResult) error
	RecordValidation(ctx context.Context, result *ValidationResult) error
	LatestRollout(ctx context.Context) (*RolloutRun, error)
	ListJobs(ctx context.Context, onlyActive bool) ([]JobResult, error)
	ListValidations(ctx context.Context, table string, limit int) ([]ValidationResult, error)
}
