// Package domain defines core types, collaborator interfaces, and errors for
// the backend migration coordinator.
package domain

import (
	"fmt"
	"time"
)

// Backend identifies one of the two storage backends under migration.
type Backend string

const (
	// BackendSource is the legacy backend being migrated away from.
	BackendSource Backend = "source"
	// BackendTarget is the replacement backend being migrated to.
	BackendTarget Backend = "target"
)

// ConfigurationSnapshot is an immutable view of the migration flags at one
// point in time. It is replaced wholesale on refresh, never patched in place.
type ConfigurationSnapshot struct {
	IngestionEnabled  bool
	QueryEnabled      bool
	TrafficPercentage int // [0,100]
	Version           string
	FetchedAt         time.Time
}

// EffectivePercentage returns the traffic percentage that routing must honor.
// The percentage is treated as 0 whenever queries are disabled, and is clamped
// into [0,100] to guard against a misbehaving provider.
func (s ConfigurationSnapshot) EffectivePercentage() int {
	if !s.QueryEnabled {
		return 0
	}
	if s.TrafficPercentage < 0 {
		return 0
	}
	if s.TrafficPercentage > 100 {
		return 100
	}
	return s.TrafficPercentage
}

// TimeRange is a half-open [Start, End) window of record timestamps.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Validate checks that the range is well-formed.
func (r TimeRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return ErrValidation("time range must have both start and end")
	}
	if !r.End.After(r.Start) {
		return ErrValidation("time range end %s must be after start %s", r.End.Format(time.RFC3339), r.Start.Format(time.RFC3339))
	}
	return nil
}

// Covers reports whether r fully contains other, allowing the given slack on
// both edges.
func (r TimeRange) Covers(other TimeRange, slack time.Duration) bool {
	return !r.Start.After(other.Start.Add(slack)) && !r.End.Before(other.End.Add(-slack))
}

func (r TimeRange) String() string {
	return fmt.Sprintf("%s..%s", r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339))
}

// JobStatus is the lifecycle state of a migration job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
	// JobStatusTimeout means the coordinator stopped polling after the per-job
	// deadline. Reported separately from failed because the root cause differs.
	JobStatusTimeout JobStatus = "timeout"
)

// Terminal reports whether the status will never change again.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusPending, JobStatusRunning:
		return false
	default:
		return true
	}
}

// MigrationJob describes one backfill of a historical time range from the
// source backend into the target.
type MigrationJob struct {
	ID             string
	Table          string
	TargetLocation string
	Range          TimeRange
	BatchSize      int
	// ValidateOnComplete triggers a data-integrity validation of the job's
	// table and range once the worker reports completion.
	ValidateOnComplete bool
}

// Validate checks that the job definition is executable.
func (j MigrationJob) Validate() error {
	if j.Table == "" {
		return ErrValidation("migration job must name a table")
	}
	if err := j.Range.Validate(); err != nil {
		return err
	}
	if j.BatchSize < 0 {
		return ErrValidation("batch size must not be negative")
	}
	return nil
}

// WorkerStatus is one poll observation of an externally running job.
type WorkerStatus struct {
	Status             JobStatus
	ProgressPercentage float64
	CurrentStep        string
	ExportedRecords    int64
	ErrorMessage       string
}

// JobResult is the coordinator's final record of one migration job. Mutated
// only by the polling loop that owns it; terminal once Status is terminal.
type JobResult struct {
	JobID              string
	Table              string
	TargetLocation     string
	Range              TimeRange
	Status             JobStatus
	ProgressPercentage float64
	ExportedRecords    int64
	ErrorMessage       string
	Validation         *ValidationResult
	StartedAt          time.Time
	FinishedAt         time.Time
}

// ValidationStatus is the aggregate verdict of one validation run.
type ValidationStatus string

const (
	ValidationPending ValidationStatus = "pending"
	ValidationPassed  ValidationStatus = "passed"
	ValidationWarning ValidationStatus = "warning"
	ValidationFailed  ValidationStatus = "failed"
)

// ValidationResult aggregates the outcome of every integrity sub-check for one
// table and range. Status is computed exactly once, after all sub-checks
// finish, and is immutable thereafter.
type ValidationResult struct {
	ID             string
	SourceTable    string
	TargetLocation string
	Range          TimeRange

	SourceCount    int64
	TargetCount    int64
	CountMatch     bool
	SampleAccuracy float64
	ChecksumMatch  bool
	TimeRangeMatch bool

	Errors   []string
	Warnings []string
	Status   ValidationStatus
	Duration time.Duration
}

// ResolveValidationStatus derives the aggregate verdict from the collected
// errors and warnings: any error fails the run, warnings alone downgrade it.
func ResolveValidationStatus(errs, warnings []string) ValidationStatus {
	switch {
	case len(errs) > 0:
		return ValidationFailed
	case len(warnings) > 0:
		return ValidationWarning
	default:
		return ValidationPassed
	}
}

// RolloutStage is the supervisory state of a rollout controller run.
type RolloutStage string

const (
	StageNotStarted      RolloutStage = "NOT_STARTED"
	StageEnablingQueries RolloutStage = "ENABLING_QUERIES"
	StageRamping         RolloutStage = "RAMPING"
	StageAtTarget        RolloutStage = "AT_TARGET"
	StageRolledBack      RolloutStage = "ROLLED_BACK"
	StageFailed          RolloutStage = "FAILED"
)

// RolloutState is the controller-local view of an in-flight ramp. It is never
// persisted: on restart the controller re-derives CurrentPercentage from the
// live ConfigurationSnapshot.
type RolloutState struct {
	CurrentPercentage int
	TargetPercentage  int
	StepSize          int
	Stage             RolloutStage
}

// DeploymentState is the lifecycle of one configuration deployment at the
// external flag provider.
type DeploymentState string

const (
	DeploymentInProgress DeploymentState = "in_progress"
	DeploymentComplete   DeploymentState = "complete"
	DeploymentRolledBack DeploymentState = "rolled_back"
	DeploymentFailed     DeploymentState = "failed"
)

// Terminal reports whether the deployment will make no further progress.
func (d DeploymentState) Terminal() bool {
	return d != DeploymentInProgress
}

// RolloutRun is the persisted record of one controller run.
type RolloutRun struct {
	ID               string
	Stage            RolloutStage
	StartPercentage  int
	TargetPercentage int
	StepSize         int
	FinalPercentage  int
	ErrorMessage     string
	StartedAt        time.Time
	FinishedAt       time.Time
}

// TableSpec describes one table participating in the migration: how to query
// it on both sides and which fields validation must treat as critical.
type TableSpec struct {
	Table          string   `yaml:"table"`
	TargetLocation string   `yaml:"target_location"`
	TimeColumn     string   `yaml:"time_column"`
	CriticalFields []string `yaml:"critical_fields"`
	Range          TimeRange
}

// Validate checks the spec names enough to run a validation.
func (t TableSpec) Validate() error {
	if t.Table == "" {
		return ErrValidation("table spec must name a table")
	}
	if t.TargetLocation == "" {
		return ErrValidation("table spec for %q must name a target location", t.Table)
	}
	return t.Range.Validate()
}

// Record is one sampled row in its normalized projection: a stable identity
// key plus field name → rendered value.
type Record struct {
	Key    string
	Fields map[string]string
}

// TableSchema is the field/tag shape of a table on one backend.
type TableSchema struct {
	Fields []string
	Tags   []string
}

// FieldSet returns fields and tags as one lookup set.
func (s *TableSchema) FieldSet() map[string]bool {
	set := make(map[string]bool, len(s.Fields)+len(s.Tags))
	for _, f := range s.Fields {
		set[f] = true
	}
	for _, t := range s.Tags {
		set[t] = true
	}
	return set
}

// FlagChange describes one configuration deployment request. Nil fields are
// left untouched by the provider.
type FlagChange struct {
	QueryEnabled      *bool
	IngestionEnabled  *bool
	TrafficPercentage *int
	Description       string
}

// BackendSummary is the derived view of one backend's performance counters.
type BackendSummary struct {
	TotalRequests int64
	AvgLatencyMs  float64
	ErrorRate     float64
}
