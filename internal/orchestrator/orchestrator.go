// Package orchestrator launches backfill jobs on the external migration
// worker, polls them to completion, and hands completed ranges to the
// data-integrity validator.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"cutover/internal/config"
	"cutover/internal/domain"
	"cutover/internal/validator"
)

// maxConsecutivePollErrors bounds how many status polls in a row may fail
// before the job is marked failed.
const maxConsecutivePollErrors = 5

// Options controls one orchestrator run.
type Options struct {
	// Parallelism bounds concurrently running jobs. Values below 2 run jobs
	// strictly sequentially.
	Parallelism int
	// StopOnFailure skips launching remaining jobs after a non-completed
	// result. Only honored in sequential mode.
	StopOnFailure bool
	// PollInterval and Timeout override the configured per-job values when
	// non-zero.
	PollInterval time.Duration
	Timeout      time.Duration
	// OnProgress, when set, observes every poll of every job. Called from the
	// goroutine that owns the job's polling loop.
	OnProgress func(jobID string, status *domain.WorkerStatus)
}

// Orchestrator coordinates migration jobs against the external worker.
type Orchestrator struct {
	worker    domain.MigrationWorker
	validator *validator.Validator     // optional, nil disables post-completion validation
	history   domain.HistoryRepository // optional, nil disables run recording
	limiter   *rate.Limiter            // aggregate cap on worker status calls
	cfg       config.JobConfig
	logger    *slog.Logger
	now       func() time.Time
}

// New creates an Orchestrator. validator and history may be nil.
func New(worker domain.MigrationWorker, v *validator.Validator, history domain.HistoryRepository,
	cfg config.JobConfig, logger *slog.Logger) *Orchestrator {

	return &Orchestrator{
		worker:    worker,
		validator: v,
		history:   history,
		limiter:   rate.NewLimiter(rate.Limit(cfg.StatusRPS), 1),
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Run executes the given jobs and returns exactly one result per job, in
// input order. One job's failure never aborts its siblings; cancelling the
// context cancels all still-running jobs.
func (o *Orchestrator) Run(ctx context.Context, jobs []domain.MigrationJob, opts Options) []*domain.JobResult {
	if opts.PollInterval <= 0 {
		opts.PollInterval = o.cfg.PollInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = o.cfg.Timeout
	}

	for i := range jobs {
		if jobs[i].ID == "" {
			jobs[i].ID = uuid.NewString()
		}
		if jobs[i].BatchSize == 0 {
			jobs[i].BatchSize = o.cfg.BatchSize
		}
	}

	results := make([]*domain.JobResult, len(jobs))

	if opts.Parallelism < 2 {
		stopped := false
		for i, job := range jobs {
			if stopped {
				results[i] = o.skippedResult(job)
				continue
			}
			results[i] = o.runJob(ctx, job, opts)
			if opts.StopOnFailure && results[i].Status != domain.JobStatusCompleted {
				o.logger.Warn("stopping batch after job did not complete",
					"job_id", job.ID, "status", results[i].Status)
				stopped = true
			}
		}
		return results
	}

	// Each job's polling loop runs independently; the pool only bounds how
	// many are in flight at once.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Parallelism)
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			results[i] = o.runJob(gctx, job, opts)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Watch polls already-running worker jobs by ID without launching anything.
// Used by the monitor command.
func (o *Orchestrator) Watch(ctx context.Context, jobIDs []string, opts Options) []*domain.JobResult {
	if opts.PollInterval <= 0 {
		opts.PollInterval = o.cfg.PollInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = o.cfg.Timeout
	}

	results := make([]*domain.JobResult, len(jobIDs))
	g, gctx := errgroup.WithContext(ctx)
	if opts.Parallelism >= 2 {
		g.SetLimit(opts.Parallelism)
	}
	for i, jobID := range jobIDs {
		i, jobID := i, jobID
		g.Go(func() error {
			result := &domain.JobResult{
				JobID:     jobID,
				Status:    domain.JobStatusRunning,
				StartedAt: o.now(),
			}
			o.poll(gctx, domain.JobHandle(jobID), result, opts)
			result.FinishedAt = o.now()
			results[i] = result
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// runJob owns one job end to end: launch, poll to a terminal status, then
// optional validation. The result is mutated only by this goroutine.
func (o *Orchestrator) runJob(ctx context.Context, job domain.MigrationJob, opts Options) *domain.JobResult {
	result := &domain.JobResult{
		JobID:          job.ID,
		Table:          job.Table,
		TargetLocation: job.TargetLocation,
		Range:          job.Range,
		Status:         domain.JobStatusPending,
		StartedAt:      o.now(),
	}
	logger := o.logger.With("job_id", job.ID, "table", job.Table)
	defer func() {
		result.FinishedAt = o.now()
		o.record(result)
	}()

	if err := job.Validate(); err != nil {
		result.Status = domain.JobStatusFailed
		result.ErrorMessage = err.Error()
		return result
	}

	handle, err := o.worker.Start(ctx, job)
	if err != nil {
		launchErr := &domain.JobLaunchError{JobID: job.ID, Message: err.Error(), Err: err}
		logger.Error("worker rejected job", "error", launchErr)
		result.Status = domain.JobStatusFailed
		result.ErrorMessage = launchErr.Error()
		return result
	}

	result.Status = domain.JobStatusRunning
	logger.Info("job started", "handle", handle, "range", job.Range)

	o.poll(ctx, handle, result, opts)

	if result.Status == domain.JobStatusCompleted && job.ValidateOnComplete && o.validator != nil {
		logger.Info("validating completed range")
		result.Validation = o.validator.Validate(ctx, domain.TableSpec{
			Table:          job.Table,
			TargetLocation: job.TargetLocation,
			Range:          job.Range,
		})
		if o.history != nil {
			if err := o.history.RecordValidation(context.Background(), result.Validation); err != nil {
				logger.Warn("failed to record validation result", "error", err)
			}
		}
	}

	return result
}

// poll drives one job's status loop until the worker reports a terminal
// status, the per-job timeout elapses, or the context is cancelled. Exactly
// one of those outcomes terminates the loop.
func (o *Orchestrator) poll(ctx context.Context, handle domain.JobHandle, result *domain.JobResult, opts Options) {
	logger := o.logger.With("job_id", result.JobID)
	deadline := o.now().Add(opts.Timeout)
	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()

	pollErrors := 0
	for {
		if err := o.limiter.Wait(ctx); err != nil {
			o.markCancelled(ctx, handle, result)
			return
		}

		status, err := o.worker.Status(ctx, handle)
		if err != nil {
			pollErrors++
			logger.Warn("status poll failed", "attempt", pollErrors, "error", err)
			if pollErrors >= maxConsecutivePollErrors {
				result.Status = domain.JobStatusFailed
				result.ErrorMessage = fmt.Sprintf("status polling failed %d times in a row: %v", pollErrors, err)
				return
			}
		} else {
			pollErrors = 0
			result.ProgressPercentage = status.ProgressPercentage
			result.ExportedRecords = status.ExportedRecords
			if opts.OnProgress != nil {
				opts.OnProgress(result.JobID, status)
			}
			if status.Status.Terminal() {
				result.Status = status.Status
				result.ErrorMessage = status.ErrorMessage
				logger.Info("job reached terminal status",
					"status", status.Status, "exported", status.ExportedRecords)
				return
			}
		}

		if o.now().After(deadline) {
			timeoutErr := &domain.JobTimeoutError{
				JobID:   result.JobID,
				Message: fmt.Sprintf("no terminal status after %s", opts.Timeout),
			}
			logger.Error("job timed out, cancelling", "error", timeoutErr)
			_ = o.worker.Cancel(context.WithoutCancel(ctx), handle)
			result.Status = domain.JobStatusTimeout
			result.ErrorMessage = timeoutErr.Error()
			return
		}

		select {
		case <-ctx.Done():
			o.markCancelled(ctx, handle, result)
			return
		case <-ticker.C:
		}
	}
}

// markCancelled best-effort cancels the worker-side job and records the
// cancellation locally.
func (o *Orchestrator) markCancelled(ctx context.Context, handle domain.JobHandle, result *domain.JobResult) {
	_ = o.worker.Cancel(context.WithoutCancel(ctx), handle)
	result.Status = domain.JobStatusCancelled
	result.ErrorMessage = "cancelled before completion"
}

// skippedResult marks a job that was never launched because an earlier job
// stopped the sequential batch.
func (o *Orchestrator) skippedResult(job domain.MigrationJob) *domain.JobResult {
	now := o.now()
	return &domain.JobResult{
		JobID:          job.ID,
		Table:          job.Table,
		TargetLocation: job.TargetLocation,
		Range:          job.Range,
		Status:         domain.JobStatusCancelled,
		ErrorMessage:   "not launched: batch stopped on earlier failure",
		StartedAt:      now,
		FinishedAt:     now,
	}
}

// record persists the job outcome; history errors are logged, not propagated.
func (o *Orchestrator) record(result *domain.JobResult) {
	if o.history == nil {
		return
	}
	if err := o.history.RecordJob(context.Background(), result); err != nil {
		o.logger.Warn("failed to record job result", "job_id", result.JobID, "error", err)
	}
}
