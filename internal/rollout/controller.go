// Package rollout supervises the multi-step traffic ramp from the source
// backend to the target, deploying configuration changes and watching health
// signals between steps.
package rollout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"cutover/internal/config"
	"cutover/internal/domain"
	"cutover/internal/flagcache"
	"cutover/internal/monitor"
)

// errDeployTimeout distinguishes a deploy that never completed from one the
// provider reported as failed. Only the former produces the FAILED stage.
var errDeployTimeout = errors.New("deployment did not complete within timeout")

// Controller runs a single supervisory control loop for one gradual rollout.
// It keeps no durable state: on start it re-derives the current percentage
// from the live configuration snapshot, so a controller restarted mid-ramp
// resumes where the deployed configuration actually is.
type Controller struct {
	provider domain.ConfigProvider
	flags    *flagcache.Cache
	monitor  *monitor.Monitor
	history  domain.HistoryRepository // optional, nil disables run recording
	cfg      config.RolloutConfig
	logger   *slog.Logger

	rolledBack bool // rollback is a no-op the second time within one run
	now        func() time.Time
}

// New creates a Controller. history may be nil.
func New(provider domain.ConfigProvider, flags *flagcache.Cache, mon *monitor.Monitor,
	history domain.HistoryRepository, cfg config.RolloutConfig, logger *slog.Logger) *Controller {

	return &Controller{
		provider: provider,
		flags:    flags,
		monitor:  mon,
		history:  history,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Run ramps traffic to targetPercentage in increments of stepSize, soaking
// for stepWait after each step while health is polled. It returns the run
// record in every case; the error is non-nil when the ramp did not reach the
// target. Zero stepSize and stepWait fall back to configured defaults.
func (c *Controller) Run(ctx context.Context, targetPercentage, stepSize int, stepWait time.Duration) (*domain.RolloutRun, error) {
	if targetPercentage < 0 || targetPercentage > 100 {
		return nil, domain.ErrValidation("target percentage must be in [0,100], got %d", targetPercentage)
	}
	if stepSize <= 0 {
		stepSize = c.cfg.DefaultStepSize
	}
	if stepWait <= 0 {
		stepWait = c.cfg.DefaultStepWait
	}
	// The guard is scoped to one run; a fresh ramp gets a fresh rollback.
	c.rolledBack = false

	// Re-derive current state from the live configuration rather than any
	// in-memory value: the controller must be idempotently resumable.
	c.flags.Invalidate()
	snap := c.flags.Get(ctx)
	current := snap.EffectivePercentage()
	if targetPercentage < current {
		return nil, domain.ErrValidation(
			"target %d%% is below the current %d%%; ramps only raise traffic, use set-percentage to reduce it",
			targetPercentage, current)
	}

	run := &domain.RolloutRun{
		ID:               uuid.NewString(),
		Stage:            domain.StageNotStarted,
		TargetPercentage: targetPercentage,
		StepSize:         stepSize,
		StartedAt:        c.now(),
		StartPercentage:  current,
		FinalPercentage:  current,
	}
	logger := c.logger.With("rollout_id", run.ID, "target", targetPercentage)
	defer c.record(run)

	if !snap.QueryEnabled {
		run.Stage = domain.StageEnablingQueries
		logger.Info("enabling queries at 0%")
		if err := c.EnableQueries(ctx); err != nil {
			return c.finish(run, err)
		}
		current = 0
		run.FinalPercentage = 0
	}

	run.Stage = domain.StageRamping
	lastGood := current

	for current < targetPercentage {
		next := min(current+stepSize, targetPercentage)
		logger.Info("ramping traffic", "from", current, "to", next)

		if err := c.deployPercentage(ctx, next); err != nil {
			if errors.Is(err, errDeployTimeout) {
				run.Stage = domain.StageFailed
				return c.finish(run, fmt.Errorf("deploy %d%%: %w", next, err))
			}
			if rbErr := c.rollback(ctx, lastGood); rbErr != nil {
				run.Stage = domain.StageFailed
				return c.finish(run, rbErr)
			}
			run.Stage = domain.StageRolledBack
			return c.finish(run, fmt.Errorf("deploy %d%% failed, rolled back to %d%%: %w", next, lastGood, err))
		}

		if err := c.soak(ctx, stepWait); err != nil {
			if ctx.Err() != nil {
				return c.finish(run, ctx.Err())
			}
			logger.Warn("health breach during soak", "at", next, "error", err)
			if rbErr := c.rollback(ctx, lastGood); rbErr != nil {
				run.Stage = domain.StageFailed
				return c.finish(run, rbErr)
			}
			run.Stage = domain.StageRolledBack
			run.FinalPercentage = lastGood
			return c.finish(run, fmt.Errorf("rolled back to %d%%: %w", lastGood, err))
		}

		current = next
		lastGood = next
		run.FinalPercentage = next
		c.flags.Invalidate()
	}

	run.Stage = domain.StageAtTarget
	logger.Info("rollout reached target", "percentage", current)
	return c.finish(run, nil)
}

// EnableQueries deploys a configuration change turning queries on at 0% and
// waits for the deployment to complete.
func (c *Controller) EnableQueries(ctx context.Context) error {
	enabled := true
	zero := 0
	id, err := c.provider.Deploy(ctx, domain.FlagChange{
		QueryEnabled:      &enabled,
		TrafficPercentage: &zero,
		Description:       "enable queries at 0%",
	})
	if err != nil {
		return fmt.Errorf("deploy enable-queries: %w", err)
	}
	if err := c.waitForDeployment(ctx, id); err != nil {
		return fmt.Errorf("enable-queries deployment: %w", err)
	}
	c.flags.Invalidate()
	return nil
}

// SetPercentage deploys a direct percentage change, outside of a supervised
// ramp, and waits for the deployment to complete.
func (c *Controller) SetPercentage(ctx context.Context, percentage int) error {
	if percentage < 0 || percentage > 100 {
		return domain.ErrValidation("percentage must be in [0,100], got %d", percentage)
	}
	if err := c.deployPercentage(ctx, percentage); err != nil {
		return err
	}
	c.flags.Invalidate()
	return nil
}

func (c *Controller) deployPercentage(ctx context.Context, percentage int) error {
	id, err := c.provider.Deploy(ctx, domain.FlagChange{
		TrafficPercentage: &percentage,
		Description:       fmt.Sprintf("set traffic percentage to %d", percentage),
	})
	if err != nil {
		return fmt.Errorf("deploy %d%%: %w", percentage, err)
	}
	return c.waitForDeployment(ctx, id)
}

// waitForDeployment polls the deployment until it reaches a terminal state or
// the per-deploy timeout elapses.
func (c *Controller) waitForDeployment(ctx context.Context, deploymentID string) error {
	deadline := c.now().Add(c.cfg.DeployTimeout)
	ticker := time.NewTicker(c.cfg.DeployPollEvery)
	defer ticker.Stop()

	for {
		state, err := c.provider.GetDeploymentStatus(ctx, deploymentID)
		if err != nil {
			return fmt.Errorf("deployment %s status: %w", deploymentID, err)
		}
		switch state {
		case domain.DeploymentComplete:
			return nil
		case domain.DeploymentFailed, domain.DeploymentRolledBack:
			return fmt.Errorf("deployment %s ended as %s", deploymentID, state)
		}

		if c.now().After(deadline) {
			_ = c.provider.StopDeployment(ctx, deploymentID)
			return errDeployTimeout
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// soak waits out one step while polling health once per check interval. It
// returns an error describing the first threshold breach, or nil when the
// step completed healthy.
func (c *Controller) soak(ctx context.Context, stepWait time.Duration) error {
	deadline := c.now().Add(stepWait)
	ticker := time.NewTicker(c.cfg.HealthCheckEvery)
	defer ticker.Stop()

	for {
		if err := c.checkHealth(); err != nil {
			return err
		}
		if !c.now().Before(deadline) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// checkHealth compares the target backend's live counters against the
// configured thresholds.
func (c *Controller) checkHealth() error {
	s := c.monitor.Summary()[domain.BackendTarget]
	if s.TotalRequests == 0 {
		return nil
	}
	if s.ErrorRate > c.cfg.ErrorRateThreshold {
		return fmt.Errorf("target error rate %.4f exceeds threshold %.4f", s.ErrorRate, c.cfg.ErrorRateThreshold)
	}
	if s.AvgLatencyMs > c.cfg.LatencyThresholdMs {
		return fmt.Errorf("target avg latency %.0fms exceeds threshold %.0fms", s.AvgLatencyMs, c.cfg.LatencyThresholdMs)
	}
	return nil
}

// rollback reverts traffic to the last known-good percentage. Calling it a
// second time is a no-op. A failure here is escalated as a RollbackError: the
// system may be left at a partially-shifted, unverified percentage.
func (c *Controller) rollback(ctx context.Context, lastGood int) error {
	if c.rolledBack {
		return nil
	}
	c.rolledBack = true

	c.logger.Warn("rolling back traffic", "percentage", lastGood)
	if err := c.deployPercentage(ctx, lastGood); err != nil {
		c.logger.Error("ROLLBACK FAILED, configuration may be partially shifted",
			"percentage", lastGood, "error", err)
		return &domain.RollbackError{Percentage: lastGood, Message: err.Error(), Err: err}
	}
	c.flags.Invalidate()
	return nil
}

func (c *Controller) finish(run *domain.RolloutRun, err error) (*domain.RolloutRun, error) {
	run.FinishedAt = c.now()
	if err != nil {
		run.ErrorMessage = err.Error()
	}
	return run, err
}

// record persists the run outcome; history errors are logged, not propagated.
func (c *Controller) record(run *domain.RolloutRun) {
	if c.history == nil {
		return
	}
	if err := c.history.RecordRollout(context.Background(), run); err != nil {
		c.logger.Warn("failed to record rollout run", "rollout_id", run.ID, "error", err)
	}
}
