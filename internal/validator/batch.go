package validator

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"cutover/internal/domain"
)

// BatchOptions controls how a set of tables is validated.
type BatchOptions struct {
	// Parallelism bounds concurrently validated tables. Values below 2 run
	// the batch strictly sequentially.
	Parallelism int
	// StopOnFailure skips remaining tables after the first failed result.
	// Only honored in sequential mode.
	StopOnFailure bool
}

// BatchSummary is the outcome of validating a set of tables. Results holds
// exactly one entry per input spec, in input order.
type BatchSummary struct {
	Results []*domain.ValidationResult
	Passed  int
	Warned  int
	Failed  int
	Skipped int
	Status  domain.ValidationStatus
}

// ValidateMany validates each table spec and never lets one table's failure
// abort the batch: a panicking validation is converted into a failed result
// carrying the panic message.
func (v *Validator) ValidateMany(ctx context.Context, specs []domain.TableSpec, opts BatchOptions) *BatchSummary {
	results := make([]*domain.ValidationResult, len(specs))

	if opts.Parallelism < 2 {
		stopped := false
		for i, spec := range specs {
			if stopped {
				results[i] = skippedResult(spec)
				continue
			}
			results[i] = v.validateSafely(ctx, spec)
			if opts.StopOnFailure && results[i].Status == domain.ValidationFailed {
				v.logger.Warn("stopping batch after failed validation", "table", spec.Table)
				stopped = true
			}
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(opts.Parallelism)
		for i, spec := range specs {
			i, spec := i, spec
			g.Go(func() error {
				results[i] = v.validateSafely(gctx, spec)
				return nil
			})
		}
		_ = g.Wait()
	}

	return summarizeBatch(results)
}

// validateSafely runs one validation, converting a panic into a failed
// result. Sub-check panics are already recovered inside Validate; this
// catches anything raised outside the sub-check goroutines.
func (v *Validator) validateSafely(ctx context.Context, spec domain.TableSpec) (result *domain.ValidationResult) {
	defer func() {
		if r := recover(); r != nil {
			v.logger.Error("validation panicked", "table", spec.Table, "panic", r)
			result = &domain.ValidationResult{
				SourceTable:    spec.Table,
				TargetLocation: spec.TargetLocation,
				Range:          spec.Range,
				Errors:         []string{fmt.Sprintf("validation panicked: %v", r)},
				Status:         domain.ValidationFailed,
			}
		}
	}()
	return v.Validate(ctx, spec)
}

// skippedResult marks a table that was never validated because an earlier
// failure stopped the batch.
func skippedResult(spec domain.TableSpec) *domain.ValidationResult {
	return &domain.ValidationResult{
		SourceTable:    spec.Table,
		TargetLocation: spec.TargetLocation,
		Range:          spec.Range,
		Warnings:       []string{"validation skipped: batch stopped on earlier failure"},
		Status:         domain.ValidationPending,
	}
}

func summarizeBatch(results []*domain.ValidationResult) *BatchSummary {
	s := &BatchSummary{Results: results}
	for _, r := range results {
		switch r.Status {
		case domain.ValidationPassed:
			s.Passed++
		case domain.ValidationWarning:
			s.Warned++
		case domain.ValidationFailed:
			s.Failed++
		default:
			s.Skipped++
		}
	}
	switch {
	case s.Failed > 0:
		s.Status = domain.ValidationFailed
	case s.Warned > 0 || s.Skipped > 0:
		s.Status = domain.ValidationWarning
	default:
		s.Status = domain.ValidationPassed
	}
	return s
}
