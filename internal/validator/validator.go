// Package validator proves migrated data correct by running independent
// integrity checks against the source and target backends and aggregating
// them into a single verdict.
package validator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"cutover/internal/domain"
)

// Options tunes the integrity checks.
type Options struct {
	SampleSize        int           // records per sample-accuracy check
	AccuracyThreshold float64       // minimum sample accuracy before an error
	TimeRangeSlack    time.Duration // tolerance on time-bound coverage
}

// DefaultOptions are applied for any zero-valued option.
var DefaultOptions = Options{
	SampleSize:        100,
	AccuracyThreshold: 0.95,
	TimeRangeSlack:    time.Minute,
}

// Validator runs the integrity checks for one table and range.
type Validator struct {
	source domain.StoreQuery
	target domain.StoreQuery
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Validator comparing source against target. Zero-valued
// options fall back to DefaultOptions.
func New(source, target domain.StoreQuery, opts Options, logger *slog.Logger) *Validator {
	if opts.SampleSize == 0 {
		opts.SampleSize = DefaultOptions.SampleSize
	}
	if opts.AccuracyThreshold == 0 {
		opts.AccuracyThreshold = DefaultOptions.AccuracyThreshold
	}
	if opts.TimeRangeSlack == 0 {
		opts.TimeRangeSlack = DefaultOptions.TimeRangeSlack
	}
	return &Validator{
		source: source,
		target: target,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

// findings collects errors and warnings from concurrently running sub-checks.
type findings struct {
	mu       sync.Mutex
	errors   []string
	warnings []string
}

func (f *findings) errorf(format string, args ...interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, fmt.Sprintf(format, args...))
}

func (f *findings) warnf(format string, args ...interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.warnings = append(f.warnings, fmt.Sprintf(format, args...))
}

// Validate runs every sub-check for the table and range and aggregates them
// into a ValidationResult. Sub-checks append to errors or warnings instead of
// failing the call; the aggregate status is computed exactly once, after all
// sub-checks finish, and is never revised.
func (v *Validator) Validate(ctx context.Context, spec domain.TableSpec) *domain.ValidationResult {
	start := v.now()
	result := &domain.ValidationResult{
		ID:             uuid.NewString(),
		SourceTable:    spec.Table,
		TargetLocation: spec.TargetLocation,
		Range:          spec.Range,
		Status:         domain.ValidationPending,
	}
	logger := v.logger.With("validation_id", result.ID, "table", spec.Table)

	f := &findings{}
	if err := spec.Validate(); err != nil {
		f.errorf("invalid table spec: %v", err)
	} else {
		// Sub-checks are independent of one another; aggregation waits for
		// all of them. Each one recovers its own panics: errgroup does not
		// propagate child panics to Wait, so an uncaught panic here would
		// kill the process instead of failing the table.
		var g errgroup.Group
		g.Go(runCheck(f, "count check", func() { v.countCheck(ctx, spec, result, f) }))
		g.Go(runCheck(f, "time range check", func() { v.timeRangeCheck(ctx, spec, result, f) }))
		g.Go(runCheck(f, "schema check", func() { v.schemaCheck(ctx, spec, f) }))
		g.Go(runCheck(f, "sample check", func() { v.sampleCheck(ctx, spec, result, f) }))
		g.Go(runCheck(f, "checksum check", func() { v.checksumCheck(ctx, spec, result, f) }))
		_ = g.Wait()
	}

	result.Errors = f.errors
	result.Warnings = f.warnings
	result.Status = domain.ResolveValidationStatus(f.errors, f.warnings)
	result.Duration = v.now().Sub(start)

	logger.Info("validation finished",
		"status", result.Status,
		"errors", len(result.Errors),
		"warnings", len(result.Warnings),
		"duration", result.Duration,
	)
	return result
}

// countCheck compares record counts for the range on both sides.
func (v *Validator) countCheck(ctx context.Context, spec domain.TableSpec, result *domain.ValidationResult, f *findings) {
	sourceCount, err := v.source.Count(ctx, spec.Table, spec.Range)
	if err != nil {
		f.errorf("count check: source count failed: %v", err)
		return
	}
	targetCount, err := v.target.Count(ctx, spec.TargetLocation, spec.Range)
	if err != nil {
		f.errorf("count check: target count failed: %v", err)
		return
	}

	result.SourceCount = sourceCount
	result.TargetCount = targetCount
	result.CountMatch = sourceCount == targetCount
	if !result.CountMatch {
		f.errorf("count mismatch: source has %d records, target has %d", sourceCount, targetCount)
	}
}

// timeRangeCheck verifies the target's observed time bounds cover the
// requested range within the configured slack.
func (v *Validator) timeRangeCheck(ctx context.Context, spec domain.TableSpec, result *domain.ValidationResult, f *findings) {
	bounds, err := v.target.TimeBounds(ctx, spec.TargetLocation)
	if err != nil {
		f.errorf("time range check: target bounds failed: %v", err)
		return
	}
	if bounds == nil {
		f.errorf("time range check: target has no data for %s", spec.TargetLocation)
		return
	}

	result.TimeRangeMatch = bounds.Covers(spec.Range, v.opts.TimeRangeSlack)
	if !result.TimeRangeMatch {
		f.errorf("time range mismatch: target covers %s, expected coverage of %s", bounds, spec.Range)
	}
}

// schemaCheck compares field and tag sets between the two representations.
// Missing critical fields are errors; other missing fields are warnings.
func (v *Validator) schemaCheck(ctx context.Context, spec domain.TableSpec, f *findings) {
	sourceSchema, err := v.source.Schema(ctx, spec.Table)
	if err != nil {
		f.errorf("schema check: source schema failed: %v", err)
		return
	}
	targetSchema, err := v.target.Schema(ctx, spec.TargetLocation)
	if err != nil {
		f.errorf("schema check: target schema failed: %v", err)
		return
	}

	critical := make(map[string]bool, len(spec.CriticalFields))
	for _, name := range spec.CriticalFields {
		critical[name] = true
	}

	targetFields := targetSchema.FieldSet()
	for name := range sourceSchema.FieldSet() {
		if targetFields[name] {
			continue
		}
		if critical[name] {
			f.errorf("schema mismatch: critical field %q missing from target", name)
		} else {
			f.warnf("schema: field %q missing from target", name)
		}
	}
}

// sampleCheck draws a bounded sample from source and verifies the
// corresponding target records carry identical fields. Sampling is
// deterministic for a fixed table and range, so reruns reproduce results.
func (v *Validator) sampleCheck(ctx context.Context, spec domain.TableSpec, result *domain.ValidationResult, f *findings) {
	sample, err := v.source.Sample(ctx, spec.Table, spec.Range, v.opts.SampleSize)
	if err != nil {
		f.errorf("sample check: source sample failed: %v", err)
		return
	}
	if len(sample) == 0 {
		// Empty range: nothing to disprove.
		result.SampleAccuracy = 1
		f.warnf("sample check skipped: no source records in range")
		return
	}

	keys := make([]string, len(sample))
	for i, rec := range sample {
		keys[i] = rec.Key
	}
	targetRecords, err := v.target.Lookup(ctx, spec.TargetLocation, keys, spec.Range)
	if err != nil {
		f.errorf("sample check: target lookup failed: %v", err)
		return
	}

	byKey := make(map[string]domain.Record, len(targetRecords))
	for _, rec := range targetRecords {
		byKey[rec.Key] = rec
	}

	matched := 0
	for _, src := range sample {
		if tgt, ok := byKey[src.Key]; ok && fieldsEqual(src.Fields, tgt.Fields) {
			matched++
		}
	}

	result.SampleAccuracy = float64(matched) / float64(len(sample))
	if result.SampleAccuracy < v.opts.AccuracyThreshold {
		f.errorf("sample accuracy %.4f below threshold %.2f (%d/%d records matched)",
			result.SampleAccuracy, v.opts.AccuracyThreshold, matched, len(sample))
	}
}

// checksumCheck compares the deterministic aggregate hashes of the range on
// both sides. A mismatch is a strong corruption signal.
func (v *Validator) checksumCheck(ctx context.Context, spec domain.TableSpec, result *domain.ValidationResult, f *findings) {
	sourceSum, err := v.source.Checksum(ctx, spec.Table, spec.Range)
	if err != nil {
		f.errorf("checksum check: source checksum failed: %v", err)
		return
	}
	targetSum, err := v.target.Checksum(ctx, spec.TargetLocation, spec.Range)
	if err != nil {
		f.errorf("checksum check: target checksum failed: %v", err)
		return
	}

	result.ChecksumMatch = sourceSum == targetSum
	if !result.ChecksumMatch {
		f.errorf("checksum mismatch: source %016x, target %016x", sourceSum, targetSum)
	}
}

// runCheck wraps one sub-check for errgroup, converting a panic into an
// error finding on the table instead of crashing the process.
func runCheck(f *findings, name string, check func()) func() error {
	return func() error {
		defer func() {
			if r := recover(); r != nil {
				f.errorf("%s panicked: %v", name, r)
			}
		}()
		check()
		return nil
	}
}

func fieldsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
