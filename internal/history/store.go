// Package history persists rollout runs, migration jobs, and validation
// results to a local SQLite file so the status and monitor commands can see
// past and in-flight work.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"cutover/internal/domain"
)

// Store implements domain.HistoryRepository over SQLite.
type Store struct {
	db *sql.DB
}

var _ domain.HistoryRepository = (*Store)(nil)

// Open opens (or creates) the history store at path and applies pending
// migrations.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate history store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// RecordRollout upserts one rollout run record.
func (s *Store) RecordRollout(ctx context.Context, run *domain.RolloutRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rollout_runs
			(id, stage, start_percentage, target_percentage, step_size, final_percentage, error_message, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			stage = excluded.stage,
			final_percentage = excluded.final_percentage,
			error_message = excluded.error_message,
			finished_at = excluded.finished_at`,
		run.ID, string(run.Stage), run.StartPercentage, run.TargetPercentage,
		run.StepSize, run.FinalPercentage, run.ErrorMessage, run.StartedAt, run.FinishedAt)
	if err != nil {
		return fmt.Errorf("record rollout run: %w", err)
	}
	return nil
}

// RecordJob upserts one migration-job result.
func (s *Store) RecordJob(ctx context.Context, result *domain.JobResult) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO migration_jobs
			(job_id, table_name, target_location, range_start, range_end, status, progress_pct, exported_records, error_message, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (job_id) DO UPDATE SET
			status = excluded.status,
			progress_pct = excluded.progress_pct,
			exported_records = excluded.exported_records,
			error_message = excluded.error_message,
			finished_at = excluded.finished_at`,
		result.JobID, result.Table, result.TargetLocation,
		result.Range.Start, result.Range.End, string(result.Status),
		result.ProgressPercentage, result.ExportedRecords, result.ErrorMessage,
		result.StartedAt, result.FinishedAt)
	if err != nil {
		return fmt.Errorf("record job %s: %w", result.JobID, err)
	}
	return nil
}

// RecordValidation inserts one validation result.
func (s *Store) RecordValidation(ctx context.Context, result *domain.ValidationResult) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO validation_results
			(id, source_table, target_location, range_start, range_end, source_count, target_count,
			 count_match, sample_accuracy, checksum_match, timerange_match, errors, warnings, status, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.ID, result.SourceTable, result.TargetLocation,
		result.Range.Start, result.Range.End, result.SourceCount, result.TargetCount,
		result.CountMatch, result.SampleAccuracy, result.ChecksumMatch, result.TimeRangeMatch,
		strings.Join(result.Errors, "\n"), strings.Join(result.Warnings, "\n"),
		string(result.Status), result.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("record validation %s: %w", result.ID, err)
	}
	return nil
}

// LatestRollout returns the most recently started rollout run, or a
// NotFoundError when none exist.
func (s *Store) LatestRollout(ctx context.Context) (*domain.RolloutRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, stage, start_percentage, target_percentage, step_size, final_percentage, error_message, started_at, finished_at
		FROM rollout_runs ORDER BY started_at DESC LIMIT 1`)

	var run domain.RolloutRun
	var stage string
	err := row.Scan(&run.ID, &stage, &run.StartPercentage, &run.TargetPercentage,
		&run.StepSize, &run.FinalPercentage, &run.ErrorMessage, &run.StartedAt, &run.FinishedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound("no rollout runs recorded")
	}
	if err != nil {
		return nil, fmt.Errorf("latest rollout: %w", err)
	}
	run.Stage = domain.RolloutStage(stage)
	return &run, nil
}

// ListJobs returns recorded jobs, newest first. With onlyActive set, only
// jobs whose status is non-terminal are returned.
func (s *Store) ListJobs(ctx context.Context, onlyActive bool) ([]domain.JobResult, error) {
	q := `
		SELECT job_id, table_name, target_location, range_start, range_end, status, progress_pct, exported_records, error_message, started_at, finished_at
		FROM migration_jobs`
	if onlyActive {
		q += ` WHERE status IN ('pending', 'running')`
	}
	q += ` ORDER BY started_at DESC`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.JobResult
	for rows.Next() {
		var j domain.JobResult
		var status string
		var rangeStart, rangeEnd sql.NullTime
		if err := rows.Scan(&j.JobID, &j.Table, &j.TargetLocation, &rangeStart, &rangeEnd,
			&status, &j.ProgressPercentage, &j.ExportedRecords, &j.ErrorMessage,
			&j.StartedAt, &j.FinishedAt); err != nil {
			return nil, fmt.Errorf("list jobs: %w", err)
		}
		j.Status = domain.JobStatus(status)
		j.Range = domain.TimeRange{Start: rangeStart.Time, End: rangeEnd.Time}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// ListValidations returns recorded validation results for a table (or all
// tables when table is empty), newest first.
func (s *Store) ListValidations(ctx context.Context, table string, limit int) ([]domain.ValidationResult, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `
		SELECT id, source_table, target_location, range_start, range_end, source_count, target_count,
		       count_match, sample_accuracy, checksum_match, timerange_match, errors, warnings, status, duration_ms
		FROM validation_results`
	var args []any
	if table != "" {
		q += ` WHERE source_table = ?`
		args = append(args, table)
	}
	q += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list validations: %w", err)
	}
	defer rows.Close()

	var results []domain.ValidationResult
	for rows.Next() {
		var r domain.ValidationResult
		var status, errText, warnText string
		var rangeStart, rangeEnd sql.NullTime
		var durationMs int64
		if err := rows.Scan(&r.ID, &r.SourceTable, &r.TargetLocation, &rangeStart, &rangeEnd,
			&r.SourceCount, &r.TargetCount, &r.CountMatch, &r.SampleAccuracy,
			&r.ChecksumMatch, &r.TimeRangeMatch, &errText, &warnText, &status, &durationMs); err != nil {
			return nil, fmt.Errorf("list validations: %w", err)
		}
		r.Status = domain.ValidationStatus(status)
		r.Range = domain.TimeRange{Start: rangeStart.Time, End: rangeEnd.Time}
		r.Duration = time.Duration(durationMs) * time.Millisecond
		if errText != "" {
			r.Errors = strings.Split(errText, "\n")
		}
		if warnText != "" {
			r.Warnings = strings.Split(warnText, "\n")
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
