package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cutover/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleRun(id string, startedAt time.Time) *domain.RolloutRun {
	return &domain.RolloutRun{
		ID:               id,
		Stage:            domain.StageAtTarget,
		StartPercentage:  0,
		TargetPercentage: 50,
		StepSize:         10,
		FinalPercentage:  50,
		StartedAt:        startedAt,
		FinishedAt:       startedAt.Add(time.Hour),
	}
}

func TestRecordAndLatestRollout(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordRollout(ctx, sampleRun("run-1", base)))
	require.NoError(t, s.RecordRollout(ctx, sampleRun("run-2", base.Add(2*time.Hour))))

	latest, err := s.LatestRollout(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-2", latest.ID)
	assert.Equal(t, domain.StageAtTarget, latest.Stage)
	assert.Equal(t, 50, latest.FinalPercentage)
}

func TestLatestRolloutEmpty(t *testing.T) {
	s := newTestStore(t)

	_, err := s.LatestRollout(context.Background())
	var nf *domain.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestRecordRolloutUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	run := sampleRun("run-1", base)
	run.Stage = domain.StageRamping
	run.FinalPercentage = 10
	require.NoError(t, s.RecordRollout(ctx, run))

	run.Stage = domain.StageRolledBack
	run.FinalPercentage = 0
	run.ErrorMessage = "rolled back to 0%: target error rate"
	require.NoError(t, s.RecordRollout(ctx, run))

	latest, err := s.LatestRollout(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StageRolledBack, latest.Stage)
	assert.Equal(t, 0, latest.FinalPercentage)
	assert.Contains(t, latest.ErrorMessage, "rolled back")
}

func sampleJob(id string, status domain.JobStatus, startedAt time.Time) *domain.JobResult {
	return &domain.JobResult{
		JobID:              id,
		Table:              "events",
		TargetLocation:     "events_v2",
		Range:              domain.TimeRange{Start: startedAt.Add(-24 * time.Hour), End: startedAt},
		Status:             status,
		ProgressPercentage: 100,
		ExportedRecords:    5000,
		StartedAt:          startedAt,
		FinishedAt:         startedAt.Add(time.Minute),
	}
}

func TestRecordAndListJobs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordJob(ctx, sampleJob("job-1", domain.JobStatusCompleted, base)))
	require.NoError(t, s.RecordJob(ctx, sampleJob("job-2", domain.JobStatusRunning, base.Add(time.Hour))))
	require.NoError(t, s.RecordJob(ctx, sampleJob("job-3", domain.JobStatusFailed, base.Add(2*time.Hour))))

	all, err := s.ListJobs(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 3)
	// Newest first.
	assert.Equal(t, "job-3", all[0].JobID)

	active, err := s.ListJobs(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "job-2", active[0].JobID)
	assert.Equal(t, domain.JobStatusRunning, active[0].Status)
	assert.Equal(t, int64(5000), active[0].ExportedRecords)
}

func TestRecordJobUpsertOnCompletion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	job := sampleJob("job-1", domain.JobStatusRunning, base)
	job.ProgressPercentage = 40
	require.NoError(t, s.RecordJob(ctx, job))

	job.Status = domain.JobStatusCompleted
	job.ProgressPercentage = 100
	require.NoError(t, s.RecordJob(ctx, job))

	all, err := s.ListJobs(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, domain.JobStatusCompleted, all[0].Status)
	assert.Equal(t, float64(100), all[0].ProgressPercentage)
}

func TestRecordAndListValidations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	result := &domain.ValidationResult{
		ID:             "val-1",
		SourceTable:    "events",
		TargetLocation: "events_v2",
		Range:          domain.TimeRange{Start: base, End: base.Add(24 * time.Hour)},
		SourceCount:    1000,
		TargetCount:    950,
		CountMatch:     false,
		SampleAccuracy: 0.9,
		Errors:         []string{"count mismatch: source has 1000 records, target has 950", "sample accuracy 0.9000 below threshold 0.95"},
		Warnings:       []string{"schema: field \"note\" missing from target"},
		Status:         domain.ValidationFailed,
		Duration:       1500 * time.Millisecond,
	}
	require.NoError(t, s.RecordValidation(ctx, result))

	require.NoError(t, s.RecordValidation(ctx, &domain.ValidationResult{
		ID:          "val-2",
		SourceTable: "metrics",
		Status:      domain.ValidationPassed,
	}))

	forEvents, err := s.ListValidations(ctx, "events", 10)
	require.NoError(t, err)
	require.Len(t, forEvents, 1)
	got := forEvents[0]
	assert.Equal(t, "val-1", got.ID)
	assert.Equal(t, int64(1000), got.SourceCount)
	assert.Equal(t, int64(950), got.TargetCount)
	assert.Len(t, got.Errors, 2)
	assert.Len(t, got.Warnings, 1)
	assert.Equal(t, domain.ValidationFailed, got.Status)
	assert.Equal(t, 1500*time.Millisecond, got.Duration)

	all, err := s.ListValidations(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.sqlite")

	first, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, first.RecordRollout(context.Background(),
		sampleRun("run-1", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))))
	require.NoError(t, first.Close())

	// Reopening replays no migrations and keeps existing rows.
	second, err := Open(path)
	require.NoError(t, err)
	defer second.Close()

	latest, err := second.LatestRollout(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run-1", latest.ID)
}
