// Package testutil provides shared mock implementations of domain interfaces
// for use in tests across the codebase. This follows the Go convention of a
// shared test utility package (like net/http/httptest).
package testutil

import (
	"context"
	"sync"
	"time"

	"cutover/internal/domain"
)

// === ConfigProvider Mock ===

// MockConfigProvider implements domain.ConfigProvider for testing.
type MockConfigProvider struct {
	GetConfigurationFn    func(ctx context.Context) (*domain.ConfigurationSnapshot, error)
	DeployFn              func(ctx context.Context, change domain.FlagChange) (string, error)
	GetDeploymentStatusFn func(ctx context.Context, deploymentID string) (domain.DeploymentState, error)
	StopDeploymentFn      func(ctx context.Context, deploymentID string) error

	mu      sync.Mutex
	Deploys []domain.FlagChange // collected deploy requests for assertions
	Gets    int                 // number of GetConfiguration calls
}

// GetConfiguration implements the interface method for testing.
func (m *MockConfigProvider) GetConfiguration(ctx context.Context) (*domain.ConfigurationSnapshot, error) {
	m.mu.Lock()
	m.Gets++
	m.mu.Unlock()
	if m.GetConfigurationFn != nil {
		return m.GetConfigurationFn(ctx)
	}
	return &domain.ConfigurationSnapshot{IngestionEnabled: true}, nil
}

// Deploy implements the interface method for testing.
func (m *MockConfigProvider) Deploy(ctx context.Context, change domain.FlagChange) (string, error) {
	m.mu.Lock()
	m.Deploys = append(m.Deploys, change)
	m.mu.Unlock()
	if m.DeployFn != nil {
		return m.DeployFn(ctx, change)
	}
	return "deploy-1", nil
}

// GetDeploymentStatus implements the interface method for testing.
func (m *MockConfigProvider) GetDeploymentStatus(ctx context.Context, deploymentID string) (domain.DeploymentState, error) {
	if m.GetDeploymentStatusFn != nil {
		return m.GetDeploymentStatusFn(ctx, deploymentID)
	}
	return domain.DeploymentComplete, nil
}

// StopDeployment implements the interface method for testing.
func (m *MockConfigProvider) StopDeployment(ctx context.Context, deploymentID string) error {
	if m.StopDeploymentFn != nil {
		return m.StopDeploymentFn(ctx, deploymentID)
	}
	return nil
}

// DeployedPercentages returns the percentage carried by each collected deploy
// that set one, in order.
func (m *MockConfigProvider) DeployedPercentages() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pcts []int
	for _, d := range m.Deploys {
		if d.TrafficPercentage != nil {
			pcts = append(pcts, *d.TrafficPercentage)
		}
	}
	return pcts
}

// === MetricsSink Mock ===

// Emission is one captured MetricsSink.Emit call.
type Emission struct {
	Name       string
	Value      float64
	Dimensions map[string]string
	At         time.Time
}

// MockMetricsSink implements domain.MetricsSink for testing.
type MockMetricsSink struct {
	EmitFn func(ctx context.Context, name string, value float64, dimensions map[string]string, at time.Time) error

	mu        sync.Mutex
	Emissions []Emission
}

// Emit implements the interface method for testing.
func (m *MockMetricsSink) Emit(ctx context.Context, name string, value float64, dimensions map[string]string, at time.Time) error {
	m.mu.Lock()
	m.Emissions = append(m.Emissions, Emission{Name: name, Value: value, Dimensions: dimensions, At: at})
	m.mu.Unlock()
	if m.EmitFn != nil {
		return m.EmitFn(ctx, name, value, dimensions, at)
	}
	return nil
}

// ByName returns all captured emissions with the given metric name.
func (m *MockMetricsSink) ByName(name string) []Emission {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Emission
	for _, e := range m.Emissions {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// === MigrationWorker Mock ===

// MockMigrationWorker implements domain.MigrationWorker for testing. The
// default behavior replays StatusSequence one observation per poll, holding
// the last entry once exhausted.
type MockMigrationWorker struct {
	StartFn  func(ctx context.Context, job domain.MigrationJob) (domain.JobHandle, error)
	StatusFn func(ctx context.Context, handle domain.JobHandle) (*domain.WorkerStatus, error)
	CancelFn func(ctx context.Context, handle domain.JobHandle) error

	StatusSequence []domain.WorkerStatus

	mu        sync.Mutex
	Started   []domain.MigrationJob
	Cancelled []domain.JobHandle
	polls     map[domain.JobHandle]int
}

// Start implements the interface method for testing.
func (m *MockMigrationWorker) Start(ctx context.Context, job domain.MigrationJob) (domain.JobHandle, error) {
	m.mu.Lock()
	m.Started = append(m.Started, job)
	m.mu.Unlock()
	if m.StartFn != nil {
		return m.StartFn(ctx, job)
	}
	return domain.JobHandle("handle-" + job.ID), nil
}

// Status implements the interface method for testing.
func (m *MockMigrationWorker) Status(ctx context.Context, handle domain.JobHandle) (*domain.WorkerStatus, error) {
	if m.StatusFn != nil {
		return m.StatusFn(ctx, handle)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.polls == nil {
		m.polls = make(map[domain.JobHandle]int)
	}
	i := m.polls[handle]
	m.polls[handle]++
	if len(m.StatusSequence) == 0 {
		return &domain.WorkerStatus{Status: domain.JobStatusCompleted, ProgressPercentage: 100}, nil
	}
	if i >= len(m.StatusSequence) {
		i = len(m.StatusSequence) - 1
	}
	st := m.StatusSequence[i]
	return &st, nil
}

// Cancel implements the interface method for testing.
func (m *MockMigrationWorker) Cancel(ctx context.Context, handle domain.JobHandle) error {
	m.mu.Lock()
	m.Cancelled = append(m.Cancelled, handle)
	m.mu.Unlock()
	if m.CancelFn != nil {
		return m.CancelFn(ctx, handle)
	}
	return nil
}

// PollCount returns how many times the handle's status was polled.
func (m *MockMigrationWorker) PollCount(handle domain.JobHandle) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.polls[handle]
}

// === StoreQuery Mock ===

// MockStoreQuery implements domain.StoreQuery for testing. Unset function
// fields fall back to the fixture fields.
type MockStoreQuery struct {
	CountFn      func(ctx context.Context, table string, r domain.TimeRange) (int64, error)
	SampleFn     func(ctx context.Context, table string, r domain.TimeRange, n int) ([]domain.Record, error)
	LookupFn     func(ctx context.Context, table string, keys []string, r domain.TimeRange) ([]domain.Record, error)
	ChecksumFn   func(ctx context.Context, table string, r domain.TimeRange) (uint64, error)
	SchemaFn     func(ctx context.Context, table string) (*domain.TableSchema, error)
	TimeBoundsFn func(ctx context.Context, table string) (*domain.TimeRange, error)

	CountValue    int64
	Records       []domain.Record
	ChecksumValue uint64
	SchemaValue   *domain.TableSchema
	Bounds        *domain.TimeRange
}

// Count implements the interface method for testing.
func (m *MockStoreQuery) Count(ctx context.Context, table string, r domain.TimeRange) (int64, error) {
	if m.CountFn != nil {
		return m.CountFn(ctx, table, r)
	}
	return m.CountValue, nil
}

// Sample implements the interface method for testing.
func (m *MockStoreQuery) Sample(ctx context.Context, table string, r domain.TimeRange, n int) ([]domain.Record, error) {
	if m.SampleFn != nil {
		return m.SampleFn(ctx, table, r, n)
	}
	if n > len(m.Records) {
		n = len(m.Records)
	}
	return m.Records[:n], nil
}

// Lookup implements the interface method for testing.
func (m *MockStoreQuery) Lookup(ctx context.Context, table string, keys []string, r domain.TimeRange) ([]domain.Record, error) {
	if m.LookupFn != nil {
		return m.LookupFn(ctx, table, keys, r)
	}
	want := make(map[string]bool, len(keys))
	for _, k := range keys {
		want[k] = true
	}
	var out []domain.Record
	for _, rec := range m.Records {
		if want[rec.Key] {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Checksum implements the interface method for testing.
func (m *MockStoreQuery) Checksum(ctx context.Context, table string, r domain.TimeRange) (uint64, error) {
	if m.ChecksumFn != nil {
		return m.ChecksumFn(ctx, table, r)
	}
	return m.ChecksumValue, nil
}

// Schema implements the interface method for testing.
func (m *MockStoreQuery) Schema(ctx context.Context, table string) (*domain.TableSchema, error) {
	if m.SchemaFn != nil {
		return m.SchemaFn(ctx, table)
	}
	if m.SchemaValue != nil {
		return m.SchemaValue, nil
	}
	return &domain.TableSchema{Fields: []string{"value"}}, nil
}

// TimeBounds implements the interface method for testing.
func (m *MockStoreQuery) TimeBounds(ctx context.Context, table string) (*domain.TimeRange, error) {
	if m.TimeBoundsFn != nil {
		return m.TimeBoundsFn(ctx, table)
	}
	return m.Bounds, nil
}

// === HistoryRepository Mock ===

// MockHistoryRepo implements domain.HistoryRepository for testing.
type MockHistoryRepo struct {
	mu          sync.Mutex
	Rollouts    []*domain.RolloutRun
	Jobs        []*domain.JobResult
	Validations []*domain.ValidationResult
}

// RecordRollout implements the interface method for testing.
func (m *MockHistoryRepo) RecordRollout(ctx context.Context, run *domain.RolloutRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Rollouts = append(m.Rollouts, run)
	return nil
}

// RecordJob implements the interface method for testing.
func (m *MockHistoryRepo) RecordJob(ctx context.Context, result *domain.JobResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Jobs = append(m.Jobs, result)
	return nil
}

// RecordValidation implements the interface method for testing.
func (m *MockHistoryRepo) RecordValidation(ctx context.Context, result *domain.ValidationResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Validations = append(m.Validations, result)
	return nil
}

// LatestRollout implements the interface method for testing.
func (m *MockHistoryRepo) LatestRollout(ctx context.Context) (*domain.RolloutRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Rollouts) == 0 {
		return nil, domain.ErrNotFound("no rollout runs recorded")
	}
	return m.Rollouts[len(m.Rollouts)-1], nil
}

// ListJobs implements the interface method for testing.
func (m *MockHistoryRepo) ListJobs(ctx context.Context, onlyActive bool) ([]domain.JobResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.JobResult
	for _, j := range m.Jobs {
		if onlyActive && j.Status.Terminal() {
			continue
		}
		out = append(out, *j)
	}
	return out, nil
}

// ListValidations implements the interface method for testing.
func (m *MockHistoryRepo) ListValidations(ctx context.Context, table string, limit int) ([]domain.ValidationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ValidationResult
	for _, v := range m.Validations {
		if table != "" && v.SourceTable != table {
			continue
		}
		out = append(out, *v)
	}
	return out, nil
}
