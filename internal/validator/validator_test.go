package validator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cutover/internal/domain"
	"cutover/internal/testutil"
)

var testRange = domain.TimeRange{
	Start: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
}

func testSpec() domain.TableSpec {
	return domain.TableSpec{
		Table:          "events",
		TargetLocation: "events_v2",
		Range:          testRange,
	}
}

func makeRecords(n int) []domain.Record {
	records := make([]domain.Record, n)
	for i := range records {
		records[i] = domain.Record{
			Key:    fmt.Sprintf("k%03d", i),
			Fields: map[string]string{"value": fmt.Sprintf("%d", i*7)},
		}
	}
	return records
}

// healthyStores builds a source/target pair whose fixtures agree on every
// check for testRange.
func healthyStores(n int) (*testutil.MockStoreQuery, *testutil.MockStoreQuery) {
	records := makeRecords(n)
	bounds := &domain.TimeRange{
		Start: testRange.Start.Add(-time.Hour),
		End:   testRange.End.Add(time.Hour),
	}
	source := &testutil.MockStoreQuery{
		CountValue:    int64(n),
		Records:       records,
		ChecksumValue: 0xabc123,
		Bounds:        bounds,
	}
	target := &testutil.MockStoreQuery{
		CountValue:    int64(n),
		Records:       records,
		ChecksumValue: 0xabc123,
		Bounds:        bounds,
	}
	return source, target
}

func newTestValidator(source, target domain.StoreQuery) *Validator {
	return New(source, target, Options{
		SampleSize:        10,
		AccuracyThreshold: 0.95,
		TimeRangeSlack:    time.Minute,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestValidateAllChecksPass(t *testing.T) {
	source, target := healthyStores(50)
	v := newTestValidator(source, target)

	result := v.Validate(context.Background(), testSpec())

	assert.Equal(t, domain.ValidationPassed, result.Status)
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Warnings)
	assert.NotEmpty(t, result.ID)
	assert.True(t, result.CountMatch)
	assert.True(t, result.ChecksumMatch)
	assert.True(t, result.TimeRangeMatch)
	assert.InDelta(t, 1.0, result.SampleAccuracy, 0.001)
	assert.Equal(t, int64(50), result.SourceCount)
	assert.Equal(t, int64(50), result.TargetCount)
}

func TestValidateCountMismatch(t *testing.T) {
	source, target := healthyStores(50)
	source.CountValue = 1000
	target.CountValue = 950
	v := newTestValidator(source, target)

	result := v.Validate(context.Background(), testSpec())

	assert.Equal(t, domain.ValidationFailed, result.Status)
	assert.False(t, result.CountMatch)
	require.NotEmpty(t, result.Errors)
	joined := fmt.Sprint(result.Errors)
	assert.Contains(t, joined, "1000")
	assert.Contains(t, joined, "950")
}

func TestValidateChecksumMismatch(t *testing.T) {
	source, target := healthyStores(50)
	target.ChecksumValue = source.ChecksumValue + 1
	v := newTestValidator(source, target)

	result := v.Validate(context.Background(), testSpec())

	assert.Equal(t, domain.ValidationFailed, result.Status)
	assert.False(t, result.ChecksumMatch)
	assert.Contains(t, fmt.Sprint(result.Errors), "checksum mismatch")
}

func TestValidateTimeRangeNotCovered(t *testing.T) {
	source, target := healthyStores(50)
	target.Bounds = &domain.TimeRange{
		Start: testRange.Start.Add(6 * time.Hour),
		End:   testRange.End,
	}
	v := newTestValidator(source, target)

	result := v.Validate(context.Background(), testSpec())

	assert.Equal(t, domain.ValidationFailed, result.Status)
	assert.False(t, result.TimeRangeMatch)
}

func TestValidateTargetEmptyBounds(t *testing.T) {
	source, target := healthyStores(50)
	target.Bounds = nil
	v := newTestValidator(source, target)

	result := v.Validate(context.Background(), testSpec())
	assert.Equal(t, domain.ValidationFailed, result.Status)
	assert.Contains(t, fmt.Sprint(result.Errors), "no data")
}

func TestValidateSchemaMissingCriticalField(t *testing.T) {
	source, target := healthyStores(50)
	source.SchemaValue = &domain.TableSchema{Fields: []string{"value", "amount"}}
	target.SchemaValue = &domain.TableSchema{Fields: []string{"value"}}
	v := newTestValidator(source, target)

	spec := testSpec()
	spec.CriticalFields = []string{"amount"}
	result := v.Validate(context.Background(), spec)

	assert.Equal(t, domain.ValidationFailed, result.Status)
	assert.Contains(t, fmt.Sprint(result.Errors), `critical field "amount"`)
}

func TestValidateSchemaMissingOptionalFieldWarns(t *testing.T) {
	source, target := healthyStores(50)
	source.SchemaValue = &domain.TableSchema{Fields: []string{"value", "note"}}
	target.SchemaValue = &domain.TableSchema{Fields: []string{"value"}}
	v := newTestValidator(source, target)

	result := v.Validate(context.Background(), testSpec())

	assert.Equal(t, domain.ValidationWarning, result.Status)
	assert.Empty(t, result.Errors)
	assert.Contains(t, fmt.Sprint(result.Warnings), `field "note"`)
}

func TestValidateSchemaTagsCountAsFields(t *testing.T) {
	source, target := healthyStores(50)
	source.SchemaValue = &domain.TableSchema{Fields: []string{"value"}, Tags: []string{"region"}}
	target.SchemaValue = &domain.TableSchema{Fields: []string{"value", "region"}}
	v := newTestValidator(source, target)

	result := v.Validate(context.Background(), testSpec())
	assert.Equal(t, domain.ValidationPassed, result.Status)
}

func TestValidateEmptySourceSample(t *testing.T) {
	source, target := healthyStores(0)
	source.CountValue = 0
	target.CountValue = 0
	v := newTestValidator(source, target)

	result := v.Validate(context.Background(), testSpec())

	assert.Equal(t, domain.ValidationWarning, result.Status)
	assert.InDelta(t, 1.0, result.SampleAccuracy, 0.001)
	assert.Contains(t, fmt.Sprint(result.Warnings), "no source records")
}

func TestValidateSampleAccuracyBelowThreshold(t *testing.T) {
	source, target := healthyStores(10)
	// Corrupt the target copies of all sampled records.
	corrupted := makeRecords(10)
	for i := range corrupted {
		corrupted[i].Fields = map[string]string{"value": "corrupted"}
	}
	target.Records = corrupted
	v := newTestValidator(source, target)

	result := v.Validate(context.Background(), testSpec())

	assert.Equal(t, domain.ValidationFailed, result.Status)
	assert.InDelta(t, 0.0, result.SampleAccuracy, 0.001)
	assert.Contains(t, fmt.Sprint(result.Errors), "sample accuracy")
}

func TestValidateMissingTargetRecordsLowerAccuracy(t *testing.T) {
	source, target := healthyStores(10)
	target.Records = target.Records[:9] // one sampled key missing
	v := newTestValidator(source, target)

	result := v.Validate(context.Background(), testSpec())
	assert.InDelta(t, 0.9, result.SampleAccuracy, 0.001)
	assert.Equal(t, domain.ValidationFailed, result.Status)
}

func TestValidateStoreErrorFailsRun(t *testing.T) {
	source, target := healthyStores(10)
	source.CountFn = func(context.Context, string, domain.TimeRange) (int64, error) {
		return 0, fmt.Errorf("store unreachable")
	}
	v := newTestValidator(source, target)

	result := v.Validate(context.Background(), testSpec())
	assert.Equal(t, domain.ValidationFailed, result.Status)
	assert.Contains(t, fmt.Sprint(result.Errors), "store unreachable")
}

func TestValidateInvalidSpec(t *testing.T) {
	source, target := healthyStores(10)
	v := newTestValidator(source, target)

	spec := testSpec()
	spec.TargetLocation = ""
	result := v.Validate(context.Background(), spec)

	assert.Equal(t, domain.ValidationFailed, result.Status)
	// No check ran against the stores.
	assert.Zero(t, result.SourceCount)
}

func TestValidatePanickingCheckFailsTableOnly(t *testing.T) {
	source, target := healthyStores(10)
	source.SchemaFn = func(_ context.Context, _ string) (*domain.TableSchema, error) {
		panic("schema reader bug")
	}
	v := newTestValidator(source, target)

	result := v.Validate(context.Background(), testSpec())

	assert.Equal(t, domain.ValidationFailed, result.Status)
	assert.Contains(t, fmt.Sprint(result.Errors), "schema check panicked")
	// The remaining checks still ran to completion.
	assert.True(t, result.CountMatch)
	assert.True(t, result.ChecksumMatch)
	assert.True(t, result.TimeRangeMatch)
	assert.InDelta(t, 1.0, result.SampleAccuracy, 0.001)
}
