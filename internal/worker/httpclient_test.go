package worker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cutover/internal/domain"
)

func testJob() domain.MigrationJob {
	return domain.MigrationJob{
		ID:             "job-1",
		Table:          "events",
		TargetLocation: "events_v2",
		Range: domain.TimeRange{
			Start: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		},
		BatchSize: 5000,
	}
}

func TestStart(t *testing.T) {
	var got startRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/jobs", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(startResponse{Handle: "wh-77"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "secret")
	handle, err := c.Start(context.Background(), testJob())
	require.NoError(t, err)

	assert.Equal(t, domain.JobHandle("wh-77"), handle)
	assert.Equal(t, "job-1", got.JobID)
	assert.Equal(t, "events", got.Table)
	assert.Equal(t, "events_v2", got.TargetLocation)
	assert.Equal(t, 5000, got.BatchSize)
}

func TestStartMissingHandle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(startResponse{})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "")
	_, err := c.Start(context.Background(), testJob())
	assert.ErrorContains(t, err, "no job handle")
}

func TestStartRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "worker at capacity", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "")
	_, err := c.Start(context.Background(), testJob())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "worker at capacity")
}

func TestStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/jobs/wh-77", r.URL.Path)
		_ = json.NewEncoder(w).Encode(statusResponse{
			Status:             "running",
			ProgressPercentage: 62.5,
			CurrentStep:        "copying batch 13/20",
			ExportedRecords:    65_000,
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "")
	status, err := c.Status(context.Background(), "wh-77")
	require.NoError(t, err)

	assert.Equal(t, domain.JobStatusRunning, status.Status)
	assert.Equal(t, 62.5, status.ProgressPercentage)
	assert.Equal(t, "copying batch 13/20", status.CurrentStep)
	assert.Equal(t, int64(65_000), status.ExportedRecords)
}

func TestCancel(t *testing.T) {
	cancelled := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/v1/jobs/wh-77", r.URL.Path)
		cancelled = true
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "")
	require.NoError(t, c.Cancel(context.Background(), "wh-77"))
	assert.True(t, cancelled)
}

func TestBaseURLTrailingSlash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/jobs/h", r.URL.Path)
		_ = json.NewEncoder(w).Encode(statusResponse{Status: "completed"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL+"/", "")
	status, err := c.Status(context.Background(), "h")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, status.Status)
}
