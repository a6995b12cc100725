// Package worker provides the HTTP client for the external migration worker
// service that performs the actual backfill copies.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cutover/internal/domain"
)

// HTTPClient implements domain.MigrationWorker against the worker's REST API.
type HTTPClient struct {
	baseURL   string
	authToken string
	client    *http.Client
}

var _ domain.MigrationWorker = (*HTTPClient)(nil)

// NewHTTPClient creates a client for the worker at baseURL. authToken may be
// empty.
func NewHTTPClient(baseURL, authToken string) *HTTPClient {
	return &HTTPClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		authToken: authToken,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

type startRequest struct {
	JobID          string    `json:"job_id"`
	Table          string    `json:"table"`
	TargetLocation string    `json:"target_location"`
	RangeStart     time.Time `json:"range_start"`
	RangeEnd       time.Time `json:"range_end"`
	BatchSize      int       `json:"batch_size"`
}

type startResponse struct {
	Handle string `json:"handle"`
}

type statusResponse struct {
	Status             string  `json:"status"`
	ProgressPercentage float64 `json:"progress_percentage"`
	CurrentStep        string  `json:"current_step"`
	ExportedRecords    int64   `json:"exported_records"`
	ErrorMessage       string  `json:"error_message"`
}

// Start submits the job and returns the worker's handle for it.
func (c *HTTPClient) Start(ctx context.Context, job domain.MigrationJob) (domain.JobHandle, error) {
	body, err := json.Marshal(startRequest{
		JobID:          job.ID,
		Table:          job.Table,
		TargetLocation: job.TargetLocation,
		RangeStart:     job.Range.Start,
		RangeEnd:       job.Range.End,
		BatchSize:      job.BatchSize,
	})
	if err != nil {
		return "", fmt.Errorf("encode start request: %w", err)
	}

	var resp startResponse
	if err := c.do(ctx, http.MethodPost, "/v1/jobs", bytes.NewReader(body), &resp); err != nil {
		return "", err
	}
	if resp.Handle == "" {
		return "", fmt.Errorf("worker returned no job handle")
	}
	return domain.JobHandle(resp.Handle), nil
}

// Status polls one running job.
func (c *HTTPClient) Status(ctx context.Context, handle domain.JobHandle) (*domain.WorkerStatus, error) {
	var resp statusResponse
	if err := c.do(ctx, http.MethodGet, "/v1/jobs/"+string(handle), nil, &resp); err != nil {
		return nil, err
	}
	return &domain.WorkerStatus{
		Status:             domain.JobStatus(resp.Status),
		ProgressPercentage: resp.ProgressPercentage,
		CurrentStep:        resp.CurrentStep,
		ExportedRecords:    resp.ExportedRecords,
		ErrorMessage:       resp.ErrorMessage,
	}, nil
}

// Cancel asks the worker to stop one job. Safe to call for jobs that already
// finished.
func (c *HTTPClient) Cancel(ctx context.Context, handle domain.JobHandle) error {
	return c.do(ctx, http.MethodDelete, "/v1/jobs/"+string(handle), nil, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: worker returned %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}
