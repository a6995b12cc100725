package domain

import "fmt"

// ConfigurationError indicates the external flag provider was unreachable or
// returned an unusable payload. Recovered locally via safe defaults; never
// surfaced to routing callers.
type ConfigurationError struct {
	Message string
	Err     error
}

func (e *ConfigurationError) Error() string { return e.Message }
func (e *ConfigurationError) Unwrap() error { return e.Err }

// ValidationError indicates invalid input or an integrity sub-check failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// JobLaunchError indicates the external migration worker rejected a start
// request. The job is marked failed; sibling jobs are unaffected.
type JobLaunchError struct {
	JobID   string
	Message string
	Err     error
}

func (e *JobLaunchError) Error() string {
	return fmt.Sprintf("launch job %s: %s", e.JobID, e.Message)
}
func (e *JobLaunchError) Unwrap() error { return e.Err }

// JobTimeoutError indicates polling exceeded the per-job bound. Distinct from
// a worker-reported failure since the root cause differs.
type JobTimeoutError struct {
	JobID   string
	Message string
}

func (e *JobTimeoutError) Error() string {
	return fmt.Sprintf("job %s timed out: %s", e.JobID, e.Message)
}

// MetricPublishError indicates a metrics emission failed. Always swallowed
// after logging; must never propagate into the request path.
type MetricPublishError struct {
	Message string
	Err     error
}

func (e *MetricPublishError) Error() string { return e.Message }
func (e *MetricPublishError) Unwrap() error { return e.Err }

// RollbackError indicates a failure while reverting configuration. The one
// category that must be escalated loudly: it can leave the system at a
// partially-shifted, unverified percentage.
type RollbackError struct {
	Percentage int
	Message    string
	Err        error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("rollback to %d%% failed: %s", e.Percentage, e.Message)
}
func (e *RollbackError) Unwrap() error { return e.Err }

// ErrConfiguration creates a ConfigurationError wrapping err.
func ErrConfiguration(err error, format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...), Err: err}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}
