// Package monitor accumulates per-backend latency and error counters and
// publishes periodic summaries to a metrics sink.
package monitor

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"cutover/internal/domain"
)

// counters holds one backend's lifetime-cumulative totals. Counters are never
// reset or windowed; summaries are derived on read.
type counters struct {
	totalRequests  atomic.Int64
	totalLatencyMs atomic.Int64
	errorCount     atomic.Int64
}

// Monitor records request outcomes per backend. Record is safe to call from
// any number of concurrent request-handling goroutines.
type Monitor struct {
	source counters
	target counters

	sink   domain.MetricsSink
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Monitor publishing to the given sink.
func New(sink domain.MetricsSink, logger *slog.Logger) *Monitor {
	return &Monitor{
		sink:   sink,
		logger: logger,
		now:    time.Now,
	}
}

// Record adds one request observation for the backend.
func (m *Monitor) Record(backend domain.Backend, latency time.Duration, success bool) {
	c := m.countersFor(backend)
	c.totalRequests.Add(1)
	c.totalLatencyMs.Add(latency.Milliseconds())
	if !success {
		c.errorCount.Add(1)
	}
}

// Summary derives the current per-backend view from the live counters. A
// backend with no recorded requests reports zeroes.
func (m *Monitor) Summary() map[domain.Backend]domain.BackendSummary {
	return map[domain.Backend]domain.BackendSummary{
		domain.BackendSource: summarize(&m.source),
		domain.BackendTarget: summarize(&m.target),
	}
}

// Publish emits the current summary to the metrics sink. Emission failures
// are logged and swallowed; they must never propagate into the request path.
func (m *Monitor) Publish(ctx context.Context) {
	at := m.now()
	for backend, s := range m.Summary() {
		dims := map[string]string{"backend": string(backend)}
		m.emit(ctx, "migration.requests.total", float64(s.TotalRequests), dims, at)
		m.emit(ctx, "migration.latency.avg_ms", s.AvgLatencyMs, dims, at)
		m.emit(ctx, "migration.error.rate", s.ErrorRate, dims, at)
	}
}

func (m *Monitor) emit(ctx context.Context, name string, value float64, dims map[string]string, at time.Time) {
	if err := m.sink.Emit(ctx, name, value, dims, at); err != nil {
		m.logger.Warn("metric publish failed", "metric", name, "error", err)
	}
}

func (m *Monitor) countersFor(backend domain.Backend) *counters {
	if backend == domain.BackendTarget {
		return &m.target
	}
	return &m.source
}

func summarize(c *counters) domain.BackendSummary {
	total := c.totalRequests.Load()
	if total == 0 {
		return domain.BackendSummary{}
	}
	return domain.BackendSummary{
		TotalRequests: total,
		AvgLatencyMs:  float64(c.totalLatencyMs.Load()) / float64(total),
		ErrorRate:     float64(c.errorCount.Load()) / float64(total),
	}
}
