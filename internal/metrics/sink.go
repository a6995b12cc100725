// Package metrics provides MetricsSink implementations: a structured-log sink
// for development and a Prometheus sink for scraping.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"cutover/internal/domain"
)

// LogSink writes every emission as a structured log line.
type LogSink struct {
	logger *slog.Logger
}

var _ domain.MetricsSink = (*LogSink)(nil)

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Emit logs the metric. Never fails.
func (s *LogSink) Emit(_ context.Context, name string, value float64, dimensions map[string]string, at time.Time) error {
	attrs := make([]any, 0, 2*len(dimensions)+4)
	attrs = append(attrs, "metric", name, "value", value)
	for k, v := range dimensions {
		attrs = append(attrs, k, v)
	}
	s.logger.Info("metric", attrs...)
	return nil
}
