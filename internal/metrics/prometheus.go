package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"cutover/internal/domain"
)

// PrometheusSink mirrors emitted summaries into Prometheus gauge vectors, one
// series per metric name and dimension set.
type PrometheusSink struct {
	requests prometheus.GaugeVec
	latency  prometheus.GaugeVec
	errRate  prometheus.GaugeVec
	other    prometheus.GaugeVec
}

var _ domain.MetricsSink = (*PrometheusSink)(nil)

// NewPrometheusSink creates a sink registered against the given registerer.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	s := &PrometheusSink{
		requests: *prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "migration_requests_total",
			Help: "Total requests routed per backend",
		}, []string{"backend"}),
		latency: *prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "migration_latency_avg_ms",
			Help: "Average request latency per backend in milliseconds",
		}, []string{"backend"}),
		errRate: *prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "migration_error_rate",
			Help: "Error rate per backend",
		}, []string{"backend"}),
		other: *prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "migration_metric",
			Help: "Uncategorized coordinator metrics",
		}, []string{"name", "backend"}),
	}
	for _, c := range []prometheus.Collector{&s.requests, &s.latency, &s.errRate, &s.other} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Emit updates the gauge matching the metric name. Unknown names land in the
// catch-all vector so no emission is dropped silently.
func (s *PrometheusSink) Emit(_ context.Context, name string, value float64, dimensions map[string]string, _ time.Time) error {
	backend := dimensions["backend"]
	switch name {
	case "migration.requests.total":
		s.requests.WithLabelValues(backend).Set(value)
	case "migration.latency.avg_ms":
		s.latency.WithLabelValues(backend).Set(value)
	case "migration.error.rate":
		s.errRate.WithLabelValues(backend).Set(value)
	default:
		s.other.WithLabelValues(name, backend).Set(value)
	}
	return nil
}
