package monitor

import (
	"context"

	"github.com/robfig/cron/v3"
)

// Publisher drives Monitor.Publish on a cron schedule.
type Publisher struct {
	cron    *cron.Cron
	monitor *Monitor
}

// NewPublisher creates a Publisher emitting on the given cron spec, e.g.
// "@every 1m".
func NewPublisher(m *Monitor, spec string) (*Publisher, error) {
	p := &Publisher{
		cron:    cron.New(),
		monitor: m,
	}
	if _, err := p.cron.AddFunc(spec, func() {
		p.monitor.Publish(context.Background())
	}); err != nil {
		return nil, err
	}
	return p, nil
}

// Start begins periodic publishing.
func (p *Publisher) Start() {
	p.cron.Start()
	p.monitor.logger.Info("performance summary publisher started")
}

// Stop halts periodic publishing and flushes one final summary.
func (p *Publisher) Stop() {
	ctx := p.cron.Stop()
	<-ctx.Done()
	p.monitor.Publish(context.Background())
	p.monitor.logger.Info("performance summary publisher stopped")
}
