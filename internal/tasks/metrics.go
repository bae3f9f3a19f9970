package tasks

import (
	"context"
	"fmt"
	"time"

	"txrelayer/internal/metrics"
)

// metricsPollInterval is how often the metrics publisher refreshes the
// Prometheus gauges from storage.
const metricsPollInterval = 15 * time.Second

// MetricsPublisher periodically recomputes per-chain Stats and publishes
// them to the process's Prometheus registry. Grounded on the original
// implementation's src/tasks/metrics.rs.
type MetricsPublisher struct {
	Deps
}

// NewMetricsPublisher builds a MetricsPublisher.
func NewMetricsPublisher(deps Deps) *MetricsPublisher {
	return &MetricsPublisher{Deps: deps}
}

// Run loops until ctx is cancelled.
func (m *MetricsPublisher) Run(ctx context.Context) error {
	for {
		if err := m.runOnce(ctx); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(metricsPollInterval):
		}
	}
}

func (m *MetricsPublisher) runOnce(ctx context.Context) error {
	next, err := m.Store.NextBlockNumbers(ctx)
	if err != nil {
		return fmt.Errorf("metrics: next block numbers: %w", err)
	}

	for chainID := range next {
		stats, err := m.Store.GetStats(ctx, chainID)
		if err != nil {
			return fmt.Errorf("metrics: get stats for chain %d: %w", chainID, err)
		}
		metrics.Observe(stats)
	}

	return nil
}
