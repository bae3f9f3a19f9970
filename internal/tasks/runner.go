// Package tasks holds the relayer's long-lived background loops:
// broadcaster, indexer, escalator, reorg reconciler, pruner and metrics
// emitter, plus the generic supervisor that restarts a failed loop with
// backoff. Grounded on the original implementation's src/task_runner.rs
// and src/tasks/*.rs.
package tasks

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// failureMonitoringPeriod is the rolling window over which recent
// failures are counted to compute backoff, per spec.md §5.
const failureMonitoringPeriod = 60 * time.Second

// Runner supervises a set of named background loops, restarting any that
// return an error with an escalating backoff; Wait blocks until all of
// them have returned.
type Runner struct {
	logger *zap.Logger
	wg     sync.WaitGroup
}

// NewRunner builds a Runner that logs through logger.
func NewRunner(logger *zap.Logger) *Runner {
	return &Runner{logger: logger}
}

// Task is one supervised unit of work. It should run until ctx is
// cancelled (returning nil) or until it hits an unrecoverable error.
// Loops that are themselves infinite (broadcaster, indexer, ...) return
// nil only on clean shutdown; any other return is treated as a crash and
// restarted.
type Task func(ctx context.Context) error

// Add spawns label in its own goroutine, supervising it for the lifetime
// of ctx.
func (r *Runner) Add(ctx context.Context, label string, task Task) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(ctx, label, task)
	}()
}

func (r *Runner) run(ctx context.Context, label string, task Task) {
	var failures []time.Time

	for {
		r.logger.Info("running task", zap.String("task", label))

		err := task(ctx)
		if err == nil {
			r.logger.Info("task finished", zap.String("task", label))
			return
		}

		if ctx.Err() != nil {
			r.logger.Info("task stopped by shutdown", zap.String("task", label))
			return
		}

		failures = append(failures, time.Now())
		backoff := determineBackoff(failures)

		r.logger.Error("task failed", zap.String("task", label), zap.Error(err), zap.Duration("backoff", backoff))

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		failures = pruneFailures(failures)
	}
}

// Wait blocks until every supervised task has returned.
func (r *Runner) Wait() { r.wg.Wait() }

// determineBackoff mirrors the original task_runner.rs formula: a 5s
// base, +1s per failure within the monitoring window while under 5, +10s
// once over 5, and +30s once over 10.
func determineBackoff(failures []time.Time) time.Duration {
	backoff := 5 * time.Second

	recent := countRecent(failures)

	if recent < 5 {
		backoff += time.Duration(recent) * time.Second
	}
	if recent > 5 {
		backoff += 10 * time.Second
	}
	if recent > 10 {
		backoff += 30 * time.Second
	}

	return backoff
}

func countRecent(failures []time.Time) int {
	count := 0
	cutoff := time.Now().Add(-failureMonitoringPeriod)
	for _, f := range failures {
		if f.After(cutoff) {
			count++
		}
	}
	return count
}

func pruneFailures(failures []time.Time) []time.Time {
	cutoff := time.Now().Add(-failureMonitoringPeriod)
	out := failures[:0]
	for _, f := range failures {
		if f.After(cutoff) {
			out = append(out, f)
		}
	}
	return out
}
