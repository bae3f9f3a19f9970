package tasks

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Pruner periodically deletes fully-finalized mined-block records older
// than a retention window, keeping the blocks table from growing
// unbounded. Supplemented from the original implementation's block
// pruning task, which the distilled spec omitted.
type Pruner struct {
	Deps
	Interval  time.Duration
	Retention uint64
}

// NewPruner builds a Pruner that runs every interval, keeping the
// trailing retention blocks of each chain.
func NewPruner(deps Deps, interval time.Duration, retention uint64) *Pruner {
	return &Pruner{Deps: deps, Interval: interval, Retention: retention}
}

// Run loops until ctx is cancelled.
func (p *Pruner) Run(ctx context.Context) error {
	for {
		if err := p.runOnce(ctx); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(p.Interval):
		}
	}
}

func (p *Pruner) runOnce(ctx context.Context) error {
	next, err := p.Store.NextBlockNumbers(ctx)
	if err != nil {
		return fmt.Errorf("pruner: next block numbers: %w", err)
	}

	for chainID, tip := range next {
		if tip <= p.Retention {
			continue
		}
		cutoff := tip - p.Retention

		pruned, err := p.Store.PruneBlocksOlderThan(ctx, chainID, cutoff)
		if err != nil {
			return fmt.Errorf("pruner: chain %d: %w", chainID, err)
		}
		if pruned > 0 {
			p.Logger.Info("pruned old blocks", zap.Uint64("chain_id", chainID), zap.Int64("count", pruned), zap.Uint64("cutoff", cutoff))
		}
	}

	return nil
}
