package tasks

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	domain "txrelayer/internal/types"
)

// ReorgReconciler rescans a trailing window of recently indexed blocks,
// comparing the chain hash observed now against the hash recorded at
// index time. A mismatch means the block was reorged out: every attempt
// recorded against it is reopened back to pending so the broadcaster and
// escalator can resubmit. Grounded on the original implementation's
// src/tasks/reorg.rs, generalized here into one primitive parameterized
// by scan depth and the status being reconciled (see ReopenNonCanonicalAttempts
// in internal/store) instead of separate soft/hard reorg code paths.
type ReorgReconciler struct {
	Deps
	// ScanDepth is how many blocks behind the current tip to rescan.
	ScanDepth uint64
	// FromStatus is the attempt status a mismatch reopens back to pending
	// (Mined for the frequent soft scan, Finalized for the rare hard scan).
	FromStatus domain.TxStatus
	Interval   time.Duration
}

// NewReorgReconciler builds a ReorgReconciler. Pass domain.TxStatusMined
// with a shallow ScanDepth and short Interval for the soft scan, and
// domain.TxStatusFinalized with ScanDepth covering the finality window
// and a long Interval for the hard scan.
func NewReorgReconciler(deps Deps, scanDepth uint64, fromStatus domain.TxStatus, interval time.Duration) *ReorgReconciler {
	return &ReorgReconciler{Deps: deps, ScanDepth: scanDepth, FromStatus: fromStatus, Interval: interval}
}

// Run loops until ctx is cancelled.
func (r *ReorgReconciler) Run(ctx context.Context) error {
	for {
		if err := r.runOnce(ctx); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(r.Interval):
		}
	}
}

func (r *ReorgReconciler) runOnce(ctx context.Context) error {
	next, err := r.Store.NextBlockNumbers(ctx)
	if err != nil {
		return fmt.Errorf("reorg reconciler: next block numbers: %w", err)
	}

	for chainID, tip := range next {
		if err := r.reconcileChain(ctx, chainID, tip); err != nil {
			return fmt.Errorf("reorg reconciler: chain %d: %w", chainID, err)
		}
	}

	return nil
}

func (r *ReorgReconciler) reconcileChain(ctx context.Context, chainID, tip uint64) error {
	gateway, err := r.Gateways(chainID)
	if err != nil {
		return fmt.Errorf("resolve gateway: %w", err)
	}

	from := uint64(0)
	if tip > r.ScanDepth {
		from = tip - r.ScanDepth
	}

	for blockNumber := from; blockNumber < tip; blockNumber++ {
		recordedHash, ok, err := r.Store.BlockHash(ctx, chainID, blockNumber)
		if err != nil {
			return fmt.Errorf("block hash %d: %w", blockNumber, err)
		}
		if !ok {
			continue
		}

		header, err := gateway.HeaderByNumber(ctx, new(big.Int).SetUint64(blockNumber))
		if err != nil {
			r.Logger.Debug("reorg scan: header unavailable", zap.Uint64("chain_id", chainID), zap.Uint64("block_number", blockNumber))
			continue
		}

		if header.Hash() == recordedHash {
			continue
		}

		r.Logger.Warn("reorg detected",
			zap.Uint64("chain_id", chainID),
			zap.Uint64("block_number", blockNumber),
			zap.String("recorded_hash", recordedHash.Hex()),
			zap.String("canonical_hash", header.Hash().Hex()))

		reopened, err := r.Store.ReopenNonCanonicalAttempts(ctx, chainID, blockNumber, header.Hash(), r.FromStatus)
		if err != nil {
			return fmt.Errorf("reopen non-canonical attempts %d: %w", blockNumber, err)
		}
		if reopened > 0 {
			r.Logger.Info("attempts reopened after reorg", zap.Int64("count", reopened), zap.Uint64("block_number", blockNumber))
		}

		if err := r.Store.SetBlockHash(ctx, chainID, blockNumber, header.Hash(), header.ParentHash); err != nil {
			return fmt.Errorf("set block hash %d: %w", blockNumber, err)
		}
	}

	return nil
}
