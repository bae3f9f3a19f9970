package store

import (
	"context"
	"fmt"

	domain "txrelayer/internal/types"
)

// GetStats computes the per-chain counters the metrics loop publishes
// (spec.md's supplemented metrics emitter), grounded on the original
// implementation's tasks/metrics.rs queries.
func (s *Store) GetStats(ctx context.Context, chainID uint64) (domain.Stats, error) {
	stats := domain.Stats{ChainID: chainID}

	err := s.db.GetContext(ctx, &stats.PendingTxs, `
		SELECT count(*) FROM tx_hashes h
		JOIN transactions t ON t.id = h.tx_id
		JOIN relayers r ON r.id = t.relayer_id
		WHERE r.chain_id = $1 AND h.status = 'pending'
	`, int64(chainID))
	if err != nil {
		return domain.Stats{}, fmt.Errorf("store: get stats chain=%d: pending: %w", chainID, err)
	}

	err = s.db.GetContext(ctx, &stats.MinedTxs, `
		SELECT count(*) FROM tx_hashes h
		JOIN transactions t ON t.id = h.tx_id
		JOIN relayers r ON r.id = t.relayer_id
		WHERE r.chain_id = $1 AND h.status = 'mined'
	`, int64(chainID))
	if err != nil {
		return domain.Stats{}, fmt.Errorf("store: get stats chain=%d: mined: %w", chainID, err)
	}

	err = s.db.GetContext(ctx, &stats.FinalizedTxs, `
		SELECT count(*) FROM tx_hashes h
		JOIN transactions t ON t.id = h.tx_id
		JOIN relayers r ON r.id = t.relayer_id
		WHERE r.chain_id = $1 AND h.status = 'finalized'
	`, int64(chainID))
	if err != nil {
		return domain.Stats{}, fmt.Errorf("store: get stats chain=%d: finalized: %w", chainID, err)
	}

	err = s.db.GetContext(ctx, &stats.TotalIndexedBlocks, `
		SELECT count(*) FROM blocks WHERE chain_id = $1
	`, int64(chainID))
	if err != nil {
		return domain.Stats{}, fmt.Errorf("store: get stats chain=%d: blocks: %w", chainID, err)
	}

	err = s.db.GetContext(ctx, &stats.BlockTxs, `
		SELECT count(*) FROM block_txs bt JOIN blocks b ON b.id = bt.block_id WHERE b.chain_id = $1
	`, int64(chainID))
	if err != nil {
		return domain.Stats{}, fmt.Errorf("store: get stats chain=%d: block_txs: %w", chainID, err)
	}

	return stats, nil
}
