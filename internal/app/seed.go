package app

import (
	"context"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	domain "txrelayer/internal/types"
)

// SeedInitialBlocks fetches and records the current tip for every chain
// with no stored blocks yet, so the indexer has a starting point instead
// of scanning from genesis. Supplemented from the original
// implementation's app.rs::seed_initial_blocks (see SPEC_FULL.md).
func (a *App) SeedInitialBlocks(ctx context.Context) error {
	chainIDs, err := a.Store.NetworkChainIDs(ctx)
	if err != nil {
		return fmt.Errorf("seed initial blocks: list chain ids: %w", err)
	}

	for _, chainID := range chainIDs {
		has, err := a.Store.HasBlocksForChain(ctx, chainID)
		if err != nil {
			return fmt.Errorf("seed initial blocks: chain %d: %w", chainID, err)
		}
		if has {
			continue
		}

		gateway, err := a.Gateway(chainID)
		if err != nil {
			return fmt.Errorf("seed initial blocks: chain %d: %w", chainID, err)
		}

		tip, err := gateway.BlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("seed initial blocks: chain %d: tip: %w", chainID, err)
		}

		header, err := gateway.HeaderByNumber(ctx, new(big.Int).SetUint64(tip))
		if err != nil {
			return fmt.Errorf("seed initial blocks: chain %d: header: %w", chainID, err)
		}

		if err := a.Store.SaveBlock(ctx, domain.Block{
			BlockNumber: tip,
			ChainID:     chainID,
			Status:      domain.BlockStatusMined,
		}); err != nil {
			return fmt.Errorf("seed initial blocks: chain %d: save block: %w", chainID, err)
		}
		if err := a.Store.SetBlockHash(ctx, chainID, tip, header.Hash(), header.ParentHash); err != nil {
			return fmt.Errorf("seed initial blocks: chain %d: set block hash: %w", chainID, err)
		}

		a.Logger.Info("seeded initial block", zap.Uint64("chain_id", chainID), zap.Uint64("block_number", tip))
	}

	return nil
}
