package tasks

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"txrelayer/internal/chain"
	domain "txrelayer/internal/types"
)

const (
	// blockFeeHistorySize is how many trailing blocks the fee estimator
	// samples.
	blockFeeHistorySize = 10
	// trailingBlockOffset is the finality depth: a block this many
	// confirmations behind the freshly indexed one is recorded as
	// finalized.
	trailingBlockOffset = 5
	indexerIdleInterval = 5 * time.Second
)

// feePercentiles are the reward percentiles sampled at each indexed block,
// doubling as the TransactionPriority ordinals (slowest..fastest).
var feePercentiles = []float64{5, 25, 50, 75, 95}

// Indexer advances each chain's recorded tip by one block per pass,
// recording fee history, relayer nonces, and a finality-depth shadow
// block. Grounded on the original implementation's src/tasks/index.rs.
type Indexer struct {
	Deps
}

// NewIndexer builds an Indexer.
func NewIndexer(deps Deps) *Indexer {
	return &Indexer{Deps: deps}
}

// Run loops until ctx is cancelled.
func (idx *Indexer) Run(ctx context.Context) error {
	for {
		progressed, err := idx.runOnce(ctx)
		if err != nil {
			return err
		}

		if !progressed {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(indexerIdleInterval):
			}
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (idx *Indexer) runOnce(ctx context.Context) (bool, error) {
	next, err := idx.Store.NextBlockNumbers(ctx)
	if err != nil {
		return false, fmt.Errorf("indexer: next block numbers: %w", err)
	}

	progressed := false
	for chainID, blockNumber := range next {
		ok, err := idx.indexOne(ctx, chainID, blockNumber)
		if err != nil {
			return false, fmt.Errorf("indexer: chain %d block %d: %w", chainID, blockNumber, err)
		}
		if ok {
			progressed = true
		}
	}

	if err := idx.Store.UpdateTransactions(ctx, domain.TxStatusMined); err != nil {
		return progressed, fmt.Errorf("indexer: update transactions mined: %w", err)
	}
	if err := idx.Store.UpdateTransactions(ctx, domain.TxStatusFinalized); err != nil {
		return progressed, fmt.Errorf("indexer: update transactions finalized: %w", err)
	}

	return progressed, nil
}

// indexOne fetches blockNumber on chainID, records it, refreshes relayer
// nonces, and (once the chain is deep enough) records the trailing block
// as finalized. Returns false when the block is not mined yet.
func (idx *Indexer) indexOne(ctx context.Context, chainID, blockNumber uint64) (bool, error) {
	gateway, err := idx.Gateways(chainID)
	if err != nil {
		return false, fmt.Errorf("resolve gateway: %w", err)
	}

	block, err := gateway.BlockByNumber(ctx, new(big.Int).SetUint64(blockNumber))
	if err != nil {
		idx.Logger.Debug("block not available yet", zap.Uint64("chain_id", chainID), zap.Uint64("block_number", blockNumber))
		return false, nil
	}

	feeHistory, err := gateway.FeeHistory(ctx, blockFeeHistorySize, new(big.Int).SetUint64(blockNumber), feePercentiles)
	if err != nil {
		return false, fmt.Errorf("fee history: %w", err)
	}
	estimate := estimatePercentileFees(feeHistory)

	if err := idx.Store.SaveBlock(ctx, domain.Block{
		BlockNumber: blockNumber,
		ChainID:     chainID,
		Status:      domain.BlockStatusMined,
		FeeEstimate: &estimate,
		TxHashes:    blockTransactionHashes(block),
	}); err != nil {
		return false, fmt.Errorf("save block: %w", err)
	}
	if err := idx.Store.SetBlockHash(ctx, chainID, blockNumber, block.Hash(), block.ParentHash()); err != nil {
		return false, fmt.Errorf("set block hash: %w", err)
	}

	addresses, err := idx.Store.FetchRelayerAddresses(ctx, chainID)
	if err != nil {
		return false, fmt.Errorf("fetch relayer addresses: %w", err)
	}
	for _, addr := range addresses {
		nonce, err := gateway.NonceAt(ctx, addr, new(big.Int).SetUint64(blockNumber))
		if err != nil {
			return false, fmt.Errorf("nonce at for %s: %w", addr, err)
		}
		if err := idx.Store.UpdateRelayerNonce(ctx, chainID, addr, nonce); err != nil {
			return false, fmt.Errorf("update relayer nonce for %s: %w", addr, err)
		}
	}

	if blockNumber > trailingBlockOffset {
		finalizedNumber := blockNumber - trailingBlockOffset
		finalizedBlock, err := gateway.BlockByNumber(ctx, new(big.Int).SetUint64(finalizedNumber))
		if err != nil {
			return false, fmt.Errorf("trailing block %d: %w", finalizedNumber, err)
		}

		if err := idx.Store.SaveBlock(ctx, domain.Block{
			BlockNumber: finalizedNumber,
			ChainID:     chainID,
			Status:      domain.BlockStatusFinalized,
			TxHashes:    blockTransactionHashes(finalizedBlock),
		}); err != nil {
			return false, fmt.Errorf("save finalized block: %w", err)
		}
	}

	return true, nil
}

// blockTransactionHashes lists every transaction hash included in block.
func blockTransactionHashes(block *gethtypes.Block) []common.Hash {
	txs := block.Transactions()
	hashes := make([]common.Hash, len(txs))
	for i, tx := range txs {
		hashes[i] = tx.Hash()
	}
	return hashes
}

// estimatePercentileFees averages eth_feeHistory's reward samples across
// the sampled window for each requested percentile, and takes the newest
// block's base fee. Mirrors estimate_percentile_fees in the original
// implementation's gas_estimation.rs.
func estimatePercentileFees(hist *chain.FeeHistoryResult) domain.FeesEstimate {
	baseFee := big.NewInt(0)
	if n := len(hist.BaseFeePerGas); n > 0 && hist.BaseFeePerGas[n-1] != nil {
		baseFee = new(big.Int).Set(hist.BaseFeePerGas[n-1])
	}

	percentileFees := make([]*big.Int, len(feePercentiles))
	for p := range feePercentiles {
		sum := big.NewInt(0)
		samples := 0
		for _, reward := range hist.Reward {
			if p >= len(reward) || reward[p] == nil {
				continue
			}
			sum.Add(sum, reward[p])
			samples++
		}
		if samples == 0 {
			percentileFees[p] = big.NewInt(0)
			continue
		}
		percentileFees[p] = sum.Div(sum, big.NewInt(int64(samples)))
	}

	return domain.FeesEstimate{BaseFeePerGas: baseFee, PercentileFees: percentileFees}
}
