// Package chain wraps go-ethereum's ethclient with the narrow surface the
// relayer needs per chain id (spec.md §4.3): block/fee-history reads,
// nonce and balance reads, and raw transaction broadcast with
// insufficient-funds detection. Grounded on the teacher's ethclient usage
// across 06-eip1559, geth-17-indexer and geth-18-reorgs.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// InsufficientFundsError marks a broadcast rejected by the node because
// the sender's balance could not cover the transaction, per spec.md §7.
type InsufficientFundsError struct {
	cause error
}

func (e *InsufficientFundsError) Error() string { return fmt.Sprintf("insufficient funds: %v", e.cause) }
func (e *InsufficientFundsError) Unwrap() error  { return e.cause }

// insufficientFundsMarkers are the substrings go-ethereum/geth nodes and
// the common RPC providers use in the JSON-RPC error message when a raw
// transaction is rejected for lack of balance. There is no structured
// error code for this on the wire, so substring matching is what the
// original implementation's broadcast_utils.rs does as well.
var insufficientFundsMarkers = []string{
	"insufficient funds",
	"insufficient balance",
	"exceeds balance",
}

func isInsufficientFunds(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range insufficientFundsMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Gateway is a thin, per-chain-id wrapper around an ethclient connection.
type Gateway struct {
	ChainID uint64
	client  *ethclient.Client
}

// Dial connects to rpcURL and confirms the reported chain id.
func Dial(ctx context.Context, rpcURL string) (*Gateway, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("dial %s: fetch chain id: %w", rpcURL, err)
	}

	return &Gateway{ChainID: chainID.Uint64(), client: client}, nil
}

// Close releases the underlying connection.
func (g *Gateway) Close() { g.client.Close() }

// Client exposes the underlying ethclient for callers that need calls
// this narrow wrapper does not cover (e.g. the RPC proxy route).
func (g *Gateway) Client() *ethclient.Client { return g.client }

// HeaderByNumber fetches a single block header; number nil means latest.
func (g *Gateway) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	header, err := g.client.HeaderByNumber(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("chain %d: header by number %v: %w", g.ChainID, number, err)
	}
	return header, nil
}

// BlockByNumber fetches a full block, including its transaction list, so
// callers can record which transaction hashes landed in it.
func (g *Gateway) BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error) {
	block, err := g.client.BlockByNumber(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("chain %d: block by number %v: %w", g.ChainID, number, err)
	}
	return block, nil
}

// BlockNumber returns the chain's current tip.
func (g *Gateway) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := g.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("chain %d: block number: %w", g.ChainID, err)
	}
	return n, nil
}

// FeeHistoryResult is the subset of eth_feeHistory the fee estimator needs.
type FeeHistoryResult struct {
	BaseFeePerGas []*big.Int
	Reward        [][]*big.Int
	OldestBlock   *big.Int
}

// FeeHistory fetches blockCount blocks of fee history ending at newest,
// sampled at the given reward percentiles (0-100).
func (g *Gateway) FeeHistory(ctx context.Context, blockCount uint64, newest *big.Int, percentiles []float64) (*FeeHistoryResult, error) {
	hist, err := g.client.FeeHistory(ctx, blockCount, newest, percentiles)
	if err != nil {
		return nil, fmt.Errorf("chain %d: fee history: %w", g.ChainID, err)
	}
	return &FeeHistoryResult{
		BaseFeePerGas: hist.BaseFee,
		Reward:        hist.Reward,
		OldestBlock:   hist.OldestBlock,
	}, nil
}

// NonceAt returns the account nonce at the given block (nil = latest,
// typically called against "pending" semantics via PendingNonceAt by
// callers that need the mempool-inclusive count).
func (g *Gateway) NonceAt(ctx context.Context, addr common.Address, blockNumber *big.Int) (uint64, error) {
	n, err := g.client.NonceAt(ctx, addr, blockNumber)
	if err != nil {
		return 0, fmt.Errorf("chain %d: nonce at for %s: %w", g.ChainID, addr, err)
	}
	return n, nil
}

// PendingNonceAt returns the next nonce including pending mempool
// transactions, used to seed a brand-new relayer's nonce counter.
func (g *Gateway) PendingNonceAt(ctx context.Context, addr common.Address) (uint64, error) {
	n, err := g.client.PendingNonceAt(ctx, addr)
	if err != nil {
		return 0, fmt.Errorf("chain %d: pending nonce at for %s: %w", g.ChainID, addr, err)
	}
	return n, nil
}

// BalanceAt returns the account's balance at the given block.
func (g *Gateway) BalanceAt(ctx context.Context, addr common.Address, blockNumber *big.Int) (*big.Int, error) {
	bal, err := g.client.BalanceAt(ctx, addr, blockNumber)
	if err != nil {
		return nil, fmt.Errorf("chain %d: balance at for %s: %w", g.ChainID, addr, err)
	}
	return bal, nil
}

// SendTransaction broadcasts a signed transaction, translating a
// balance-related node rejection into InsufficientFundsError so callers
// can treat it as a recoverable, non-fatal broadcast-loop condition
// rather than a hard failure (spec.md §4.4 / §9).
func (g *Gateway) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	err := g.client.SendTransaction(ctx, tx)
	if err == nil {
		return nil
	}
	if isInsufficientFunds(err) {
		return &InsufficientFundsError{cause: err}
	}
	return fmt.Errorf("chain %d: send transaction %s: %w", g.ChainID, tx.Hash(), err)
}

// TransactionReceipt fetches the receipt for a mined transaction hash.
// Returns ethereum.NotFound (unwrapped) when the tx is not yet mined, so
// callers can use errors.Is(err, ethereum.NotFound).
func (g *Gateway) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	receipt, err := g.client.TransactionReceipt(ctx, hash)
	if err != nil {
		if err == ethereum.NotFound {
			return nil, err
		}
		return nil, fmt.Errorf("chain %d: transaction receipt %s: %w", g.ChainID, hash, err)
	}
	return receipt, nil
}
