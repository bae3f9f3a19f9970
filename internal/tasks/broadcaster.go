package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"txrelayer/internal/chain"
	"txrelayer/internal/txbuild"
	domain "txrelayer/internal/types"
)

// broadcastPollInterval is the pause between broadcaster passes, each of
// which sends every admitted, unsent transaction it finds.
const broadcastPollInterval = 5 * time.Second

// Broadcaster signs and sends every admitted transaction that has no
// broadcast attempt yet. Grounded on the original implementation's
// src/tasks/broadcast.rs.
type Broadcaster struct {
	Deps
}

// NewBroadcaster builds a Broadcaster from shared dependencies.
func NewBroadcaster(deps Deps) *Broadcaster {
	return &Broadcaster{Deps: deps}
}

// Run loops until ctx is cancelled, broadcasting every pass.
func (b *Broadcaster) Run(ctx context.Context) error {
	for {
		if err := b.runOnce(ctx); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(broadcastPollInterval):
		}
	}
}

func (b *Broadcaster) runOnce(ctx context.Context) error {
	txs, err := b.Store.GetUnsentTxs(ctx, maxInflightTxs)
	if err != nil {
		return fmt.Errorf("broadcaster: get unsent txs: %w", err)
	}

	for _, tx := range txs {
		if _, err := b.send(ctx, tx); err != nil {
			if isRecoverableSendError(err) {
				b.Logger.Warn("tx not sent, will retry next pass",
					zap.String("tx_id", tx.ID), zap.Error(err))
				continue
			}
			return fmt.Errorf("broadcaster: send %s: %w", tx.ID, err)
		}
	}

	return nil
}

// send builds, signs and submits tx's first broadcast attempt. It returns
// (false, nil) when the relayer's gas price limit holds it back rather
// than sending, per spec.md §4.4.c.
func (b *Broadcaster) send(ctx context.Context, tx domain.UnsentTx) (bool, error) {
	b.Logger.Info("sending tx", zap.String("tx_id", tx.ID))

	estimate, err := b.Store.LatestBlockFees(ctx, tx.ChainID)
	if err != nil {
		return false, fmt.Errorf("get latest block fees: %w", err)
	}
	if estimate == nil {
		return false, fmt.Errorf("no block fee estimate recorded yet for chain %d", tx.ChainID)
	}

	if limit, ok := domain.GasPriceLimitForChain(tx.GasPriceLimits, tx.ChainID); ok {
		if gasPrice := estimate.GasPrice(); gasPrice.Cmp(limit.MaxAcceptableWei()) > 0 {
			b.Logger.Warn("gas price exceeds relayer limit, skipping send",
				zap.String("tx_id", tx.ID),
				zap.String("gas_price", gasPrice.String()),
				zap.String("limit", limit.MaxAcceptableWei().String()))
			return false, nil
		}
	}

	maxBaseFee, err := CalculateMaxBaseFeePerGas(*estimate)
	if err != nil {
		return false, err
	}
	maxFeePerGas, maxPriorityFeePerGas, err := CalculateGasFeesFromEstimates(*estimate, tx.Priority, maxBaseFee)
	if err != nil {
		return false, err
	}

	signer, err := b.Signers(ctx, tx.ChainID, tx.KeyID)
	if err != nil {
		return false, fmt.Errorf("resolve signer: %w", err)
	}

	unsigned, err := txbuild.DynamicFeeTx(tx.ChainID, tx.Transaction, txbuild.Fees{
		MaxFeePerGas:         maxFeePerGas,
		MaxPriorityFeePerGas: maxPriorityFeePerGas,
		MaxFeePerBlobGas:     maxFeePerGas,
	})
	if err != nil {
		return false, fmt.Errorf("build tx: %w", err)
	}

	signed, err := signer.SignTransaction(unsigned)
	if err != nil {
		return false, fmt.Errorf("sign tx: %w", err)
	}

	gateway, err := b.Gateways(tx.ChainID)
	if err != nil {
		return false, fmt.Errorf("resolve gateway: %w", err)
	}

	if err := gateway.SendTransaction(ctx, signed); err != nil {
		return false, err
	}

	b.Logger.Info("tx sent successfully", zap.String("tx_id", tx.ID), zap.String("tx_hash", signed.Hash().Hex()))

	if err := b.Store.InsertBroadcast(ctx, tx.ID, signed.Hash(), maxFeePerGas, maxPriorityFeePerGas); err != nil {
		return false, fmt.Errorf("record broadcast: %w", err)
	}

	return true, nil
}

// isRecoverableSendError reports whether a broadcast failure is a
// transient, per-transaction condition (insufficient funds) that should
// not halt the whole broadcast pass, matching spec.md §9's design note
// that balance shortfalls are a broadcast-loop condition, not a hard
// failure.
func isRecoverableSendError(err error) bool {
	var insufficientFunds *chain.InsufficientFundsError
	return errors.As(err, &insufficientFunds)
}
