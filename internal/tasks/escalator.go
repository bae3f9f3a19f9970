package tasks

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"txrelayer/internal/txbuild"
)

// Escalator resubmits pending attempts that have aged past the
// configured escalation interval at a higher fee, per spec.md §4.6.
// Grounded on the original implementation's src/tasks/escalate.rs.
type Escalator struct {
	Deps
	Interval time.Duration
}

// NewEscalator builds an Escalator polling at interval.
func NewEscalator(deps Deps, interval time.Duration) *Escalator {
	return &Escalator{Deps: deps, Interval: interval}
}

// Run loops until ctx is cancelled.
func (e *Escalator) Run(ctx context.Context) error {
	for {
		if err := e.runOnce(ctx); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(e.Interval):
		}
	}
}

func (e *Escalator) runOnce(ctx context.Context) error {
	txs, err := e.Store.FetchTxsForEscalation(ctx, e.Interval)
	if err != nil {
		return fmt.Errorf("escalator: fetch txs for escalation: %w", err)
	}

	for _, tx := range txs {
		e.Logger.Info("escalating tx", zap.String("tx_id", tx.ID))

		estimate, err := e.Store.LatestBlockFees(ctx, tx.ChainID)
		if err != nil {
			return fmt.Errorf("escalator: get latest block fees: %w", err)
		}
		if estimate == nil {
			e.Logger.Warn("no block fee estimate yet, skipping escalation", zap.String("tx_id", tx.ID))
			continue
		}

		maxFeePerGas, maxPriorityFeePerGas := EscalatePriorityFee(
			estimate.BaseFeePerGas, tx.InitialMaxPriorityFeePerGas, tx.EscalationCount)

		signer, err := e.Signers(ctx, tx.ChainID, tx.KeyID)
		if err != nil {
			return fmt.Errorf("escalator: resolve signer: %w", err)
		}

		unsigned, err := txbuild.DynamicFeeTx(tx.ChainID, tx.Transaction, txbuild.Fees{
			MaxFeePerGas:         maxFeePerGas,
			MaxPriorityFeePerGas: maxPriorityFeePerGas,
			MaxFeePerBlobGas:     maxFeePerGas,
		})
		if err != nil {
			return fmt.Errorf("escalator: build tx %s: %w", tx.ID, err)
		}

		signed, err := signer.SignTransaction(unsigned)
		if err != nil {
			return fmt.Errorf("escalator: sign tx %s: %w", tx.ID, err)
		}

		gateway, err := e.Gateways(tx.ChainID)
		if err != nil {
			return fmt.Errorf("escalator: resolve gateway: %w", err)
		}
		if err := gateway.SendTransaction(ctx, signed); err != nil {
			if isRecoverableSendError(err) {
				e.Logger.Warn("escalated tx not sent, will retry next pass", zap.String("tx_id", tx.ID), zap.Error(err))
				continue
			}
			return fmt.Errorf("escalator: send %s: %w", tx.ID, err)
		}

		e.Logger.Info("tx escalated", zap.String("tx_id", tx.ID), zap.String("tx_hash", signed.Hash().Hex()))

		if err := e.Store.EscalateTx(ctx, tx.ID, signed.Hash(), maxFeePerGas, maxPriorityFeePerGas); err != nil {
			return fmt.Errorf("escalator: record escalation %s: %w", tx.ID, err)
		}
	}

	return nil
}
