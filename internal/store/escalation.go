package store

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jmoiron/sqlx"

	domain "txrelayer/internal/types"
)

// txForEscalationRow is the flat scan target for fetch_txs_for_escalation.
type txForEscalationRow struct {
	ID                          string     `db:"id"`
	To                          []byte     `db:"tx_to"`
	Data                        []byte     `db:"data"`
	Value                       bigNumeric `db:"value"`
	GasLimit                    int64      `db:"gas_limit"`
	Priority                    int        `db:"priority"`
	Nonce                       int64      `db:"nonce"`
	Blobs                       blobsJSON  `db:"blobs"`
	KeyID                       string     `db:"key_id"`
	ChainID                     int64      `db:"chain_id"`
	InitialMaxFeePerGas         bigNumeric `db:"initial_max_fee_per_gas"`
	InitialMaxPriorityFeePerGas bigNumeric `db:"initial_max_priority_fee_per_gas"`
	EscalationCount             int        `db:"escalation_count"`
}

func (r txForEscalationRow) toDomain() domain.TxForEscalation {
	return domain.TxForEscalation{
		Transaction: domain.Transaction{
			ID:       r.ID,
			To:       common.BytesToAddress(r.To),
			Data:     r.Data,
			Value:    r.Value.Int,
			GasLimit: uint64(r.GasLimit),
			Priority: domain.TransactionPriority(r.Priority),
			Nonce:    uint64(r.Nonce),
			Blobs:    r.Blobs,
		},
		KeyID:                       r.KeyID,
		ChainID:                     uint64(r.ChainID),
		InitialMaxFeePerGas:         r.InitialMaxFeePerGas.Int,
		InitialMaxPriorityFeePerGas: r.InitialMaxPriorityFeePerGas.Int,
		EscalationCount:             r.EscalationCount,
	}
}

// FetchTxsForEscalation returns every pending, not-yet-escalated attempt
// whose most recent broadcast is older than escalationInterval, per
// spec.md §4.6.
func (s *Store) FetchTxsForEscalation(ctx context.Context, escalationInterval time.Duration) ([]domain.TxForEscalation, error) {
	var rows []txForEscalationRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT t.id, t.tx_to, t.data, t.value, t.gas_limit, t.priority, t.nonce, t.blobs,
		       r.key_id, r.chain_id,
		       st.initial_max_fee_per_gas, st.initial_max_priority_fee_per_gas, st.escalation_count
		FROM transactions t
		JOIN sent_transactions st ON t.id = st.tx_id
		JOIN tx_hashes h ON t.id = h.tx_id
		JOIN relayers r ON t.relayer_id = r.id
		WHERE now() - h.created_at > ($1 * interval '1 second')
		AND h.status = 'pending'
		AND NOT h.escalated
	`, escalationInterval.Seconds())
	if err != nil {
		return nil, fmt.Errorf("store: fetch txs for escalation: %w", err)
	}

	out := make([]domain.TxForEscalation, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// EscalateTx marks the previous attempt escalated, bumps the escalation
// counter, and records the new, higher-fee attempt.
func (s *Store) EscalateTx(ctx context.Context, txID string, txHash common.Hash, maxFeePerGas, maxPriorityFeePerGas *big.Int) error {
	return s.txFunc(ctx, func(dbTx *sqlx.Tx) error {
		if _, err := dbTx.ExecContext(ctx, `
			UPDATE tx_hashes SET escalated = true WHERE tx_id = $1 AND status = 'pending'
		`, txID); err != nil {
			return fmt.Errorf("store: escalate tx %s: mark escalated: %w", txID, err)
		}

		if _, err := dbTx.ExecContext(ctx, `
			UPDATE sent_transactions SET escalation_count = escalation_count + 1 WHERE tx_id = $1
		`, txID); err != nil {
			return fmt.Errorf("store: escalate tx %s: bump count: %w", txID, err)
		}

		if _, err := dbTx.ExecContext(ctx, `
			INSERT INTO tx_hashes (tx_id, tx_hash, max_fee_per_gas, max_priority_fee_per_gas)
			VALUES ($1, $2, $3, $4)
		`, txID, txHash.Bytes(), newBigNumeric(maxFeePerGas), newBigNumeric(maxPriorityFeePerGas)); err != nil {
			return fmt.Errorf("store: escalate tx %s: insert attempt: %w", txID, err)
		}

		return nil
	})
}
