package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jmoiron/sqlx"

	"txrelayer/internal/apperrors"
	domain "txrelayer/internal/types"
)

// blobsJSON adapts []domain.Blob (each already []byte, which
// encoding/json base64-encodes) to the blobs JSONB column.
type blobsJSON []domain.Blob

func (b blobsJSON) Value() (interface{}, error) {
	if b == nil {
		return "[]", nil
	}
	return json.Marshal(b)
}

func (b *blobsJSON) Scan(src any) error {
	if src == nil {
		*b = nil
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("blobsJSON: unsupported source type %T", src)
	}
	return json.Unmarshal(raw, b)
}

// CreateTransaction admits a new transaction intent for relayerID,
// distinguishing the three rejectable conditions the admission API must
// report separately (spec.md §4.1/§7): a disabled relayer, a queue already
// at its depth limit, and a resubmitted transaction id.
//
// The relayer row is locked FOR UPDATE for the duration so nonce
// assignment is serialized across concurrent admissions for the same
// relayer.
func (s *Store) CreateTransaction(ctx context.Context, tx domain.Transaction) error {
	return s.txFunc(ctx, func(dbTx *sqlx.Tx) error {
		var row struct {
			Enabled      bool  `db:"enabled"`
			Nonce        int64 `db:"nonce"`
			CurrentNonce int64 `db:"current_nonce"`
			MaxQueuedTxs int   `db:"max_queued_txs"`
		}
		err := dbTx.GetContext(ctx, &row, `
			SELECT enabled, nonce, current_nonce, max_queued_txs FROM relayers WHERE id = $1 FOR UPDATE
		`, tx.RelayerID)
		if err == sql.ErrNoRows {
			return apperrors.New(apperrors.Other, fmt.Sprintf("relayer %s does not exist", tx.RelayerID))
		}
		if err != nil {
			return fmt.Errorf("store: create transaction: lock relayer: %w", err)
		}
		if !row.Enabled {
			return apperrors.New(apperrors.RelayerDisabled, fmt.Sprintf("relayer %s is disabled", tx.RelayerID))
		}

		queued := int(row.Nonce - row.CurrentNonce)
		if queued >= row.MaxQueuedTxs {
			return apperrors.TooMany(row.MaxQueuedTxs, queued)
		}

		res, err := dbTx.ExecContext(ctx, `
			INSERT INTO transactions (id, tx_to, data, value, gas_limit, priority, nonce, blobs, relayer_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO NOTHING
		`, tx.ID, tx.To.Bytes(), tx.Data, newBigNumeric(tx.Value), int64(tx.GasLimit),
			int(tx.Priority), row.Nonce, blobsJSON(tx.Blobs), tx.RelayerID)
		if err != nil {
			return fmt.Errorf("store: create transaction %s: %w", tx.ID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("store: create transaction %s: rows affected: %w", tx.ID, err)
		}
		if affected == 0 {
			return apperrors.DuplicateID()
		}

		_, err = dbTx.ExecContext(ctx, `
			UPDATE relayers SET nonce = nonce + 1, updated_at = now() WHERE id = $1
		`, tx.RelayerID)
		if err != nil {
			return fmt.Errorf("store: create transaction %s: bump nonce: %w", tx.ID, err)
		}

		return nil
	})
}

// unsentRow is the flat scan target for get_unsent_txs.
type unsentRow struct {
	ID             string             `db:"id"`
	To             []byte             `db:"tx_to"`
	Data           []byte             `db:"data"`
	Value          bigNumeric         `db:"value"`
	GasLimit       int64              `db:"gas_limit"`
	Priority       int                `db:"priority"`
	Nonce          int64              `db:"nonce"`
	Blobs          blobsJSON          `db:"blobs"`
	KeyID          string             `db:"key_id"`
	ChainID        int64              `db:"chain_id"`
	GasPriceLimits gasPriceLimitsJSON `db:"gas_price_limits"`
}

func (r unsentRow) toDomain() domain.UnsentTx {
	return domain.UnsentTx{
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
		KeyID:          r.KeyID,
		ChainID:        uint64(r.ChainID),
		GasPriceLimits: r.GasPriceLimits,
	}
}

// GetUnsentTxs returns every admitted transaction with no broadcast
// attempt yet, within maxInflightTxs of the relayer's last confirmed
// nonce (spec.md §4.4's admission-to-broadcast gate).
func (s *Store) GetUnsentTxs(ctx context.Context, maxInflightTxs int) ([]domain.UnsentTx, error) {
	var rows []unsentRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT t.id, t.tx_to, t.data, t.value, t.gas_limit, t.priority, t.nonce, t.blobs,
		       r.key_id, r.chain_id, r.gas_price_limits
		FROM transactions t
		LEFT JOIN sent_transactions st ON t.id = st.tx_id
		INNER JOIN relayers r ON t.relayer_id = r.id
		WHERE st.tx_id IS NULL
		AND (t.nonce - r.current_nonce) < $1
		AND r.enabled
		ORDER BY t.nonce
	`, maxInflightTxs)
	if err != nil {
		return nil, fmt.Errorf("store: get unsent txs: %w", err)
	}

	out := make([]domain.UnsentTx, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// InsertBroadcast records a transaction's first on-chain attempt: the
// escalation baseline row and the first tx_hashes entry.
func (s *Store) InsertBroadcast(ctx context.Context, txID string, txHash common.Hash, maxFeePerGas, maxPriorityFeePerGas *big.Int) error {
	return s.txFunc(ctx, func(dbTx *sqlx.Tx) error {
		_, err := dbTx.ExecContext(ctx, `
			INSERT INTO sent_transactions (tx_id, initial_max_fee_per_gas, initial_max_priority_fee_per_gas)
			VALUES ($1, $2, $3)
		`, txID, newBigNumeric(maxFeePerGas), newBigNumeric(maxPriorityFeePerGas))
		if err != nil {
			return fmt.Errorf("store: insert broadcast %s: sent_transactions: %w", txID, err)
		}

		_, err = dbTx.ExecContext(ctx, `
			INSERT INTO tx_hashes (tx_id, tx_hash, max_fee_per_gas, max_priority_fee_per_gas)
			VALUES ($1, $2, $3, $4)
		`, txID, txHash.Bytes(), newBigNumeric(maxFeePerGas), newBigNumeric(maxPriorityFeePerGas))
		if err != nil {
			return fmt.Errorf("store: insert broadcast %s: tx_hashes: %w", txID, err)
		}

		return nil
	})
}

// ReadTx loads the most recent attempt view of a transaction for the read
// API, or ErrNotFound when no such transaction id exists.
func (s *Store) ReadTx(ctx context.Context, txID string) (domain.ReadTxData, error) {
	var row struct {
		TxID     string         `db:"tx_id"`
		To       []byte         `db:"to"`
		Data     []byte         `db:"data"`
		Value    bigNumeric     `db:"value"`
		GasLimit int64          `db:"gas_limit"`
		Nonce    int64          `db:"nonce"`
		TxHash   []byte         `db:"tx_hash"`
		Status   sql.NullString `db:"status"`
	}

	err := s.db.GetContext(ctx, &row, `
		SELECT t.id as tx_id, t.tx_to as to, t.data, t.value, t.gas_limit, t.nonce,
		       h.tx_hash, h.status
		FROM transactions t
		LEFT JOIN tx_hashes h ON t.id = h.tx_id
		WHERE t.id = $1
		ORDER BY h.created_at DESC, h.status DESC
		LIMIT 1
	`, txID)
	if err != nil {
		return domain.ReadTxData{}, fmt.Errorf("store: read tx %s: %w", txID, translateNotFound(err))
	}

	out := domain.ReadTxData{
		TxID:     row.TxID,
		To:       common.BytesToAddress(row.To),
		Data:     row.Data,
		Value:    row.Value.Int,
		GasLimit: uint64(row.GasLimit),
		Nonce:    uint64(row.Nonce),
	}
	if len(row.TxHash) > 0 {
		h := common.BytesToHash(row.TxHash)
		out.TxHash = &h
	}
	if row.Status.Valid {
		status := domain.TxStatus(row.Status.String)
		out.Status = &status
	}
	return out, nil
}

// ListTxFilter narrows GET /txs results.
type ListTxFilter struct {
	RelayerID string
	Status    *domain.TxStatus
	UnsentOnly bool
}

// ListTxs returns every transaction for a relayer matching filter,
// grounded on the original implementation's GET /api/:token/txs route.
func (s *Store) ListTxs(ctx context.Context, filter ListTxFilter) ([]domain.ReadTxData, error) {
	query := `
		SELECT t.id as tx_id, t.tx_to as to, t.data, t.value, t.gas_limit, t.nonce,
		       h.tx_hash, h.status
		FROM transactions t
		LEFT JOIN tx_hashes h ON t.id = h.tx_id
		         AND h.created_at = (SELECT max(h2.created_at) FROM tx_hashes h2 WHERE h2.tx_id = t.id)
		WHERE t.relayer_id = $1
	`
	args := []any{filter.RelayerID}

	if filter.UnsentOnly {
		query += ` AND h.tx_hash IS NULL`
	}
	if filter.Status != nil {
		query += fmt.Sprintf(` AND h.status = $%d`, len(args)+1)
		args = append(args, string(*filter.Status))
	}
	query += ` ORDER BY t.nonce`

	var rows []struct {
		TxID     string         `db:"tx_id"`
		To       []byte         `db:"to"`
		Data     []byte         `db:"data"`
		Value    bigNumeric     `db:"value"`
		GasLimit int64          `db:"gas_limit"`
		Nonce    int64          `db:"nonce"`
		TxHash   []byte         `db:"tx_hash"`
		Status   sql.NullString `db:"status"`
	}
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("store: list txs for relayer %s: %w", filter.RelayerID, err)
	}

	out := make([]domain.ReadTxData, 0, len(rows))
	for _, row := range rows {
		item := domain.ReadTxData{
			TxID:     row.TxID,
			To:       common.BytesToAddress(row.To),
			Data:     row.Data,
			Value:    row.Value.Int,
			GasLimit: uint64(row.GasLimit),
			Nonce:    uint64(row.Nonce),
		}
		if len(row.TxHash) > 0 {
			h := common.BytesToHash(row.TxHash)
			item.TxHash = &h
		}
		if row.Status.Valid {
			status := domain.TxStatus(row.Status.String)
			item.Status = &status
		}
		out = append(out, item)
	}
	return out, nil
}
