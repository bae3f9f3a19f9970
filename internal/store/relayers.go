package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	domain "txrelayer/internal/types"
)

// gasPriceLimitsJSON adapts []domain.GasPriceLimit to the gas_price_limits
// JSONB column.
type gasPriceLimitsJSON []domain.GasPriceLimit

func (g gasPriceLimitsJSON) Value() (driver.Value, error) {
	if g == nil {
		return "[]", nil
	}
	return json.Marshal(g)
}

func (g *gasPriceLimitsJSON) Scan(src any) error {
	if src == nil {
		*g = nil
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("gasPriceLimitsJSON: unsupported source type %T", src)
	}
	return json.Unmarshal(raw, g)
}

// relayerRow is the flat scan target for a relayers row.
type relayerRow struct {
	ID             string             `db:"id"`
	Name           string             `db:"name"`
	ChainID        int64              `db:"chain_id"`
	KeyID          string             `db:"key_id"`
	Address        []byte             `db:"address"`
	Nonce          int64              `db:"nonce"`
	CurrentNonce   int64              `db:"current_nonce"`
	MaxInflightTxs int                `db:"max_inflight_txs"`
	MaxQueuedTxs   int                `db:"max_queued_txs"`
	GasPriceLimits gasPriceLimitsJSON `db:"gas_price_limits"`
	Enabled        bool               `db:"enabled"`
	CreatedAt      sql.NullTime       `db:"created_at"`
	UpdatedAt      sql.NullTime       `db:"updated_at"`
}

func (r relayerRow) toDomain() domain.Relayer {
	return domain.Relayer{
		ID:             r.ID,
		Name:           r.Name,
		ChainID:        uint64(r.ChainID),
		KeyID:          r.KeyID,
		Address:        common.BytesToAddress(r.Address),
		Nonce:          uint64(r.Nonce),
		CurrentNonce:   uint64(r.CurrentNonce),
		MaxInflightTxs: r.MaxInflightTxs,
		MaxQueuedTxs:   r.MaxQueuedTxs,
		GasPriceLimits: r.GasPriceLimits,
		Enabled:        r.Enabled,
		CreatedAt:      r.CreatedAt.Time,
		UpdatedAt:      r.UpdatedAt.Time,
	}
}

// CreateRelayer inserts a brand new relayer, nonce counters starting at
// zero; callers seed CurrentNonce from the chain separately once the
// gateway is reachable (app.App.CreateRelayer).
func (s *Store) CreateRelayer(ctx context.Context, r domain.Relayer) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO relayers (id, name, chain_id, key_id, address, nonce, current_nonce,
		                       max_inflight_txs, max_queued_txs, gas_price_limits, enabled)
		VALUES ($1, $2, $3, $4, $5, 0, 0, $6, $7, $8, $9)
	`, r.ID, r.Name, int64(r.ChainID), r.KeyID, r.Address.Bytes(),
		nonZero(r.MaxInflightTxs, 5), nonZero(r.MaxQueuedTxs, 1000),
		gasPriceLimitsJSON(r.GasPriceLimits), r.Enabled)
	if err != nil {
		return fmt.Errorf("store: create relayer %s: %w", r.ID, err)
	}
	return nil
}

func nonZero(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}

// GetRelayer loads a relayer by id.
func (s *Store) GetRelayer(ctx context.Context, id string) (domain.Relayer, error) {
	var row relayerRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM relayers WHERE id = $1`, id)
	if err != nil {
		return domain.Relayer{}, fmt.Errorf("store: get relayer %s: %w", id, translateNotFound(err))
	}
	return row.toDomain(), nil
}

// ListRelayers returns every relayer, optionally filtered to one chain id.
func (s *Store) ListRelayers(ctx context.Context, chainID *uint64) ([]domain.Relayer, error) {
	var rows []relayerRow
	var err error
	if chainID != nil {
		err = s.db.SelectContext(ctx, &rows, `SELECT * FROM relayers WHERE chain_id = $1 ORDER BY created_at`, int64(*chainID))
	} else {
		err = s.db.SelectContext(ctx, &rows, `SELECT * FROM relayers ORDER BY created_at`)
	}
	if err != nil {
		return nil, fmt.Errorf("store: list relayers: %w", err)
	}

	out := make([]domain.Relayer, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// UpdateRelayer applies the non-nil fields of update to relayer id.
func (s *Store) UpdateRelayer(ctx context.Context, id string, update domain.RelayerUpdate) error {
	current, err := s.GetRelayer(ctx, id)
	if err != nil {
		return err
	}

	if update.Name != nil {
		current.Name = *update.Name
	}
	if update.MaxInflightTxs != nil {
		current.MaxInflightTxs = *update.MaxInflightTxs
	}
	if update.MaxQueuedTxs != nil {
		current.MaxQueuedTxs = *update.MaxQueuedTxs
	}
	if update.GasPriceLimits != nil {
		current.GasPriceLimits = update.GasPriceLimits
	}
	if update.Enabled != nil {
		current.Enabled = *update.Enabled
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE relayers
		SET name = $2, max_inflight_txs = $3, max_queued_txs = $4,
		    gas_price_limits = $5, enabled = $6, updated_at = now()
		WHERE id = $1
	`, id, current.Name, current.MaxInflightTxs, current.MaxQueuedTxs,
		gasPriceLimitsJSON(current.GasPriceLimits), current.Enabled)
	if err != nil {
		return fmt.Errorf("store: update relayer %s: %w", id, err)
	}
	return nil
}

// SetRelayerKey rebinds relayer id to a freshly provisioned key id/address.
// No HTTP route calls it; POST /1/admin/relayer/{id}/key issues an API key,
// not a new signing key.
func (s *Store) SetRelayerKey(ctx context.Context, id, keyID string, address common.Address) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE relayers SET key_id = $2, address = $3, updated_at = now() WHERE id = $1
	`, id, keyID, address.Bytes())
	if err != nil {
		return fmt.Errorf("store: set relayer key %s: %w", id, err)
	}
	return nil
}

// FetchRelayerAddresses returns every relayer address registered on
// chainID, used by the indexer to refresh each relayer's on-chain nonce
// after every indexed block.
func (s *Store) FetchRelayerAddresses(ctx context.Context, chainID uint64) ([]common.Address, error) {
	var raw [][]byte
	err := s.db.SelectContext(ctx, &raw, `SELECT address FROM relayers WHERE chain_id = $1`, int64(chainID))
	if err != nil {
		return nil, fmt.Errorf("store: fetch relayer addresses for chain %d: %w", chainID, err)
	}

	out := make([]common.Address, 0, len(raw))
	for _, b := range raw {
		out = append(out, common.BytesToAddress(b))
	}
	return out, nil
}

// UpdateRelayerNonce records the latest on-chain transaction count observed
// for relayerAddress on chainID, as seen by the indexer.
func (s *Store) UpdateRelayerNonce(ctx context.Context, chainID uint64, relayerAddress common.Address, nonce uint64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE relayers SET current_nonce = $3, updated_at = now()
		WHERE chain_id = $1 AND address = $2
	`, int64(chainID), relayerAddress.Bytes(), int64(nonce))
	if err != nil {
		return fmt.Errorf("store: update relayer nonce chain=%d addr=%s: %w", chainID, relayerAddress, err)
	}
	return nil
}

func translateNotFound(err error) error {
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	return err
}
