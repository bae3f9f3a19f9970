package store

import (
	"context"
	"fmt"

	domain "txrelayer/internal/types"
)

// CreateNetwork registers a chain the relayer should index and broadcast
// against.
func (s *Store) CreateNetwork(ctx context.Context, n domain.Network) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO networks (chain_id, name, http_rpc, ws_rpc)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (chain_id) DO UPDATE SET name = EXCLUDED.name, http_rpc = EXCLUDED.http_rpc, ws_rpc = EXCLUDED.ws_rpc
	`, int64(n.ChainID), n.Name, n.HTTPRPC, n.WSRPC)
	if err != nil {
		return fmt.Errorf("store: create network %d: %w", n.ChainID, err)
	}
	return nil
}

// NetworkChainIDs lists every chain id the relayer is configured to serve.
func (s *Store) NetworkChainIDs(ctx context.Context) ([]uint64, error) {
	var raw []int64
	if err := s.db.SelectContext(ctx, &raw, `SELECT chain_id FROM networks ORDER BY chain_id`); err != nil {
		return nil, fmt.Errorf("store: network chain ids: %w", err)
	}
	out := make([]uint64, len(raw))
	for i, v := range raw {
		out[i] = uint64(v)
	}
	return out, nil
}

// ListNetworks returns every registered network.
func (s *Store) ListNetworks(ctx context.Context) ([]domain.Network, error) {
	var rows []struct {
		ChainID int64  `db:"chain_id"`
		Name    string `db:"name"`
		HTTPRPC string `db:"http_rpc"`
		WSRPC   string `db:"ws_rpc"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT chain_id, name, http_rpc, ws_rpc FROM networks ORDER BY chain_id`); err != nil {
		return nil, fmt.Errorf("store: list networks: %w", err)
	}

	out := make([]domain.Network, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.Network{ChainID: uint64(r.ChainID), Name: r.Name, HTTPRPC: r.HTTPRPC, WSRPC: r.WSRPC})
	}
	return out, nil
}
