package store

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"fmt"
)

// CreateAPIKey stores the SHA3-256 hash of a freshly issued credential for
// relayerID, overwriting any prior key (spec.md §4.1's key rotation path).
func (s *Store) CreateAPIKey(ctx context.Context, relayerID string, secretHash [32]byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_keys (relayer_id, secret_hash)
		VALUES ($1, $2)
		ON CONFLICT (relayer_id) DO UPDATE SET secret_hash = EXCLUDED.secret_hash, created_at = now()
	`, relayerID, secretHash[:])
	if err != nil {
		return fmt.Errorf("store: create api key for relayer %s: %w", relayerID, err)
	}
	return nil
}

// ValidateAPIKey reports whether relayerID currently owns a key whose hash
// equals secretHash. The stored hash is fetched by relayer id alone and
// compared with subtle.ConstantTimeCompare, per spec.md's requirement
// that the secret comparison itself run in constant time rather than
// leaving it to a SQL equality predicate.
func (s *Store) ValidateAPIKey(ctx context.Context, relayerID string, secretHash [32]byte) (bool, error) {
	var stored []byte
	err := s.db.GetContext(ctx, &stored, `
		SELECT secret_hash FROM api_keys WHERE relayer_id = $1
	`, relayerID)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: validate api key for relayer %s: %w", relayerID, err)
	}

	return subtle.ConstantTimeCompare(stored, secretHash[:]) == 1, nil
}
