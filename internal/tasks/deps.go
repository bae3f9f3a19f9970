package tasks

import (
	"context"

	"go.uber.org/zap"

	"txrelayer/internal/chain"
	"txrelayer/internal/keys"
	"txrelayer/internal/store"
)

// maxInflightTxs bounds how many unconfirmed attempts the broadcaster
// will allow per relayer, per spec.md §4.4.
const maxInflightTxs = 5

// GatewayResolver returns the chain gateway serving chainID.
type GatewayResolver func(chainID uint64) (*chain.Gateway, error)

// SignerResolver returns a signer bound to chainID for keyID, caching as
// it sees fit (mirrors the original implementation's
// App::fetch_signer_middleware).
type SignerResolver func(ctx context.Context, chainID uint64, keyID string) (keys.Signer, error)

// Deps bundles every external dependency a task needs. Each task type
// embeds Deps rather than repeating the same four fields.
type Deps struct {
	Store    *store.Store
	Gateways GatewayResolver
	Signers  SignerResolver
	Logger   *zap.Logger
}
