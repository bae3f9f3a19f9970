// Package app wires storage, key custody, and chain gateways into the
// Service the HTTP layer drives and the Deps background tasks share.
// Grounded on the original implementation's src/app.rs, which plays the
// same "shared root, thread-through as plain values" role spec.md §9
// calls for.
package app

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"txrelayer/internal/chain"
	"txrelayer/internal/config"
	"txrelayer/internal/keys"
	"txrelayer/internal/store"
	"txrelayer/internal/tasks"
)

// App is the process's shared root: one store, one key source, one
// gateway per chain id, and a signer cache keyed by (chain id, key id).
// No other global mutable state exists, per spec.md §9.
type App struct {
	Store     *store.Store
	KeySource keys.KeySource
	Logger    *zap.Logger

	gatewaysMu sync.RWMutex
	gateways   map[uint64]*chain.Gateway

	signersMu sync.Mutex
	signers   map[signerCacheKey]keys.Signer
}

type signerCacheKey struct {
	chainID uint64
	keyID   string
}

// New builds an App with no chain gateways dialed yet; call DialNetworks
// to connect to every network on record.
func New(st *store.Store, keySource keys.KeySource, logger *zap.Logger) *App {
	return &App{
		Store:     st,
		KeySource: keySource,
		Logger:    logger,
		gateways:  make(map[uint64]*chain.Gateway),
		signers:   make(map[signerCacheKey]keys.Signer),
	}
}

// DialNetworks connects a Gateway for every network currently registered
// in storage, in parallel, so one slow RPC endpoint doesn't serialize
// startup against the rest. Call again after registering a new network
// at runtime.
func (a *App) DialNetworks(ctx context.Context) error {
	networks, err := a.Store.ListNetworks(ctx)
	if err != nil {
		return fmt.Errorf("app: list networks: %w", err)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for _, n := range networks {
		n := n
		group.Go(func() error {
			return a.dialNetwork(groupCtx, n.ChainID, n.HTTPRPC)
		})
	}
	return group.Wait()
}

func (a *App) dialNetwork(ctx context.Context, chainID uint64, rpcURL string) error {
	gateway, err := chain.Dial(ctx, rpcURL)
	if err != nil {
		return fmt.Errorf("app: dial chain %d: %w", chainID, err)
	}
	if gateway.ChainID != chainID {
		gateway.Close()
		return fmt.Errorf("app: chain %d: rpc endpoint reports chain id %d", chainID, gateway.ChainID)
	}

	a.gatewaysMu.Lock()
	a.gateways[chainID] = gateway
	a.gatewaysMu.Unlock()
	return nil
}

// Gateway resolves the chain gateway for chainID. Implements
// tasks.GatewayResolver.
func (a *App) Gateway(chainID uint64) (*chain.Gateway, error) {
	a.gatewaysMu.RLock()
	defer a.gatewaysMu.RUnlock()

	gateway, ok := a.gateways[chainID]
	if !ok {
		return nil, fmt.Errorf("app: no gateway dialed for chain %d", chainID)
	}
	return gateway, nil
}

// Close releases every dialed chain gateway.
func (a *App) Close() {
	a.gatewaysMu.Lock()
	defer a.gatewaysMu.Unlock()
	for _, g := range a.gateways {
		g.Close()
	}
}

// Signer resolves a cached signer for (chainID, keyID), loading and
// caching it on first use. Implements tasks.SignerResolver.
func (a *App) Signer(ctx context.Context, chainID uint64, keyID string) (keys.Signer, error) {
	key := signerCacheKey{chainID: chainID, keyID: keyID}

	a.signersMu.Lock()
	defer a.signersMu.Unlock()

	if signer, ok := a.signers[key]; ok {
		return signer, nil
	}

	signer, err := a.KeySource.LoadSigner(ctx, keyID, chainID)
	if err != nil {
		return nil, fmt.Errorf("app: load signer %s/%d: %w", keyID, chainID, err)
	}
	a.signers[key] = signer
	return signer, nil
}

// Deps builds the shared dependency bundle background tasks embed.
func (a *App) Deps() tasks.Deps {
	return tasks.Deps{
		Store:    a.Store,
		Gateways: a.Gateway,
		Signers:  a.Signer,
		Logger:   a.Logger,
	}
}

// NewKeySource builds the configured key custody backend.
func NewKeySource(ctx context.Context, cfg config.KeysConfig) (keys.KeySource, error) {
	switch cfg.Kind {
	case "", "local":
		return keys.NewLocalKeySource(), nil
	case "kms":
		return keys.NewKMSKeySource(ctx, cfg.Kms.Region)
	default:
		return nil, fmt.Errorf("app: unknown keys.kind %q", cfg.Kind)
	}
}
