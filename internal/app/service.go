package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"txrelayer/internal/apikey"
	"txrelayer/internal/apperrors"
	"txrelayer/internal/server"
	"txrelayer/internal/store"
	domain "txrelayer/internal/types"
)

// App implements server.Service, keeping the HTTP layer free of storage,
// key custody, and chain gateway details.
var _ server.Service = (*App)(nil)

func (a *App) CreateNetwork(ctx context.Context, chainID uint64, name, httpRPC, wsRPC string) error {
	if err := a.Store.CreateNetwork(ctx, domain.Network{ChainID: chainID, Name: name, HTTPRPC: httpRPC, WSRPC: wsRPC}); err != nil {
		return err
	}
	return a.dialNetwork(ctx, chainID, httpRPC)
}

func (a *App) CreateRelayer(ctx context.Context, name string, chainID uint64) (domain.Relayer, error) {
	keyID, signer, err := a.KeySource.NewSigner(ctx, chainID)
	if err != nil {
		return domain.Relayer{}, fmt.Errorf("create relayer: provision key: %w", err)
	}

	relayer := domain.Relayer{
		ID:      uuid.NewString(),
		Name:    name,
		ChainID: chainID,
		KeyID:   keyID,
		Address: signer.Address(),
		Enabled: true,
	}

	if err := a.Store.CreateRelayer(ctx, relayer); err != nil {
		return domain.Relayer{}, err
	}

	gateway, err := a.Gateway(chainID)
	if err == nil {
		if nonce, err := gateway.PendingNonceAt(ctx, relayer.Address); err == nil {
			_ = a.Store.UpdateRelayerNonce(ctx, chainID, relayer.Address, nonce)
		}
	}

	return a.Store.GetRelayer(ctx, relayer.ID)
}

func (a *App) UpdateRelayer(ctx context.Context, id string, update domain.RelayerUpdate) error {
	return a.Store.UpdateRelayer(ctx, id, update)
}

func (a *App) GetRelayer(ctx context.Context, id string) (domain.Relayer, error) {
	return a.Store.GetRelayer(ctx, id)
}

func (a *App) ListRelayers(ctx context.Context, chainID *uint64) ([]domain.Relayer, error) {
	return a.Store.ListRelayers(ctx, chainID)
}

func (a *App) CreateAPIKey(ctx context.Context, relayerID string) (string, error) {
	key, err := apikey.New(relayerID)
	if err != nil {
		return "", err
	}
	if err := a.Store.CreateAPIKey(ctx, relayerID, key.Hash()); err != nil {
		return "", err
	}
	return key.String(), nil
}

// AuthenticateToken parses and validates a consumer API token, returning
// the relayer id it authorizes for. Distinguishes encoding/length/auth
// failures per spec.md §7.
func (a *App) AuthenticateToken(ctx context.Context, token string) (string, error) {
	key, err := apikey.Parse(token)
	if err != nil {
		switch {
		case apikey.IsEncodingError(err):
			return "", apperrors.New(apperrors.KeyEncoding, err.Error())
		case apikey.IsLengthError(err):
			return "", apperrors.New(apperrors.KeyLength, err.Error())
		default:
			return "", apperrors.New(apperrors.Unauthorized, err.Error())
		}
	}

	ok, err := a.Store.ValidateAPIKey(ctx, key.RelayerID, key.Hash())
	if err != nil {
		return "", err
	}
	if !ok {
		return "", apperrors.New(apperrors.Unauthorized, "api key does not match any relayer")
	}

	return key.RelayerID, nil
}

func (a *App) CreateTransaction(ctx context.Context, relayerID string, req server.CreateTransactionRequest) (string, error) {
	tx, err := req.ToDomain(relayerID)
	if err != nil {
		return "", err
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}

	if err := a.Store.CreateTransaction(ctx, tx); err != nil {
		return "", err
	}
	return tx.ID, nil
}

func (a *App) GetTransaction(ctx context.Context, relayerID, txID string) (domain.ReadTxData, error) {
	tx, err := a.Store.ReadTx(ctx, txID)
	if err != nil {
		return domain.ReadTxData{}, err
	}
	return tx, nil
}

func (a *App) ListTransactions(ctx context.Context, relayerID string, filter store.ListTxFilter) ([]domain.ReadTxData, error) {
	filter.RelayerID = relayerID
	return a.Store.ListTxs(ctx, filter)
}

// ProxyRPC forwards a raw JSON-RPC request to the relayer's chain gateway,
// per spec.md §4.8 ("not a key-granting operation" — admission is the
// api-key check the caller already passed).
func (a *App) ProxyRPC(ctx context.Context, relayerID string, body json.RawMessage) (json.RawMessage, error) {
	relayer, err := a.Store.GetRelayer(ctx, relayerID)
	if err != nil {
		return nil, err
	}

	gateway, err := a.Gateway(relayer.ChainID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Other, err)
	}

	var req struct {
		Method string `json:"method"`
		Params []any  `json:"params"`
		ID     any    `json:"id"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, apperrors.New(apperrors.InvalidFormat, "malformed json-rpc request")
	}

	var result json.RawMessage
	if err := gateway.Client().Client().CallContext(ctx, &result, req.Method, req.Params...); err != nil {
		return nil, apperrors.Wrap(apperrors.Other, err)
	}

	return json.Marshal(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
}
