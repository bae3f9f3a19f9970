package server

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"txrelayer/internal/apperrors"
	domain "txrelayer/internal/types"
)

// Wei amounts, gas limits and chain ids travel as decimal strings, and
// addresses and hashes as 0x-prefixed hex, per spec.md §6. Nonces and the
// relayer's inflight/queued limits are plain JSON numbers.

type createNetworkRequest struct {
	Name    string `json:"name"`
	HTTPRPC string `json:"http_rpc"`
	WSRPC   string `json:"ws_rpc"`
}

type createRelayerRequest struct {
	Name    string `json:"name"`
	ChainID uint64 `json:"chain_id,string"`
}

type createRelayerResponse struct {
	RelayerID string `json:"relayer_id"`
	Address   string `json:"address"`
}

type updateRelayerRequest struct {
	Name           *string            `json:"name"`
	MaxInflightTxs *int               `json:"max_inflight_txs"`
	MaxQueuedTxs   *int               `json:"max_queued_txs"`
	GasPriceLimits []gasPriceLimitDTO `json:"gas_price_limits"`
	Enabled        *bool              `json:"enabled"`
}

type gasPriceLimitDTO struct {
	ChainID           uint64 `json:"chain_id,string"`
	MaxAcceptableGwei string `json:"max_acceptable_gwei"`
}

type relayerResponse struct {
	ID             string             `json:"id"`
	Name           string             `json:"name"`
	ChainID        uint64             `json:"chain_id,string"`
	Address        string             `json:"address"`
	Nonce          uint64             `json:"nonce"`
	CurrentNonce   uint64             `json:"current_nonce"`
	MaxInflightTxs int                `json:"max_inflight_txs"`
	MaxQueuedTxs   int                `json:"max_queued_txs"`
	GasPriceLimits []gasPriceLimitDTO `json:"gas_price_limits"`
	Enabled        bool               `json:"enabled"`
}

func toRelayerResponse(r domain.Relayer) relayerResponse {
	limits := make([]gasPriceLimitDTO, len(r.GasPriceLimits))
	for i, l := range r.GasPriceLimits {
		gwei := big.NewInt(0)
		if l.MaxAcceptableGwei != nil {
			gwei = l.MaxAcceptableGwei
		}
		limits[i] = gasPriceLimitDTO{ChainID: l.ChainID, MaxAcceptableGwei: gwei.String()}
	}
	return relayerResponse{
		ID:             r.ID,
		Name:           r.Name,
		ChainID:        r.ChainID,
		Address:        r.Address.Hex(),
		Nonce:          r.Nonce,
		CurrentNonce:   r.CurrentNonce,
		MaxInflightTxs: r.MaxInflightTxs,
		MaxQueuedTxs:   r.MaxQueuedTxs,
		GasPriceLimits: limits,
		Enabled:        r.Enabled,
	}
}

func (req updateRelayerRequest) toDomain() (domain.RelayerUpdate, error) {
	update := domain.RelayerUpdate{
		Name:           req.Name,
		MaxInflightTxs: req.MaxInflightTxs,
		MaxQueuedTxs:   req.MaxQueuedTxs,
		Enabled:        req.Enabled,
	}
	if req.GasPriceLimits != nil {
		limits := make([]domain.GasPriceLimit, len(req.GasPriceLimits))
		for i, l := range req.GasPriceLimits {
			gwei, ok := new(big.Int).SetString(l.MaxAcceptableGwei, 10)
			if !ok {
				return domain.RelayerUpdate{}, apperrors.New(apperrors.InvalidFormat, "gas_price_limits: invalid max_acceptable_gwei")
			}
			limits[i] = domain.GasPriceLimit{ChainID: l.ChainID, MaxAcceptableGwei: gwei}
		}
		update.GasPriceLimits = limits
	}
	return update, nil
}

type createAPIKeyResponse struct {
	APIKey string `json:"api_key"`
}

// CreateTransactionRequest is the consumer tx submission body.
type CreateTransactionRequest struct {
	ID       string   `json:"tx_id"`
	To       string   `json:"to"`
	Value    string   `json:"value"`
	Data     string   `json:"data"`
	GasLimit string   `json:"gas_limit"`
	Priority string   `json:"priority"`
	Blobs    []string `json:"blobs"`
}

// ToDomain validates and converts the wire request into a storage-ready
// Transaction bound to relayerID; nonce is assigned by the store.
func (req CreateTransactionRequest) ToDomain(relayerID string) (domain.Transaction, error) {
	if !common.IsHexAddress(req.To) {
		return domain.Transaction{}, apperrors.New(apperrors.InvalidFormat, "to: not a hex address")
	}

	value := big.NewInt(0)
	if req.Value != "" {
		v, ok := new(big.Int).SetString(req.Value, 10)
		if !ok {
			return domain.Transaction{}, apperrors.New(apperrors.InvalidFormat, "value: not a decimal integer")
		}
		value = v
	}

	gasLimit, err := strconv.ParseUint(req.GasLimit, 10, 64)
	if err != nil {
		return domain.Transaction{}, apperrors.New(apperrors.InvalidFormat, "gas_limit: not a valid integer")
	}

	priority, ok := domain.ParseTransactionPriority(req.Priority)
	if !ok {
		return domain.Transaction{}, apperrors.New(apperrors.InvalidFormat, "priority: unrecognized value")
	}

	var data []byte
	if req.Data != "" {
		data, err = hex.DecodeString(trimHexPrefix(req.Data))
		if err != nil {
			return domain.Transaction{}, apperrors.New(apperrors.InvalidFormat, "data: not valid hex")
		}
	}

	blobs := make([]domain.Blob, len(req.Blobs))
	for i, b := range req.Blobs {
		raw, err := base64.StdEncoding.DecodeString(b)
		if err != nil {
			return domain.Transaction{}, apperrors.New(apperrors.InvalidFormat, fmt.Sprintf("blobs[%d]: not valid base64", i))
		}
		blobs[i] = raw
	}

	return domain.Transaction{
		ID:        req.ID,
		RelayerID: relayerID,
		To:        common.HexToAddress(req.To),
		Data:      data,
		Value:     value,
		GasLimit:  gasLimit,
		Priority:  priority,
		Blobs:     blobs,
	}, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

type createTransactionResponse struct {
	TxID string `json:"tx_id"`
}

type readTxResponse struct {
	TxID     string  `json:"tx_id"`
	To       string  `json:"to"`
	Data     string  `json:"data"`
	Value    string  `json:"value"`
	GasLimit string  `json:"gas_limit"`
	Nonce    uint64  `json:"nonce"`
	TxHash   *string `json:"tx_hash,omitempty"`
	Status   *string `json:"status,omitempty"`
}

func toReadTxResponse(tx domain.ReadTxData) readTxResponse {
	resp := readTxResponse{
		TxID:     tx.TxID,
		To:       tx.To.Hex(),
		Data:     "0x" + hex.EncodeToString(tx.Data),
		Value:    valueOrZero(tx.Value).String(),
		GasLimit: strconv.FormatUint(tx.GasLimit, 10),
		Nonce:    tx.Nonce,
	}
	if tx.TxHash != nil {
		h := tx.TxHash.Hex()
		resp.TxHash = &h
	}
	if tx.Status != nil {
		s := string(*tx.Status)
		resp.Status = &s
	}
	return resp
}

func valueOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
