// Package types holds the domain entities shared across the relayer: the
// things storage persists and the chain, key-custody, and HTTP layers pass
// around. None of these types know how to persist themselves; see
// internal/store for that.
package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TransactionPriority selects which fee-history percentile a broadcast
// targets. The ordinal values are pinned explicitly (not left to iota
// reordering) because they double as the storage encoding and as an index
// into FeesEstimate.PercentileFees.
type TransactionPriority int

const (
	PrioritySlowest TransactionPriority = 0
	PrioritySlow    TransactionPriority = 1
	PriorityRegular TransactionPriority = 2
	PriorityFast    TransactionPriority = 3
	PriorityFastest TransactionPriority = 4
)

func (p TransactionPriority) String() string {
	switch p {
	case PrioritySlowest:
		return "slowest"
	case PrioritySlow:
		return "slow"
	case PriorityRegular:
		return "regular"
	case PriorityFast:
		return "fast"
	case PriorityFastest:
		return "fastest"
	default:
		return "unknown"
	}
}

// ParseTransactionPriority parses the wire/JSON representation. The zero
// value of the request body (empty string) maps to the documented default,
// "regular".
func ParseTransactionPriority(s string) (TransactionPriority, bool) {
	switch s {
	case "", "regular":
		return PriorityRegular, true
	case "slowest":
		return PrioritySlowest, true
	case "slow":
		return PrioritySlow, true
	case "fast":
		return PriorityFast, true
	case "fastest":
		return PriorityFastest, true
	default:
		return 0, false
	}
}

// TxStatus is the lifecycle stage of an on-chain attempt. Transitions are
// strictly forward: Pending -> Mined -> Finalized. A reorg resets an
// attempt's status back to Pending (see Previous / reorg reconciler).
type TxStatus string

const (
	TxStatusPending   TxStatus = "pending"
	TxStatusMined     TxStatus = "mined"
	TxStatusFinalized TxStatus = "finalized"
)

// Previous returns the status a block/attempt must currently hold for a
// transition into s to be valid. Mirrors BlockTxStatus::previous in the
// original implementation, used by the idempotent update_transactions scan.
func (s TxStatus) Previous() (TxStatus, bool) {
	switch s {
	case TxStatusMined:
		return TxStatusPending, true
	case TxStatusFinalized:
		return TxStatusMined, true
	default:
		return "", false
	}
}

// Network is a registered chain: one HTTP endpoint and one websocket
// endpoint, keyed by chain id.
type Network struct {
	ChainID uint64
	Name    string
	HTTPRPC string
	WSRPC   string
}

// GasPriceLimit caps the gas price a relayer's broadcaster will accept for
// a given chain before it refuses to send and logs a warning.
type GasPriceLimit struct {
	ChainID           uint64
	MaxAcceptableGwei *big.Int
}

// weiPerGwei converts a GasPriceLimit's MaxAcceptableGwei into wei, the
// unit FeesEstimate.GasPrice returns.
var weiPerGwei = big.NewInt(1_000_000_000)

// MaxAcceptableWei caps this limit at its chain, converted to wei.
func (g GasPriceLimit) MaxAcceptableWei() *big.Int {
	if g.MaxAcceptableGwei == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Mul(g.MaxAcceptableGwei, weiPerGwei)
}

// GasPriceLimitForChain returns the limit configured for chainID, if any.
func GasPriceLimitForChain(limits []GasPriceLimit, chainID uint64) (GasPriceLimit, bool) {
	for _, l := range limits {
		if l.ChainID == chainID {
			return l, true
		}
	}
	return GasPriceLimit{}, false
}

// Relayer is a logical sending identity bound to one network and one key.
type Relayer struct {
	ID             string
	Name           string
	ChainID        uint64
	KeyID          string
	Address        common.Address
	Nonce          uint64 // next nonce to hand out
	CurrentNonce   uint64 // last observed on-chain tx count
	MaxInflightTxs int
	MaxQueuedTxs   int
	GasPriceLimits []GasPriceLimit
	Enabled        bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RelayerUpdate is the mutable subset of Relayer exposed through the admin
// API. Nil fields are left unchanged.
type RelayerUpdate struct {
	Name           *string
	MaxInflightTxs *int
	MaxQueuedTxs   *int
	GasPriceLimits []GasPriceLimit
	Enabled        *bool
}

// Blob is one EIP-4844 blob sidecar payload, carried base64-encoded over
// the wire.
type Blob []byte

// Transaction is the immutable logical intent a caller submitted.
type Transaction struct {
	ID        string
	RelayerID string
	To        common.Address
	Data      []byte
	Value     *big.Int
	GasLimit  uint64
	Priority  TransactionPriority
	Nonce     uint64
	Blobs     []Blob
	CreatedAt time.Time
}

// Attempt is one signed on-chain broadcast of a Transaction.
type Attempt struct {
	TxID                 string
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	TxHash               common.Hash
	Status               TxStatus
	Escalated            bool
	CreatedAt            time.Time
}

// SentTx is per-transaction escalation state, created with the first
// attempt.
type SentTx struct {
	TxID                            string
	InitialMaxFeePerGas             *big.Int
	InitialMaxPriorityFeePerGas     *big.Int
	EscalationCount                 int
}

// BlockStatus is the storage status of a Block row: a freshly observed
// canonical block, or a finalized shadow entry recorded once the chain has
// advanced past the finality depth.
type BlockStatus string

const (
	BlockStatusMined     BlockStatus = "mined"
	BlockStatusFinalized BlockStatus = "finalized"
)

// FeesEstimate is the fee-history sample recorded for a mined block: the
// block's base fee, and the average reward at each requested percentile
// across the sampled window.
type FeesEstimate struct {
	BaseFeePerGas   *big.Int
	PercentileFees  []*big.Int
}

// GasPrice approximates "the current observed gas price" for a chain as
// base fee plus the regular-priority percentile reward, used by the
// broadcaster's per-relayer gas price limit check.
func (f FeesEstimate) GasPrice() *big.Int {
	if f.BaseFeePerGas == nil {
		return big.NewInt(0)
	}
	price := new(big.Int).Set(f.BaseFeePerGas)
	if len(f.PercentileFees) > int(PriorityRegular) && f.PercentileFees[PriorityRegular] != nil {
		price.Add(price, f.PercentileFees[PriorityRegular])
	}
	return price
}

// Block is a chain sample: a canonical mined block, or finalized shadow
// entry at tip-5.
type Block struct {
	BlockNumber  uint64
	ChainID      uint64
	Status       BlockStatus
	FeeEstimate  *FeesEstimate
	Timestamp    time.Time
	TxHashes     []common.Hash
}

// UnsentTx is the view get_unsent_txs returns: everything the broadcaster
// needs to build and sign an EIP-1559 transaction, without a second
// round-trip to fetch the owning relayer.
type UnsentTx struct {
	Transaction
	KeyID          string
	ChainID        uint64
	GasPriceLimits []GasPriceLimit
}

// TxForEscalation is the view fetch_txs_for_escalation returns.
type TxForEscalation struct {
	Transaction
	KeyID                       string
	ChainID                     uint64
	InitialMaxFeePerGas         *big.Int
	InitialMaxPriorityFeePerGas *big.Int
	EscalationCount             int
}

// ReadTxData is the read-side view of a transaction joined to its newest
// attempt, as returned to GET /tx/:id.
type ReadTxData struct {
	TxID     string
	To       common.Address
	Data     []byte
	Value    *big.Int
	GasLimit uint64
	Nonce    uint64
	TxHash   *common.Hash
	Status   *TxStatus
}

// Stats is the per-chain counter set the metrics loop publishes.
type Stats struct {
	ChainID            uint64
	PendingTxs         int
	MinedTxs           int
	FinalizedTxs       int
	TotalIndexedBlocks int
	BlockTxs           int
}
