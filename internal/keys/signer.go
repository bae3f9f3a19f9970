// Package keys implements the key-custody capability described in
// spec.md §4.2: a uniform Signer over either a local in-memory secp256k1
// key or a remote AWS KMS-backed key, plus the KeySource abstraction that
// creates and loads signers by key id. Grounded on the original
// implementation's src/keys.rs / src/keys/local_keys.rs /
// src/aws/ethers_signer.rs and on the teacher's crypto usage in
// 03-keys-addresses and 06-eip1559.
package keys

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignError is the single error type both signer backends translate their
// failures into, per design note in spec.md §9 ("do not attempt to unify
// their error types — translate both into SignError").
type SignError struct {
	msg   string
	cause error
}

func (e *SignError) Error() string { return e.msg }
func (e *SignError) Unwrap() error { return e.cause }

func signErrorf(cause error, format string, args ...any) *SignError {
	return &SignError{msg: fmt.Sprintf(format, args...), cause: cause}
}

// Signer is the capability every key-custody backend implements:
// synchronous address/chain-id accessors plus transaction and message
// signing. Implementations must be safe for concurrent use; callers are
// expected to cache one per (key id, chain id) pair (spec.md §5).
type Signer interface {
	Address() common.Address
	ChainID() uint64
	// WithChainID returns a copy of the signer rebound to chainID. Signers
	// are otherwise immutable.
	WithChainID(chainID uint64) Signer
	// SignTransaction returns a signed copy of tx for the signer's bound
	// chain id; tx itself is left unsigned.
	SignTransaction(tx *types.Transaction) (*types.Transaction, error)
	// SignMessage signs an arbitrary message the way personal_sign would,
	// applying EIP-155 style replay protection to the recovered v.
	SignMessage(message []byte) ([]byte, error)
}

// LocalSigner holds a raw secp256k1 private key in memory. Signing is
// synchronous and cannot fail absent a logic bug, matching spec.md §4.2.
type LocalSigner struct {
	priv    *ecdsa.PrivateKey
	address common.Address
	chainID uint64
}

// NewLocalSigner wraps an existing private key.
func NewLocalSigner(priv *ecdsa.PrivateKey, chainID uint64) *LocalSigner {
	return &LocalSigner{
		priv:    priv,
		address: crypto.PubkeyToAddress(priv.PublicKey),
		chainID: chainID,
	}
}

func (s *LocalSigner) Address() common.Address { return s.address }
func (s *LocalSigner) ChainID() uint64          { return s.chainID }

func (s *LocalSigner) WithChainID(chainID uint64) Signer {
	return &LocalSigner{priv: s.priv, address: s.address, chainID: chainID}
}

func (s *LocalSigner) SignTransaction(tx *types.Transaction) (*types.Transaction, error) {
	signer := types.LatestSignerForChainID(new(big.Int).SetUint64(s.chainID))
	signed, err := types.SignTx(tx, signer, s.priv)
	if err != nil {
		return nil, signErrorf(err, "local signer: sign transaction: %v", err)
	}
	return signed, nil
}

func (s *LocalSigner) SignMessage(message []byte) ([]byte, error) {
	hash := crypto.Keccak256(messagePrefix(message), message)
	sig, err := crypto.Sign(hash, s.priv)
	if err != nil {
		return nil, signErrorf(err, "local signer: sign message: %v", err)
	}
	applyEIP155(sig, s.chainID)
	return sig, nil
}

func messagePrefix(message []byte) []byte {
	return []byte(fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(message)))
}

// applyEIP155 rewrites the trailing recovery byte of a 65-byte
// [R || S || V] signature (V in {0,1}) into chainID*2+35+V, per spec.md
// §4.2's description of the KMS signing contract. Applied uniformly to
// both signer backends' SignMessage path.
func applyEIP155(sig []byte, chainID uint64) {
	v := sig[64]
	sig[64] = byte(chainID*2 + 35 + uint64(v))
}
