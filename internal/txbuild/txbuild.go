// Package txbuild constructs unsigned EIP-1559 (and EIP-4844 blob)
// transactions from a stored intent plus a fee quote, ready for a
// keys.Signer to sign. Grounded on the teacher's 06-eip1559 exercise,
// generalized from a single hardcoded transfer to arbitrary
// to/value/data/gas/blobs.
package txbuild

import (
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto/kzg4844"
	"github.com/holiman/uint256"

	domain "txrelayer/internal/types"
)

// blobHashVersion is the EIP-4844 versioned-hash leading byte.
const blobHashVersion = 0x01

// Fees is the fee quote a broadcast attempt is built against.
type Fees struct {
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	MaxFeePerBlobGas     *big.Int // only used when tx carries blobs
}

// DynamicFeeTx builds an unsigned EIP-1559 transaction for tx, or an
// EIP-4844 blob transaction when tx carries blob sidecars.
func DynamicFeeTx(chainID uint64, tx domain.Transaction, fees Fees) (*types.Transaction, error) {
	to := tx.To
	cid := new(big.Int).SetUint64(chainID)

	if len(tx.Blobs) == 0 {
		return types.NewTx(&types.DynamicFeeTx{
			ChainID:   cid,
			Nonce:     tx.Nonce,
			GasTipCap: fees.MaxPriorityFeePerGas,
			GasFeeCap: fees.MaxFeePerGas,
			Gas:       tx.GasLimit,
			To:        &to,
			Value:     valueOrZero(tx.Value),
			Data:      tx.Data,
		}), nil
	}

	return blobTx(cid, to, tx, fees)
}

func valueOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

// versionedBlobHash derives the EIP-4844 versioned hash of a KZG
// commitment: sha256(commitment) with its leading byte replaced by the
// blob hash version.
func versionedBlobHash(commitment kzg4844.Commitment) common.Hash {
	sum := sha256.Sum256(commitment[:])
	hash := common.Hash(sum)
	hash[0] = blobHashVersion
	return hash
}

// blobTx builds an EIP-4844 transaction, computing the versioned hashes
// go-ethereum requires from each blob's KZG commitment.
func blobTx(chainID *big.Int, to common.Address, tx domain.Transaction, fees Fees) (*types.Transaction, error) {
	sidecar := &types.BlobTxSidecar{}
	hashes := make([]common.Hash, 0, len(tx.Blobs))

	for _, raw := range tx.Blobs {
		var blob kzg4844.Blob
		copy(blob[:], raw)

		commitment, err := kzg4844.BlobToCommitment(&blob)
		if err != nil {
			return nil, fmt.Errorf("txbuild: blob commitment: %w", err)
		}
		proof, err := kzg4844.ComputeBlobProof(&blob, commitment)
		if err != nil {
			return nil, fmt.Errorf("txbuild: blob proof: %w", err)
		}

		sidecar.Blobs = append(sidecar.Blobs, blob)
		sidecar.Commitments = append(sidecar.Commitments, commitment)
		sidecar.Proofs = append(sidecar.Proofs, proof)
		hashes = append(hashes, versionedBlobHash(commitment))
	}

	chainID256, overflow := uint256.FromBig(chainID)
	if overflow {
		return nil, fmt.Errorf("txbuild: chain id %s overflows uint256", chainID)
	}
	gasFeeCap, overflow := uint256.FromBig(fees.MaxFeePerGas)
	if overflow {
		return nil, fmt.Errorf("txbuild: max fee per gas overflows uint256")
	}
	gasTipCap, overflow := uint256.FromBig(fees.MaxPriorityFeePerGas)
	if overflow {
		return nil, fmt.Errorf("txbuild: max priority fee per gas overflows uint256")
	}
	blobFeeCap, overflow := uint256.FromBig(fees.MaxFeePerBlobGas)
	if overflow {
		return nil, fmt.Errorf("txbuild: max fee per blob gas overflows uint256")
	}
	value, overflow := uint256.FromBig(valueOrZero(tx.Value))
	if overflow {
		return nil, fmt.Errorf("txbuild: value overflows uint256")
	}

	return types.NewTx(&types.BlobTx{
		ChainID:    chainID256,
		Nonce:      tx.Nonce,
		GasTipCap:  gasTipCap,
		GasFeeCap:  gasFeeCap,
		Gas:        tx.GasLimit,
		To:         to,
		Value:      value,
		Data:       tx.Data,
		BlobFeeCap: blobFeeCap,
		BlobHashes: hashes,
		Sidecar:    sidecar,
	}), nil
}
