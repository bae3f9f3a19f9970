package keys

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"
	dersig "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// kmsAPI is the subset of the KMS client the signer needs, so tests can
// substitute a fake.
type kmsAPI interface {
	GetPublicKey(ctx context.Context, in *kms.GetPublicKeyInput, opts ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
	Sign(ctx context.Context, in *kms.SignInput, opts ...func(*kms.Options)) (*kms.SignOutput, error)
}

// KMSSigner signs with a key held by AWS KMS, never exposing the private
// material to the process. Grounded on the original implementation's
// src/aws/ethers_signer.rs: fetch the DER public key once at construction,
// derive the Ethereum address from it, and for every signature ask KMS for
// a DER ECDSA signature over the digest, then trial-recover the v value
// locally since KMS does not return it.
type KMSSigner struct {
	client  kmsAPI
	keyID   string
	pubkey  *ecdsa.PublicKey
	address common.Address
	chainID uint64
}

// NewKMSSigner fetches keyID's public key from KMS and derives its
// Ethereum address.
func NewKMSSigner(ctx context.Context, client kmsAPI, keyID string, chainID uint64) (*KMSSigner, error) {
	out, err := client.GetPublicKey(ctx, &kms.GetPublicKeyInput{KeyId: aws.String(keyID)})
	if err != nil {
		return nil, signErrorf(err, "kms signer: get public key %s: %v", keyID, err)
	}

	pub, err := parseKMSPublicKey(out.PublicKey)
	if err != nil {
		return nil, signErrorf(err, "kms signer: parse public key %s: %v", keyID, err)
	}

	return &KMSSigner{
		client:  client,
		keyID:   keyID,
		pubkey:  pub,
		address: crypto.PubkeyToAddress(*pub),
		chainID: chainID,
	}, nil
}

func (s *KMSSigner) Address() common.Address { return s.address }
func (s *KMSSigner) ChainID() uint64          { return s.chainID }

func (s *KMSSigner) WithChainID(chainID uint64) Signer {
	return &KMSSigner{client: s.client, keyID: s.keyID, pubkey: s.pubkey, address: s.address, chainID: chainID}
}

func (s *KMSSigner) SignTransaction(tx *types.Transaction) (*types.Transaction, error) {
	signer := types.LatestSignerForChainID(new(big.Int).SetUint64(s.chainID))
	hash := signer.Hash(tx)

	sig, err := s.signDigest(hash[:])
	if err != nil {
		return nil, err
	}

	signed, err := tx.WithSignature(signer, sig)
	if err != nil {
		return nil, signErrorf(err, "kms signer: apply signature: %v", err)
	}
	return signed, nil
}

func (s *KMSSigner) SignMessage(message []byte) ([]byte, error) {
	hash := crypto.Keccak256(messagePrefix(message), message)
	sig, err := s.signDigest(hash)
	if err != nil {
		return nil, err
	}
	applyEIP155(sig, s.chainID)
	return sig, nil
}

// secp256k1Order and its half are used to canonicalize KMS's DER signature
// into the low-S form go-ethereum and the network expect.
var (
	secp256k1Order     = crypto.S256().Params().N
	secp256k1HalfOrder = new(big.Int).Rsh(new(big.Int).Set(secp256k1Order), 1)
)

// signDigest asks KMS for a DER-encoded ECDSA signature over digest, then
// performs trial public-key recovery across both possible recovery ids to
// produce the 65-byte [R || S || V] form go-ethereum expects (V in {0,1};
// callers apply whatever v-encoding their context requires on top).
func (s *KMSSigner) signDigest(digest []byte) ([]byte, error) {
	ctx := context.Background()
	out, err := s.client.Sign(ctx, &kms.SignInput{
		KeyId:            aws.String(s.keyID),
		Message:          digest,
		MessageType:      kmstypes.MessageTypeDigest,
		SigningAlgorithm: kmstypes.SigningAlgorithmSpecEcdsaSha256,
	})
	if err != nil {
		return nil, signErrorf(err, "kms signer: sign digest: %v", err)
	}

	parsed, err := dersig.ParseDERSignature(out.Signature)
	if err != nil {
		return nil, signErrorf(err, "kms signer: parse der signature: %v", err)
	}

	rBytes := parsed.R().Bytes()
	sBytes := parsed.S().Bytes()
	r := new(big.Int).SetBytes(rBytes[:])
	sVal := new(big.Int).SetBytes(sBytes[:])
	if sVal.Cmp(secp256k1HalfOrder) > 0 {
		sVal = new(big.Int).Sub(secp256k1Order, sVal)
	}

	sig := make([]byte, 65)
	r.FillBytes(sig[0:32])
	sVal.FillBytes(sig[32:64])

	recID, err := recoverID(digest, sig[:64], s.pubkey)
	if err != nil {
		return nil, signErrorf(err, "kms signer: recover v: %v", err)
	}
	sig[64] = recID

	return sig, nil
}

// recoverID tries both recovery ids against rs and returns the one whose
// recovered public key matches want, since KMS signatures carry no v.
func recoverID(digest, rs []byte, want *ecdsa.PublicKey) (byte, error) {
	for _, recID := range []byte{0, 1} {
		candidate := append(append([]byte{}, rs...), recID)
		pub, err := crypto.SigToPub(digest, candidate)
		if err != nil {
			continue
		}
		if pub.X.Cmp(want.X) == 0 && pub.Y.Cmp(want.Y) == 0 {
			return recID, nil
		}
	}
	return 0, fmt.Errorf("no recovery id matched known public key")
}

// parseKMSPublicKey extracts the raw SEC1 uncompressed point from the
// SubjectPublicKeyInfo DER blob KMS returns for an ECC_SECG_P256K1 key.
// Go's crypto/x509 cannot parse this key type directly: secp256k1 is not
// among the named curves the standard library's ASN.1 OID table
// recognizes. The encoding is otherwise fixed-shape, so — exactly as the
// original implementation's ethers_signer.rs does — the point is the
// trailing 65 bytes (0x04 || X || Y) of the DER blob.
func parseKMSPublicKey(der []byte) (*ecdsa.PublicKey, error) {
	const pointLen = 65
	if len(der) < pointLen {
		return nil, fmt.Errorf("kms public key der too short: %d bytes", len(der))
	}
	point := der[len(der)-pointLen:]
	if point[0] != 0x04 {
		return nil, fmt.Errorf("kms public key is not an uncompressed point")
	}

	pub, err := crypto.UnmarshalPubkey(point)
	if err != nil {
		return nil, fmt.Errorf("unmarshal kms public key point: %w", err)
	}
	return pub, nil
}
