package keys

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// KeySource is the capability that creates and re-loads signers by key id,
// per spec.md §4.2. Exactly one implementation is active at a time,
// selected by config.KeysConfig.Kind.
type KeySource interface {
	// NewSigner provisions a brand new key and returns its id alongside a
	// signer bound to chainID.
	NewSigner(ctx context.Context, chainID uint64) (keyID string, signer Signer, err error)
	// LoadSigner rebinds an existing key id to a signer for chainID.
	LoadSigner(ctx context.Context, keyID string, chainID uint64) (Signer, error)
}

// LocalKeySource generates and stores keys in memory, a purely local
// development/test backend. Keys do not survive a process restart.
// config.Default selects this backend ("local"); setting
// config.KeysConfig.Kind to "kms" selects KMSKeySource instead.
type LocalKeySource struct {
	mu   sync.RWMutex
	keys map[string]*LocalSigner
}

// NewLocalKeySource returns an empty in-memory key source.
func NewLocalKeySource() *LocalKeySource {
	return &LocalKeySource{keys: make(map[string]*LocalSigner)}
}

func (s *LocalKeySource) NewSigner(_ context.Context, chainID uint64) (string, Signer, error) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		return "", nil, fmt.Errorf("local key source: generate key: %w", err)
	}

	keyID := hex.EncodeToString(crypto.FromECDSA(priv))
	signer := NewLocalSigner(priv, chainID)

	s.mu.Lock()
	s.keys[keyID] = signer
	s.mu.Unlock()

	return keyID, signer, nil
}

func (s *LocalKeySource) LoadSigner(_ context.Context, keyID string, chainID uint64) (Signer, error) {
	s.mu.RLock()
	signer, ok := s.keys[keyID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("local key source: unknown key id %s", keyID)
	}
	return signer.WithChainID(chainID), nil
}

// ImportKey registers an externally-generated private key under its
// canonical key id, for seeding a relayer from a known test account.
func (s *LocalKeySource) ImportKey(hexKey string, chainID uint64) (string, Signer, error) {
	priv, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return "", nil, fmt.Errorf("local key source: import key: %w", err)
	}
	keyID := hex.EncodeToString(crypto.FromECDSA(priv))
	signer := NewLocalSigner(priv, chainID)

	s.mu.Lock()
	s.keys[keyID] = signer
	s.mu.Unlock()

	return keyID, signer, nil
}

// KMSKeySource provisions and loads keys held in AWS KMS. Key ids are KMS
// key ARNs/ids; no private material ever enters process memory.
type KMSKeySource struct {
	client *kms.Client
}

// NewKMSKeySource builds a KMS client for region using the default AWS
// credential chain (environment, shared config, instance role).
func NewKMSKeySource(ctx context.Context, region string) (*KMSKeySource, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("kms key source: load aws config: %w", err)
	}
	return &KMSKeySource{client: kms.NewFromConfig(cfg)}, nil
}

func (s *KMSKeySource) NewSigner(ctx context.Context, chainID uint64) (string, Signer, error) {
	created, err := s.client.CreateKey(ctx, &kms.CreateKeyInput{
		KeySpec:  kmstypes.KeySpecEccSecgP256k1,
		KeyUsage: kmstypes.KeyUsageTypeSignVerify,
	})
	if err != nil {
		return "", nil, fmt.Errorf("kms key source: create key: %w", err)
	}

	keyID := aws.ToString(created.KeyMetadata.KeyId)
	signer, err := NewKMSSigner(ctx, s.client, keyID, chainID)
	if err != nil {
		return "", nil, err
	}
	return keyID, signer, nil
}

func (s *KMSKeySource) LoadSigner(ctx context.Context, keyID string, chainID uint64) (Signer, error) {
	return NewKMSSigner(ctx, s.client, keyID, chainID)
}
