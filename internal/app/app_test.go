package app

import (
	"context"
	"crypto/ecdsa"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"txrelayer/internal/keys"
)

func mustGenerateKey() *ecdsa.PrivateKey {
	priv, err := crypto.GenerateKey()
	if err != nil {
		panic(err)
	}
	return priv
}

type stubKeySource struct {
	loads int
}

func (s *stubKeySource) NewSigner(ctx context.Context, chainID uint64) (string, keys.Signer, error) {
	return "", nil, nil
}

func (s *stubKeySource) LoadSigner(ctx context.Context, keyID string, chainID uint64) (keys.Signer, error) {
	s.loads++
	return keys.NewLocalSigner(mustGenerateKey(), chainID), nil
}

func TestAppSignerCachesByChainAndKeyID(t *testing.T) {
	source := &stubKeySource{}
	a := New(nil, source, zap.NewNop())

	s1, err := a.Signer(context.Background(), 1, "key-a")
	if err != nil {
		t.Fatalf("Signer: %v", err)
	}
	s2, err := a.Signer(context.Background(), 1, "key-a")
	if err != nil {
		t.Fatalf("Signer: %v", err)
	}
	if s1 != s2 {
		t.Fatalf("expected cached signer to be returned on second call")
	}
	if source.loads != 1 {
		t.Fatalf("expected exactly one LoadSigner call, got %d", source.loads)
	}

	if _, err := a.Signer(context.Background(), 2, "key-a"); err != nil {
		t.Fatalf("Signer: %v", err)
	}
	if source.loads != 2 {
		t.Fatalf("expected a second LoadSigner call for a different chain id, got %d", source.loads)
	}
}
