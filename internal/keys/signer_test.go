package keys

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
)

func TestLocalKeySourceNewAndLoad(t *testing.T) {
	src := NewLocalKeySource()
	ctx := context.Background()

	keyID, signer, err := src.NewSigner(ctx, 1337)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	if signer.ChainID() != 1337 {
		t.Fatalf("unexpected chain id: %d", signer.ChainID())
	}

	loaded, err := src.LoadSigner(ctx, keyID, 1)
	if err != nil {
		t.Fatalf("LoadSigner: %v", err)
	}
	if loaded.Address() != signer.Address() {
		t.Fatalf("address mismatch after reload")
	}
	if loaded.ChainID() != 1 {
		t.Fatalf("LoadSigner did not rebind chain id")
	}
}

func TestLocalKeySourceUnknownKey(t *testing.T) {
	src := NewLocalKeySource()
	if _, err := src.LoadSigner(context.Background(), "deadbeef", 1); err == nil {
		t.Fatalf("expected error for unknown key id")
	}
}

func TestLocalSignerSignTransactionRecoversSender(t *testing.T) {
	src := NewLocalKeySource()
	_, signer, err := src.NewSigner(context.Background(), 1337)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	to := signer.Address()
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(1337),
		Nonce:     0,
		GasTipCap: big.NewInt(1_000_000_000),
		GasFeeCap: big.NewInt(2_000_000_000),
		Gas:       21000,
		To:        &to,
		Value:     big.NewInt(0),
	})

	signed, err := signer.SignTransaction(tx)
	if err != nil {
		t.Fatalf("SignTransaction: %v", err)
	}

	ethSigner := types.LatestSignerForChainID(big.NewInt(1337))
	sender, err := types.Sender(ethSigner, signed)
	if err != nil {
		t.Fatalf("recover sender: %v", err)
	}
	if sender != signer.Address() {
		t.Fatalf("recovered sender %s does not match signer address %s", sender, signer.Address())
	}
}

func TestLocalSignerSignMessageAppliesEIP155V(t *testing.T) {
	src := NewLocalKeySource()
	_, signer, err := src.NewSigner(context.Background(), 5)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	sig, err := signer.SignMessage([]byte("hello"))
	if err != nil {
		t.Fatalf("SignMessage: %v", err)
	}
	if len(sig) != 65 {
		t.Fatalf("expected 65-byte signature, got %d", len(sig))
	}

	v := sig[64]
	if v != 35+5*2 && v != 36+5*2 {
		t.Fatalf("v byte %d does not match chain-id-encoded EIP-155 form", v)
	}
}
