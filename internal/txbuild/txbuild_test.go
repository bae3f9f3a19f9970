package txbuild

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	domain "txrelayer/internal/types"
)

func TestDynamicFeeTxPlain(t *testing.T) {
	tx := domain.Transaction{
		To:       common.HexToAddress("0x000000000000000000000000000000deadbeef"),
		Value:    big.NewInt(1000),
		GasLimit: 21000,
		Nonce:    4,
	}
	fees := Fees{
		MaxFeePerGas:         big.NewInt(2_000_000_000),
		MaxPriorityFeePerGas: big.NewInt(1_000_000_000),
	}

	built, err := DynamicFeeTx(1337, tx, fees)
	if err != nil {
		t.Fatalf("DynamicFeeTx: %v", err)
	}

	if built.Nonce() != 4 {
		t.Fatalf("unexpected nonce: %d", built.Nonce())
	}
	if built.Type() != 2 {
		t.Fatalf("expected dynamic fee tx type 2, got %d", built.Type())
	}
	if built.To() == nil || *built.To() != tx.To {
		t.Fatalf("unexpected recipient: %v", built.To())
	}
	if built.Value().Cmp(tx.Value) != 0 {
		t.Fatalf("unexpected value: %s", built.Value())
	}
}

func TestDynamicFeeTxNilValueDefaultsToZero(t *testing.T) {
	tx := domain.Transaction{
		To:       common.HexToAddress("0x000000000000000000000000000000deadbeef"),
		GasLimit: 21000,
	}
	fees := Fees{MaxFeePerGas: big.NewInt(1), MaxPriorityFeePerGas: big.NewInt(1)}

	built, err := DynamicFeeTx(1, tx, fees)
	if err != nil {
		t.Fatalf("DynamicFeeTx: %v", err)
	}
	if built.Value().Sign() != 0 {
		t.Fatalf("expected zero value, got %s", built.Value())
	}
}
