package tasks

import (
	"math/big"
	"testing"

	domain "txrelayer/internal/types"
)

func TestCalculateMaxBaseFeePerGasSurges(t *testing.T) {
	est := domain.FeesEstimate{BaseFeePerGas: big.NewInt(10_000_000_000)}
	got, err := CalculateMaxBaseFeePerGas(est)
	if err != nil {
		t.Fatalf("CalculateMaxBaseFeePerGas: %v", err)
	}
	if got.Cmp(big.NewInt(20_000_000_000)) != 0 {
		t.Fatalf("expected surged base fee of 20 gwei, got %s", got)
	}
}

func TestCalculateMaxBaseFeePerGasRejectsOverCeiling(t *testing.T) {
	est := domain.FeesEstimate{BaseFeePerGas: big.NewInt(200_000_000_000)}
	if _, err := CalculateMaxBaseFeePerGas(est); err == nil {
		t.Fatalf("expected error for base fee above ceiling")
	}
}

func TestCalculateGasFeesFromEstimatesFloorsPriorityFee(t *testing.T) {
	est := domain.FeesEstimate{
		BaseFeePerGas:  big.NewInt(1_000_000_000),
		PercentileFees: []*big.Int{big.NewInt(1), big.NewInt(2), big.NewInt(3), big.NewInt(4), big.NewInt(5)},
	}
	maxFee, maxPriority, err := CalculateGasFeesFromEstimates(est, domain.PrioritySlowest, big.NewInt(2_000_000_000))
	if err != nil {
		t.Fatalf("CalculateGasFeesFromEstimates: %v", err)
	}
	if maxPriority.Cmp(minPriorityFeeWei) != 0 {
		t.Fatalf("expected priority fee floored to %s, got %s", minPriorityFeeWei, maxPriority)
	}
	if maxFee.Cmp(new(big.Int).Add(big.NewInt(2_000_000_000), minPriorityFeeWei)) != 0 {
		t.Fatalf("unexpected max fee: %s", maxFee)
	}
}

func TestEscalatePriorityFeeIncreasesByTenPercentPerRound(t *testing.T) {
	baseFee := big.NewInt(1_000_000_000)
	initialPriority := big.NewInt(1_000_000_000)

	maxFee0, priority0 := EscalatePriorityFee(baseFee, initialPriority, 0)
	if priority0.Cmp(big.NewInt(1_200_000_000)) != 0 {
		t.Fatalf("expected 120%% of initial priority fee on first escalation, got %s", priority0)
	}
	if maxFee0.Cmp(new(big.Int).Add(baseFee, priority0)) != 0 {
		t.Fatalf("unexpected max fee: %s", maxFee0)
	}

	_, priority1 := EscalatePriorityFee(baseFee, initialPriority, 1)
	if priority1.Cmp(big.NewInt(1_300_000_000)) != 0 {
		t.Fatalf("expected 130%% of initial priority fee on second escalation, got %s", priority1)
	}
}
