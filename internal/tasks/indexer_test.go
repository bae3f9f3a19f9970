package tasks

import (
	"math/big"
	"testing"

	"txrelayer/internal/chain"
)

func TestEstimatePercentileFeesAveragesRewardsAndTakesNewestBaseFee(t *testing.T) {
	hist := &chain.FeeHistoryResult{
		BaseFeePerGas: []*big.Int{big.NewInt(10), big.NewInt(20), big.NewInt(30)},
		Reward: [][]*big.Int{
			{big.NewInt(1), big.NewInt(2), big.NewInt(3), big.NewInt(4), big.NewInt(5)},
			{big.NewInt(3), big.NewInt(4), big.NewInt(5), big.NewInt(6), big.NewInt(7)},
		},
	}

	estimate := estimatePercentileFees(hist)

	if estimate.BaseFeePerGas.Cmp(big.NewInt(30)) != 0 {
		t.Fatalf("expected base fee to be the newest sample, got %s", estimate.BaseFeePerGas)
	}
	if len(estimate.PercentileFees) != len(feePercentiles) {
		t.Fatalf("expected %d percentile fees, got %d", len(feePercentiles), len(estimate.PercentileFees))
	}
	if estimate.PercentileFees[0].Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("expected average of 1 and 3 at percentile 0, got %s", estimate.PercentileFees[0])
	}
	if estimate.PercentileFees[4].Cmp(big.NewInt(6)) != 0 {
		t.Fatalf("expected average of 5 and 7 at percentile 4, got %s", estimate.PercentileFees[4])
	}
}

func TestEstimatePercentileFeesHandlesEmptyHistory(t *testing.T) {
	estimate := estimatePercentileFees(&chain.FeeHistoryResult{})
	if estimate.BaseFeePerGas.Sign() != 0 {
		t.Fatalf("expected zero base fee for empty history, got %s", estimate.BaseFeePerGas)
	}
	for i, f := range estimate.PercentileFees {
		if f.Sign() != 0 {
			t.Fatalf("expected zero percentile fee at %d for empty history, got %s", i, f)
		}
	}
}
