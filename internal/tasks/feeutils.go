package tasks

import (
	"fmt"
	"math/big"

	domain "txrelayer/internal/types"
)

// baseFeeSurgeFactor is how much headroom the broadcaster gives the base
// fee over the last observed value, to avoid an attempt going stale the
// moment the next block's base fee ticks up.
const baseFeeSurgeFactor = 2

var (
	minPriorityFeeWei = big.NewInt(10)
	maxGasPriceWei    = big.NewInt(100_000_000_000) // 100 gwei ceiling
)

// CalculateMaxBaseFeePerGas surges the latest observed base fee by
// baseFeeSurgeFactor, rejecting chains whose current base fee already
// exceeds the hard ceiling.
func CalculateMaxBaseFeePerGas(estimate domain.FeesEstimate) (*big.Int, error) {
	if estimate.BaseFeePerGas.Cmp(maxGasPriceWei) > 0 {
		return nil, fmt.Errorf("base fee per gas %s exceeds ceiling %s", estimate.BaseFeePerGas, maxGasPriceWei)
	}
	return new(big.Int).Mul(estimate.BaseFeePerGas, big.NewInt(baseFeeSurgeFactor)), nil
}

// CalculateGasFeesFromEstimates returns (maxFeePerGas, maxPriorityFeePerGas)
// for the given priority, clamped to the protocol's floor/ceiling.
func CalculateGasFeesFromEstimates(estimate domain.FeesEstimate, priority domain.TransactionPriority, maxBaseFeePerGas *big.Int) (maxFeePerGas, maxPriorityFeePerGas *big.Int, err error) {
	if int(priority) >= len(estimate.PercentileFees) {
		return nil, nil, fmt.Errorf("no percentile fee sample for priority %s", priority)
	}

	maxPriorityFeePerGas = maxBig(estimate.PercentileFees[priority], minPriorityFeeWei)
	maxFeePerGas = minBig(new(big.Int).Add(maxBaseFeePerGas, maxPriorityFeePerGas), maxGasPriceWei)

	return maxFeePerGas, maxPriorityFeePerGas, nil
}

// EscalatePriorityFee bumps a pending attempt's priority fee by
// 100+10*(2+escalationCount) percent, per spec.md §4.6, clamped to the
// network ceiling.
func EscalatePriorityFee(maxBaseFeePerGas, initialMaxPriorityFeePerGas *big.Int, escalationCount int) (maxFeePerGas, maxPriorityFeePerGas *big.Int) {
	percent := big.NewInt(int64(100 + 10*(2+escalationCount)))

	bumped := new(big.Int).Mul(initialMaxPriorityFeePerGas, percent)
	bumped.Div(bumped, big.NewInt(100))

	maxPriorityFeePerGas = minBig(bumped, maxGasPriceWei)
	maxFeePerGas = minBig(new(big.Int).Add(maxBaseFeePerGas, maxPriorityFeePerGas), maxGasPriceWei)

	return maxFeePerGas, maxPriorityFeePerGas
}

func maxBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}
