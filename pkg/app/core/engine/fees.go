package engine

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/holiman/uint256"
)

const bpsDenominator = 10000

// QuoteAmount converts a base amount at price into quote units:
// floor(amount * price / scale), where scale is 10^base_decimals.
// Locks, escrow kept for a partly filled bid and settlement all go
// through this one formula.
func QuoteAmount(amount, price, scale uint64) (uint64, error) {
	if scale == 0 {
		return 0, fmt.Errorf("%w: zero base scale", ErrMultiplyOverflow)
	}
	product, overflow := math.SafeMul(amount, price)
	if overflow {
		return 0, fmt.Errorf("%w: %d * %d", ErrMultiplyOverflow, amount, price)
	}
	return product / scale, nil
}

// FeeSplit is how the fee of one fill is distributed.
// QuoteAmount == AskerCredit + ProtocolFee + CrankerReward always holds.
type FeeSplit struct {
	TotalFee      uint64
	CrankerReward uint64
	ProtocolFee   uint64
	AskerCredit   uint64
}

// totalFee returns floor(quote * feeBps / 10000). The product is taken in
// 256 bits and the result never exceeds quote.
func totalFee(quote uint64, feeBps uint16) (uint64, error) {
	if feeBps > bpsDenominator {
		return 0, fmt.Errorf("%w: fee %d bps", ErrInvalidValue, feeBps)
	}
	fee := new(uint256.Int).Mul(uint256.NewInt(quote), uint256.NewInt(uint64(feeBps)))
	fee.Div(fee, uint256.NewInt(bpsDenominator))
	if !fee.IsUint64() {
		return 0, fmt.Errorf("%w: fee on %d", ErrMultiplyOverflow, quote)
	}
	return fee.Uint64(), nil
}

// splitFee charges the fee on the asker's quote proceeds and carves the
// cranker reward out of it. divisor 0 disables the reward.
func splitFee(quote uint64, feeBps uint16, rewardDivisor uint64) (FeeSplit, error) {
	fee, err := totalFee(quote, feeBps)
	if err != nil {
		return FeeSplit{}, err
	}
	var reward uint64
	if rewardDivisor > 0 {
		reward = fee / rewardDivisor
	}
	return FeeSplit{
		TotalFee:      fee,
		CrankerReward: reward,
		ProtocolFee:   fee - reward,
		AskerCredit:   quote - fee,
	}, nil
}
