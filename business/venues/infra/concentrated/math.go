// Package concentrated quotes concentrated-liquidity pools by reading
// slot0 and in-range liquidity, recomputing the swap within the current
// tick, and corroborating against the on-chain quoter.
package concentrated

import (
	"fmt"
	"math/big"

	"github.com/fd1az/arb-engine/internal/apperror"
	"github.com/fd1az/arb-engine/internal/asset"
)

// Q96 is the fixed-point scale of sqrt prices.
var Q96 = new(big.Int).Lsh(big.NewInt(1), 96)

// feeDenominator scales fee tiers, which are expressed in hundredths
// of a bip (3000 = 0.30%).
const feeDenominator = 1_000_000

// SwapWithinTick computes the exact-input output assuming the swap
// stays inside the current tick's liquidity. zeroForOne means selling
// token0 (price falls). Returns the output amount and the sqrt price
// after the swap.
//
// Crossing a tick boundary would tap liquidity this model does not see,
// so within-tick output is a lower bound on the true output.
func SwapWithinTick(sqrtPriceX96, liquidity, amountIn *big.Int, feeTier int, zeroForOne bool) (*big.Int, *big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, nil, apperror.New(apperror.CodeInvalidTradeSize,
			apperror.WithContext("amount in must be positive"))
	}
	if liquidity == nil || liquidity.Sign() <= 0 || sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return nil, nil, apperror.New(apperror.CodeInsufficientLiquidity,
			apperror.WithContext("pool has no in-range liquidity"))
	}

	in := applyFee(amountIn, feeTier)

	if zeroForOne {
		// sqrtNew = L*sqrtP*Q96 / (L*Q96 + in*sqrtP)
		num := new(big.Int).Mul(liquidity, sqrtPriceX96)
		num.Mul(num, Q96)
		den := new(big.Int).Mul(liquidity, Q96)
		den.Add(den, new(big.Int).Mul(in, sqrtPriceX96))
		sqrtNew := num.Div(num, den)

		// out (token1) = L*(sqrtP - sqrtNew)/Q96
		out := new(big.Int).Sub(sqrtPriceX96, sqrtNew)
		out.Mul(out, liquidity)
		out.Div(out, Q96)
		return out, sqrtNew, nil
	}

	// sqrtNew = sqrtP + in*Q96/L
	delta := new(big.Int).Mul(in, Q96)
	delta.Div(delta, liquidity)
	sqrtNew := new(big.Int).Add(sqrtPriceX96, delta)

	// out (token0) = L*(sqrtNew - sqrtP)*Q96 / (sqrtNew*sqrtP)
	out := new(big.Int).Sub(sqrtNew, sqrtPriceX96)
	out.Mul(out, liquidity)
	out.Mul(out, Q96)
	out.Div(out, new(big.Int).Mul(sqrtNew, sqrtPriceX96))
	return out, sqrtNew, nil
}

// ImpactBps returns the relative move of the pool price (sqrt price
// squared) in basis points, floored.
func ImpactBps(sqrtBefore, sqrtAfter *big.Int) int64 {
	if sqrtBefore == nil || sqrtBefore.Sign() <= 0 || sqrtAfter == nil {
		return 0
	}
	before := new(big.Int).Mul(sqrtBefore, sqrtBefore)
	after := new(big.Int).Mul(sqrtAfter, sqrtAfter)

	diff := new(big.Int).Sub(before, after)
	diff.Abs(diff)
	diff.Mul(diff, big.NewInt(asset.BpsDenominator))
	diff.Div(diff, before)
	if !diff.IsInt64() {
		return asset.BpsDenominator
	}
	return diff.Int64()
}

// MaxInputForImpact returns the largest raw input that keeps the price
// move within ceilingBps, assuming the swap stays within the current
// tick.
func MaxInputForImpact(sqrtPriceX96, liquidity *big.Int, ceilingBps int64, feeTier int, zeroForOne bool) *big.Int {
	if ceilingBps <= 0 || liquidity == nil || liquidity.Sign() <= 0 || sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return big.NewInt(0)
	}

	before := new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)
	target := new(big.Int)
	if zeroForOne {
		target.Mul(before, big.NewInt(asset.BpsDenominator-ceilingBps))
	} else {
		target.Mul(before, big.NewInt(asset.BpsDenominator+ceilingBps))
	}
	target.Div(target, big.NewInt(asset.BpsDenominator))
	sqrtTarget := new(big.Int).Sqrt(target)

	var in *big.Int
	if zeroForOne {
		// in = L*Q96*(sqrtP - sqrtTarget)/(sqrtP*sqrtTarget)
		in = new(big.Int).Sub(sqrtPriceX96, sqrtTarget)
		in.Mul(in, liquidity)
		in.Mul(in, Q96)
		in.Div(in, new(big.Int).Mul(sqrtPriceX96, sqrtTarget))
	} else {
		// in = L*(sqrtTarget - sqrtP)/Q96
		in = new(big.Int).Sub(sqrtTarget, sqrtPriceX96)
		in.Mul(in, liquidity)
		in.Div(in, Q96)
	}
	if in.Sign() < 0 {
		return big.NewInt(0)
	}
	return unapplyFee(in, feeTier)
}

func applyFee(amountIn *big.Int, feeTier int) *big.Int {
	if feeTier <= 0 {
		return new(big.Int).Set(amountIn)
	}
	in := new(big.Int).Mul(amountIn, big.NewInt(feeDenominator-int64(feeTier)))
	return in.Div(in, big.NewInt(feeDenominator))
}

func unapplyFee(amountIn *big.Int, feeTier int) *big.Int {
	if feeTier <= 0 {
		return amountIn
	}
	out := new(big.Int).Mul(amountIn, big.NewInt(feeDenominator))
	return out.Div(out, big.NewInt(feeDenominator-int64(feeTier)))
}

// DivergenceBps measures how far the quoter's output sits from the
// local recomputation, in bps of the local value.
func DivergenceBps(local, external *big.Int) (int64, error) {
	if local == nil || local.Sign() <= 0 {
		return 0, fmt.Errorf("local output must be positive")
	}
	if external == nil {
		return 0, fmt.Errorf("external output missing")
	}
	diff := new(big.Int).Sub(local, external)
	diff.Abs(diff)
	diff.Mul(diff, big.NewInt(asset.BpsDenominator))
	diff.Div(diff, local)
	if !diff.IsInt64() {
		return asset.BpsDenominator, nil
	}
	return diff.Int64(), nil
}
