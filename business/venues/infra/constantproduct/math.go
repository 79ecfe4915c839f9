// Package constantproduct implements the venue Adapter for x*y=k pools.
package constantproduct

import (
	"math/big"

	"github.com/fd1az/arb-engine/internal/apperror"
	"github.com/fd1az/arb-engine/internal/asset"
)

var bpsDen = big.NewInt(asset.BpsDenominator)

// AmountOut computes the exact constant-product output:
//
//	out = reserveOut * in' / (reserveIn + in')  with  in' = in * (10000-fee) / 10000
func AmountOut(amountIn, reserveIn, reserveOut *big.Int, feeBps int64) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, apperror.New(apperror.CodeInvalidTradeSize)
	}
	if reserveIn == nil || reserveOut == nil || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, apperror.New(apperror.CodeInsufficientLiquidity)
	}

	inAfterFee := applyFee(amountIn, feeBps)

	num := new(big.Int).Mul(reserveOut, inAfterFee)
	den := new(big.Int).Add(reserveIn, inAfterFee)
	return num.Div(num, den), nil
}

// ImpactBps is the execution-vs-spot price degradation, net of fee.
// For constant product this is exactly in' / (reserveIn + in').
func ImpactBps(amountIn, reserveIn *big.Int, feeBps int64) int64 {
	inAfterFee := applyFee(amountIn, feeBps)
	den := new(big.Int).Add(reserveIn, inAfterFee)
	return asset.RatioBps(inAfterFee, den)
}

// MaxInputForImpact returns the largest input whose impact stays at or
// under ceilingBps: in' <= reserveIn * c / (10000 - c), scaled back up
// for the fee.
func MaxInputForImpact(reserveIn *big.Int, ceilingBps, feeBps int64) *big.Int {
	if ceilingBps <= 0 || ceilingBps >= asset.BpsDenominator {
		return new(big.Int).Set(reserveIn)
	}

	inAfterFee := new(big.Int).Mul(reserveIn, big.NewInt(ceilingBps))
	inAfterFee.Div(inAfterFee, big.NewInt(asset.BpsDenominator-ceilingBps))

	// Undo the fee discount so the bound is in raw input units.
	in := new(big.Int).Mul(inAfterFee, bpsDen)
	return in.Div(in, big.NewInt(asset.BpsDenominator-feeBps))
}

func applyFee(amountIn *big.Int, feeBps int64) *big.Int {
	out := new(big.Int).Mul(amountIn, big.NewInt(asset.BpsDenominator-feeBps))
	return out.Div(out, bpsDen)
}
