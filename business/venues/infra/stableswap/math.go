// Package stableswap quotes Curve-style 2-coin pools. The invariant is
// solved with Newton iteration in integer arithmetic; balances are
// normalized to 18 decimals before entering the math and outputs are
// denormalized by the adapter.
package stableswap

import (
	"math/big"

	"github.com/fd1az/arb-engine/internal/apperror"
	"github.com/fd1az/arb-engine/internal/asset"
)

const nCoins = 2

var (
	one = big.NewInt(1)
	two = big.NewInt(2)
)

// D solves the StableSwap invariant for the pool's virtual total
// balance. amp is the raw amplification coefficient A.
func D(xp [2]*big.Int, amp int64) *big.Int {
	s := new(big.Int).Add(xp[0], xp[1])
	if s.Sign() == 0 {
		return big.NewInt(0)
	}

	d := new(big.Int).Set(s)
	ann := big.NewInt(amp * nCoins * nCoins)
	n := big.NewInt(nCoins)

	for i := 0; i < 255; i++ {
		dp := new(big.Int).Set(d)
		for _, x := range xp {
			dp.Mul(dp, d)
			dp.Div(dp, new(big.Int).Mul(x, n))
		}

		dPrev := new(big.Int).Set(d)

		// d = (ann*s + dp*n) * d / ((ann-1)*d + (n+1)*dp)
		num := new(big.Int).Mul(ann, s)
		num.Add(num, new(big.Int).Mul(dp, n))
		num.Mul(num, d)
		den := new(big.Int).Mul(new(big.Int).Sub(ann, one), d)
		den.Add(den, new(big.Int).Mul(new(big.Int).Add(n, one), dp))
		d = num.Div(num, den)

		diff := new(big.Int).Sub(d, dPrev)
		if diff.Abs(diff).Cmp(one) <= 0 {
			break
		}
	}
	return d
}

// y solves for the output-side balance given the new input-side
// balance x, holding the invariant d. Two-coin specialization.
func y(x, d *big.Int, amp int64) *big.Int {
	ann := big.NewInt(amp * nCoins * nCoins)

	// c = d^3 / (4 * x * ann)
	c := new(big.Int).Mul(d, d)
	c.Mul(c, d)
	c.Div(c, new(big.Int).Mul(big.NewInt(4), new(big.Int).Mul(x, ann)))

	// b = x + d/ann
	b := new(big.Int).Div(d, ann)
	b.Add(b, x)

	yv := new(big.Int).Set(d)
	for i := 0; i < 255; i++ {
		yPrev := new(big.Int).Set(yv)

		// y = (y^2 + c) / (2y + b - d)
		num := new(big.Int).Mul(yv, yv)
		num.Add(num, c)
		den := new(big.Int).Mul(yv, two)
		den.Add(den, b)
		den.Sub(den, d)
		yv = num.Div(num, den)

		diff := new(big.Int).Sub(yv, yPrev)
		if diff.Abs(diff).Cmp(one) <= 0 {
			break
		}
	}
	return yv
}

// AmountOut computes the output of swapping dx (normalized) into the
// pool, fee applied to the output side as Curve does. Returns the
// post-fee output and the pre-fee output.
func AmountOut(dx, xpIn, xpOut *big.Int, amp, feeBps int64) (*big.Int, *big.Int, error) {
	if dx == nil || dx.Sign() <= 0 {
		return nil, nil, apperror.New(apperror.CodeInvalidTradeSize,
			apperror.WithContext("amount in must be positive"))
	}
	if xpIn == nil || xpIn.Sign() <= 0 || xpOut == nil || xpOut.Sign() <= 0 {
		return nil, nil, apperror.New(apperror.CodeInsufficientLiquidity,
			apperror.WithContext("pool has empty balances"))
	}
	if amp <= 0 {
		return nil, nil, apperror.New(apperror.CodeInvalidQuote,
			apperror.WithContext("amplification coefficient must be positive"))
	}

	d := D([2]*big.Int{xpIn, xpOut}, amp)
	x := new(big.Int).Add(xpIn, dx)
	yNew := y(x, d, amp)

	dy := new(big.Int).Sub(xpOut, yNew)
	dy.Sub(dy, one) // round against the trader
	if dy.Sign() <= 0 {
		return nil, nil, apperror.New(apperror.CodeInsufficientLiquidity,
			apperror.WithContext("swap output rounds to zero"))
	}

	dyFee := new(big.Int).Mul(dy, big.NewInt(asset.BpsDenominator-feeBps))
	dyFee.Div(dyFee, big.NewInt(asset.BpsDenominator))
	return dyFee, dy, nil
}

// ImpactBps measures how far the realized pre-fee price falls below
// the 1:1 peg, in basis points. Zero when the trade executes at or
// above peg (the pool was imbalanced in the trader's favor).
func ImpactBps(dx, dyPreFee *big.Int) int64 {
	if dx == nil || dx.Sign() <= 0 || dyPreFee == nil {
		return 0
	}
	if dyPreFee.Cmp(dx) >= 0 {
		return 0
	}
	diff := new(big.Int).Sub(dx, dyPreFee)
	diff.Mul(diff, big.NewInt(asset.BpsDenominator))
	diff.Div(diff, dx)
	if !diff.IsInt64() {
		return asset.BpsDenominator
	}
	return diff.Int64()
}

// MaxInputForImpact finds the largest normalized input whose impact
// stays within ceilingBps, by bisection over [1, xpIn]. The invariant
// makes impact monotone in trade size, so bisection is exact to the
// wei.
func MaxInputForImpact(xpIn, xpOut *big.Int, amp, ceilingBps, feeBps int64) *big.Int {
	if ceilingBps <= 0 || xpIn == nil || xpIn.Sign() <= 0 || xpOut == nil || xpOut.Sign() <= 0 || amp <= 0 {
		return big.NewInt(0)
	}

	lo := big.NewInt(0)
	hi := new(big.Int).Set(xpIn)

	within := func(dx *big.Int) bool {
		_, pre, err := AmountOut(dx, xpIn, xpOut, amp, feeBps)
		if err != nil {
			return false
		}
		return ImpactBps(dx, pre) <= ceilingBps
	}

	for i := 0; i < 128 && lo.Cmp(hi) < 0; i++ {
		mid := new(big.Int).Add(lo, hi)
		mid.Add(mid, one)
		mid.Div(mid, two)
		if within(mid) {
			lo = mid
		} else {
			hi = mid.Sub(mid, one)
		}
	}
	return lo
}
