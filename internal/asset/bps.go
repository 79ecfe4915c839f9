package asset

import "math/big"

// BpsDenominator is the fixed-point scale for basis-point math.
const BpsDenominator = 10_000

var bpsDen = big.NewInt(BpsDenominator)

// MulDiv returns a * num / den with a single big.Int intermediate,
// so ratio math never round-trips through floating point.
func (a Amount) MulDiv(num, den *big.Int) (Amount, error) {
	if den == nil || den.Sign() == 0 {
		return Amount{}, ErrDivisionByZero
	}
	if num == nil || num.Sign() < 0 || den.Sign() < 0 {
		return Amount{}, ErrNegativeAmount
	}

	result := new(big.Int).Mul(a.raw, num)
	result.Div(result, den)
	return NewAmount(a.asset, result), nil
}

// ApplyBps returns a * bps / 10000. Panics on negative bps.
func (a Amount) ApplyBps(bps int64) Amount {
	if bps < 0 {
		panic(ErrNegativeAmount)
	}
	out, err := a.MulDiv(big.NewInt(bps), bpsDen)
	if err != nil {
		panic(err)
	}
	return out
}

// SubBps returns a reduced by bps basis points (a minimum-output bound).
func (a Amount) SubBps(bps int64) Amount {
	return a.MustSub(a.ApplyBps(bps))
}

// MarginBps returns profit relative to base in basis points.
// Both amounts must share an asset and base must be non-zero.
func MarginBps(profit, base Amount) (int64, error) {
	if err := profit.checkSameAsset(base); err != nil {
		return 0, err
	}
	if base.IsZero() {
		return 0, ErrDivisionByZero
	}

	scaled := new(big.Int).Mul(profit.raw, bpsDen)
	scaled.Div(scaled, base.raw)
	return scaled.Int64(), nil
}

// RatioBps returns part relative to whole in basis points, capped at 10000.
func RatioBps(part, whole *big.Int) int64 {
	if whole == nil || whole.Sign() == 0 {
		return BpsDenominator
	}
	scaled := new(big.Int).Mul(part, bpsDen)
	scaled.Div(scaled, whole)
	if scaled.Cmp(bpsDen) > 0 {
		return BpsDenominator
	}
	return scaled.Int64()
}
