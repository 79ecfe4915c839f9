package concentrated

import (
	"math/big"
	"testing"
)

func eth(n int64) *big.Int {
	b := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return b.Mul(b, big.NewInt(n))
}

// withinWei asserts |got-want| <= tol, absorbing integer-division
// rounding in intermediate steps.
func withinWei(t *testing.T, got, want *big.Int, tol int64) {
	t.Helper()
	diff := new(big.Int).Sub(got, want)
	diff.Abs(diff)
	if diff.Cmp(big.NewInt(tol)) > 0 {
		t.Errorf("got %s, want %s (±%d)", got, want, tol)
	}
}

func TestSwapWithinTick_ZeroForOne(t *testing.T) {
	// Price 1 (sqrtP = Q96), L = 1e18, sell 1e15 of token0, no fee.
	// Analytic output: L*in/(L+in) = 1e18*1e15/1.001e18 ~= 999000999000999.
	sqrtP := new(big.Int).Set(Q96)
	out, sqrtNew, err := SwapWithinTick(sqrtP, eth(1), big.NewInt(1_000_000_000_000_000), 0, true)
	if err != nil {
		t.Fatalf("SwapWithinTick: %v", err)
	}
	withinWei(t, out, big.NewInt(999_000_999_000_999), 2)
	if sqrtNew.Cmp(sqrtP) >= 0 {
		t.Error("selling token0 must lower the sqrt price")
	}
}

func TestSwapWithinTick_OneForZero(t *testing.T) {
	sqrtP := new(big.Int).Set(Q96)
	out, sqrtNew, err := SwapWithinTick(sqrtP, eth(1), big.NewInt(1_000_000_000_000_000), 0, false)
	if err != nil {
		t.Fatalf("SwapWithinTick: %v", err)
	}
	// Same analytic value by symmetry at price 1.
	withinWei(t, out, big.NewInt(999_000_999_000_999), 2)
	if sqrtNew.Cmp(sqrtP) <= 0 {
		t.Error("selling token1 must raise the sqrt price")
	}
}

func TestSwapWithinTick_FeeReducesOutput(t *testing.T) {
	sqrtP := new(big.Int).Set(Q96)
	in := big.NewInt(1_000_000_000_000_000)

	noFee, _, err := SwapWithinTick(sqrtP, eth(1), in, 0, true)
	if err != nil {
		t.Fatalf("SwapWithinTick: %v", err)
	}
	withFee, _, err := SwapWithinTick(sqrtP, eth(1), in, 3000, true)
	if err != nil {
		t.Fatalf("SwapWithinTick: %v", err)
	}
	if withFee.Cmp(noFee) >= 0 {
		t.Errorf("fee must reduce output: %s >= %s", withFee, noFee)
	}
}

func TestSwapWithinTick_Rejections(t *testing.T) {
	if _, _, err := SwapWithinTick(Q96, eth(1), big.NewInt(0), 0, true); err == nil {
		t.Error("expected error for zero input")
	}
	if _, _, err := SwapWithinTick(Q96, big.NewInt(0), big.NewInt(1), 0, true); err == nil {
		t.Error("expected error for zero liquidity")
	}
}

func TestImpactBps(t *testing.T) {
	// Selling 1e15 against L=1e18 at price 1 moves sqrtP by ~1/1001,
	// so price moves ~2/1001 ~= 20 bps.
	_, sqrtNew, err := SwapWithinTick(Q96, eth(1), big.NewInt(1_000_000_000_000_000), 0, true)
	if err != nil {
		t.Fatalf("SwapWithinTick: %v", err)
	}
	got := ImpactBps(Q96, sqrtNew)
	if got < 19 || got > 20 {
		t.Errorf("ImpactBps = %d, want ~20", got)
	}

	if ImpactBps(Q96, Q96) != 0 {
		t.Error("unchanged price must have zero impact")
	}
}

func TestMaxInputForImpact(t *testing.T) {
	for _, zeroForOne := range []bool{true, false} {
		cap := MaxInputForImpact(Q96, eth(1), 100, 0, zeroForOne)
		if cap.Sign() <= 0 {
			t.Fatalf("zeroForOne=%v: cap must be positive", zeroForOne)
		}

		_, sqrtNew, err := SwapWithinTick(Q96, eth(1), cap, 0, zeroForOne)
		if err != nil {
			t.Fatalf("SwapWithinTick: %v", err)
		}
		if got := ImpactBps(Q96, sqrtNew); got > 100 {
			t.Errorf("zeroForOne=%v: impact at cap = %d bps, exceeds ceiling", zeroForOne, got)
		}

		over := new(big.Int).Mul(cap, big.NewInt(2))
		_, sqrtOver, err := SwapWithinTick(Q96, eth(1), over, 0, zeroForOne)
		if err != nil {
			t.Fatalf("SwapWithinTick: %v", err)
		}
		if ImpactBps(Q96, sqrtOver) <= 100 {
			t.Errorf("zeroForOne=%v: cap is not tight", zeroForOne)
		}
	}
}

func TestDivergenceBps(t *testing.T) {
	got, err := DivergenceBps(big.NewInt(10_000), big.NewInt(9_950))
	if err != nil {
		t.Fatalf("DivergenceBps: %v", err)
	}
	if got != 50 {
		t.Errorf("DivergenceBps = %d, want 50", got)
	}

	if _, err := DivergenceBps(big.NewInt(0), big.NewInt(1)); err == nil {
		t.Error("expected error for zero local output")
	}
}
