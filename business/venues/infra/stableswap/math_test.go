package stableswap

import (
	"math/big"
	"testing"
)

func norm(n int64) *big.Int {
	b := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return b.Mul(b, big.NewInt(n))
}

func TestD_BalancedPool(t *testing.T) {
	// A balanced pool's invariant equals the plain sum of balances.
	x := norm(1_000_000)
	d := D([2]*big.Int{x, x}, 100)
	want := new(big.Int).Mul(x, big.NewInt(2))
	if d.Cmp(want) != 0 {
		t.Errorf("D = %s, want %s", d, want)
	}
}

func TestD_ImbalancedPool(t *testing.T) {
	// Imbalance pulls D below the sum but never below 2*sqrt(xy)
	// (the constant-product floor).
	d := D([2]*big.Int{norm(1_500_000), norm(500_000)}, 100)
	sum := norm(2_000_000)
	if d.Cmp(sum) >= 0 {
		t.Errorf("D = %s, must be below the balance sum %s", d, sum)
	}
	if d.Cmp(norm(1_900_000)) < 0 {
		t.Errorf("D = %s, implausibly far from the sum for A=100", d)
	}
}

func TestAmountOut_NearPeg(t *testing.T) {
	// A small trade against a deep balanced pool executes within a few
	// bps of 1:1 before fees.
	xp := norm(1_000_000)
	dx := norm(1_000) // 0.1% of one side

	_, pre, err := AmountOut(dx, xp, xp, 100, 4)
	if err != nil {
		t.Fatalf("AmountOut: %v", err)
	}
	if pre.Cmp(dx) >= 0 {
		t.Errorf("pre-fee output %s must be below input %s", pre, dx)
	}
	// Within 10 bps of peg for A=100.
	floor := new(big.Int).Mul(dx, big.NewInt(9_990))
	floor.Div(floor, big.NewInt(10_000))
	if pre.Cmp(floor) < 0 {
		t.Errorf("pre-fee output %s fell more than 10 bps below peg", pre)
	}
}

func TestAmountOut_FeeApplied(t *testing.T) {
	xp := norm(1_000_000)
	dx := norm(1_000)

	post, pre, err := AmountOut(dx, xp, xp, 100, 4)
	if err != nil {
		t.Fatalf("AmountOut: %v", err)
	}

	want := new(big.Int).Mul(pre, big.NewInt(9_996))
	want.Div(want, big.NewInt(10_000))
	if post.Cmp(want) != 0 {
		t.Errorf("post-fee output = %s, want %s", post, want)
	}
}

func TestAmountOut_HigherAmpTracksPegCloser(t *testing.T) {
	xp := norm(1_000_000)
	dx := norm(50_000) // 5% of one side, enough to separate amp levels

	_, preLow, err := AmountOut(dx, xp, xp, 10, 0)
	if err != nil {
		t.Fatalf("AmountOut: %v", err)
	}
	_, preHigh, err := AmountOut(dx, xp, xp, 1000, 0)
	if err != nil {
		t.Fatalf("AmountOut: %v", err)
	}
	if preHigh.Cmp(preLow) <= 0 {
		t.Errorf("higher amplification must give better output: A=1000 %s <= A=10 %s", preHigh, preLow)
	}
}

func TestAmountOut_Rejections(t *testing.T) {
	xp := norm(1_000)
	if _, _, err := AmountOut(big.NewInt(0), xp, xp, 100, 4); err == nil {
		t.Error("expected error for zero input")
	}
	if _, _, err := AmountOut(big.NewInt(1), big.NewInt(0), xp, 100, 4); err == nil {
		t.Error("expected error for empty balances")
	}
	if _, _, err := AmountOut(big.NewInt(1), xp, xp, 0, 4); err == nil {
		t.Error("expected error for zero amplification")
	}
}

func TestImpactBps(t *testing.T) {
	if got := ImpactBps(big.NewInt(10_000), big.NewInt(9_950)); got != 50 {
		t.Errorf("ImpactBps = %d, want 50", got)
	}
	// At or above peg reads as zero impact.
	if got := ImpactBps(big.NewInt(10_000), big.NewInt(10_100)); got != 0 {
		t.Errorf("ImpactBps above peg = %d, want 0", got)
	}
}

func TestMaxInputForImpact(t *testing.T) {
	xp := norm(1_000_000)

	cap := MaxInputForImpact(xp, xp, 100, 50, 0)
	if cap.Sign() <= 0 {
		t.Fatal("cap must be positive")
	}

	_, pre, err := AmountOut(cap, xp, xp, 100, 0)
	if err != nil {
		t.Fatalf("AmountOut at cap: %v", err)
	}
	if got := ImpactBps(cap, pre); got > 50 {
		t.Errorf("impact at cap = %d bps, exceeds ceiling", got)
	}

	over := new(big.Int).Mul(cap, big.NewInt(2))
	_, preOver, err := AmountOut(over, xp, xp, 100, 0)
	if err != nil {
		t.Fatalf("AmountOut over cap: %v", err)
	}
	if ImpactBps(over, preOver) <= 50 {
		t.Error("cap is not tight")
	}
}
