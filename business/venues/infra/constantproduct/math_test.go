package constantproduct

import (
	"math/big"
	"testing"
)

func big10(base int64, exp int64) *big.Int {
	b := new(big.Int).Exp(big.NewInt(10), big.NewInt(exp), nil)
	return b.Mul(b, big.NewInt(base))
}

func TestAmountOut(t *testing.T) {
	tests := []struct {
		name       string
		amountIn   *big.Int
		reserveIn  *big.Int
		reserveOut *big.Int
		feeBps     int64
		want       *big.Int
	}{
		{
			// 1000 in against deep symmetric reserves, no fee.
			name:       "tiny_trade_no_fee",
			amountIn:   big.NewInt(1_000),
			reserveIn:  big10(1, 12),
			reserveOut: big10(1, 12),
			feeBps:     0,
			want:       big.NewInt(999), // truncation from in/(rIn+in)
		},
		{
			// in' = 997, out = 10000*997/10997 = 906 exactly.
			name:       "with_30bps_fee",
			amountIn:   big.NewInt(1_000),
			reserveIn:  big.NewInt(10_000),
			reserveOut: big.NewInt(10_000),
			feeBps:     30,
			want:       big.NewInt(906),
		},
		{
			// Trading half the pool moves the price hard.
			name:       "huge_trade",
			amountIn:   big.NewInt(500),
			reserveIn:  big.NewInt(1_000),
			reserveOut: big.NewInt(1_000),
			feeBps:     0,
			want:       big.NewInt(333),
		},
		{
			// Asymmetric reserves: out = 2000*100/(1000+100) = 181.
			name:       "asymmetric_reserves",
			amountIn:   big.NewInt(100),
			reserveIn:  big.NewInt(1_000),
			reserveOut: big.NewInt(2_000),
			feeBps:     0,
			want:       big.NewInt(181),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AmountOut(tt.amountIn, tt.reserveIn, tt.reserveOut, tt.feeBps)
			if err != nil {
				t.Fatalf("AmountOut: %v", err)
			}
			if got.Cmp(tt.want) != 0 {
				t.Errorf("AmountOut = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAmountOut_Rejections(t *testing.T) {
	if _, err := AmountOut(big.NewInt(0), big.NewInt(10), big.NewInt(10), 30); err == nil {
		t.Error("expected error for zero input")
	}
	if _, err := AmountOut(big.NewInt(1), big.NewInt(0), big.NewInt(10), 30); err == nil {
		t.Error("expected error for empty reserves")
	}
}

func TestImpactBps(t *testing.T) {
	// in' = 997 against reserve 1_000_000 -> just under 10 bps.
	got := ImpactBps(big.NewInt(1_000), big.NewInt(1_000_000), 30)
	if got < 9 || got > 10 {
		t.Errorf("ImpactBps = %d, want ~10", got)
	}

	// Half the pool: in/(rIn+in) = 1/3 -> 3333 bps.
	got = ImpactBps(big.NewInt(500_000), big.NewInt(1_000_000), 0)
	if got != 3333 {
		t.Errorf("ImpactBps = %d, want 3333", got)
	}
}

func TestMaxInputForImpact(t *testing.T) {
	reserve := big.NewInt(1_000_000)

	cap := MaxInputForImpact(reserve, 100, 0) // 1% ceiling, no fee
	if got := ImpactBps(cap, reserve, 0); got > 100 {
		t.Errorf("impact at cap = %d bps, exceeds ceiling", got)
	}

	// Doubling the cap must breach the ceiling.
	over := new(big.Int).Mul(cap, big.NewInt(2))
	if ImpactBps(over, reserve, 0) <= 100 {
		t.Error("cap is not tight")
	}
}

func TestMaxInputForImpact_FeeAdjusted(t *testing.T) {
	reserve := big.NewInt(1_000_000)
	cap := MaxInputForImpact(reserve, 100, 30)
	if got := ImpactBps(cap, reserve, 30); got > 100 {
		t.Errorf("fee-adjusted impact at cap = %d bps, exceeds ceiling", got)
	}
}
