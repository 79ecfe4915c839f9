package domain

import (
	"math/big"
	"testing"
)

func TestNewGasPrice(t *testing.T) {
	// 25 gwei in wei.
	wei := new(big.Int).Mul(big.NewInt(25), big.NewInt(1e9))
	price := NewGasPrice(wei)

	if price.Wei.Cmp(wei) != 0 {
		t.Errorf("Wei = %s, want %s", price.Wei, wei)
	}
	if price.Gwei != 25 {
		t.Errorf("Gwei = %v, want 25", price.Gwei)
	}
	if price.Timestamp.IsZero() {
		t.Error("Timestamp not set")
	}
}

func TestCalculateGasEstimate(t *testing.T) {
	price := NewGasPrice(new(big.Int).Mul(big.NewInt(30), big.NewInt(1e9)))
	estimate := CalculateGasEstimate(200_000, price)

	wantWei := new(big.Int).Mul(price.Wei, big.NewInt(200_000))
	if estimate.TotalWei.Cmp(wantWei) != 0 {
		t.Errorf("TotalWei = %s, want %s", estimate.TotalWei, wantWei)
	}
	if estimate.TotalGwei != 30*200_000 {
		t.Errorf("TotalGwei = %v, want %v", estimate.TotalGwei, float64(30*200_000))
	}
	if estimate.GasLimit != 200_000 {
		t.Errorf("GasLimit = %d, want 200000", estimate.GasLimit)
	}
	if estimate.GasPrice != price {
		t.Error("GasPrice not carried on the estimate")
	}
}
