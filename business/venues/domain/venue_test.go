package domain

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/arb-engine/internal/asset"
)

func testPair(t *testing.T) Pair {
	t.Helper()
	reg := asset.DefaultRegistry()
	weth, ok := reg.GetBySymbolAndChain("WETH", asset.ChainIDEthereum)
	if !ok {
		t.Fatal("WETH missing from default registry")
	}
	usdc, ok := reg.GetBySymbolAndChain("USDC", asset.ChainIDEthereum)
	if !ok {
		t.Fatal("USDC missing from default registry")
	}
	return NewPair(weth, usdc)
}

func TestPairEqualIgnoresOrientation(t *testing.T) {
	pair := testPair(t)
	if !pair.Equal(pair.Invert()) {
		t.Error("inverted pair must compare equal")
	}
	if pair.Key() != pair.Invert().Key() {
		t.Errorf("keys differ across orientation: %s vs %s", pair.Key(), pair.Invert().Key())
	}
}

func TestVenuePoolsFor(t *testing.T) {
	pair := testPair(t)
	v := Venue{
		Name: "swapx",
		Kind: KindConcentratedLiquidity,
		Pools: []PoolRef{
			{Pair: pair, Address: common.HexToAddress("0x01"), FeeTier: 500},
			{Pair: pair, Address: common.HexToAddress("0x02"), FeeTier: 3000},
		},
	}

	refs := v.PoolsFor(pair.Invert())
	if len(refs) != 2 {
		t.Fatalf("PoolsFor = %d pools, want 2", len(refs))
	}
	if refs[0].FeeTier != 500 {
		t.Errorf("config order not preserved: first tier %d", refs[0].FeeTier)
	}

	reg := asset.DefaultRegistry()
	dai, _ := reg.GetBySymbolAndChain("DAI", asset.ChainIDEthereum)
	other := NewPair(pair.Base, dai)
	if got := v.PoolsFor(other); len(got) != 0 {
		t.Errorf("unexpected pools for %s", other)
	}
}

func TestResolvePair(t *testing.T) {
	reg := asset.DefaultRegistry()

	pair, err := ResolvePair(reg, asset.ChainIDEthereum, "WETH-USDC")
	if err != nil {
		t.Fatalf("ResolvePair: %v", err)
	}
	if pair.Base.Symbol() != "WETH" || pair.Quote.Symbol() != "USDC" {
		t.Errorf("resolved %s, want WETH-USDC", pair)
	}

	if _, err := ResolvePair(reg, asset.ChainIDEthereum, "WETH"); err == nil {
		t.Error("expected error for malformed pair")
	}
	if _, err := ResolvePair(reg, asset.ChainIDEthereum, "WETH-NOPE"); err == nil {
		t.Error("expected error for unknown symbol")
	}
}
