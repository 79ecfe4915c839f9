package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/arb-engine/internal/apperror"
	"github.com/fd1az/arb-engine/internal/asset"
)

func testAssets(t *testing.T) (*asset.Asset, *asset.Asset) {
	t.Helper()
	reg := asset.DefaultRegistry()
	weth, ok := reg.GetBySymbolAndChain("WETH", asset.ChainIDEthereum)
	if !ok {
		t.Fatal("WETH missing")
	}
	usdc, ok := reg.GetBySymbolAndChain("USDC", asset.ChainIDEthereum)
	if !ok {
		t.Fatal("USDC missing")
	}
	return weth, usdc
}

func TestFeedSymbolUnwrapsTokens(t *testing.T) {
	weth, usdc := testAssets(t)

	if got := FeedSymbol(weth, usdc); got != "ETHUSDC" {
		t.Errorf("FeedSymbol(WETH, USDC) = %q, want ETHUSDC", got)
	}
	if got := FeedSymbol(usdc, weth); got != "USDCETH" {
		t.Errorf("FeedSymbol(USDC, WETH) = %q, want USDCETH", got)
	}
}

func TestTickPrice(t *testing.T) {
	weth, usdc := testAssets(t)
	at := time.Now()

	tick := Tick{Symbol: "ETHUSDC", Rate: decimal.NewFromInt(2000), Source: "ws", ReceivedAt: at}
	p, err := tick.Price(weth, usdc)
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	if !p.Rate().Equal(decimal.NewFromInt(2000)) {
		t.Errorf("rate = %s, want 2000", p.Rate())
	}
	if !p.Timestamp().Equal(at) {
		t.Errorf("timestamp = %v, want %v", p.Timestamp(), at)
	}
}

func TestTickPriceRejectsNonPositiveRate(t *testing.T) {
	weth, usdc := testAssets(t)

	for _, rate := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-5)} {
		tick := Tick{Symbol: "ETHUSDC", Rate: rate, Source: "http", ReceivedAt: time.Now()}
		if _, err := tick.Price(weth, usdc); !apperror.HasCode(err, apperror.CodePriceFeedUnavailable) {
			t.Errorf("rate %s: err = %v, want CodePriceFeedUnavailable", rate, err)
		}
	}
}
